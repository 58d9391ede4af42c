// Binary cellsctl is a thin client for cellsd's RPC surface. Exit codes
// follow the daemon's Kind taxonomy: 0 success, 1 connect failure, 2
// request failure, 3 runtime error.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/cellsys/cellsd/internal/rpc"
)

const (
	exitConnectFailure = 1
	exitRequestFailure = 2
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(allocateCellCommand), "")
	subcommands.Register(new(freeCellCommand), "")
	subcommands.Register(new(startExecutableCommand), "")
	subcommands.Register(new(stopExecutableCommand), "")
	subcommands.Register(new(resizeExecutableCommand), "")
	subcommands.Register(new(allocatePodCommand), "")
	subcommands.Register(new(startPodCommand), "")
	subcommands.Register(new(stopPodCommand), "")
	subcommands.Register(new(freePodCommand), "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

func fatalConnect(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "cellsctl: connect:", err)
	return subcommands.ExitStatus(exitConnectFailure)
}

func fatalRequest(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, "cellsctl: request failed:", err)
	return subcommands.ExitStatus(rpc.ExitCodeFor(err))
}
