// Binary cellsd is the daemon: it serves the RpcSurface over an
// mTLS-wrapped unix socket and, per allocated cell, launches a nested
// instance of itself via the hidden "nested" subcommand.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(new(serveCommand), "")
	subcommands.Register(new(nestedCommand), "internal use only")

	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx := context.Background()
	os.Exit(int(subcommands.Execute(ctx)))
}
