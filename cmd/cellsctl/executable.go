package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"github.com/cellsys/cellsd/internal/wire"
)

type startExecutableCommand struct {
	dialFlags
	cellPath    string
	name        string
	argv        string
	description string
	tty         bool
}

func (*startExecutableCommand) Name() string     { return "start-executable" }
func (*startExecutableCommand) Synopsis() string { return "start a process inside a cell" }
func (*startExecutableCommand) Usage() string {
	return "start-executable --path=cell --name=n --argv=\"/bin/prog arg1 arg2\" [flags]\n"
}

func (c *startExecutableCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.cellPath, "path", "", "cell-name-path the executable belongs to")
	f.StringVar(&c.name, "name", "", "executable name, unique within the cell")
	f.StringVar(&c.argv, "argv", "", "space-separated argv; the first word is the program path")
	f.StringVar(&c.description, "description", "", "free-form description")
	f.BoolVar(&c.tty, "tty", false, "allocate a pty for the executable instead of inheriting stdio")
}

func (c *startExecutableCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	req := wire.StartExecutableRequest{
		CellNamePath: c.cellPath,
		Name:         c.name,
		Argv:         strings.Fields(c.argv),
		Description:  c.description,
		TTY:          c.tty,
	}
	var resp wire.StartExecutableResponse
	if err := client.Call("StartExecutableRequest", req, &resp); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("started %q with pid %d\n", c.name, resp.PID)
	return subcommands.ExitSuccess
}

type stopExecutableCommand struct {
	dialFlags
	cellPath string
	name     string
}

func (*stopExecutableCommand) Name() string     { return "stop-executable" }
func (*stopExecutableCommand) Synopsis() string { return "stop a process inside a cell" }
func (*stopExecutableCommand) Usage() string    { return "stop-executable --path=cell --name=n [flags]\n" }

func (c *stopExecutableCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.cellPath, "path", "", "cell-name-path the executable belongs to")
	f.StringVar(&c.name, "name", "", "executable name to stop")
}

func (c *stopExecutableCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	req := wire.StopExecutableRequest{CellNamePath: c.cellPath, ExecutableName: c.name}
	if err := client.Call("StopExecutableRequest", req, nil); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("stopped %q\n", c.name)
	return subcommands.ExitSuccess
}

type resizeExecutableCommand struct {
	dialFlags
	cellPath string
	name     string
	cols     uint
	rows     uint
}

func (*resizeExecutableCommand) Name() string     { return "resize-executable" }
func (*resizeExecutableCommand) Synopsis() string { return "resize a tty-backed executable" }
func (*resizeExecutableCommand) Usage() string {
	return "resize-executable --path=cell --name=n --cols=80 --rows=24 [flags]\n"
}

func (c *resizeExecutableCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.cellPath, "path", "", "cell-name-path the executable belongs to")
	f.StringVar(&c.name, "name", "", "executable name to resize")
	f.UintVar(&c.cols, "cols", 80, "terminal width in columns")
	f.UintVar(&c.rows, "rows", 24, "terminal height in rows")
}

func (c *resizeExecutableCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	req := wire.ResizeExecutableRequest{
		CellNamePath:   c.cellPath,
		ExecutableName: c.name,
		Cols:           uint16(c.cols),
		Rows:           uint16(c.rows),
	}
	if err := client.Call("ResizeExecutableRequest", req, nil); err != nil {
		return fatalRequest(err)
	}
	return subcommands.ExitSuccess
}
