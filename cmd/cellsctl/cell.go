package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/cellsys/cellsd/internal/wire"
)

type allocateCellCommand struct {
	dialFlags
	cellPath  string
	cpuWeight uint64
	shareNet  bool
}

func (*allocateCellCommand) Name() string     { return "allocate-cell" }
func (*allocateCellCommand) Synopsis() string { return "allocate a cell" }
func (*allocateCellCommand) Usage() string    { return "allocate-cell --path=name [flags]\n" }

func (c *allocateCellCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.cellPath, "path", "", "cell-name-path to allocate")
	f.Uint64Var(&c.cpuWeight, "cpu-weight", 0, "cpu.weight (0 means unset)")
	f.BoolVar(&c.shareNet, "share-net", false, "share the host network namespace instead of unsharing")
}

func (c *allocateCellCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	req := wire.AllocateCellRequest{CellNamePath: c.cellPath, ShareNet: c.shareNet}
	if c.cpuWeight > 0 {
		req.CPUWeight = &c.cpuWeight
	}

	var resp wire.AllocateCellResponse
	if err := client.Call("AllocateCellRequest", req, &resp); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("allocated cell %q (cgroup v2: %v)\n", resp.CellName, resp.CgroupIsV2)
	return subcommands.ExitSuccess
}

type freeCellCommand struct {
	dialFlags
	cellPath string
}

func (*freeCellCommand) Name() string     { return "free-cell" }
func (*freeCellCommand) Synopsis() string { return "free a cell" }
func (*freeCellCommand) Usage() string    { return "free-cell --path=name [flags]\n" }

func (c *freeCellCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.cellPath, "path", "", "cell-name-path to free")
}

func (c *freeCellCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	if err := client.Call("FreeCellRequest", wire.FreeCellRequest{CellNamePath: c.cellPath}, nil); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("freed cell %q\n", c.cellPath)
	return subcommands.ExitSuccess
}
