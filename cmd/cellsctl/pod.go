package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"

	"github.com/cellsys/cellsd/internal/wire"
)

type allocatePodCommand struct {
	dialFlags
	name  string
	image string
}

func (*allocatePodCommand) Name() string     { return "allocate-pod" }
func (*allocatePodCommand) Synopsis() string { return "allocate a pod from an OCI image reference" }
func (*allocatePodCommand) Usage() string    { return "allocate-pod --name=n --image=ref [flags]\n" }

func (c *allocatePodCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.name, "name", "", "pod name, unique on the host")
	f.StringVar(&c.image, "image", "", "OCI image reference to resolve a bundle from")
}

func (c *allocatePodCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	req := wire.AllocatePodRequest{PodName: c.name, Image: c.image}
	if err := client.Call("AllocatePodRequest", req, nil); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("allocated pod %q from %q\n", c.name, c.image)
	return subcommands.ExitSuccess
}

type startPodCommand struct {
	dialFlags
	name string
}

func (*startPodCommand) Name() string     { return "start-pod" }
func (*startPodCommand) Synopsis() string { return "start a previously allocated pod" }
func (*startPodCommand) Usage() string    { return "start-pod --name=n [flags]\n" }

func (c *startPodCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.name, "name", "", "pod name to start")
}

func (c *startPodCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	if err := client.Call("StartPodRequest", wire.StartPodRequest{PodName: c.name}, nil); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("started pod %q\n", c.name)
	return subcommands.ExitSuccess
}

type stopPodCommand struct {
	dialFlags
	name string
}

func (*stopPodCommand) Name() string     { return "stop-pod" }
func (*stopPodCommand) Synopsis() string { return "stop a running pod" }
func (*stopPodCommand) Usage() string    { return "stop-pod --name=n [flags]\n" }

func (c *stopPodCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.name, "name", "", "pod name to stop")
}

func (c *stopPodCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	if err := client.Call("StopPodRequest", wire.StopPodRequest{PodName: c.name}, nil); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("stopped pod %q\n", c.name)
	return subcommands.ExitSuccess
}

type freePodCommand struct {
	dialFlags
	name string
}

func (*freePodCommand) Name() string     { return "free-pod" }
func (*freePodCommand) Synopsis() string { return "free a pod and remove its root filesystem" }
func (*freePodCommand) Usage() string    { return "free-pod --name=n [flags]\n" }

func (c *freePodCommand) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.StringVar(&c.name, "name", "", "pod name to free")
}

func (c *freePodCommand) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	client, err := c.dial()
	if err != nil {
		return fatalConnect(err)
	}
	defer client.Close()

	if err := client.Call("FreePodRequest", wire.FreePodRequest{PodName: c.name}, nil); err != nil {
		return fatalRequest(err)
	}
	fmt.Printf("freed pod %q\n", c.name)
	return subcommands.ExitSuccess
}
