// Package cgroup owns the two-level cgroup v2 tree every cell is backed by:
// a non-leaf directory carrying controller configuration, and a leaf at
// "<cell>/_" where processes actually live, honoring the cgroup-v2
// "no internal processes" rule.
package cgroup

import (
	"os"
	"path/filepath"

	cgroup2 "github.com/containerd/cgroups/v2"

	"github.com/cellsys/cellsd/internal/isolation"
	"github.com/cellsys/cellsd/internal/rpcerr"
)

// Root is the mountpoint of the cgroup v2 unified hierarchy.
const Root = "/sys/fs/cgroup"

// microsecondsPerSecond is the fixed denominator for cpu.max, letting
// callers express CPU.MaxMicros as if it was the unit "µs/s" without also
// tracking the period.
const microsecondsPerSecond = uint64(1000000)

// Cgroup owns a cell's non-leaf and leaf cgroup v2 directories.
type Cgroup struct {
	name    string
	nonLeaf *cgroup2.Manager
	leaf    *cgroup2.Manager
}

// New materializes the non-leaf and leaf directories under the cgroup v2
// hierarchy, writing every requested controller onto the non-leaf. The leaf
// carries no controllers; it exists only to host processes.
func New(name string, res isolation.Resources) (*Cgroup, error) {
	nonLeaf, err := cgroup2.NewManager(Root, "/"+name, toResources(res))
	if err != nil {
		return nil, rpcerr.Internalf(err, "create non-leaf cgroup for %q", name)
	}

	leaf, err := cgroup2.NewManager(Root, "/"+name+"/_", &cgroup2.Resources{})
	if err != nil {
		_ = nonLeaf.Delete()
		return nil, rpcerr.Internalf(err, "create leaf cgroup for %q", name)
	}

	return &Cgroup{name: name, nonLeaf: nonLeaf, leaf: leaf}, nil
}

// AddTask places pid into the leaf cgroup's thread-group-ID file.
func (c *Cgroup) AddTask(pid int) error {
	if err := c.leaf.AddProc(uint64(pid)); err != nil {
		return rpcerr.Internalf(err, "add pid %d to leaf cgroup of %q", pid, c.name)
	}
	return nil
}

// Delete removes the leaf cgroup, then the non-leaf. Deleting a non-empty
// leaf fails; callers must have terminated child processes first.
func (c *Cgroup) Delete() error {
	if err := c.leaf.Delete(); err != nil {
		return rpcerr.Internalf(err, "delete leaf cgroup of %q", c.name)
	}
	if err := c.nonLeaf.Delete(); err != nil {
		return rpcerr.Internalf(err, "delete non-leaf cgroup of %q", c.name)
	}
	return nil
}

// V2 reports that this cgroup was created on the unified (v2) hierarchy.
// The core only ever creates v2 cgroups, but the flag is surfaced on
// AllocateCell's reply for forward compatibility with hosts that
// might someday run a hybrid hierarchy.
func (c *Cgroup) V2() bool {
	return true
}

// Exists reports whether a non-leaf cgroup directory for name is present.
func Exists(name string) bool {
	_, err := os.Stat(filepath.Join(Root, name))
	return err == nil
}

func toResources(res isolation.Resources) *cgroup2.Resources {
	out := &cgroup2.Resources{}

	if res.CPU != nil {
		out.CPU = &cgroup2.CPU{}
		if res.CPU.Weight != nil {
			out.CPU.Weight = res.CPU.Weight
		}
		if res.CPU.MaxMicros != nil {
			period := microsecondsPerSecond
			out.CPU.Max = cgroup2.NewCPUMax(res.CPU.MaxMicros, &period)
		}
	}

	if res.Cpuset != nil {
		out.CPU = orCPU(out.CPU)
		out.CPUSet = &cgroup2.CPUSet{}
		if res.Cpuset.Cpus != "" {
			out.CPUSet.Cpus = res.Cpuset.Cpus
		}
		if res.Cpuset.Mems != "" {
			out.CPUSet.Mems = res.Cpuset.Mems
		}
	}

	if res.Memory != nil {
		out.Memory = &cgroup2.Memory{
			Min:  res.Memory.Min,
			Low:  res.Memory.Low,
			High: res.Memory.High,
			Max:  res.Memory.Max,
		}
	}

	return out
}

func orCPU(c *cgroup2.CPU) *cgroup2.CPU {
	if c != nil {
		return c
	}
	return &cgroup2.CPU{}
}
