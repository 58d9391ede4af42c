// Package isolation declares the declarative resource-and-namespace policy
// applied to a cell, and the CLONE_NEW* flag translation used when spawning
// a NestedDaemon or Executable.
package isolation

import (
	"golang.org/x/sys/unix"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// CPU carries cpu.weight and cpu.max controller settings.
type CPU struct {
	// Weight is cpu.weight, 1-10000. Nil means unset.
	Weight *uint64
	// MaxMicros is the quota in microseconds per 1,000,000us period
	// (cpu.max's numerator, with the denominator fixed at 1e6). Nil means
	// unset ("max").
	MaxMicros *int64
}

// Validate checks CPU field ranges.
func (c CPU) Validate() error {
	if c.Weight != nil && (*c.Weight < 1 || *c.Weight > 10000) {
		return rpcerr.InvalidArgumentf("cpu weight %d out of range [1, 10000]", *c.Weight)
	}
	return nil
}

// Cpuset carries cpuset.cpus and cpuset.mems mask strings.
type Cpuset struct {
	Cpus string // e.g. "0-3"
	Mems string // e.g. "0"
}

// Memory carries memory.{min,low,high,max} controller settings, in bytes.
// Nil means unset.
type Memory struct {
	Min  *int64
	Low  *int64
	High *int64
	Max  *int64
}

// Resources is the resource-cap half of an IsolationSpec.
type Resources struct {
	CPU    *CPU
	Cpuset *Cpuset
	Memory *Memory
}

// Namespaces is the namespace-share half of an IsolationSpec. true means
// share-with-parent (do not unshare); false means unshare a fresh namespace.
type Namespaces struct {
	Mount  bool
	UTS    bool
	IPC    bool
	PID    bool
	Net    bool
	Cgroup bool
}

// Spec is the full declarative policy attached to a cell: resource caps plus
// namespace share flags.
type Spec struct {
	Resources  Resources
	Namespaces Namespaces
}

// Validate checks field ranges across the whole spec.
func (s Spec) Validate() error {
	if s.Resources.CPU != nil {
		if err := s.Resources.CPU.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// CloneFlags returns the unix.CLONE_NEW* bitmask of namespaces to unshare
// when spawning a process under this Spec, following runsc/sandbox's own
// SysProcAttr.Cloneflags construction.
func (n Namespaces) CloneFlags() uintptr {
	var flags uintptr
	if !n.Mount {
		flags |= unix.CLONE_NEWNS
	}
	if !n.UTS {
		flags |= unix.CLONE_NEWUTS
	}
	if !n.IPC {
		flags |= unix.CLONE_NEWIPC
	}
	if !n.PID {
		flags |= unix.CLONE_NEWPID
	}
	if !n.Net {
		flags |= unix.CLONE_NEWNET
	}
	if !n.Cgroup {
		flags |= unix.CLONE_NEWCGROUP
	}
	return flags
}

// UnshareMountAndPID reports whether both mount and pid namespaces are
// unshared, the precondition for mounting a fresh /proc inside the child
//.
func (n Namespaces) UnshareMountAndPID() bool {
	return !n.Mount && !n.PID
}

// UnshareUTS reports whether the uts namespace is unshared, the
// precondition for setting a fresh hostname inside the child.
func (n Namespaces) UnshareUTS() bool {
	return !n.UTS
}
