// Package cell implements the Cell type: the binding of one IsolationSpec
// to one Cgroup and one NestedDaemon, with an immutable-once-allocated
// lifecycle.
package cell

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cellsys/cellsd/internal/cellname"
	"github.com/cellsys/cellsd/internal/cgroup"
	"github.com/cellsys/cellsd/internal/executable"
	"github.com/cellsys/cellsd/internal/isolation"
	"github.com/cellsys/cellsd/internal/nesteddaemon"
	"github.com/cellsys/cellsd/internal/rpcerr"
)

// State is the lifecycle stage of a Cell. It only ever moves forward:
// Unallocated < Allocated < Freed.
type State int

const (
	Unallocated State = iota
	Allocated
	Freed
)

func (s State) String() string {
	switch s {
	case Unallocated:
		return "Unallocated"
	case Allocated:
		return "Allocated"
	case Freed:
		return "Freed"
	default:
		return "Unknown"
	}
}

// Deps are the daemon-wide collaborators a Cell needs to allocate itself;
// injected so tests can substitute fakes.
type Deps struct {
	BinaryPath string
	SocketDir  string
	Auth       nesteddaemon.ClientConfig
}

// Cell binds a name and an IsolationSpec to the cgroup and nested-daemon
// resources it owns once allocated. Fields are never exported to preserve
// the "never mutate after allocate" invariant from outside this package.
type Cell struct {
	mu   sync.Mutex
	name cellname.CellName
	spec isolation.Spec
	deps Deps

	state  State
	cgroup *cgroup.Cgroup
	nested *nesteddaemon.NestedDaemon
	execs  *executable.Table
}

// New constructs a Cell in the Unallocated state. It does not touch the
// filesystem or spawn any process until Allocate is called.
func New(name cellname.CellName, spec isolation.Spec, deps Deps) *Cell {
	return &Cell{name: name, spec: spec, deps: deps, state: Unallocated, execs: executable.NewTable()}
}

// Name returns the CellName this Cell was constructed with.
func (c *Cell) Name() cellname.CellName {
	return c.name
}

// Allocate constructs the underlying Cgroup and launches a NestedDaemon,
// attaching its PID to the leaf cgroup before returning. A no-op (returns
// nil) if the Cell has already been allocated; once Freed, Allocate never
// re-enters Allocated.
func (c *Cell) Allocate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Unallocated {
		return nil
	}

	cg, err := cgroup.New(c.name.String(), c.spec.Resources)
	if err != nil {
		return rpcerr.Internalf(err, "allocate cgroup for cell %q", c.name)
	}

	nd, err := nesteddaemon.Launch(c.spec, nesteddaemon.Options{
		CellName:   c.name.String(),
		BinaryPath: c.deps.BinaryPath,
		SocketDir:  c.deps.SocketDir,
		Auth:       c.deps.Auth,
	})
	if err != nil {
		_ = cg.Delete()
		return rpcerr.Internalf(err, "allocate nested daemon for cell %q", c.name)
	}

	if err := cg.AddTask(nd.Pid()); err != nil {
		// Allocation partially succeeded; best-effort rollback, then
		// surface Aborted so the caller knows cleanup already ran.
		_, killErr := nd.Kill()
		_ = cg.Delete()
		if killErr != nil {
			logrus.WithError(killErr).WithField("cell", c.name).
				Warn("cell: rollback kill of nested daemon failed after failed cgroup attach")
		}
		return rpcerr.Abortedf(err, "attach nested daemon pid %d to leaf cgroup of cell %q", nd.Pid(), c.name)
	}

	logrus.WithFields(logrus.Fields{"cell": c.name.String(), "pid": nd.Pid()}).
		Info("cell: attached nested daemon to leaf cgroup")

	c.cgroup = cg
	c.nested = nd
	c.state = Allocated
	return nil
}

// Free signals the NestedDaemon to gracefully shut down (SIGTERM), then
// deletes the underlying Cgroup. State becomes Freed regardless of the
// state prior to the call (idempotent terminal transition, ).
func (c *Cell) Free() error {
	return c.doFree(func(nd *nesteddaemon.NestedDaemon) error {
		_, err := nd.Shutdown()
		return err
	})
}

// Kill is Free's SIGKILL variant.
func (c *Cell) Kill() error {
	return c.doFree(func(nd *nesteddaemon.NestedDaemon) error {
		_, err := nd.Kill()
		return err
	})
}

func (c *Cell) doFree(stop func(*nesteddaemon.NestedDaemon) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == Allocated {
		if err := c.execs.StopAll(); err != nil {
			logrus.WithError(err).WithField("cell", c.name).Warn("cell: one or more executables failed to stop cleanly")
		}
		if err := stop(c.nested); err != nil {
			c.state = Freed
			return rpcerr.Internalf(err, "stop nested daemon children of cell %q", c.name)
		}
		if err := c.cgroup.Delete(); err != nil {
			c.state = Freed
			return rpcerr.Internalf(err, "free cgroup of cell %q", c.name)
		}
	}

	c.state = Freed
	return nil
}

// ClientConfig returns the dialing material for the nested daemon. Valid
// only in the Allocated state.
func (c *Cell) ClientConfig() (nesteddaemon.ClientConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Allocated {
		return nesteddaemon.ClientConfig{}, rpcerr.PreconditionFailedf("cell %q is not allocated", c.name)
	}
	return c.nested.ClientConfig(), nil
}

// StartExecutable adds a named child process to the cell, unsharing the
// same namespaces the cell's own nested daemon unshares so executables
// observe the cell's isolation boundary.
func (c *Cell) StartExecutable(name string, argv []string, description string, tty bool) (int, error) {
	c.mu.Lock()
	if c.state != Allocated {
		c.mu.Unlock()
		return 0, rpcerr.PreconditionFailedf("cell %q is not allocated", c.name)
	}
	spec := c.spec
	execs := c.execs
	cg := c.cgroup
	c.mu.Unlock()

	exe, err := executable.New(name, argv, description, tty)
	if err != nil {
		return 0, err
	}
	if err := execs.Add(exe); err != nil {
		return 0, err
	}

	mountProc := spec.Namespaces.UnshareMountAndPID()
	pid, err := exe.Start(spec.Namespaces.CloneFlags(), mountProc)
	if err != nil {
		execs.Remove(name)
		return 0, err
	}

	if err := cg.AddTask(pid); err != nil {
		_ = execs.StopAndRemove(name)
		return 0, rpcerr.Abortedf(err, "attach executable %q pid %d to leaf cgroup of cell %q", name, pid, c.name)
	}

	return pid, nil
}

// StopExecutable stops and forgets the named child process.
func (c *Cell) StopExecutable(name string) error {
	c.mu.Lock()
	execs := c.execs
	c.mu.Unlock()
	return execs.StopAndRemove(name)
}

// ResizeExecutable resizes the named child process' pty.
func (c *Cell) ResizeExecutable(name string, cols, rows uint16) error {
	c.mu.Lock()
	execs := c.execs
	c.mu.Unlock()

	exe, err := execs.Get(name)
	if err != nil {
		return err
	}
	return exe.Resize(cols, rows)
}

// V2 reports whether the cell's cgroup is the unified (v2) hierarchy.
// Returns false, false when the cell is not allocated.
func (c *Cell) V2() (v2 bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Allocated {
		return false, false
	}
	return c.cgroup.V2(), true
}

// State returns the cell's current lifecycle stage.
func (c *Cell) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close performs the best-effort kill every Cell owner must run on its way
// out, mirroring original_source's Drop impl for Cell.
func (c *Cell) Close() {
	if err := c.Kill(); err != nil {
		logrus.WithError(err).WithField("cell", c.name).Warn("cell: best-effort kill on close failed")
	}
}
