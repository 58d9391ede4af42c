// Package executable implements a child process running inside a cell, with
// optional additional namespace unshare and a pre-exec /proc mount hook
//.
package executable

import (
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/containerd/console"
	"golang.org/x/sys/unix"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// State is the lifecycle stage of an Executable.
type State int

const (
	Init State = iota
	Started
	Stopped
)

func (s State) String() string {
	switch s {
	case Init:
		return "Init"
	case Started:
		return "Started"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Executable is a named, argv-carrying child process belonging to a cell.
type Executable struct {
	mu          sync.Mutex
	name        string
	argv        []string
	description string
	tty         bool

	state      State
	cmd        *exec.Cmd
	pid        int
	exitStatus *os.ProcessState
	pty        console.Console
}

// New constructs an Executable in the Init state. When tty is set, Start
// allocates a pty for the child instead of inheriting the daemon's own
// stdio, the same switch the shim's Create/Start pair makes on a per-task
// Terminal flag.
func New(name string, argv []string, description string, tty bool) (*Executable, error) {
	if name == "" {
		return nil, rpcerr.InvalidArgumentf("executable name must not be empty")
	}
	if len(argv) == 0 {
		return nil, rpcerr.InvalidArgumentf("executable %q: argv must not be empty", name)
	}
	return &Executable{name: name, argv: argv, description: description, tty: tty, state: Init}, nil
}

// Name returns the executable's name.
func (e *Executable) Name() string { return e.name }

// Start spawns the process, unsharing the namespaces named by cloneFlags and
// mounting a fresh /proc first when mountProc is set (valid only when both
// pid and mount namespaces are being unshared, step 3). Start is
// idempotent once Started: it returns the already-recorded PID.
func (e *Executable) Start(cloneFlags uintptr, mountProc bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Started {
		return e.pid, nil
	}

	argv := e.argv
	if mountProc {
		// Mounting /proc must happen inside the child after clone() has
		// already placed it in new pid+mount namespaces but before the
		// target program runs. Wrapping argv in a shell snippet avoids
		// the need for an unsafe fork-time hook in the Go runtime, the
		// same trick util-linux's own `unshare --mount-proc` uses.
		quoted := make([]string, len(argv))
		for i, a := range argv {
			quoted[i] = fmt.Sprintf("%q", a)
		}
		script := "mount -t proc proc /proc && exec " + joinSpace(quoted)
		argv = []string{"/bin/sh", "-c", script}
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &unix.SysProcAttr{Cloneflags: cloneFlags}

	var pty console.Console
	if e.tty {
		var slave *os.File
		var err error
		pty, slave, err = console.NewPty()
		if err != nil {
			return 0, rpcerr.Internalf(err, "allocate pty for executable %q", e.name)
		}
		defer slave.Close()
		cmd.Stdin = slave
		cmd.Stdout = slave
		cmd.Stderr = slave
		cmd.SysProcAttr.Setsid = true
		cmd.SysProcAttr.Setctty = true
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		if pty != nil {
			pty.Close()
		}
		return 0, rpcerr.Internalf(err, "start executable %q", e.name)
	}

	e.cmd = cmd
	e.pid = cmd.Process.Pid
	e.pty = pty
	e.state = Started
	return e.pid, nil
}

// Resize resizes the executable's pty. It fails with PreconditionFailed if
// the executable was not started with a tty.
func (e *Executable) Resize(cols, rows uint16) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pty == nil {
		return rpcerr.PreconditionFailedf("executable %q has no tty", e.name)
	}
	if err := e.pty.Resize(console.WinSize{Width: cols, Height: rows}); err != nil {
		return rpcerr.Internalf(err, "resize executable %q", e.name)
	}
	return nil
}

// Stop sends SIGKILL and waits, transitioning to Stopped. Idempotent.
func (e *Executable) Stop() (*os.ProcessState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Stopped {
		return e.exitStatus, nil
	}
	if e.state == Init {
		e.state = Stopped
		return nil, nil
	}

	if err := e.cmd.Process.Signal(unix.SIGKILL); err != nil && err != os.ErrProcessDone {
		return nil, rpcerr.Internalf(err, "kill executable %q", e.name)
	}
	err := e.cmd.Wait()
	e.exitStatus = e.cmd.ProcessState
	e.state = Stopped
	if e.pty != nil {
		e.pty.Close()
	}
	if err != nil && err != os.ErrProcessDone {
		if _, ok := err.(*exec.ExitError); !ok {
			return e.exitStatus, rpcerr.Internalf(err, "wait for executable %q", e.name)
		}
	}
	return e.exitStatus, nil
}

// Pid returns the recorded PID. Zero before Start.
func (e *Executable) Pid() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pid
}

func joinSpace(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}
