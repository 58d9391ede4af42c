// Package nesteddaemon spawns a child instance of the daemon binary inside a
// cell's freshly unshared namespaces, serving the same RPC surface on its
// own socket so that a cell-name-path can be forwarded hop by hop.
package nesteddaemon

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sys/unix"

	"github.com/cellsys/cellsd/internal/isolation"
	"github.com/cellsys/cellsd/internal/rpcerr"
)

// NestedSubcommand is the hidden daemon subcommand a NestedDaemon re-execs
// itself as; it performs the pre-serve namespace setup (mount /proc, set
// hostname) before entering the normal RPC-serving main loop.
const NestedSubcommand = "nested"

// ClientConfig is the dialing material a parent needs to talk to a nested
// daemon: a socket path plus the mTLS material it was configured with.
type ClientConfig struct {
	SocketPath string
	CACert     string
	ClientCert string
	ClientKey  string
	ServerName string
}

// NestedDaemon is a running child instance of the daemon binary.
type NestedDaemon struct {
	cmd          *exec.Cmd
	pid          int
	clientConfig ClientConfig
	reaped       bool
	exitStatus   *os.ProcessState
}

// Options configures a Launch call.
type Options struct {
	// CellName names the cell this nested daemon belongs to (used to derive
	// a default socket path and as the hostname when the uts namespace is
	// unshared).
	CellName string
	// BinaryPath is the daemon's own executable, re-exec'd as a child.
	BinaryPath string
	// SocketDir is the directory nested daemon sockets are created under.
	SocketDir string
	// Auth carries the mTLS material forwarded to the nested instance.
	Auth ClientConfig
}

// Launch spawns BinaryPath as a child with the namespace set derived from
// spec (share → inherit, unshare → new), matching runsc/sandbox's own
// exec.Command + SysProcAttr.Cloneflags construction.
func Launch(spec isolation.Spec, opts Options) (*NestedDaemon, error) {
	socketPath := filepath.Join(opts.SocketDir, opts.CellName+".sock")

	args := []string{
		NestedSubcommand,
		"--cell=" + opts.CellName,
		"--socket=" + socketPath,
		"--ca-cert=" + opts.Auth.CACert,
		"--client-cert=" + opts.Auth.ClientCert,
		"--client-key=" + opts.Auth.ClientKey,
	}
	if spec.Namespaces.UnshareMountAndPID() {
		args = append(args, "--mount-proc=true")
	}
	if spec.Namespaces.UnshareUTS() {
		args = append(args, "--hostname="+opts.CellName)
	}

	cmd := exec.Command(opts.BinaryPath, args...)
	cmd.Args[0] = "cellsd-nested[" + opts.CellName + "]"
	cmd.Stdin = nil
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &unix.SysProcAttr{
		Cloneflags: spec.Namespaces.CloneFlags(),
		Pdeathsig:  unix.SIGKILL,
	}

	if err := cmd.Start(); err != nil {
		return nil, rpcerr.Internalf(err, "spawn nested daemon for cell %q", opts.CellName)
	}

	nd := &NestedDaemon{
		cmd: cmd,
		pid: cmd.Process.Pid,
		clientConfig: ClientConfig{
			SocketPath: socketPath,
			CACert:     opts.Auth.CACert,
			ClientCert: opts.Auth.ClientCert,
			ClientKey:  opts.Auth.ClientKey,
			ServerName: opts.Auth.ServerName,
		},
	}
	return nd, nil
}

// Pid returns the nested daemon's host PID.
func (n *NestedDaemon) Pid() int {
	return n.pid
}

// ClientConfig returns the dialing material for this nested daemon.
func (n *NestedDaemon) ClientConfig() ClientConfig {
	return n.clientConfig
}

// WaitUntilServing polls for the nested daemon's socket to appear, using
// exponential backoff since the child is not guaranteed to be listening the
// instant its PID is observed.
func (n *NestedDaemon) WaitUntilServing(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	return backoff.Retry(func() error {
		if _, err := os.Stat(n.clientConfig.SocketPath); err != nil {
			return err
		}
		return nil
	}, backoffWithContext(ctx, b))
}

func backoffWithContext(ctx context.Context, b backoff.BackOff) backoff.BackOff {
	return &ctxBackoff{ctx: ctx, BackOff: b}
}

type ctxBackoff struct {
	ctx context.Context
	backoff.BackOff
}

func (c *ctxBackoff) NextBackOff() time.Duration {
	if c.ctx.Err() != nil {
		return backoff.Stop
	}
	return c.BackOff.NextBackOff()
}

// Shutdown delivers SIGTERM and waits, returning the recorded ExitStatus.
// Callable multiple times; subsequent calls on a reaped process return the
// recorded status.
func (n *NestedDaemon) Shutdown() (*os.ProcessState, error) {
	return n.signalAndWait(unix.SIGTERM)
}

// Kill delivers SIGKILL and waits. Callable multiple times.
func (n *NestedDaemon) Kill() (*os.ProcessState, error) {
	return n.signalAndWait(unix.SIGKILL)
}

func (n *NestedDaemon) signalAndWait(sig syscall.Signal) (*os.ProcessState, error) {
	if n.reaped {
		return n.exitStatus, nil
	}

	if err := n.cmd.Process.Signal(sig); err != nil && !isProcessFinished(err) {
		return nil, rpcerr.Internalf(err, "signal nested daemon pid %d with %v", n.pid, sig)
	}

	err := n.cmd.Wait()
	n.reaped = true
	n.exitStatus = n.cmd.ProcessState
	if err != nil && !isProcessFinished(err) {
		return n.exitStatus, rpcerr.Internalf(err, "wait for nested daemon pid %d", n.pid)
	}
	return n.exitStatus, nil
}

func isProcessFinished(err error) bool {
	return err == os.ErrProcessDone
}

// RunNestedSetup performs the pre-serve namespace setup for the "nested"
// subcommand: mounting /proc when requested (only valid once both pid and
// mount namespaces have been unshared, since clone() already placed this
// process there before exec) and setting the hostname when uts was
// unshared. Call this before starting the RPC server.
func RunNestedSetup(mountProc bool, hostname string) error {
	if mountProc {
		if err := unix.Mount("proc", "/proc", "proc", 0, ""); err != nil {
			return rpcerr.Internalf(err, "mount /proc in nested daemon")
		}
	}
	if hostname != "" {
		if err := unix.Sethostname([]byte(hostname)); err != nil {
			return rpcerr.Internalf(err, "set hostname %q in nested daemon", hostname)
		}
	}
	if mountProc {
		if err := isolation.DropBoundingSetExceptRequired(); err != nil {
			return err
		}
	}
	return nil
}
