// Package pod implements Pod: a cell-scoped OCI container built from an
// image bundle and driven through runc.
package pod

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	runc "github.com/containerd/go-runc"
	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// State is the lifecycle stage of a Pod.
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

// Name identifies a pod. Unlike CellName it is not DNS-label
// constrained, mirroring original_source's looser PodName.
type Name string

// Spec is the declarative description of a Pod.
type Spec struct {
	Image ImageRef
}

// RootDir is the parent directory pod root paths are created under
//.
const RootDir = "/var/run/aurae/pods"

// Resolver locates and, if necessary, fetches an OCI bundle for an
// ImageRef, returning the local filesystem path to the unpacked bundle
// (the directory containing config.json and the rootfs). Production
// code satisfies this against a real image store; tests substitute a
// fixed local bundle.
type Resolver interface {
	Resolve(ctx context.Context, image ImageRef) (bundlePath string, err error)
}

// Pod is a cell-hosted OCI container with the same
// Unallocated→Allocated→Freed lifecycle as Cell and Executable.
type Pod struct {
	mu       sync.Mutex
	name     Name
	spec     Spec
	rootPath string
	resolver Resolver
	runc     *runc.Runc
	lock     *flock.Flock

	state State
}

// New constructs a Pod in the Unallocated state. rootPath is not
// created until Allocate; name is substituted into RootDir O2
// (the original's rootPath constant never substitutes its `{name}`
// placeholder; this implementation does).
func New(name Name, spec Spec, resolver Resolver) (*Pod, error) {
	if name == "" {
		return nil, rpcerr.InvalidArgumentf("pod name must not be empty")
	}
	rootPath := filepath.Join(RootDir, string(name))
	return &Pod{
		name:     name,
		spec:     spec,
		rootPath: rootPath,
		resolver: resolver,
		runc:     &runc.Runc{Command: "runc"},
		lock:     flock.New(rootPath + ".lock"),
		state:    Unallocated,
	}, nil
}

// Name returns the pod's name.
func (p *Pod) Name() Name { return p.name }

// RootPath returns the per-pod root directory, with
// the pod name already substituted.
func (p *Pod) RootPath() string { return p.rootPath }

// Allocate creates rootPath, resolves the image bundle, and creates
// (but does not start) the runc container in init mode with host-init
// integration disabled. A no-op once already allocated.
func (p *Pod) Allocate(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Unallocated {
		return nil
	}

	if err := os.MkdirAll(RootDir, 0o750); err != nil {
		return rpcerr.Internalf(err, "create pod root directory %q", RootDir)
	}

	locked, err := p.lock.TryLock()
	if err != nil {
		return rpcerr.Internalf(err, "acquire root path lock for pod %q", p.name)
	}
	if !locked {
		return rpcerr.AlreadyExistsf("pod %q root path is held by another process", p.name)
	}

	if err := os.MkdirAll(p.rootPath, 0o750); err != nil {
		_ = p.lock.Unlock()
		return rpcerr.Internalf(err, "create root path %q for pod %q", p.rootPath, p.name)
	}

	bundle, err := p.resolver.Resolve(ctx, p.spec.Image)
	if err != nil {
		_ = p.lock.Unlock()
		return rpcerr.Internalf(err, "resolve image %q for pod %q", p.spec.Image, p.name)
	}

	if err := p.runc.Create(ctx, string(p.name), bundle, &runc.CreateOpts{
		Started: nil,
	}); err != nil {
		_ = p.lock.Unlock()
		return rpcerr.Internalf(err, "create container for pod %q from bundle %q", p.name, bundle)
	}

	p.state = Allocated
	return nil
}

// startPollInterval and startPollTimeout bound how long Start waits for
// runc to report the container as running before giving up.
const (
	startPollInterval = 50 * time.Millisecond
	startPollTimeout  = 10 * time.Second
)

// Start runs the init process of a previously created container and
// polls runc state until the container reports running.
func (p *Pod) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Allocated {
		return rpcerr.PreconditionFailedf("pod %q is not allocated", p.name)
	}
	if err := p.runc.Start(ctx, string(p.name)); err != nil {
		return rpcerr.Internalf(err, "start pod %q", p.name)
	}

	err := wait.PollUntilContextTimeout(ctx, startPollInterval, startPollTimeout, true, func(ctx context.Context) (bool, error) {
		state, err := p.runc.State(ctx, string(p.name))
		if err != nil {
			return false, nil
		}
		return state.Status == "running", nil
	})
	if err != nil {
		return rpcerr.Internalf(err, "pod %q did not reach running state", p.name)
	}
	return nil
}

// Stop sends SIGTERM to the container, including containers in a
// stopped state (runc's "all" kill option), leaving rootPath intact.
func (p *Pod) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signal(ctx, int(unix.SIGTERM))
}

// Free sends SIGTERM, deletes the container, and removes rootPath.
// State becomes Freed regardless of prior state.
func (p *Pod) Free(ctx context.Context) error {
	return p.doFree(ctx, int(unix.SIGTERM))
}

// Kill is Free's SIGKILL variant.
func (p *Pod) Kill(ctx context.Context) error {
	return p.doFree(ctx, int(unix.SIGKILL))
}

func (p *Pod) doFree(ctx context.Context, sig int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var retErr error
	if p.state == Allocated {
		if err := p.signal(ctx, sig); err != nil {
			retErr = err
		}
		if err := p.runc.Delete(ctx, string(p.name), &runc.DeleteOpts{Force: true}); err != nil && retErr == nil {
			retErr = rpcerr.Internalf(err, "delete container for pod %q", p.name)
		}
		if err := os.RemoveAll(p.rootPath); err != nil && retErr == nil {
			retErr = rpcerr.Internalf(err, "remove root path %q for pod %q", p.rootPath, p.name)
		}
		if err := p.lock.Unlock(); err != nil && retErr == nil {
			retErr = rpcerr.Internalf(err, "release root path lock for pod %q", p.name)
		}
		_ = os.Remove(p.lock.Path())
	}

	p.state = Freed
	return retErr
}

func (p *Pod) signal(ctx context.Context, sig int) error {
	if err := p.runc.Kill(ctx, string(p.name), sig, &runc.KillOpts{All: true}); err != nil {
		return rpcerr.Internalf(err, "signal pod %q with %d", p.name, sig)
	}
	return nil
}

// State returns the pod's current lifecycle stage.
func (p *Pod) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close performs the best-effort kill every Pod owner must run on its
// way out, mirroring original_source's Drop impl for Pod.
func (p *Pod) Close() {
	_ = p.Kill(context.Background())
}
