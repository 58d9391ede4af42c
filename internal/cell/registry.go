package cell

import (
	"context"
	"sync"

	"github.com/cellsys/cellsd/internal/cellname"
	"github.com/cellsys/cellsd/internal/isolation"
	"github.com/cellsys/cellsd/internal/nesteddaemon"
	"github.com/cellsys/cellsd/internal/rpcerr"
)

// Forwarder dials the nested daemon of a Cell and re-issues an Allocate or
// Free call against it for the remainder of a cell-name-path. It is
// satisfied by the RPC client; kept as an interface here so the registry
// has no dependency on the transport layer.
type Forwarder interface {
	ForwardAllocate(ctx context.Context, client nesteddaemon.ClientConfig, tail cellname.Path, name cellname.CellName, spec isolation.Spec) error
	ForwardFree(ctx context.Context, client nesteddaemon.ClientConfig, tail cellname.Path) error
}

// Registry is the in-memory, mutex-serialized mapping from CellName to Cell
// for cells owned directly by this daemon instance.
type Registry struct {
	mu        sync.Mutex
	cells     map[string]*Cell
	newDeps   func(cellname.CellName) Deps
	forwarder Forwarder
}

// NewRegistry constructs an empty Registry. newDeps builds the Deps used to
// allocate a freshly created Cell (binary path, socket dir, mTLS material),
// letting the daemon vary them per cell if ever needed.
func NewRegistry(newDeps func(cellname.CellName) Deps, forwarder Forwarder) *Registry {
	return &Registry{
		cells:     make(map[string]*Cell),
		newDeps:   newDeps,
		forwarder: forwarder,
	}
}

// Allocate parses path; the head segment becomes a cell created in this
// registry, and any tail is forwarded to that cell's nested daemon. Fails
// with AlreadyExists if the head name is already present locally.
func (r *Registry) Allocate(ctx context.Context, path cellname.Path, spec isolation.Spec) error {
	head, tail, ok := path.SplitHead()
	if !ok {
		return rpcerr.InvalidArgumentf("cannot allocate the empty cell name path")
	}

	r.mu.Lock()
	if _, exists := r.cells[head.String()]; exists {
		r.mu.Unlock()
		return rpcerr.AlreadyExistsf("cell %q already exists", head)
	}
	c := New(head, spec, r.newDeps(head))
	r.cells[head.String()] = c
	r.mu.Unlock()

	if err := c.Allocate(ctx); err != nil {
		r.mu.Lock()
		delete(r.cells, head.String())
		r.mu.Unlock()
		return err
	}

	if tail.IsEmpty() {
		return nil
	}

	client, err := c.ClientConfig()
	if err != nil {
		return err
	}
	tailHead, _, _ := tail.SplitHead()
	return r.forwarder.ForwardAllocate(ctx, client, tail, tailHead, spec)
}

// Free descends the same way Allocate does. A local cell found in any
// non-Freed state is freed and removed from the registry.
func (r *Registry) Free(ctx context.Context, path cellname.Path) error {
	head, tail, ok := path.SplitHead()
	if !ok {
		return rpcerr.InvalidArgumentf("cannot free the empty cell name path")
	}

	r.mu.Lock()
	c, exists := r.cells[head.String()]
	r.mu.Unlock()
	if !exists {
		return rpcerr.NotFoundf("cell %q not found", head)
	}

	if !tail.IsEmpty() {
		client, err := c.ClientConfig()
		if err != nil {
			return err
		}
		if err := r.forwarder.ForwardFree(ctx, client, tail); err != nil {
			return err
		}
		return nil
	}

	if err := c.Free(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.cells, head.String())
	r.mu.Unlock()
	return nil
}

// GetMut invokes f with the locally registered cell addressed by a
// single-segment path, avoiding exposing the Cell pointer across the lock
// boundary any longer than necessary. A path with more than one segment is
// rejected with InvalidArgument; GetMut does not forward to nested daemons.
func (r *Registry) GetMut(path cellname.Path, f func(*Cell) error) error {
	head, tail, ok := path.SplitHead()
	if !ok {
		return rpcerr.InvalidArgumentf("cannot address the empty cell name path")
	}
	if !tail.IsEmpty() {
		return rpcerr.InvalidArgumentf("cell %q: descending into nested daemons for GetMut is not implemented locally; issue the RPC against the nested daemon directly", head)
	}

	r.mu.Lock()
	c, exists := r.cells[head.String()]
	r.mu.Unlock()
	if !exists {
		return rpcerr.NotFoundf("cell %q not found", head)
	}
	return f(c)
}

// Len returns the number of locally registered cells (test helper).
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cells)
}

// CloseAll runs best-effort Kill on every registered cell, for daemon
// shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	cells := make([]*Cell, 0, len(r.cells))
	for _, c := range r.cells {
		cells = append(cells, c)
	}
	r.mu.Unlock()

	for _, c := range cells {
		c.Close()
	}
}
