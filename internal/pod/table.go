package pod

import (
	"context"
	"sync"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// Table is the daemon-wide PodName→Pod registry, mirroring
// executable.Table's name-reuse rules but at pod scope.
type Table struct {
	mu   sync.Mutex
	pods map[Name]*Pod
}

// NewTable constructs an empty Table.
func NewTable() *Table {
	return &Table{pods: make(map[Name]*Pod)}
}

// Allocate constructs and allocates a new Pod, failing with
// AlreadyExists if the name is already registered.
func (t *Table) Allocate(ctx context.Context, name Name, spec Spec, resolver Resolver) error {
	t.mu.Lock()
	if _, exists := t.pods[name]; exists {
		t.mu.Unlock()
		return rpcerr.AlreadyExistsf("pod %q already exists", name)
	}
	p, err := New(name, spec, resolver)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.pods[name] = p
	t.mu.Unlock()

	if err := p.Allocate(ctx); err != nil {
		t.mu.Lock()
		delete(t.pods, name)
		t.mu.Unlock()
		return err
	}
	return nil
}

// Start runs the named pod's init process.
func (t *Table) Start(ctx context.Context, name Name) error {
	p, err := t.get(name)
	if err != nil {
		return err
	}
	return p.Start(ctx)
}

// Stop sends SIGTERM to the named pod without removing it.
func (t *Table) Stop(ctx context.Context, name Name) error {
	p, err := t.get(name)
	if err != nil {
		return err
	}
	return p.Stop(ctx)
}

// Free frees and unregisters the named pod.
func (t *Table) Free(ctx context.Context, name Name) error {
	p, err := t.get(name)
	if err != nil {
		return err
	}
	err = p.Free(ctx)
	t.mu.Lock()
	delete(t.pods, name)
	t.mu.Unlock()
	return err
}

func (t *Table) get(name Name) (*Pod, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, exists := t.pods[name]
	if !exists {
		return nil, rpcerr.NotFoundf("pod %q not found", name)
	}
	return p, nil
}

// Len returns the number of registered pods (test helper).
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pods)
}

// CloseAll runs best-effort Kill on every registered pod, for daemon
// shutdown.
func (t *Table) CloseAll() {
	t.mu.Lock()
	pods := make([]*Pod, 0, len(t.pods))
	for _, p := range t.pods {
		pods = append(pods, p)
	}
	t.mu.Unlock()

	for _, p := range pods {
		p.Close()
	}
}
