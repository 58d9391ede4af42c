package executable

import (
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// Table is the per-cell name→Executable registry. Stop removes the name
// from the table, so a later Start reusing the same name is not rejected as
// AlreadyExists.
type Table struct {
	mu    sync.Mutex
	execs map[string]*Executable
}

// NewTable constructs an empty Table.
func NewTable() *Table {
	return &Table{execs: make(map[string]*Executable)}
}

// Add registers exe under its name, failing if the name is already in use.
func (t *Table) Add(exe *Executable) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.execs[exe.Name()]; exists {
		return rpcerr.AlreadyExistsf("executable %q already exists in this cell", exe.Name())
	}
	t.execs[exe.Name()] = exe
	return nil
}

// Get looks up an Executable by name.
func (t *Table) Get(name string) (*Executable, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	exe, exists := t.execs[name]
	if !exists {
		return nil, rpcerr.NotFoundf("executable %q not found", name)
	}
	return exe, nil
}

// Remove drops name from the table, freeing it for reuse.
func (t *Table) Remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.execs, name)
}

// StopAndRemove stops the named executable (idempotent) and removes it from
// the table regardless of the stop outcome, matching FreeCell's "reap then
// forget" behavior.
func (t *Table) StopAndRemove(name string) error {
	t.mu.Lock()
	exe, exists := t.execs[name]
	t.mu.Unlock()
	if !exists {
		return rpcerr.NotFoundf("executable %q not found", name)
	}

	_, err := exe.Stop()
	t.mu.Lock()
	delete(t.execs, name)
	t.mu.Unlock()
	return err
}

// Names returns every currently registered executable name (test helper).
func (t *Table) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.execs))
	for n := range t.execs {
		names = append(names, n)
	}
	return names
}

// StopAll stops every registered executable, used when a cell is freed with
// running executables. It keeps going after a failing Stop so one stuck
// process doesn't strand the rest, and returns every failure joined
// together, the same style UniversalExecutor.Shutdown accumulates teardown
// errors in.
func (t *Table) StopAll() error {
	t.mu.Lock()
	execs := make([]*Executable, 0, len(t.execs))
	for _, e := range t.execs {
		execs = append(execs, e)
	}
	t.execs = make(map[string]*Executable)
	t.mu.Unlock()

	var merr *multierror.Error
	for _, e := range execs {
		if _, err := e.Stop(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
