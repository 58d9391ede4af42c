package executable

import (
	"testing"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

func newTestExe(t *testing.T, name string) *Executable {
	t.Helper()
	exe, err := New(name, []string{"/bin/true"}, "", false)
	if err != nil {
		t.Fatal(err)
	}
	return exe
}

func TestTable_AddGetRemove(t *testing.T) {
	tbl := NewTable()
	exe := newTestExe(t, "one")

	if err := tbl.Add(exe); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := tbl.Add(exe); rpcerr.KindOf(err) != rpcerr.AlreadyExists {
		t.Fatalf("duplicate Add should be AlreadyExists, got %v", err)
	}

	got, err := tbl.Get("one")
	if err != nil || got != exe {
		t.Fatalf("Get(one) = %v, %v", got, err)
	}

	if _, err := tbl.Get("missing"); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatalf("Get(missing) should be NotFound, got %v", err)
	}

	tbl.Remove("one")
	if _, err := tbl.Get("one"); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatal("Get after Remove should be NotFound")
	}
}

func TestTable_StopAndRemove_AllowsNameReuse(t *testing.T) {
	// Open Question O1: stopping an executable frees its name for reuse.
	tbl := NewTable()
	exe1 := newTestExe(t, "reused")
	if err := tbl.Add(exe1); err != nil {
		t.Fatal(err)
	}

	if err := tbl.StopAndRemove("reused"); err != nil {
		t.Fatalf("StopAndRemove: %v", err)
	}

	exe2 := newTestExe(t, "reused")
	if err := tbl.Add(exe2); err != nil {
		t.Fatalf("re-Add after StopAndRemove should succeed, got %v", err)
	}
}

func TestTable_StopAll(t *testing.T) {
	tbl := NewTable()
	for _, n := range []string{"a", "b", "c"} {
		if err := tbl.Add(newTestExe(t, n)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tbl.StopAll(); err != nil {
		t.Errorf("StopAll on never-started executables should not error, got %v", err)
	}
	if got := len(tbl.Names()); got != 0 {
		t.Errorf("StopAll should empty the table, %d entries remain", got)
	}
}
