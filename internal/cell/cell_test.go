package cell

import (
	"testing"

	"github.com/cellsys/cellsd/internal/cellname"
	"github.com/cellsys/cellsd/internal/isolation"
	"github.com/cellsys/cellsd/internal/rpcerr"
)

func testCellName(t *testing.T, s string) cellname.CellName {
	t.Helper()
	n, err := cellname.New(s)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestCell_FreeFromUnallocated_IsNoopAndIdempotent(t *testing.T) {
	c := New(testCellName(t, "never-allocated"), isolation.Spec{}, Deps{})

	if err := c.Free(); err != nil {
		t.Fatalf("Free on an Unallocated cell should not error, got %v", err)
	}
	if c.State() != Freed {
		t.Fatalf("state after Free = %v, want Freed", c.State())
	}
	if err := c.Free(); err != nil {
		t.Fatalf("second Free should be idempotent, got %v", err)
	}
	if err := c.Kill(); err != nil {
		t.Fatalf("Kill after Free should be idempotent, got %v", err)
	}
}

func TestCell_ClientConfig_RequiresAllocated(t *testing.T) {
	c := New(testCellName(t, "unallocated"), isolation.Spec{}, Deps{})
	if _, err := c.ClientConfig(); rpcerr.KindOf(err) != rpcerr.PreconditionFailed {
		t.Fatalf("ClientConfig on Unallocated cell should be PreconditionFailed, got %v", err)
	}
}

func TestCell_V2_FalseWhenNotAllocated(t *testing.T) {
	c := New(testCellName(t, "unallocated"), isolation.Spec{}, Deps{})
	if v2, ok := c.V2(); v2 || ok {
		t.Fatalf("V2() on Unallocated cell = (%v, %v), want (false, false)", v2, ok)
	}
}

func TestCell_Close_OnUnallocated_DoesNotPanic(t *testing.T) {
	c := New(testCellName(t, "unallocated"), isolation.Spec{}, Deps{})
	c.Close()
	if c.State() != Freed {
		t.Fatalf("state after Close = %v, want Freed", c.State())
	}
}

func TestCell_StartExecutable_RequiresAllocated(t *testing.T) {
	c := New(testCellName(t, "unallocated"), isolation.Spec{}, Deps{})
	if _, err := c.StartExecutable("proc", []string{"/bin/true"}, "", false); rpcerr.KindOf(err) != rpcerr.PreconditionFailed {
		t.Fatalf("StartExecutable on Unallocated cell should be PreconditionFailed, got %v", err)
	}
}

func TestCell_StopExecutable_NotFoundWhenNeverStarted(t *testing.T) {
	c := New(testCellName(t, "unallocated"), isolation.Spec{}, Deps{})
	if err := c.StopExecutable("ghost"); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatalf("StopExecutable on unknown name should be NotFound, got %v", err)
	}
}

func TestCell_Name(t *testing.T) {
	n := testCellName(t, "named")
	c := New(n, isolation.Spec{}, Deps{})
	if c.Name().String() != "named" {
		t.Errorf("Name() = %q, want %q", c.Name().String(), "named")
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{Unallocated: "Unallocated", Allocated: "Allocated", Freed: "Freed", State(99): "Unknown"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
