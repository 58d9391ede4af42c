package pod

import (
	"context"
	"testing"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

func TestTable_FreeAndStop_NotFound(t *testing.T) {
	tbl := NewTable()
	ctx := context.Background()

	if err := tbl.Stop(ctx, "ghost"); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatalf("Stop of unregistered pod should be NotFound, got %v", err)
	}
	if err := tbl.Free(ctx, "ghost"); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatalf("Free of unregistered pod should be NotFound, got %v", err)
	}
	if err := tbl.Start(ctx, "ghost"); rpcerr.KindOf(err) != rpcerr.NotFound {
		t.Fatalf("Start of unregistered pod should be NotFound, got %v", err)
	}
}

func TestTable_LenAndCloseAll_Empty(t *testing.T) {
	tbl := NewTable()
	if tbl.Len() != 0 {
		t.Fatalf("new Table should be empty, Len() = %d", tbl.Len())
	}
	tbl.CloseAll() // must not panic on an empty table
}
