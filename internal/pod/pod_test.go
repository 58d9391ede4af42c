package pod

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

type fakeResolver struct {
	path string
	err  error
}

func (f fakeResolver) Resolve(context.Context, ImageRef) (string, error) {
	return f.path, f.err
}

func TestNew_RejectsEmptyName(t *testing.T) {
	if _, err := New("", Spec{}, fakeResolver{}); rpcerr.KindOf(err) != rpcerr.InvalidArgument {
		t.Fatal("empty pod name should be InvalidArgument")
	}
}

func TestNew_SubstitutesNameIntoRootPath(t *testing.T) {
	// O2: the root path must have the pod name substituted in, not a
	// literal "{name}" placeholder.
	p, err := New("busybox", Spec{}, fakeResolver{})
	if err != nil {
		t.Fatal(err)
	}
	want := RootDir + "/busybox"
	if got := p.RootPath(); got != want {
		t.Errorf("RootPath() = %q, want %q", got, want)
	}
}

func TestFree_FromUnallocated_IsNoopAndIdempotent(t *testing.T) {
	p, err := New("never-allocated", Spec{}, fakeResolver{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Free(context.Background()); err != nil {
		t.Fatalf("Free on Unallocated pod should not error, got %v", err)
	}
	if p.State() != Freed {
		t.Fatalf("state after Free = %v, want Freed", p.State())
	}
	if err := p.Free(context.Background()); err != nil {
		t.Fatalf("second Free should be idempotent, got %v", err)
	}
}

func TestStart_RequiresAllocated(t *testing.T) {
	p, err := New("unallocated", Spec{}, fakeResolver{})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(context.Background()); rpcerr.KindOf(err) != rpcerr.PreconditionFailed {
		t.Fatalf("Start on Unallocated pod should be PreconditionFailed, got %v", err)
	}
}

func TestRootPathLock_RejectsSecondHolder(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "busybox.lock")
	first := flock.New(lockPath)
	locked, err := first.TryLock()
	if err != nil || !locked {
		t.Fatalf("first TryLock failed: locked=%v err=%v", locked, err)
	}
	defer first.Unlock()

	second := flock.New(lockPath)
	locked, err = second.TryLock()
	if err != nil {
		t.Fatalf("second TryLock errored: %v", err)
	}
	if locked {
		t.Fatal("second TryLock should fail while first holds the lock")
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{Unallocated: "Unallocated", Allocated: "Allocated", Freed: "Freed", State(7): "Unknown"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
