package isolation

import (
	"testing"

	"golang.org/x/sys/unix"
)

func TestCPUValidate(t *testing.T) {
	bad := uint64(0)
	c := CPU{Weight: &bad}
	if err := c.Validate(); err == nil {
		t.Error("weight 0 should be rejected")
	}

	tooHigh := uint64(10001)
	c = CPU{Weight: &tooHigh}
	if err := c.Validate(); err == nil {
		t.Error("weight 10001 should be rejected")
	}

	ok := uint64(100)
	c = CPU{Weight: &ok}
	if err := c.Validate(); err != nil {
		t.Errorf("weight 100 should be valid, got %v", err)
	}
}

func TestCloneFlags_AllShared(t *testing.T) {
	n := Namespaces{Mount: true, UTS: true, IPC: true, PID: true, Net: true, Cgroup: true}
	if got := n.CloneFlags(); got != 0 {
		t.Errorf("all-shared Namespaces should produce zero CloneFlags, got %#x", got)
	}
}

func TestCloneFlags_AllUnshared(t *testing.T) {
	n := Namespaces{}
	want := uintptr(unix.CLONE_NEWNS | unix.CLONE_NEWUTS | unix.CLONE_NEWIPC | unix.CLONE_NEWPID | unix.CLONE_NEWNET | unix.CLONE_NEWCGROUP)
	if got := n.CloneFlags(); got != want {
		t.Errorf("CloneFlags() = %#x, want %#x", got, want)
	}
}

func TestUnshareMountAndPID(t *testing.T) {
	cases := []struct {
		n    Namespaces
		want bool
	}{
		{Namespaces{Mount: false, PID: false}, true},
		{Namespaces{Mount: true, PID: false}, false},
		{Namespaces{Mount: false, PID: true}, false},
		{Namespaces{Mount: true, PID: true}, false},
	}
	for _, c := range cases {
		if got := c.n.UnshareMountAndPID(); got != c.want {
			t.Errorf("UnshareMountAndPID(%+v) = %v, want %v", c.n, got, c.want)
		}
	}
}

func TestSpecValidate_RejectsBadCPU(t *testing.T) {
	bad := uint64(99999)
	s := Spec{Resources: Resources{CPU: &CPU{Weight: &bad}}}
	if err := s.Validate(); err == nil {
		t.Error("Spec.Validate should surface nested CPU.Validate errors")
	}
}
