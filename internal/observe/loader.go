package observe

import (
	"context"
	"encoding/binary"

	"github.com/cilium/ebpf"
	"github.com/cilium/ebpf/ringbuf"

	"github.com/cellsys/cellsd/internal/rpcerr"
)

// tracepointEvent is the wire layout the pinned fork/exit eBPF program
// writes into its ring buffer map: a one-byte kind tag followed by the
// two pid fields (zero-padded when unused), matching the C struct the
// production program is assumed to emit.
type tracepointEvent struct {
	Kind      uint8
	_         [3]byte
	ParentPID int32
	ChildPID  int32
}

const (
	tracepointFork uint8 = 1
	tracepointExit uint8 = 2
)

// Loader attaches to the pinned ring buffer map produced by the
// fork/exit eBPF tracepoint program and republishes decoded events onto
// a ProcessEventBus. It is a small interface so a deterministic
// in-process producer can substitute for real eBPF on hosts where the
// program is not loaded (tests, non-Linux dev hosts, ).
type Loader interface {
	Run(ctx context.Context, bus *ProcessEventBus) error
}

// RingbufLoader reads tracepointEvent records from a pinned map named
// PinnedMapName under PinPath.
type RingbufLoader struct {
	PinPath      string
	PinnedMapName string
}

// DefaultPinPath is where the production fork/exit eBPF program is
// expected to have pinned its ring buffer map.
const DefaultPinPath = "/sys/fs/bpf/cellsd"

// Run opens the pinned map and forwards decoded events until ctx is
// canceled.
func (l RingbufLoader) Run(ctx context.Context, bus *ProcessEventBus) error {
	path := l.PinPath
	if path == "" {
		path = DefaultPinPath
	}
	name := l.PinnedMapName
	if name == "" {
		name = "process_events"
	}

	m, err := ebpf.LoadPinnedMap(path+"/"+name, nil)
	if err != nil {
		return rpcerr.Internalf(err, "load pinned ring buffer map %q", path+"/"+name)
	}
	defer m.Close()

	rd, err := ringbuf.NewReader(m)
	if err != nil {
		return rpcerr.Internalf(err, "open ring buffer reader for %q", name)
	}
	defer rd.Close()

	go func() {
		<-ctx.Done()
		_ = rd.Close()
	}()

	for {
		record, err := rd.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return rpcerr.Internalf(err, "read ring buffer record from %q", name)
		}
		publishTracepointRecord(bus, record.RawSample)
	}
}

func publishTracepointRecord(bus *ProcessEventBus, raw []byte) {
	if len(raw) < 12 {
		return
	}
	kind := raw[0]
	parentPID := int32(binary.LittleEndian.Uint32(raw[4:8]))
	childPID := int32(binary.LittleEndian.Uint32(raw[8:12]))

	switch kind {
	case tracepointFork:
		bus.Fork.Publish(ForkEvent{ParentPID: parentPID, ChildPID: childPID})
	case tracepointExit:
		bus.Exit.Publish(ExitEvent{PID: childPID})
	}
}

// FakeLoader publishes a fixed, pre-recorded sequence of fork/exit
// events and then blocks until ctx is canceled; it satisfies Loader for
// environments without the pinned eBPF map (tests, non-Linux dev hosts).
type FakeLoader struct {
	Forks []ForkEvent
	Exits []ExitEvent
}

// Run publishes every recorded event once, in the order forks-then-exits,
// then waits for cancellation.
func (l FakeLoader) Run(ctx context.Context, bus *ProcessEventBus) error {
	for _, f := range l.Forks {
		bus.Fork.Publish(f)
	}
	for _, e := range l.Exits {
		bus.Exit.Publish(e)
	}
	<-ctx.Done()
	return nil
}
