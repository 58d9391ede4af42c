package observe

// ForkEvent records a fork tracepoint hit: child_pid was forked from
// parent_pid.
type ForkEvent struct {
	ParentPID int32
	ChildPID  int32
}

// ExitEvent records an exit tracepoint hit for pid.
type ExitEvent struct {
	PID int32
}

// ProcessEventBus is the pair of broadcast buses sourced from the
// fork/exit eBPF tracepoints.
type ProcessEventBus struct {
	Fork *Bus[ForkEvent]
	Exit *Bus[ExitEvent]
}

// NewProcessEventBus constructs a ProcessEventBus with the given
// per-subscriber ring capacity (DefaultCapacity if capacity <= 0).
func NewProcessEventBus(capacity int) *ProcessEventBus {
	return &ProcessEventBus{
		Fork: NewBus[ForkEvent](capacity),
		Exit: NewBus[ExitEvent](capacity),
	}
}
