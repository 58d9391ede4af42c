package observe

import "testing"

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus[ForkEvent](4)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(ForkEvent{ParentPID: 1, ChildPID: 2})

	done := make(chan struct{})
	v, ok := sub.Recv(done)
	if !ok || v.ChildPID != 2 {
		t.Fatalf("Recv = (%+v, %v), want (ChildPID=2, true)", v, ok)
	}
}

func TestBus_MultipleSubscribersEachGetAllEvents(t *testing.T) {
	b := NewBus[ExitEvent](4)
	subA := b.Subscribe()
	subB := b.Subscribe()
	defer subA.Unsubscribe()
	defer subB.Unsubscribe()

	b.Publish(ExitEvent{PID: 7})

	done := make(chan struct{})
	va, _ := subA.Recv(done)
	vb, _ := subB.Recv(done)
	if va.PID != 7 || vb.PID != 7 {
		t.Fatalf("both subscribers should observe the same event, got %v and %v", va, vb)
	}
}

func TestBus_FullRingDropsOldestAndRecordsLag(t *testing.T) {
	b := NewBus[ExitEvent](2)
	sub := b.Subscribe()
	defer sub.Unsubscribe()

	b.Publish(ExitEvent{PID: 1})
	b.Publish(ExitEvent{PID: 2})
	b.Publish(ExitEvent{PID: 3}) // ring full at 2; pid 1 should be dropped

	done := make(chan struct{})
	first, _ := sub.Recv(done)
	second, _ := sub.Recv(done)
	if first.PID != 2 || second.PID != 3 {
		t.Fatalf("expected oldest-drop semantics, got %v then %v", first, second)
	}
	if lag := sub.TakeLag(); lag != 1 {
		t.Fatalf("TakeLag() = %d, want 1", lag)
	}
	if lag := sub.TakeLag(); lag != 0 {
		t.Fatalf("TakeLag() should reset to 0 after being read, got %d", lag)
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus[ForkEvent](4)
	sub := b.Subscribe()
	sub.Unsubscribe()

	b.Publish(ForkEvent{ParentPID: 1, ChildPID: 2}) // must not panic or deadlock

	select {
	case v := <-sub.r.ch:
		t.Fatalf("unsubscribed subscription should not receive events, got %v", v)
	default:
	}
}
