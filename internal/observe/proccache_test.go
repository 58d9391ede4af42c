package observe

import (
	"testing"
	"time"
)

type fakeResolver struct {
	lookup map[int32]int32
}

func (f fakeResolver) NSPID(pid int32) (int32, bool) {
	nspid, ok := f.lookup[pid]
	return nspid, ok
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestProcCache_GetOnEmpty_ReturnsNotFound(t *testing.T) {
	bus := NewProcessEventBus(4)
	cache := NewProcCache(bus, 5*time.Second, fakeResolver{}, NewFakeClock(time.Unix(0, 0)))
	defer cache.Close()

	if _, ok := cache.Get(123); ok {
		t.Error("Get on an empty cache should report not found")
	}
}

func TestProcCache_ForkPopulatesEntry(t *testing.T) {
	bus := NewProcessEventBus(4)
	resolver := fakeResolver{lookup: map[int32]int32{42: 2}}
	cache := NewProcCache(bus, 5*time.Second, resolver, NewFakeClock(time.Unix(0, 0)))
	defer cache.Close()

	bus.Fork.Publish(ForkEvent{ParentPID: 1, ChildPID: 42})

	waitUntil(t, time.Second, func() bool {
		nspid, ok := cache.Get(42)
		return ok && nspid == 2
	})
}

func TestProcCache_ForkWithUnresolvableChild_IsDropped(t *testing.T) {
	bus := NewProcessEventBus(4)
	cache := NewProcCache(bus, 5*time.Second, fakeResolver{}, NewFakeClock(time.Unix(0, 0)))
	defer cache.Close()

	bus.Fork.Publish(ForkEvent{ParentPID: 1, ChildPID: 99})
	time.Sleep(20 * time.Millisecond)

	if _, ok := cache.Get(99); ok {
		t.Error("a fork event whose child cannot be resolved should not populate the cache")
	}
}

func TestProcCache_ExitSchedulesEvictionWithoutImmediateRemoval(t *testing.T) {
	bus := NewProcessEventBus(4)
	resolver := fakeResolver{lookup: map[int32]int32{42: 2}}
	clock := NewFakeClock(time.Unix(0, 0))
	cache := NewProcCache(bus, 5*time.Second, resolver, clock)
	defer cache.Close()

	bus.Fork.Publish(ForkEvent{ParentPID: 1, ChildPID: 42})
	waitUntil(t, time.Second, func() bool {
		_, ok := cache.Get(42)
		return ok
	})

	bus.Exit.Publish(ExitEvent{PID: 42})
	waitUntil(t, time.Second, func() bool { return cache.queueLen() == 1 })

	// Still within the TTL grace window: the entry must remain readable.
	if nspid, ok := cache.Get(42); !ok || nspid != 2 {
		t.Errorf("Get(42) during grace window = (%d, %v), want (2, true)", nspid, ok)
	}
}

func TestProcCache_EvictsExpiredEntriesOnGet(t *testing.T) {
	bus := NewProcessEventBus(4)
	resolver := fakeResolver{lookup: map[int32]int32{42: 2, 43: 3, 44: 4, 45: 5}}
	clock := NewFakeClock(time.Unix(0, 0))
	cache := NewProcCache(bus, 5*time.Second, resolver, clock)
	defer cache.Close()

	for _, pid := range []int32{42, 43, 44, 45} {
		bus.Fork.Publish(ForkEvent{ParentPID: 1, ChildPID: pid})
	}
	waitUntil(t, time.Second, func() bool {
		_, ok := cache.Get(45)
		return ok
	})

	bus.Exit.Publish(ExitEvent{PID: 42}) // evict_at = T0 + 5
	waitUntil(t, time.Second, func() bool { return cache.queueLen() == 1 })

	clock.Advance(2 * time.Second) // T = 2
	bus.Exit.Publish(ExitEvent{PID: 44}) // evict_at = T2 + 5 = 7
	waitUntil(t, time.Second, func() bool { return cache.queueLen() == 2 })

	clock.Advance(5 * time.Second) // T = 7
	bus.Exit.Publish(ExitEvent{PID: 45}) // evict_at = T7 + 5 = 12
	waitUntil(t, time.Second, func() bool { return cache.queueLen() == 3 })

	// At T=7: pid 42's evict_at (5) has passed, pid 44's (7) is exactly now
	// and also fires (eviction happens once evict_at <= now), pid 45's (12)
	// is still in the future.
	if _, ok := cache.Get(42); ok {
		t.Error("pid 42 should have expired by T=7")
	}
	if _, ok := cache.Get(43); !ok {
		t.Error("pid 43 never exited and should remain cached")
	}
	if _, ok := cache.Get(44); ok {
		t.Error("pid 44's eviction is due exactly at T=7 and should have fired")
	}
	if nspid, ok := cache.Get(45); !ok || nspid != 5 {
		t.Error("pid 45 is still within its grace window and should remain cached")
	}
}
