package observe

import (
	"sync"
	"time"
)

type eviction struct {
	pid     int32
	evictAt time.Time
}

// ProcCache is the bounded PID->NSPID map described in . Fork
// events populate the map; exit events schedule TTL-based eviction
// without removing the entry immediately, so observers can still look
// up exit-time identity during the grace window. Get lazily evicts
// expired entries before reading, using a fixed queue-then-map lock
// order so the event-handler path never contends with the get path
//.
type ProcCache struct {
	clock    Clock
	ttl      time.Duration
	resolver NSPIDResolver

	mapMu sync.Mutex
	cache map[int32]int32

	queueMu sync.Mutex
	queue   []eviction

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewProcCache constructs a ProcCache subscribed to bus's fork and exit
// channels, and starts its two handler goroutines.
func NewProcCache(bus *ProcessEventBus, ttl time.Duration, resolver NSPIDResolver, clock Clock) *ProcCache {
	if clock == nil {
		clock = SystemClock
	}
	c := &ProcCache{
		clock:    clock,
		ttl:      ttl,
		resolver: resolver,
		cache:    make(map[int32]int32),
		stop:     make(chan struct{}),
	}

	forkSub := bus.Fork.Subscribe()
	exitSub := bus.Exit.Subscribe()

	c.wg.Add(2)
	go c.runForkHandler(forkSub)
	go c.runExitHandler(exitSub)
	return c
}

func (c *ProcCache) runForkHandler(sub *Subscription[ForkEvent]) {
	defer c.wg.Done()
	defer sub.Unsubscribe()
	for {
		ev, ok := sub.Recv(c.stop)
		if !ok {
			return
		}
		nspid, found := c.resolver.NSPID(ev.ChildPID)
		if !found {
			continue
		}
		c.mapMu.Lock()
		c.cache[ev.ChildPID] = nspid
		c.mapMu.Unlock()
	}
}

func (c *ProcCache) runExitHandler(sub *Subscription[ExitEvent]) {
	defer c.wg.Done()
	defer sub.Unsubscribe()
	for {
		ev, ok := sub.Recv(c.stop)
		if !ok {
			return
		}
		evictAt := c.clock.Now().Add(c.ttl)
		c.queueMu.Lock()
		c.queue = append(c.queue, eviction{pid: ev.PID, evictAt: evictAt})
		c.queueMu.Unlock()
	}
}

// Get returns the cached NSPID for pid, evicting expired entries first.
func (c *ProcCache) Get(pid int32) (int32, bool) {
	c.evictExpired()

	c.mapMu.Lock()
	defer c.mapMu.Unlock()
	nspid, ok := c.cache[pid]
	return nspid, ok
}

func (c *ProcCache) evictExpired() {
	now := c.clock.Now()

	c.queueMu.Lock()
	var expired []int32
	for len(c.queue) > 0 && !c.queue[0].evictAt.After(now) {
		expired = append(expired, c.queue[0].pid)
		c.queue = c.queue[1:]
	}
	c.queueMu.Unlock()

	if len(expired) == 0 {
		return
	}

	c.mapMu.Lock()
	for _, pid := range expired {
		delete(c.cache, pid)
	}
	c.mapMu.Unlock()
}

// Close stops the fork/exit handler goroutines and unsubscribes from
// the event bus.
func (c *ProcCache) Close() {
	close(c.stop)
	c.wg.Wait()
}

// queueLen reports the number of entries still awaiting eviction (test
// helper, mirrors original_source's #[cfg(test)] eviction_queue()).
func (c *ProcCache) queueLen() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	return len(c.queue)
}
