package effection

import (
	"sync"
	"time"
)

// Timer is a handle to a pending timer callback, returned by Clock.AfterFunc.
// Grounded on the teacher's timerHeap/ScheduleTimer machinery (loop.go),
// trimmed to the purely logical subset sleep/WithTimeout need: this runtime
// has no real asynchronous host I/O to multiplex a timer heap against.
type Timer interface {
	// Stop cancels the timer. It is a no-op if the timer already fired or
	// was already stopped; Stop is idempotent and safe to call more than
	// once, matching the halt-is-idempotent requirement for Sleep's cleanup.
	Stop()
}

// Clock is the injectable time source driving Sleep and the timeout branch
// of WithTimeout. The default, RealClock, wraps time.AfterFunc; FakeClock
// lets tests advance virtual time deterministically without racing real
// wall-clock timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// RealClock is the default Clock, backed by the standard library's timers.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// AfterFunc implements Clock.
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

type realTimer struct{ t *time.Timer }

func (r *realTimer) Stop() { r.t.Stop() }

// FakeClock is a manually-advanced Clock for deterministic tests. The zero
// value is ready to use, starting at the zero time.Time.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	seq     uint64
}

// NewFakeClock returns a FakeClock starting at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

type fakeTimer struct {
	deadline time.Time
	seq      uint64
	f        func()
	stopped  bool
}

func (t *fakeTimer) Stop() {
	t.stopped = true
}

// Now implements Clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc implements Clock. f is invoked (synchronously, from the
// goroutine calling Advance) once virtual time reaches the deadline.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &fakeTimer{deadline: c.now.Add(d), seq: c.seq, f: f}
	c.pending = append(c.pending, t)
	return t
}

// Pending returns the number of timers still registered and unstopped. It
// exists for tests that need to assert a cancelled branch actually cleared
// its timer (e.g. the losing side of a Race) rather than just leaking it
// until the next Advance happens to sweep it out.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.pending {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Advance moves virtual time forward by d, firing (in deadline order, ties
// broken by registration order) every timer whose deadline has been
// reached, then returns once all of them have run.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	remaining := c.pending[:0]
	for _, t := range c.pending {
		if !t.stopped && !t.deadline.After(c.now) {
			due = append(due, t)
		} else if !t.stopped {
			remaining = append(remaining, t)
		}
	}
	c.pending = remaining
	c.mu.Unlock()

	sortTimers(due)
	for _, t := range due {
		if !t.stopped {
			t.f()
		}
	}
}

func sortTimers(ts []*fakeTimer) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0; j-- {
			a, b := ts[j-1], ts[j]
			if a.deadline.After(b.deadline) || (a.deadline.Equal(b.deadline) && a.seq > b.seq) {
				ts[j-1], ts[j] = ts[j], ts[j-1]
			} else {
				break
			}
		}
	}
}
