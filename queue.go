// queue.go - the dispatcher's FIFO task queue.
//
// Grounded on the teacher's ChunkedIngress / "goja-style queue" swap-buffer
// design (ingress.go, loop.go): producers append under a mutex, the
// dispatcher swaps the active slice for a spare one and drains it without
// holding the lock. Two priority bands exist, exactly mirroring the
// teacher's internal/external split: internalQueue carries work the
// dispatcher itself schedules (resuming a frame, starting a spawned child),
// queue carries work submitted from outside the dispatcher goroutine (a
// Signal.Send call, a timer firing on RealClock). Internal work always
// drains fully before external work is considered, which is what gives
// frame resumption priority over newly injected host callbacks within a
// single tick.
package effection

import "sync"

type queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	internal []func()
	external []func()
	spare    []func()
	closed   bool
}

// newQueueWithCapacity preallocates its buffers to capacity, an allocation
// hint only: every buffer still grows past it freely.
func newQueueWithCapacity(capacity int) *queue {
	q := &queue{
		internal: make([]func(), 0, capacity),
		external: make([]func(), 0, capacity),
		spare:    make([]func(), 0, capacity),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// submitInternal enqueues work that must only ever be called from the
// dispatcher goroutine itself (resuming a frame, starting a child). It is
// still queued rather than run inline so that a long chain of synchronous
// spawns drains fairly instead of recursing arbitrarily deep.
func (q *queue) submitInternal(f func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.internal = append(q.internal, f)
	q.cond.Signal()
}

// submit enqueues work from any goroutine, including ones outside the
// operation tree entirely (host callbacks via Signal.Send, RealClock
// timers). Safe for concurrent use.
func (q *queue) submit(f func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.external = append(q.external, f)
	q.cond.Signal()
	return true
}

// popBatch blocks until there is work or the queue is closed and drained.
// It returns the internal batch if non-empty, else the external batch, so
// that callers drain internal work to exhaustion before touching external
// work, reusing a single spare buffer to avoid allocating every tick.
func (q *queue) popBatch() (batch []func(), ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.internal) == 0 && len(q.external) == 0 && !q.closed {
		q.cond.Wait()
	}
	switch {
	case len(q.internal) > 0:
		batch, q.internal, q.spare = q.internal, q.spare[:0], q.internal
		return batch, true
	case len(q.external) > 0:
		batch, q.external, q.spare = q.external, q.spare[:0], q.external
		return batch, true
	default:
		return nil, false
	}
}

// close marks the queue closed; any blocked popBatch wakes and observes
// closed+empty once all remaining work has drained.
func (q *queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
