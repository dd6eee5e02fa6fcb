package effection

import (
	"fmt"
	"sync/atomic"
)

// dispatcher is the single-threaded cooperative scheduler (§5). Exactly one
// goroutine — whichever goroutine calls runLoop — ever mutates scope/frame
// state directly; every other goroutine must route through q.submit.
type dispatcher struct {
	q        *queue
	logger   Logger
	clock    Clock
	nextID   atomic.Uint64
	root     *Scope
	registry *frameRegistry
}

func newDispatcher(cfg *config) *dispatcher {
	d := &dispatcher{
		q:        newQueueWithCapacity(cfg.queueCapacity),
		logger:   cfg.logger,
		clock:    cfg.clock,
		registry: newFrameRegistry(),
	}
	d.root = newRootScope(d)
	return d
}

func (d *dispatcher) nextFrameID() uint64 { return d.nextID.Add(1) }

// LiveFrameCount reports the number of spawned frames the registry still
// sees as reachable. Diagnostic only; nothing in the scheduler depends on
// its value.
func (d *dispatcher) LiveFrameCount() int { return d.registry.liveCount() }

// registryScavengeBatch is the number of registry entries swept per drained
// batch, matching the teacher's own l.registry.Scavenge(20) loop-tick call.
const registryScavengeBatch = 20

// runLoop drains the queue on the calling goroutine until it is closed and
// empty. Closing happens once the root scope settles. Between batches it
// opportunistically scavenges the frame registry so a long-running
// dispatcher (Main runs for the process lifetime) doesn't accumulate a
// tracked entry for every frame it has ever spawned.
func (d *dispatcher) runLoop() {
	for {
		batch, ok := d.q.popBatch()
		if !ok {
			return
		}
		for _, cb := range batch {
			cb()
		}
		d.registry.scavenge(registryScavengeBatch)
	}
}

// PanicError wraps a panic value recovered from an operation body goroutine,
// grounded on the teacher's own Promisify PanicError.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("effection: operation panicked: %v", e.Value) }

// runBody invokes op on its own goroutine's behalf, recovering panics into a
// PanicError rather than crashing the whole process, matching the teacher's
// Promisify panic-recovery discipline.
func runBody[T any](op Operation[T], c *Control) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = &PanicError{Value: r}
			logger := c.f.disp.logger
			if logger.Enabled(LevelError) {
				logger.Log(Entry{
					Level:    LevelError,
					Category: "frame",
					Message:  "operation body panicked",
					Err:      err,
					Fields:   map[string]any{"frame_id": c.f.id, "label": c.f.label},
				})
			}
		}
	}()
	val, e := op(c)
	return val, e
}

// newFrame allocates a frame's channels/bookkeeping without attaching it to
// any scope or starting its goroutine.
func (d *dispatcher) newFrame(s *Scope, label string, kind childKind) *frame {
	return &frame{
		id:        d.nextFrameID(),
		label:     label,
		scope:     s,
		disp:      d,
		kind:      kind,
		yielded:   make(chan instruction),
		resumed:   make(chan resumeMsg),
		done:      make(chan doneMsg, 1),
		settledCh: make(chan struct{}),
	}
}

// attachAndStart creates a frame for op, attaches it to s (respecting s's
// terminal invariant), launches its body goroutine, and schedules its first
// drive via the internal queue so synchronous spawn chains stay fair instead
// of recursing through the call stack.
func attachAndStart[T any](d *dispatcher, s *Scope, label string, kind childKind, op Operation[T]) (*frame, error) {
	f := d.newFrame(s, label, kind)
	if err := s.attach(f); err != nil {
		return nil, err
	}
	go func() {
		c := &Control{f: f}
		v, err := runBody(op, c)
		f.done <- doneMsg{value: v, err: err}
	}()
	d.q.submitInternal(func() { d.drive(f) })
	return f, nil
}

// newCleanupFrame is like attachAndStart but used only for teardown: cleanup
// thunks are not attached to the scope's child list (the scope is already
// tearing down, and a cleanup frame's lifetime is bounded by the single
// settle pipeline that runs it, not by the scope tree).
func newCleanupFrame(d *dispatcher, s *Scope, cleanup Cleanup) *frame {
	f := d.newFrame(s, "cleanup", childCleanup)
	go func() {
		c := &Control{f: f}
		_, err := runBody(cleanup, c)
		f.done <- doneMsg{value: struct{}{}, err: err}
	}()
	return f
}
