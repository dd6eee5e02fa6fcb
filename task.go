// task.go - Task, the handle a caller keeps to a running frame (§6).
//
// Task holds only a weak.Pointer to its frame rather than a strong
// reference: a Task the caller never waits on must not be the reason its
// frame (and everything it closed over) survives past settling. This is
// grounded on the teacher's weak-pointer promise registry (eventloop's
// registry.go), translated from "promise handle" to "spawned frame handle".
package effection

import (
	"errors"
	"weak"
)

// Task is a handle to a spawned frame: a non-blocking way to later wait for
// its result, or to halt it early. A Task does not keep its frame alive by
// itself; the owning Scope does that for as long as the frame is attached.
type Task[T any] struct {
	disp *dispatcher
	ref  weak.Pointer[frame]
	id   uint64

	haveCached bool
	cachedVal  T
	cachedErr  error
}

func newTask[T any](d *dispatcher, f *frame) *Task[T] {
	t := &Task[T]{disp: d, ref: weak.Make(f), id: f.id}
	d.registry.track(f)
	return t
}

var errTaskCollected = errors.New("effection: task's frame is no longer reachable")

// Wait suspends the calling frame until t's frame settles, returning its
// typed result; a halted frame is reported as a *HaltError. If t's frame was already collected (only possible once it
// had settled and every strong reference, e.g. from its Scope, is gone too)
// it returns the last cached outcome, or errTaskCollected if none was ever
// observed.
func (t *Task[T]) Wait(c *Control) (T, error) {
	var zero T
	f := t.ref.Value()
	if f == nil {
		if t.haveCached {
			return t.cachedVal, t.cachedErr
		}
		return zero, errTaskCollected
	}
	v, err := c.Suspend(func(resume func(any, error)) {
		if f.outcome != nil {
			resume(*f.outcome, nil)
			return
		}
		prev := f.onSettled
		f.onSettled = func(o outcome) {
			if prev != nil {
				prev(o)
			}
			resume(o, nil)
		}
	})
	if err == nil {
		o := v.(outcome)
		v, err = o.value, o.err
		if o.halted {
			err = &HaltError{}
		}
	}
	if err != nil {
		t.haveCached, t.cachedErr = true, err
		return zero, err
	}
	result, _ := v.(T)
	t.haveCached, t.cachedVal = true, result
	return result, nil
}

// Result blocks the calling goroutine (which need not belong to any frame)
// until t's frame settles, returning its typed result (a *HaltError if the
// frame was halted). Unlike Wait, this is for host code standing entirely
// outside the operation tree, such as a caller holding the Task that Run
// returned.
func (t *Task[T]) Result() (T, error) {
	var zero T
	f := t.ref.Value()
	if f == nil {
		if t.haveCached {
			return t.cachedVal, t.cachedErr
		}
		return zero, errTaskCollected
	}
	<-f.settledCh
	o := f.outcome
	if o.halted {
		t.haveCached, t.cachedErr = true, &HaltError{}
		return zero, t.cachedErr
	}
	result, _ := o.value.(T)
	t.haveCached, t.cachedVal, t.cachedErr = true, result, o.err
	return result, o.err
}

// Halt requests that t's frame stop as soon as possible and waits for its
// teardown to finish. It never itself returns a halt error: halting a task
// you hold is a deliberate, successful action, not a failure.
func (t *Task[T]) Halt(c *Control) error {
	f := t.ref.Value()
	if f == nil {
		return nil
	}
	_, err := c.Suspend(func(resume func(any, error)) {
		if f.outcome != nil {
			resume(nil, nil)
			return
		}
		prev := f.onSettled
		f.onSettled = func(o outcome) {
			if prev != nil {
				prev(o)
			}
			resume(nil, nil)
		}
		t.disp.requestHalt(f, nil)
	})
	if err != nil && !IsHalt(err) {
		return err
	}
	return nil
}

// Outcome returns an Operation that waits for t, like Wait, but reports the
// result as an Outcome[T] instead of a bare (value, error) pair, so a caller
// can distinguish a quiet halt from a genuine failure without reaching for
// IsHalt itself. Grounded on the teacher's promise outcome façade
// (ChainedPromise's settled-state accessor), generalized to the typed Task.
func (t *Task[T]) Outcome() Operation[Outcome[T]] {
	return func(c *Control) (Outcome[T], error) {
		v, err := t.Wait(c)
		return Outcome[T]{Value: v, Err: err, Halted: IsHalt(err)}, nil
	}
}

// Then returns an Operation that waits for t and, on success, transforms
// its value. Errors and halts pass through unchanged.
func (t *Task[T]) Then(f func(T) T) Operation[T] {
	return func(c *Control) (T, error) {
		v, err := t.Wait(c)
		if err != nil {
			return v, err
		}
		return f(v), nil
	}
}

// Catch returns an Operation that waits for t and, if it failed with a
// genuine error (not a halt), recovers via f.
func (t *Task[T]) Catch(f func(error) (T, error)) Operation[T] {
	return func(c *Control) (T, error) {
		v, err := t.Wait(c)
		if err == nil || IsHalt(err) {
			return v, err
		}
		return f(err)
	}
}

// Finally returns an Operation that waits for t, runs f regardless of
// outcome, then passes the original result through unchanged.
func (t *Task[T]) Finally(f func()) Operation[T] {
	return func(c *Control) (T, error) {
		v, err := t.Wait(c)
		f()
		return v, err
	}
}
