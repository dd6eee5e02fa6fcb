// primitives.go - the five primitive operations (§4.3), as typed
// package-level constructors over the untyped *Control machinery in
// frame.go. Each one lowers to exactly the instruction the spec assigns it.
package effection

import "sync"

// Suspend returns an Operation that parks until onInstall's resume callback
// fires. onInstall always runs before Suspend blocks, so it can register
// the callback with whatever external mechanism will eventually call it.
func Suspend[T any](onInstall func(resume func(T, error))) Operation[T] {
	return func(c *Control) (T, error) {
		var zero T
		v, err := c.Suspend(func(resume func(any, error)) {
			onInstall(func(val T, e error) { resume(val, e) })
		})
		if err != nil {
			return zero, err
		}
		if v == nil {
			return zero, nil
		}
		return v.(T), nil
	}
}

// ActionBody is the function an Action runs in its own child frame. It
// receives that frame's own Control (so it may itself suspend, spawn, or
// use any other primitive) plus a settle callback: call it with a nil error
// to resolve, a non-nil error to reject. Only the first call counts.
type ActionBody[T any] func(ac *Control, settle func(T, error))

// Action allocates a single-shot future and begins a child frame running
// body. The calling frame suspends until body calls settle, or until its
// frame fails or halts before ever doing so — whichever happens first. Once
// settle has been honored, the child frame is halted (if it is still
// running) before the value is delivered to the caller, matching the
// "escape point" semantics of the spec's action primitive.
func Action[T any](body ActionBody[T]) Operation[T] {
	return func(c *Control) (T, error) {
		var zero T
		var mu sync.Mutex
		delivered := false
		var childFrame *frame

		deliver := func(v T, err error) {
			mu.Lock()
			if delivered {
				mu.Unlock()
				return
			}
			delivered = true
			mu.Unlock()
			c.f.disp.q.submit(func() {
				resumeParent := func() { c.f.disp.deliverResume(c.f, resumeMsg{value: v, err: err}) }
				if childFrame == nil || childFrame.outcome != nil {
					resumeParent()
					return
				}
				prev := childFrame.onSettled
				childFrame.onSettled = func(o outcome) {
					if prev != nil {
						prev(o)
					}
					resumeParent()
				}
				c.f.disp.requestHalt(childFrame, nil)
			})
		}

		childOp := func(ac *Control) (struct{}, error) {
			body(ac, func(v T, err error) { deliver(v, err) })
			return struct{}{}, nil
		}

		instr := instruction{kind: instrAction, spawnRun: func() any {
			cf, err := attachAndStart(c.f.disp, c.f.scope, "action", childManaged, childOp)
			if err != nil {
				deliver(zero, err)
				return nil
			}
			childFrame = cf
			cf.onSettled = func(o outcome) {
				if o.halted {
					deliver(zero, &HaltError{Reason: cf.haltReason})
					return
				}
				deliver(zero, o.err)
			}
			return nil
		}}

		v, err := sendControlInstruction(c, instr)
		if err != nil {
			return zero, err
		}
		if v == nil {
			return zero, nil
		}
		return v.(T), nil
	}
}

// ResourceBody is the function a Resource runs in its own long-lived child
// frame. It receives that frame's Control plus a provide callback: call it
// once the resource's value is ready. Unlike Action, the child frame is not
// halted once provide is called — it typically suspends forever afterwards,
// holding the resource open until the owning scope tears down.
type ResourceBody[T any] func(rc *Control, provide func(T))

// Resource begins a long-lived child frame running body and suspends the
// caller until it calls provide. If body's frame fails before ever calling
// provide, that error surfaces directly to the caller (a foreground setup
// failure), not via the scope's background error cascade.
func Resource[T any](body ResourceBody[T]) Operation[T] {
	return func(c *Control) (T, error) {
		var zero T
		var mu sync.Mutex
		delivered := false

		deliver := func(v T, err error) {
			mu.Lock()
			if delivered {
				mu.Unlock()
				return
			}
			delivered = true
			mu.Unlock()
			c.f.disp.q.submit(func() {
				c.f.disp.deliverResume(c.f, resumeMsg{value: v, err: err})
			})
		}

		childOp := func(rc *Control) (struct{}, error) {
			body(rc, func(v T) { deliver(v, nil) })
			return struct{}{}, nil
		}

		instr := instruction{kind: instrResource, spawnRun: func() any {
			cf, err := attachAndStart(c.f.disp, c.f.scope, "resource", childManaged, childOp)
			if err != nil {
				deliver(zero, err)
				return nil
			}
			cf.onSettled = func(o outcome) {
				if !o.halted {
					deliver(zero, o.err)
				}
			}
			return nil
		}}

		v, err := sendControlInstruction(c, instr)
		if err != nil {
			return zero, err
		}
		if v == nil {
			return zero, nil
		}
		return v.(T), nil
	}
}

// Spawn starts op running in a new sibling frame attached to the calling
// frame's own scope, and returns a Task handle without waiting for it. The
// spawned frame is a secondary child: its own error cascades the scope's
// termination, but its success or halt does not.
func Spawn[T any](op Operation[T]) Operation[*Task[T]] {
	return func(c *Control) (*Task[T], error) {
		return spawnIn[T](c, c.f.scope, childSecondary, op)
	}
}

// spawnIn is the shared plumbing behind Spawn and the combinators in
// combinators.go: it spawns op into an explicit target scope (not
// necessarily the calling frame's own) with an explicit attachment kind,
// going through the ordinary instruction round-trip so the actual frame
// creation still happens on the dispatcher goroutine.
func spawnIn[T any](c *Control, scope *Scope, kind childKind, op Operation[T]) (*Task[T], error) {
	instr := instruction{kind: instrSpawn, spawnRun: func() any {
		cf, err := attachAndStart(c.f.disp, scope, "spawn", kind, op)
		if err != nil {
			return err
		}
		return newTask[T](c.f.disp, cf)
	}}
	result, err := sendControlInstruction(c, instr)
	if err != nil {
		return nil, err
	}
	if e, ok := result.(error); ok {
		return nil, e
	}
	return result.(*Task[T]), nil
}

// GetScope returns an Operation yielding the calling frame's own Scope.
func GetScope() Operation[*Scope] {
	return func(c *Control) (*Scope, error) {
		return c.GetScope(), nil
	}
}

// Ensure registers cleanup to run, in reverse registration order, during the
// calling frame's teardown.
func Ensure(cleanup Cleanup) Operation[struct{}] {
	return func(c *Control) (struct{}, error) {
		c.EnsureRaw(cleanup)
		return struct{}{}, nil
	}
}
