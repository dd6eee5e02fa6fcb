// combinators.go - operations built out of the five primitives (§4.4, §11.4).
//
// Every combinator here opens its own private child Scope to hold its
// branches, and registers (before doing anything else) a cleanup that
// terminates and awaits that scope. That single Ensure call is what makes
// halting a combinator mid-flight behave correctly: the combinator frame's
// own teardown is what tears down its branches, rather than requiring every
// return path to remember to do it.
package effection

import (
	"sync"
	"time"
)

func newBranchScope(c *Control) *Scope {
	scope := newChildScope(c.f.scope)
	c.EnsureRaw(func(ec *Control) (struct{}, error) {
		scope.terminate(nil)
		_ = scope.awaitDone(ec)
		return struct{}{}, nil
	})
	return scope
}

// All runs every operation concurrently and waits for all of them to
// succeed, returning their results in the same order as ops. If any branch
// fails, the rest are halted and the first failure (in branch order) is
// returned.
func All[T any](ops []Operation[T]) Operation[[]T] {
	return func(c *Control) ([]T, error) {
		if len(ops) == 0 {
			return nil, nil
		}
		scope := newBranchScope(c)
		tasks := make([]*Task[T], len(ops))
		for i, op := range ops {
			t, err := spawnIn[T](c, scope, childSecondary, op)
			if err != nil {
				scope.terminate(err)
				_ = scope.awaitDone(c)
				return nil, err
			}
			tasks[i] = t
		}
		results := make([]T, len(ops))
		var firstErr error
		for i, t := range tasks {
			v, err := t.Wait(c)
			results[i] = v
			if err != nil && !IsHalt(err) && firstErr == nil {
				firstErr = err
			}
		}
		scope.terminate(firstErr)
		teardownErr := scope.awaitDone(c)
		if firstErr != nil {
			return nil, firstErr
		}
		if teardownErr != nil {
			return nil, teardownErr
		}
		return results, nil
	}
}

// Outcome is a frame's settled result, returned by AllSettled per branch and
// by Task.Outcome for a single task: exactly one of Value (on success) or Err
// (on failure or halt) is meaningful, and Halted distinguishes a quiet halt
// from a genuine failure without the caller needing to call IsHalt itself.
type Outcome[T any] struct {
	Value  T
	Err    error
	Halted bool
}

// AllSettled runs every operation concurrently to completion regardless of
// whether any of the others fail, and returns every branch's Outcome in
// order. Unlike All, a failing branch never cancels its siblings.
func AllSettled[T any](ops []Operation[T]) Operation[[]Outcome[T]] {
	return func(c *Control) ([]Outcome[T], error) {
		if len(ops) == 0 {
			return nil, nil
		}
		scope := newBranchScope(c)
		tasks := make([]*Task[T], len(ops))
		for i, op := range ops {
			t, err := spawnIn[T](c, scope, childManaged, op)
			if err != nil {
				scope.terminate(err)
				_ = scope.awaitDone(c)
				return nil, err
			}
			tasks[i] = t
		}
		results := make([]Outcome[T], len(ops))
		for i, t := range tasks {
			v, err := t.Wait(c)
			results[i] = Outcome[T]{Value: v, Err: err, Halted: IsHalt(err)}
		}
		scope.terminate(nil)
		if err := scope.awaitDone(c); err != nil {
			return results, err
		}
		return results, nil
	}
}

// Race runs every operation concurrently and returns the result of whichever
// settles first, success or failure; every other branch is halted before
// Race returns.
func Race[T any](ops []Operation[T]) Operation[T] {
	return func(c *Control) (T, error) {
		var zero T
		if len(ops) == 0 {
			return zero, &TypeError{Message: "effection: Race requires at least one operation"}
		}
		scope := newBranchScope(c)
		v, err := c.Suspend(func(resume func(any, error)) {
			for _, op := range ops {
				op := op
				wrapped := func(bc *Control) (struct{}, error) {
					val, operr := op(bc)
					resume(val, operr)
					return struct{}{}, nil
				}
				if _, aerr := attachAndStart(c.f.disp, scope, "race-branch", childSecondary, wrapped); aerr != nil {
					resume(nil, aerr)
					return
				}
			}
		})
		scope.terminate(nil)
		teardownErr := scope.awaitDone(c)
		if err == nil {
			err = teardownErr
		} else if teardownErr != nil {
			err = &AggregateError{Errors: []error{err, teardownErr}}
		}
		var result T
		if v != nil {
			result = v.(T)
		}
		return result, err
	}
}

// Any runs every operation concurrently and returns the first one to
// succeed; the rest are then halted. If every branch fails, Any fails with
// an AggregateError of every non-halt failure, or with the failure itself
// when there is only one.
func Any[T any](ops []Operation[T]) Operation[T] {
	return func(c *Control) (T, error) {
		var zero T
		if len(ops) == 0 {
			return zero, &TypeError{Message: "effection: Any requires at least one operation"}
		}
		scope := newBranchScope(c)
		var mu sync.Mutex
		remaining := len(ops)
		var errs []error

		v, err := c.Suspend(func(resume func(any, error)) {
			for _, op := range ops {
				op := op
				wrapped := func(bc *Control) (struct{}, error) {
					val, operr := op(bc)
					if operr == nil {
						resume(val, nil)
						return struct{}{}, nil
					}
					mu.Lock()
					remaining--
					if !IsHalt(operr) {
						errs = append(errs, operr)
					}
					last := remaining == 0
					var agg error
					if last {
						switch len(errs) {
						case 0:
						case 1:
							agg = errs[0]
						default:
							agg = &AggregateError{Errors: errs}
						}
					}
					mu.Unlock()
					if last {
						resume(nil, agg)
					}
					return struct{}{}, nil
				}
				if _, aerr := attachAndStart(c.f.disp, scope, "any-branch", childManaged, wrapped); aerr != nil {
					resume(nil, aerr)
					return
				}
			}
		})
		scope.terminate(nil)
		teardownErr := scope.awaitDone(c)
		if err != nil {
			return zero, err
		}
		if teardownErr != nil {
			return zero, teardownErr
		}
		var result T
		if v != nil {
			result = v.(T)
		}
		return result, nil
	}
}

// Call runs op in its own isolated child scope and reports that scope's
// full aggregate outcome, so a background failure spawned by op (not just
// op's own direct return) is still surfaced at the call site.
func Call[T any](op Operation[T]) Operation[T] {
	return func(c *Control) (T, error) {
		var zero T
		scope := newBranchScope(c)
		var result T
		wrapped := func(bc *Control) (struct{}, error) {
			v, err := op(bc)
			result = v
			return struct{}{}, err
		}
		if _, err := spawnIn[struct{}](c, scope, childPrimary, wrapped); err != nil {
			return zero, err
		}
		if err := scope.awaitDone(c); err != nil {
			return zero, err
		}
		return result, nil
	}
}

// WithTimeout runs op, failing with a *TimeoutError if it has not settled
// within d. op is halted and its teardown awaited before WithTimeout
// returns, whichever branch won.
func WithTimeout[T any](d time.Duration, op Operation[T]) Operation[T] {
	return func(c *Control) (T, error) {
		var zero T
		scope := newBranchScope(c)
		var timer Timer
		v, err := c.Suspend(func(resume func(any, error)) {
			wrapped := func(bc *Control) (struct{}, error) {
				val, operr := op(bc)
				resume(val, operr)
				return struct{}{}, nil
			}
			if _, aerr := attachAndStart(c.f.disp, scope, "timeout-op", childSecondary, wrapped); aerr != nil {
				resume(nil, aerr)
				return
			}
			timer = c.f.disp.clock.AfterFunc(d, func() { resume(nil, &TimeoutError{Duration: d}) })
		})
		if timer != nil {
			timer.Stop()
		}
		scope.terminate(nil)
		teardownErr := scope.awaitDone(c)
		if err != nil {
			return zero, err
		}
		if teardownErr != nil {
			return zero, teardownErr
		}
		return v.(T), nil
	}
}

// Sleep suspends for d, or until halted.
func Sleep(d time.Duration) Operation[struct{}] {
	return func(c *Control) (struct{}, error) {
		var timer Timer
		_, err := c.Suspend(func(resume func(any, error)) {
			timer = c.f.disp.clock.AfterFunc(d, func() { resume(nil, nil) })
		})
		if timer != nil {
			timer.Stop()
		}
		return struct{}{}, err
	}
}
