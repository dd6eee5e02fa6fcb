// scope.go - the lifetime tree (§4.2).
//
// A Scope owns a list of attached frames and decides, generically, when it
// must terminate: its primary frame settling (any outcome) always ends it;
// any secondary child's *error* cascades the same way. Combinators that need
// a different completion rule (Race, All) layer their own explicit
// terminate() calls on top of this generic mechanism rather than replacing
// it, which is why terminate is idempotent.
package effection

import "errors"

var errScopeTerminal = errors.New("effection: scope has already terminated")

// Scope is a node in the lifetime tree. Every frame belongs to exactly one
// Scope; halting a Scope halts every frame attached to it, oldest-last.
type Scope struct {
	disp     *dispatcher
	parent   *Scope
	children []*frame

	terminal bool // rejects further attach once true
	settled  bool
	finalErr error

	doneCh   chan struct{}
	watchers []func(error)
}

func newRootScope(d *dispatcher) *Scope {
	return &Scope{disp: d, doneCh: make(chan struct{})}
}

func newChildScope(parent *Scope) *Scope {
	return &Scope{disp: parent.disp, parent: parent, doneCh: make(chan struct{})}
}

// attach registers f as a child of s. It fails once s has begun
// terminating, matching the invariant that a halted scope accepts no new
// work.
func (s *Scope) attach(f *frame) error {
	if s.terminal {
		return errScopeTerminal
	}
	f.attachIndex = len(s.children)
	s.children = append(s.children, f)
	return nil
}

// childSettled is the generic termination rule, invoked once per attached
// frame right after that frame's own teardown completes.
func (s *Scope) childSettled(f *frame, o outcome) {
	switch f.kind {
	case childPrimary:
		s.terminate(o.err)
	case childSecondary:
		if o.err != nil {
			s.terminate(o.err)
		}
	case childManaged:
		// Action/Resource own their child's lifecycle directly; the scope
		// only halts it (generically, via terminate) on its own shutdown.
	}
}

// terminate begins halting every attached child in reverse attachment
// order, awaiting each frame's own teardown before halting the next, then
// settles the scope itself. Safe to call more than once; only the first
// call has any effect.
func (s *Scope) terminate(cause error) {
	if s.terminal {
		return
	}
	s.terminal = true
	if logger := s.disp.logger; logger.Enabled(LevelDebug) {
		logger.Log(Entry{
			Level:    LevelDebug,
			Category: "scope",
			Message:  "halt-cascade start",
			Err:      cause,
			Fields:   map[string]any{"children": len(s.children)},
		})
	}
	s.haltChildren(cause, len(s.children)-1, nil)
}

func (s *Scope) haltChildren(cause error, idx int, errs []error) {
	if idx < 0 {
		s.finish(cause, errs)
		return
	}
	child := s.children[idx]
	if child.outcome != nil {
		if child.kind == childSecondary && child.outcome.err != nil && child.outcome.err != cause {
			errs = append(errs, child.outcome.err)
		}
		s.haltChildren(cause, idx-1, errs)
		return
	}
	prev := child.onSettled
	child.onSettled = func(o outcome) {
		if prev != nil {
			prev(o)
		}
		next := errs
		if child.kind == childSecondary && o.err != nil {
			next = append(next, o.err)
		}
		s.haltChildren(cause, idx-1, next)
	}
	s.disp.requestHalt(child, cause)
}

func (s *Scope) finish(cause error, errs []error) {
	finalErr := cause
	all := errs
	if finalErr != nil {
		all = append([]error{finalErr}, errs...)
	}
	switch len(all) {
	case 0:
		finalErr = nil
	case 1:
		finalErr = all[0]
	default:
		finalErr = &AggregateError{Errors: all}
	}
	s.finalErr = finalErr
	s.settled = true
	level := LevelInfo
	if finalErr != nil {
		level = LevelWarn
	}
	if logger := s.disp.logger; logger.Enabled(level) {
		logger.Log(Entry{
			Level:    level,
			Category: "scope",
			Message:  "halt-cascade finish",
			Err:      finalErr,
		})
	}
	close(s.doneCh)
	watchers := s.watchers
	s.watchers = nil
	for _, w := range watchers {
		w(finalErr)
	}
}

// awaitDone parks the calling frame until s has fully settled, returning the
// scope's final aggregated error (nil on a clean or halted shutdown).
func (s *Scope) awaitDone(c *Control) error {
	_, err := c.Suspend(func(resume func(any, error)) {
		if s.settled {
			resume(nil, s.finalErr)
			return
		}
		s.watchers = append(s.watchers, func(ferr error) { resume(nil, ferr) })
	})
	return err
}
