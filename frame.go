// frame.go - the evaluator: frames, Control, and the drive/settle pipeline.
//
// A frame is the Go encoding of an activation record (§4.1): a goroutine
// running an Operation body, paired with the dispatcher-side bookkeeping
// needed to suspend and resume it. The body goroutine and the dispatcher
// goroutine rendezvous over two unbuffered channels — yielded carries an
// instruction out, resumed carries the reply back in — so that at any given
// moment exactly one of the two goroutines is actually running; this is the
// binding Go realization of what a generator-based runtime gets for free
// from yield.
package effection

import "errors"

// Operation is a lazy, restartable unit of work (§2). It does nothing until
// run by Main, Run, Spawn, or a combinator, and may be run more than once.
type Operation[T any] func(c *Control) (T, error)

// Control is the capability a running Operation body uses to talk to its
// frame: suspend, spawn children, fetch its own scope, register cleanup.
// It is only ever valid on the goroutine that owns the frame it belongs to.
type Control struct {
	f *frame
}

type childKind int

const (
	childPrimary   childKind = iota // settling (any outcome) terminates the scope
	childSecondary                  // only an error settling cascades the scope's termination
	childManaged                    // action/resource body: delivery is handled explicitly, not via cascade
	childCleanup                    // teardown thunk: not attached to any scope's child list at all
)

type frameState int32

const (
	stateRunning frameState = iota
	stateSuspended
)

// outcome is a frame's terminal result once its exit stack has finished
// running, computed once and read thereafter.
type outcome struct {
	value  any
	err    error
	halted bool
}

type doneMsg struct {
	value any
	err   error
}

// frame is the evaluator's view of one running Operation. All fields are
// only ever touched from the dispatcher goroutine.
type frame struct {
	id    uint64
	label string
	scope *Scope
	disp  *dispatcher
	kind  childKind

	yielded chan instruction
	resumed chan resumeMsg
	done    chan doneMsg

	state frameState

	exitStack     []Cleanup
	haltRequested bool
	haltReason    error

	outcome   *outcome
	settledCh chan struct{}
	onSettled func(outcome) // optional hook run once, after outcome is final

	attachIndex int // assigned by Scope.attach, used for reverse-order teardown
}

// drive runs f's instruction loop until f either parks at a genuine
// suspension point or settles. It is the single re-entrant entry point for
// making a frame progress; it is always called from the dispatcher
// goroutine, either via the queue (first drive, or a resumed one) or
// directly by deliverResume continuing the same logical tick.
func (d *dispatcher) drive(f *frame) {
	for {
		select {
		case instr := <-f.yielded:
			switch instr.kind {
			case instrGetScope:
				f.resumed <- resumeMsg{value: f.scope}
			case instrEnsure:
				f.exitStack = append(f.exitStack, instr.cleanup)
				f.resumed <- resumeMsg{}
			case instrSpawn:
				result := instr.spawnRun()
				f.resumed <- resumeMsg{value: result}
			case instrAction, instrResource:
				f.state = stateSuspended
				instr.spawnRun()
				if f.haltRequested && f.state == stateSuspended {
					f.state = stateRunning
					f.resumed <- resumeMsg{halted: true}
					continue
				}
				return
			case instrSuspend:
				f.state = stateSuspended
				instr.onInstall(d.makeResumeFunc(f))
				if f.haltRequested && f.state == stateSuspended {
					f.state = stateRunning
					f.resumed <- resumeMsg{halted: true}
					continue
				}
				return
			}
		case dm := <-f.done:
			d.beginSettle(f, dm.value, dm.err)
			return
		}
	}
}

// makeResumeFunc returns the callback handed to a suspension's onInstall. It
// is safe to call from any goroutine (including one entirely outside the
// operation tree, e.g. a RealClock timer) and fires at most once; later
// calls are silently ignored, matching the "resolve/reject only takes the
// first call" discipline of a single-shot future.
func (d *dispatcher) makeResumeFunc(f *frame) func(any, error) {
	delivered := false
	return func(v any, err error) {
		if delivered {
			return
		}
		delivered = true
		d.q.submit(func() { d.deliverResume(f, resumeMsg{value: v, err: err}) })
	}
}

// deliverResume resumes a parked frame exactly once. Called only on the
// dispatcher goroutine. If f is no longer suspended (already resumed, or
// halted out from under this delivery), it is a no-op.
func (d *dispatcher) deliverResume(f *frame, msg resumeMsg) {
	if f.state != stateSuspended {
		return
	}
	f.state = stateRunning
	f.resumed <- msg
	d.drive(f)
}

// requestHalt marks f to halt at its next (or current) suspension point. If
// f is parked right now, the halt is delivered immediately; idempotent.
func (d *dispatcher) requestHalt(f *frame, reason error) {
	if f.outcome != nil || f.haltRequested {
		return
	}
	f.haltRequested = true
	f.haltReason = reason
	if f.state == stateSuspended {
		d.deliverResume(f, resumeMsg{halted: true})
	}
}

// beginSettle starts the teardown pipeline once f's body has returned.
// Cleanup thunks run strictly sequentially in reverse registration order,
// each one driven to completion as its own frame so that an async cleanup
// (one that itself suspends) does not block the dispatcher goroutine.
func (d *dispatcher) beginSettle(f *frame, v any, err error) {
	halted := false
	if errors.Is(err, ErrHalt) {
		halted = true
		err = nil
	}
	prelim := outcome{value: v, err: err, halted: halted}
	d.runTeardown(f, prelim, len(f.exitStack)-1, nil)
}

func (d *dispatcher) runTeardown(f *frame, prelim outcome, idx int, suppressed []error) {
	if idx < 0 {
		d.completeSettle(f, prelim, suppressed)
		return
	}
	cleanup := f.exitStack[idx]
	cf := newCleanupFrame(d, f.scope, cleanup)
	cf.onSettled = func(o outcome) {
		next := suppressed
		if o.err != nil {
			next = append(next, o.err)
		}
		d.runTeardown(f, prelim, idx-1, next)
	}
	d.drive(cf)
}

func (d *dispatcher) completeSettle(f *frame, prelim outcome, suppressed []error) {
	finalErr := prelim.err
	if len(suppressed) > 0 {
		if finalErr == nil {
			finalErr = suppressed[0]
			suppressed = suppressed[1:]
		}
		if len(suppressed) > 0 {
			finalErr = &TeardownError{Cause: finalErr, Suppressed: suppressed}
			if d.logger.Enabled(LevelWarn) {
				d.logger.Log(Entry{
					Level:    LevelWarn,
					Category: "frame",
					Message:  "teardown thunk returned suppressed error(s)",
					Err:      finalErr,
					Fields:   map[string]any{"frame_id": f.id, "label": f.label, "suppressed": len(suppressed)},
				})
			}
		}
		prelim.halted = false
	}
	o := outcome{value: prelim.value, err: finalErr, halted: prelim.halted}
	f.outcome = &o
	level := LevelDebug
	if finalErr != nil && !o.halted {
		level = LevelError
	}
	if d.logger.Enabled(level) {
		d.logger.Log(Entry{
			Level:    level,
			Category: "frame",
			Message:  "frame settled",
			Err:      finalErr,
			Fields:   map[string]any{"frame_id": f.id, "label": f.label, "halted": o.halted},
		})
	}
	close(f.settledCh)
	if f.kind != childCleanup && f.scope != nil {
		f.scope.childSettled(f, o)
	}
	if f.onSettled != nil {
		f.onSettled(o)
	}
}

// --- Control methods -------------------------------------------------

// Suspend parks the calling frame until onInstall's resume callback is
// invoked (possibly from another goroutine, possibly never if the frame is
// halted first). onInstall runs synchronously before Suspend blocks, so it
// can register the callback with whatever external mechanism produces it.
func (c *Control) Suspend(onInstall func(resume func(value any, err error))) (any, error) {
	c.f.yielded <- instruction{kind: instrSuspend, onInstall: onInstall}
	msg := <-c.f.resumed
	if msg.halted {
		return nil, &HaltError{Reason: c.f.haltReason}
	}
	return msg.value, msg.err
}

// GetScope returns the Scope the calling frame belongs to.
func (c *Control) GetScope() *Scope {
	c.f.yielded <- instruction{kind: instrGetScope}
	msg := <-c.f.resumed
	return msg.value.(*Scope)
}

// EnsureRaw registers cleanup to run, in reverse registration order, during
// the calling frame's teardown.
func (c *Control) EnsureRaw(cleanup Cleanup) {
	c.f.yielded <- instruction{kind: instrEnsure, cleanup: cleanup}
	<-c.f.resumed
}

// sendControlInstruction is the shared plumbing behind Spawn, Action and Resource: it
// sends a dispatcher-goroutine closure that creates+attaches the new frame
// and returns a value (a *Task for spawn, nil for action/resource) back to
// the caller. instr.kind distinguishes "ack then continue" (instrSpawn) from
// "stay parked until delivered" (instrAction/instrResource); both are
// handled uniformly by Control.Suspend's caller via the raw send below.
func sendControlInstruction(c *Control, instr instruction) (any, error) {
	c.f.yielded <- instr
	msg := <-c.f.resumed
	if msg.halted {
		return nil, &HaltError{Reason: c.f.haltReason}
	}
	return msg.value, msg.err
}
