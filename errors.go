package effection

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrHalt is the sentinel error an Operation body returns (or that a blocked
// Control call returns to it) to signal a quiet halt rather than a failure.
// Operations that propagate it unchanged cause their own frame to settle as
// halted instead of errored; see Control.Suspend and the package-level
// Action and Resource primitives.
var ErrHalt = errors.New("effection: halted")

// HaltError decorates ErrHalt with the reason the halt was requested, when
// one was supplied (e.g. the error that made a scope halt its remaining
// children). Task.Halt and WithTimeout halt without a reason.
type HaltError struct {
	Reason error
}

func (e *HaltError) Error() string {
	if e.Reason == nil {
		return "effection: halted"
	}
	return fmt.Sprintf("effection: halted: %v", e.Reason)
}

func (e *HaltError) Unwrap() error { return ErrHalt }

// Is reports whether target is ErrHalt, matching the
// "halt is not an error" taxonomy of the spec: callers that just want to
// know "was this a halt" should use errors.Is(err, effection.ErrHalt).
func (e *HaltError) Is(target error) bool {
	return target == ErrHalt
}

// IsHalt reports whether err represents a halt condition rather than a
// genuine failure.
func IsHalt(err error) bool {
	return errors.Is(err, ErrHalt)
}

// AggregateError collects multiple causes into a single error, used by
// combinators (Any, Race) and scope teardown that must
// report more than one failure without discarding any of them.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "effection: aggregate error (empty)"
	}
	parts := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		parts[i] = err.Error()
	}
	return fmt.Sprintf("effection: %d error(s): %s", len(e.Errors), strings.Join(parts, "; "))
}

// Unwrap enables errors.Is/errors.As to reach any contained error (Go 1.20+
// multi-error unwrapping).
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Cause returns the first error in the aggregate, if any.
func (e *AggregateError) Cause() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}

// TeardownError wraps the reported cause of a frame or scope together with
// any further errors that occurred while running cleanup thunks after that
// cause was already recorded. Per the spec, the first error is the reported
// cause; the rest are suppressed, not silently dropped.
type TeardownError struct {
	Cause      error
	Suppressed []error
}

func (e *TeardownError) Error() string {
	if len(e.Suppressed) == 0 {
		return e.Cause.Error()
	}
	return fmt.Sprintf("%s (plus %d suppressed cleanup error(s))", e.Cause.Error(), len(e.Suppressed))
}

func (e *TeardownError) Unwrap() error { return e.Cause }

// TypeError mirrors a small piece of the teacher's JS-flavoured error
// taxonomy, used when user code supplies a value of the wrong shape to a
// combinator (e.g. an empty operation list to Race).
type TypeError struct {
	Message string
}

func (e *TypeError) Error() string { return e.Message }

// TimeoutError is returned by WithTimeout when the timeout branch wins the
// race against the wrapped operation.
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("effection: operation timed out after %s", e.Duration)
}

// WrapError wraps cause with a message, preserving it for errors.Is/As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
