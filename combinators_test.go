package effection

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAllReturnsOrderedResults(t *testing.T) {
	ops := []Operation[int]{
		func(c *Control) (int, error) { return 1, nil },
		func(c *Control) (int, error) { return 2, nil },
		func(c *Control) (int, error) { return 3, nil },
	}
	task, err := Run(func(c *Control) ([]int, error) {
		return All(ops)(c)
	})
	require.NoError(t, err)
	got, err := task.Result()
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, got)
}

// TestAllHaltsSiblingsOnFirstFailure checks that a failing branch halts every
// other branch and that All reports the first failure.
func TestAllHaltsSiblingsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	siblingHalted := false
	ops := []Operation[struct{}]{
		func(c *Control) (struct{}, error) { return struct{}{}, boom },
		func(c *Control) (struct{}, error) {
			_, err := c.Suspend(func(resume func(any, error)) {})
			siblingHalted = IsHalt(err)
			return struct{}{}, err
		},
	}
	task, err := Run(func(c *Control) ([]struct{}, error) {
		return All(ops)(c)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err = task.Result()
	if !errors.Is(err, boom) {
		t.Fatalf("Result err = %v, want boom", err)
	}
	if !siblingHalted {
		t.Fatal("sibling branch was not halted after its sibling's failure")
	}
}

func TestAllSettledNeverCancelsSiblings(t *testing.T) {
	boom := errors.New("boom")
	ops := []Operation[int]{
		func(c *Control) (int, error) { return 1, boom },
		func(c *Control) (int, error) { return 2, nil },
	}
	task, err := Run(func(c *Control) ([]Outcome[int], error) {
		return AllSettled(ops)(c)
	})
	require.NoError(t, err)
	results, err := task.Result()
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.ErrorIs(t, results[0].Err, boom)
	require.Equal(t, Outcome[int]{Value: 2, Err: nil}, results[1])
}

// TestRaceWithLeakCheck is scenario 1 from §8: race([sleep(10), sleep(1000)])
// settles as soon as the short sleep fires, and the losing branch's timer is
// cleared rather than left pending.
func TestRaceWithLeakCheck(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	task, err := Run(func(c *Control) (struct{}, error) {
		return Race([]Operation[struct{}]{
			Sleep(10 * time.Millisecond),
			Sleep(1000 * time.Millisecond),
		})(c)
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	time.Sleep(20 * time.Millisecond) // let both branches register their timers
	clock.Advance(10 * time.Millisecond)

	if _, err := task.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if got := clock.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0 (losing branch's timer must be cleared)", got)
	}
}

// TestRaceReturnsFirstFailure checks that Race also settles on a branch's
// failure, not just its success.
func TestRaceReturnsFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	task, err := Run(func(c *Control) (int, error) {
		return Race([]Operation[int]{
			func(c *Control) (int, error) { return 0, boom },
			func(c *Control) (int, error) {
				_, err := c.Suspend(func(resume func(any, error)) {})
				return 0, err
			},
		})(c)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err = task.Result()
	if !errors.Is(err, boom) {
		t.Fatalf("Result err = %v, want boom", err)
	}
}

func TestAnyReturnsFirstSuccess(t *testing.T) {
	boom := errors.New("boom")
	task, err := Run(func(c *Control) (int, error) {
		return Any([]Operation[int]{
			func(c *Control) (int, error) { return 0, boom },
			func(c *Control) (int, error) { return 7, nil },
		})(c)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, err := task.Result()
	if err != nil || v != 7 {
		t.Fatalf("Result = (%d, %v), want (7, nil)", v, err)
	}
}

func TestAnyAggregatesWhenEveryBranchFails(t *testing.T) {
	errA := errors.New("errA")
	errB := errors.New("errB")
	task, err := Run(func(c *Control) (int, error) {
		return Any([]Operation[int]{
			func(c *Control) (int, error) { return 0, errA },
			func(c *Control) (int, error) { return 0, errB },
		})(c)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, err = task.Result()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("Result err = %v, want aggregate of errA and errB", err)
	}
}

// TestCallIsErrorBoundary is scenario 6 from §8: a background spawn's error
// surfaces at the Call site (observable by a surrounding error check), while
// the same spawn outside Call propagates past it to the enclosing scope
// instead.
func TestCallIsErrorBoundary(t *testing.T) {
	boom := errors.New("boom")

	caught := false
	task, err := Run(func(c *Control) (struct{}, error) {
		_, callErr := Call[struct{}](func(cc *Control) (struct{}, error) {
			if _, err := Spawn[struct{}](func(sc *Control) (struct{}, error) {
				return struct{}{}, boom
			})(cc); err != nil {
				return struct{}{}, err
			}
			_, err := cc.Suspend(func(resume func(any, error)) {})
			return struct{}{}, err
		})(c)
		if errors.Is(callErr, boom) {
			caught = true
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := task.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !caught {
		t.Fatal("Call did not surface the background spawn's error at the call site")
	}
}

// TestWithoutCallBackgroundErrorEscapesToScope is the contrasting half of
// scenario 6: the identical spawn, run without a Call boundary, is not
// observable by a surrounding error check at all — it only ever reaches the
// enclosing scope.
func TestWithoutCallBackgroundErrorEscapesToScope(t *testing.T) {
	boom := errors.New("boom")
	caught := false

	task, err := Run(func(c *Control) (struct{}, error) {
		func() {
			if _, err := Spawn[struct{}](func(sc *Control) (struct{}, error) {
				return struct{}{}, boom
			})(c); err != nil {
				caught = true
			}
		}()
		_, err := c.Suspend(func(resume func(any, error)) {})
		return struct{}{}, err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, resultErr := task.Result()
	if caught {
		t.Fatal("the spawn's error was observed at the Spawn call site without Call; it should not be")
	}
	if !IsHalt(resultErr) {
		t.Fatalf("primary frame outcome = %v, want halt (cascaded from the background error at the scope, not caught locally)", resultErr)
	}
}

func TestWithTimeoutFailsWhenDeadlineWins(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	task, err := Run(func(c *Control) (struct{}, error) {
		return WithTimeout(10*time.Millisecond, func(c *Control) (struct{}, error) {
			_, err := c.Suspend(func(resume func(any, error)) {})
			return struct{}{}, err
		})(c)
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	clock.Advance(10 * time.Millisecond)

	_, err = task.Result()
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Result err = %v (%T), want *TimeoutError", err, err)
	}
}

func TestWithTimeoutSucceedsWhenOpWinsFirst(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	task, err := Run(func(c *Control) (int, error) {
		return WithTimeout(1000*time.Millisecond, func(c *Control) (int, error) {
			return 5, nil
		})(c)
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, err := task.Result()
	if err != nil || v != 5 {
		t.Fatalf("Result = (%d, %v), want (5, nil)", v, err)
	}
	if got := clock.Pending(); got != 0 {
		t.Fatalf("Pending() = %d, want 0 (timeout timer must be cleared once op wins)", got)
	}
}

func TestSleepCompletesAfterAdvance(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	task, err := Run(func(c *Control) (struct{}, error) {
		return Sleep(50 * time.Millisecond)(c)
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	clock.Advance(50 * time.Millisecond)
	if _, err := task.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}
}
