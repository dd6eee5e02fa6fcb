package effection

import (
	"runtime"
	"testing"
)

// settledFrame returns a frame with the given id already marked settled, for
// registry tests that don't need a real dispatcher driving it.
func settledFrame(id uint64) *frame {
	return &frame{id: id, outcome: &outcome{}}
}

func pendingFrame(id uint64) *frame {
	return &frame{id: id}
}

func TestRegistryScavengeRemovesSettledAndCollected(t *testing.T) {
	r := newFrameRegistry()

	pending := pendingFrame(1)
	r.track(pending)

	settled := settledFrame(2)
	r.track(settled)

	r.scavenge(100)

	r.mu.Lock()
	_, stillHasPending := r.data[1]
	_, stillHasSettled := r.data[2]
	r.mu.Unlock()

	if !stillHasPending {
		t.Error("pending frame was removed by scavenge")
	}
	if stillHasSettled {
		t.Error("settled frame survived scavenge")
	}
	runtime.KeepAlive(pending)
	runtime.KeepAlive(settled)
}

func TestRegistryScavengeBatchesAcrossCalls(t *testing.T) {
	r := newFrameRegistry()
	kept := make([]*frame, 0, 5) // strong refs to the still-pending (odd id) frames
	for i := uint64(1); i <= 10; i++ {
		f := pendingFrame(i)
		if i%2 == 0 {
			f.outcome = &outcome{}
		} else {
			kept = append(kept, f)
		}
		r.track(f)
	}

	// A batch of 1 only ever inspects a single ring slot per call.
	r.scavenge(1)
	r.mu.Lock()
	head := r.head
	r.mu.Unlock()
	if head != 1 {
		t.Fatalf("head = %d, want 1 after a single-slot scavenge", head)
	}

	for i := 0; i < 9; i++ {
		r.scavenge(1)
	}
	if got := r.liveCount(); got != 5 {
		t.Fatalf("liveCount = %d, want 5 (odd ids only)", got)
	}
	runtime.KeepAlive(kept)
}

func TestRegistryCompactsOnLowLoadFactorAfterFullCycle(t *testing.T) {
	r := newFrameRegistry()
	const total = 300
	const keep = 30
	kept := make([]*frame, 0, keep)
	for i := uint64(1); i <= total; i++ {
		f := pendingFrame(i)
		if i > keep {
			f.outcome = &outcome{}
		} else {
			kept = append(kept, f)
		}
		r.track(f)
	}

	r.scavenge(total) // one full cycle, load factor keep/total < 0.25

	r.mu.Lock()
	ringLen := len(r.ring)
	r.mu.Unlock()

	if ringLen != keep {
		t.Fatalf("ring length = %d after compaction, want %d", ringLen, keep)
	}
	runtime.KeepAlive(kept)
}

func TestRegistryNoCompactionWhenLoadFactorHigh(t *testing.T) {
	r := newFrameRegistry()
	const total = 100
	kept := make([]*frame, 0, 50)
	for i := uint64(0); i < total; i++ {
		f := pendingFrame(i)
		if i >= 50 {
			f.outcome = &outcome{}
		} else {
			kept = append(kept, f)
		}
		r.track(f)
	}

	r.scavenge(total)

	r.mu.Lock()
	ringLen := len(r.ring)
	r.mu.Unlock()

	if ringLen != total {
		t.Fatalf("ring length = %d, want %d (no compaction expected)", ringLen, total)
	}
	runtime.KeepAlive(kept)
}

// TestDispatcherScavengesBetweenBatches checks that runLoop's own scavenge
// call, not just a directly-invoked one, keeps LiveFrameCount from growing
// without bound as frames settle over a live dispatcher.
func TestDispatcherScavengesBetweenBatches(t *testing.T) {
	d := newDispatcher(&config{logger: NewNoOpLogger(), clock: RealClock{}})
	go d.runLoop()

	f, err := attachAndStart[struct{}](d, d.root, "spawner", childPrimary, func(c *Control) (struct{}, error) {
		for i := 0; i < 50; i++ {
			task, err := Spawn[struct{}](func(ac *Control) (struct{}, error) { return struct{}{}, nil })(c)
			if err != nil {
				return struct{}{}, err
			}
			if _, err := task.Wait(c); err != nil {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("attachAndStart: %v", err)
	}
	<-f.settledCh

	// Give runLoop a few more drained batches a chance to scavenge the 50
	// spawned frames this test has tracked; every one of them has settled.
	for i := 0; i < 5; i++ {
		d.q.submit(func() {})
	}
	d.q.close()

	if got := d.LiveFrameCount(); got > 1 {
		t.Fatalf("LiveFrameCount = %d after settling, want scavenge to have pruned settled frames", got)
	}
}
