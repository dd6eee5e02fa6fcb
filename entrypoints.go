// entrypoints.go - Run and Main, the two surface entry points named by §6
// but specified only as collaborators: everything they need (dispatcher,
// scope, frame) already exists, so this is the glue that actually starts a
// runLoop goroutine and binds a root scope's lifetime to either a plain
// caller or the host process.
package effection

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Run starts a fresh dispatcher with its own root scope, runs op as the
// scope's primary frame, and returns a Task for it. Unlike a Task obtained
// from Spawn, the returned Task's Result method may be called from any
// goroutine, including one with no Control of its own, since Run's
// dispatcher belongs to nobody else.
//
// Waiting on the Task only ever sees op's own frame settle, which is not the
// same thing as the root scope's outcome: a secondary child op spawns may
// fail and cascade-halt op itself before op ever gets to return a value of
// its own, exactly as it would for any other scope.
func Run[T any](op Operation[T], opts ...Option) (*Task[T], error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	d := newDispatcher(cfg)
	go d.runLoop()

	f, err := attachAndStart(d, d.root, "run", childPrimary, op)
	if err != nil {
		d.q.close()
		return nil, err
	}
	t := newTask[T](d, f)
	go func() {
		<-d.root.doneCh
		d.q.close()
	}()
	return t, nil
}

// runRoot is the shared blocking machinery behind Main: start a dispatcher,
// run op as the root scope's primary frame, wait for the *scope* (not just
// op's own frame) to fully settle, then report the scope's aggregated
// outcome paired with op's own return value.
func runRoot[T any](op Operation[T], cfg *config) (T, error) {
	var zero T
	d := newDispatcher(cfg)
	go d.runLoop()

	f, err := attachAndStart(d, d.root, "main", childPrimary, op)
	if err != nil {
		d.q.close()
		return zero, err
	}

	done := make(chan struct{})
	var stop func()
	installSignals := true
	if cfg.signalHandling != nil {
		installSignals = *cfg.signalHandling
	}
	if installSignals {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		stop = func() { signal.Stop(sigCh) }
		go func() {
			select {
			case <-sigCh:
				d.q.submit(func() { d.requestHalt(f, nil) })
			case <-done:
			}
		}()
	}

	<-d.root.doneCh
	close(done)
	if stop != nil {
		stop()
	}
	d.q.close()

	result, _ := f.outcome.value.(T)
	return result, d.root.finalErr
}

// Main creates a root scope bound to host-process lifecycle: it installs
// SIGINT/SIGTERM handlers (unless disabled via WithSignalHandling(false))
// that halt the root scope on receipt, runs op as the scope's primary
// frame, blocks until the whole scope (op and anything it spawned) has
// settled, and prints the failure cause to stderr if there was one. The
// returned error is the root scope's own aggregated outcome, which is what
// actually determines whether the run as a whole succeeded — not merely
// whether op's own return statement carried an error.
func Main[T any](op Operation[T], opts ...Option) (T, error) {
	var zero T
	cfg, err := resolveOptions(opts)
	if err != nil {
		return zero, err
	}
	v, resultErr := runRoot(op, cfg)
	if resultErr != nil {
		fmt.Fprintln(os.Stderr, resultErr)
	}
	return v, resultErr
}
