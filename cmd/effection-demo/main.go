// Command effection-demo is a minimal runnable program exercising Main,
// Spawn, Resource, a Channel, and WithTimeout together: it ticks a shared
// channel at a fixed interval, fans the ticks out to a handful of
// subscribers, and stops either after a fixed deadline or on Ctrl-C.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/lc-mm/effection"
)

// ticker is a Resource: it provides a subscribable stream.Operation
// immediately, then keeps sending on its own Port for as long as its frame
// is alive, stopping cleanly (closing the channel) on halt.
func ticker(interval time.Duration) effection.Operation[effection.Operation[*effection.Subscription[int, struct{}]]] {
	return effection.Resource[effection.Operation[*effection.Subscription[int, struct{}]]](func(rc *effection.Control, provide func(effection.Operation[*effection.Subscription[int, struct{}]])) {
		port, stream := effection.CreateChannel[int, struct{}](0)
		provide(stream)
		n := 0
		for {
			if _, err := effection.Sleep(interval)(rc); err != nil {
				port.Close(struct{}{})
				return
			}
			n++
			port.Send(n)
		}
	})
}

// subscriber reads every tick off sub and prints it, tagged with name, until
// the channel closes or the frame is halted.
func subscriber(name string, sub *effection.Subscription[int, struct{}]) effection.Operation[struct{}] {
	return effection.Each[int, struct{}](sub, func(tick int) {
		fmt.Printf("%s: tick %d\n", name, tick)
	})
}

func demo(c *effection.Control) (struct{}, error) {
	stream, err := ticker(200 * time.Millisecond)(c)
	if err != nil {
		return struct{}{}, err
	}

	var tasks []*effection.Task[struct{}]
	for _, name := range []string{"alpha", "beta", "gamma"} {
		sub, err := stream(c)
		if err != nil {
			return struct{}{}, err
		}
		t, err := effection.Spawn(subscriber(name, sub))(c)
		if err != nil {
			return struct{}{}, err
		}
		tasks = append(tasks, t)
	}

	_, err = effection.WithTimeout(2*time.Second, func(c *effection.Control) (struct{}, error) {
		for _, t := range tasks {
			if _, err := t.Wait(c); err != nil && !effection.IsHalt(err) {
				return struct{}{}, err
			}
		}
		return struct{}{}, nil
	})(c)
	// Hitting the deadline is this demo's normal way to stop; report
	// anything else (including a halt from Ctrl-C, which the frame's own
	// teardown will turn into a silent success) as-is.
	var timeoutErr *effection.TimeoutError
	if errors.As(err, &timeoutErr) {
		return struct{}{}, nil
	}
	return struct{}{}, err
}

func main() {
	_, err := effection.Main(demo)
	if err != nil {
		os.Exit(1)
	}
}
