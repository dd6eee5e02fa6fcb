package effection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestChannelSubscriptionOnlyObservesValuesAfterCreation is scenario 4 from
// §8: a value sent before a subscription exists is never observed by it;
// only values sent afterward (and the terminal close) are.
func TestChannelSubscriptionOnlyObservesValuesAfterCreation(t *testing.T) {
	port, stream := CreateChannel[string, struct{}](0)
	port.Send("A")

	subscribed := make(chan struct{})
	proceed := make(chan struct{})
	var got []string

	task, err := Run(func(c *Control) (struct{}, error) {
		sub, err := stream(c)
		if err != nil {
			return struct{}{}, err
		}
		close(subscribed)
		<-proceed
		vals, err := Collect[string, struct{}](sub)(c)
		if err != nil {
			return struct{}{}, err
		}
		got = vals
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	<-subscribed
	port.Send("B")
	port.Send("C")
	port.Close(struct{}{})
	close(proceed)

	_, err = task.Result()
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C"}, got)
}

// TestChannelFansOutToEverySubscriber checks that two live subscriptions
// each observe every value sent while both are live, independently.
func TestChannelFansOutToEverySubscriber(t *testing.T) {
	port, stream := CreateChannel[int, struct{}](0)

	proceed := make(chan struct{})
	var gotA, gotB []int
	subscribedA := make(chan struct{})
	subscribedB := make(chan struct{})

	task, err := Run(func(c *Control) (struct{}, error) {
		subA, err := stream(c)
		if err != nil {
			return struct{}{}, err
		}
		close(subscribedA)

		taskB, err := Spawn[struct{}](func(bc *Control) (struct{}, error) {
			subB, err := stream(bc)
			if err != nil {
				return struct{}{}, err
			}
			close(subscribedB)
			<-proceed
			vals, err := Collect[int, struct{}](subB)(bc)
			if err != nil {
				return struct{}{}, err
			}
			gotB = vals
			return struct{}{}, nil
		})(c)
		if err != nil {
			return struct{}{}, err
		}

		vals, err := Collect[int, struct{}](subA)(c)
		if err != nil {
			return struct{}{}, err
		}
		gotA = vals
		_, err = taskB.Wait(c)
		return struct{}{}, err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	<-subscribedA
	<-subscribedB
	port.Send(1)
	port.Send(2)
	port.Close(struct{}{})
	close(proceed)

	if _, err := task.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}
	want := []int{1, 2}
	if !equalInts(gotA, want) {
		t.Fatalf("gotA = %v, want %v", gotA, want)
	}
	if !equalInts(gotB, want) {
		t.Fatalf("gotB = %v, want %v", gotB, want)
	}
}

// TestSignalBridgesHostEventsIntoOperationTree checks that a Signal's Send
// and Close, invoked from an entirely separate goroutine, reach a
// subscriber parked on Stream().
func TestSignalBridgesHostEventsIntoOperationTree(t *testing.T) {
	var sig *Signal[string, struct{}]
	subscribed := make(chan struct{})
	var got []string

	task, err := Run(func(c *Control) (struct{}, error) {
		s, err := CreateSignal[string, struct{}](0)(c)
		if err != nil {
			return struct{}{}, err
		}
		sig = s
		sub, err := s.Stream()(c)
		if err != nil {
			return struct{}{}, err
		}
		close(subscribed)
		vals, err := Collect[string, struct{}](sub)(c)
		if err != nil {
			return struct{}{}, err
		}
		got = vals
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	<-subscribed
	time.Sleep(10 * time.Millisecond) // let the subscribe Resource finish parking
	sig.Send("hello")
	sig.Close(struct{}{})

	if _, err := task.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !equalStrings(got, []string{"hello"}) {
		t.Fatalf("got %v, want [hello]", got)
	}
}

// TestPortSendOpBlocksUntilSubscriptionHasRoom checks that a bounded Port's
// SendOp only resumes once a live subscription has consumed enough to free
// capacity.
func TestPortSendOpBlocksUntilSubscriptionHasRoom(t *testing.T) {
	port, stream := CreateChannel[int, struct{}](1)

	subscribed := make(chan struct{})
	release := make(chan struct{})
	var got []int

	task, err := Run(func(c *Control) (struct{}, error) {
		sub, err := stream(c)
		if err != nil {
			return struct{}{}, err
		}
		close(subscribed)
		<-release
		vals, err := Collect[int, struct{}](sub)(c)
		if err != nil {
			return struct{}{}, err
		}
		got = vals
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	<-subscribed

	sendDone := make(chan struct{})
	sendTask, err := Run(func(c *Control) (struct{}, error) {
		if _, err := port.SendOp(1)(c); err != nil {
			return struct{}{}, err
		}
		if _, err := port.SendOp(2)(c); err != nil {
			return struct{}{}, err
		}
		close(sendDone)
		return struct{}{}, nil
	})
	if err != nil {
		t.Fatalf("Run send: %v", err)
	}

	select {
	case <-sendDone:
		t.Fatal("both sends completed before the subscriber drained any value; SendOp should have blocked on the second send")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	if _, err := sendTask.Result(); err != nil {
		t.Fatalf("send Result: %v", err)
	}
	port.Close(struct{}{})

	if _, err := task.Result(); err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !equalInts(got, []int{1, 2}) {
		t.Fatalf("got %v, want [1 2]", got)
	}
}
