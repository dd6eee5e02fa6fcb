// channel.go - multi-subscriber value distribution (§4.5, §4.5.1, §11.1).
//
// A Channel is a stateless recipe pair: Port (send/close) and a stream
// Operation that, each time it is run (as a Resource), allocates a fresh
// Subscription with its own private queue. Values sent while N subscriptions
// are live are copied into each of their queues independently; no
// subscription ever observes a value sent before it existed.
package effection

import (
	"sync"
	"sync/atomic"
)

// Item is one value produced by Subscription.Next: either a value (Done
// false) or the terminal marker carrying the channel's close payload (Done
// true, the zero C otherwise).
type Item[T any, C any] struct {
	Value T
	Done  bool
	Close C
}

type item[T any, C any] struct {
	value T
	done  bool
	close C
}

// Channel is the shared state behind a Port/stream pair. Capacity, if
// positive, bounds every subscription's queue; Port.SendOp suspends until
// every live subscription has room. Capacity 0 means unbounded: Port.Send
// and Port.SendOp never block.
type Channel[T any, C any] struct {
	mu       sync.Mutex
	subs     map[uint64]*Subscription[T, C]
	nextID   uint64
	capacity int
	closed   bool
	closeVal C
}

// CreateChannel allocates a new Channel and returns its Port (for sending)
// paired with its stream Operation (a Resource producing a fresh
// Subscription each time it is run).
func CreateChannel[T any, C any](capacity int) (*Port[T, C], Operation[*Subscription[T, C]]) {
	ch := &Channel[T, C]{subs: make(map[uint64]*Subscription[T, C]), capacity: capacity}
	port := &Port[T, C]{ch: ch}
	stream := Resource[*Subscription[T, C]](func(rc *Control, provide func(*Subscription[T, C])) {
		sub := ch.newSubscription()
		provide(sub)
		rc.EnsureRaw(func(ec *Control) (struct{}, error) {
			ch.removeSubscription(sub.id)
			return struct{}{}, nil
		})
		_, _ = rc.Suspend(func(resume func(any, error)) {})
	})
	return port, stream
}

// Port is the send side of a Channel.
type Port[T any, C any] struct{ ch *Channel[T, C] }

// Send delivers v to every subscription live right now, growing each
// queue past its configured capacity if necessary. Safe to call from any
// goroutine, including entirely outside the operation tree (e.g. a host
// event callback bridged through Signal).
func (p *Port[T, C]) Send(v T) { p.ch.send(v) }

// Close delivers the terminal marker carrying c to every live subscription.
// Further Send/SendOp calls are no-ops.
func (p *Port[T, C]) Close(c C) { p.ch.close(c) }

// SendOp is the suspending form of Send: it parks until every live
// subscription has room for v under the channel's configured capacity.
// With capacity 0 it never actually suspends.
func (p *Port[T, C]) SendOp(v T) Operation[struct{}] {
	return func(c *Control) (struct{}, error) {
		_, err := c.Suspend(func(resume func(any, error)) {
			p.ch.sendBounded(v, func() { resume(nil, nil) })
		})
		return struct{}{}, err
	}
}

func (ch *Channel[T, C]) newSubscription() *Subscription[T, C] {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.nextID++
	sub := &Subscription[T, C]{ch: ch, id: ch.nextID}
	if ch.closed {
		sub.closed = true
		sub.closeVal = ch.closeVal
	}
	ch.subs[sub.id] = sub
	return sub
}

func (ch *Channel[T, C]) removeSubscription(id uint64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.subs, id)
}

func (ch *Channel[T, C]) liveSubs() []*Subscription[T, C] {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	subs := make([]*Subscription[T, C], 0, len(ch.subs))
	for _, s := range ch.subs {
		subs = append(subs, s)
	}
	return subs
}

func (ch *Channel[T, C]) send(v T) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.mu.Unlock()
	for _, s := range ch.liveSubs() {
		s.deliverUnbounded(v)
	}
}

func (ch *Channel[T, C]) sendBounded(v T, onReady func()) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		onReady()
		return
	}
	capacity := ch.capacity
	ch.mu.Unlock()

	subs := ch.liveSubs()
	if len(subs) == 0 {
		onReady()
		return
	}
	remaining := int32(len(subs))
	done := func() {
		if atomic.AddInt32(&remaining, -1) == 0 {
			onReady()
		}
	}
	for _, s := range subs {
		s.deliverBounded(v, capacity, done)
	}
}

func (ch *Channel[T, C]) close(c C) {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return
	}
	ch.closed = true
	ch.closeVal = c
	ch.mu.Unlock()
	for _, s := range ch.liveSubs() {
		s.deliverClose(c)
	}
}

// Subscription is a private, ordered queue of values produced after it was
// created, plus the channel's terminal marker once the channel closes.
type Subscription[T any, C any] struct {
	ch *Channel[T, C]
	id uint64

	mu          sync.Mutex
	buf         []T
	closed      bool
	closeVal    C
	pending     func(item[T, C])
	sendWaiters []func()
}

// Next returns an Operation yielding the next value, or the terminal Item
// once the channel has closed and every buffered value has been consumed.
func (s *Subscription[T, C]) Next() Operation[Item[T, C]] {
	return func(c *Control) (Item[T, C], error) {
		var zero Item[T, C]
		v, err := c.Suspend(func(resume func(any, error)) {
			s.mu.Lock()
			if len(s.buf) > 0 {
				val := s.buf[0]
				s.buf = s.buf[1:]
				var waiter func()
				if len(s.sendWaiters) > 0 {
					waiter = s.sendWaiters[0]
					s.sendWaiters = s.sendWaiters[1:]
				}
				s.mu.Unlock()
				if waiter != nil {
					waiter()
				}
				resume(item[T, C]{value: val}, nil)
				return
			}
			if s.closed {
				cv := s.closeVal
				s.mu.Unlock()
				resume(item[T, C]{done: true, close: cv}, nil)
				return
			}
			s.pending = func(it item[T, C]) { resume(it, nil) }
			s.mu.Unlock()
		})
		if err != nil {
			return zero, err
		}
		it := v.(item[T, C])
		return Item[T, C]{Value: it.value, Done: it.done, Close: it.close}, nil
	}
}

func (s *Subscription[T, C]) deliverUnbounded(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.pending != nil {
		p := s.pending
		s.pending = nil
		s.mu.Unlock()
		p(item[T, C]{value: v})
		return
	}
	s.buf = append(s.buf, v)
	s.mu.Unlock()
}

func (s *Subscription[T, C]) deliverBounded(v T, capacity int, done func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done()
		return
	}
	if s.pending != nil {
		p := s.pending
		s.pending = nil
		s.mu.Unlock()
		p(item[T, C]{value: v})
		done()
		return
	}
	if capacity > 0 && len(s.buf) >= capacity {
		s.sendWaiters = append(s.sendWaiters, func() { s.deliverBounded(v, capacity, done) })
		s.mu.Unlock()
		return
	}
	s.buf = append(s.buf, v)
	s.mu.Unlock()
	done()
}

func (s *Subscription[T, C]) deliverClose(c C) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.closeVal = c
	if s.pending != nil && len(s.buf) == 0 {
		p := s.pending
		s.pending = nil
		s.mu.Unlock()
		p(item[T, C]{done: true, close: c})
		return
	}
	s.mu.Unlock()
}

// Signal is a non-operation façade over a Channel's Port, meant for
// bridging host event systems (callbacks, OS signals) into the operation
// tree. Send/Close are plain callables safe to invoke from any goroutine.
type Signal[T any, C any] struct {
	port   *Port[T, C]
	stream Operation[*Subscription[T, C]]
}

// CreateSignal allocates a Signal backed by a fresh Channel.
func CreateSignal[T any, C any](capacity int) Operation[*Signal[T, C]] {
	return func(c *Control) (*Signal[T, C], error) {
		port, stream := CreateChannel[T, C](capacity)
		return &Signal[T, C]{port: port, stream: stream}, nil
	}
}

// Send delivers v to every current subscriber. Safe to call from outside
// the operation tree entirely.
func (s *Signal[T, C]) Send(v T) { s.port.Send(v) }

// Close delivers the terminal marker c to every current subscriber.
func (s *Signal[T, C]) Close(c C) { s.port.Close(c) }

// Stream returns the Resource operation that subscribes to this Signal.
func (s *Signal[T, C]) Stream() Operation[*Subscription[T, C]] { return s.stream }
