// broadcast/broadcast.go
package broadcast

import (
	"sync"
)

// Hub is an ordered multicast stream. Publish never blocks: every
// subscriber owns an unbounded FIFO drained by its own goroutine, so a slow
// or departed subscriber cannot hold up the publisher or its peers.
type Hub[T any] struct {
	subs  map[uint64]*Subscription[T]
	next  uint64
	done  bool
	err   error
	mutex sync.Mutex
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[uint64]*Subscription[T])}
}

// Subscribe registers a new subscriber. Only values published after this
// call are delivered. Subscribing to a finished hub yields a subscription
// whose channel is already closed.
func (h *Hub[T]) Subscribe() *Subscription[T] {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	s := newSubscription(h, h.next)
	h.next++
	if h.done {
		s.finish(h.err)
	} else {
		h.subs[s.id] = s
	}
	go s.pump()
	return s
}

// Publish enqueues v for every current subscriber. It reports false once
// the hub has completed or failed.
func (h *Hub[T]) Publish(v T) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.done {
		return false
	}
	for _, s := range h.subs {
		s.enqueue(v)
	}
	return true
}

// Complete ends the stream. Subscribers receive what is already queued and
// then see their channel close.
func (h *Hub[T]) Complete() {
	h.end(nil)
}

// Fail ends the stream with err, which subscribers read from Err once their
// channel closes.
func (h *Hub[T]) Fail(err error) {
	h.end(err)
}

func (h *Hub[T]) end(err error) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.done {
		return
	}
	h.done = true
	h.err = err
	for id, s := range h.subs {
		s.finish(err)
		delete(h.subs, id)
	}
}

// Done reports whether the stream has ended.
func (h *Hub[T]) Done() bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.done
}

// Subscribers is the number of live subscriptions.
func (h *Hub[T]) Subscribers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.subs)
}

func (h *Hub[T]) remove(id uint64) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.subs, id)
}

// Subscription is one subscriber's view of a Hub.
type Subscription[T any] struct {
	hub      *Hub[T]
	id       uint64
	out      chan T
	notify   chan struct{}
	closed   chan struct{}
	once     sync.Once
	mutex    sync.Mutex
	queue    []T
	finished bool
	err      error
}

func newSubscription[T any](h *Hub[T], id uint64) *Subscription[T] {
	return &Subscription[T]{
		hub:    h,
		id:     id,
		out:    make(chan T),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Updates delivers published values in order. It is closed when the hub
// ends or the subscription is closed.
func (s *Subscription[T]) Updates() <-chan T {
	return s.out
}

// Err is the failure the hub ended with, if any. It is meaningful once
// Updates has been closed.
func (s *Subscription[T]) Err() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.err
}

// Close detaches the subscriber and drops anything still queued.
func (s *Subscription[T]) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.hub.remove(s.id)
	})
}

func (s *Subscription[T]) enqueue(v T) {
	s.mutex.Lock()
	s.queue = append(s.queue, v)
	s.mutex.Unlock()
	s.wake()
}

func (s *Subscription[T]) finish(err error) {
	s.mutex.Lock()
	s.finished = true
	s.err = err
	s.mutex.Unlock()
	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *Subscription[T]) pump() {
	defer close(s.out)

	for {
		s.mutex.Lock()
		for len(s.queue) == 0 {
			if s.finished {
				s.mutex.Unlock()
				return
			}
			s.mutex.Unlock()
			select {
			case <-s.notify:
			case <-s.closed:
				return
			}
			s.mutex.Lock()
		}
		var zero T
		v := s.queue[0]
		s.queue[0] = zero
		s.queue = s.queue[1:]
		s.mutex.Unlock()

		select {
		case s.out <- v:
		case <-s.closed:
			return
		}
	}
}
