package logstream

import (
	"sync"
)

// subscription is a per-subscriber queue drained by its own goroutine, so a
// slow consumer never blocks the producer and delivery order is preserved.
type subscription struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	closed bool
}

func newSubscription(replay []Event) *subscription {
	sub := &subscription{queue: replay}
	sub.cond = sync.NewCond(&sub.mu)
	return sub
}

func (s *subscription) push(ev Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

// next blocks until an event is queued or the subscription is closed.
func (s *subscription) next() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.queue) == 0 {
		return Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

// Store buffers events in observed order and fans them out to live
// subscribers. New subscribers first receive the full history, then live
// events, so a log viewer attaching mid-run sees a complete stream.
type Store struct {
	mu      sync.Mutex
	history []Event
	subs    map[int]*subscription
	nextID  int
	closed  bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{subs: map[int]*subscription{}}
}

// Write appends an event and forwards it to all live subscribers. It never
// fails; the error return satisfies Sink.
func (s *Store) Write(event Event) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.history = append(s.history, event)
	subs := make([]*subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.push(event)
	}
	return nil
}

// Push is shorthand for Write, for callers that do not care about Sink.
func (s *Store) Push(event Event) {
	_ = s.Write(event)
}

// History returns a copy of all events observed so far.
func (s *Store) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

// Subscribe returns a channel that replays history and then delivers live
// events in order. The returned cancel func releases the subscription; the
// channel is closed after the store closes or the subscription is
// cancelled, once all queued events have been delivered.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	replay := make([]Event, len(s.history))
	copy(replay, s.history)
	sub := newSubscription(replay)
	if s.closed {
		sub.close()
		s.mu.Unlock()

		out := make(chan Event)
		go drain(sub, out)
		return out, func() {}
	}

	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	out := make(chan Event)
	go drain(sub, out)
	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		sub.close()
	}
	return out, cancel
}

func drain(sub *subscription, out chan<- Event) {
	for {
		ev, ok := sub.next()
		if !ok {
			close(out)
			return
		}
		out <- ev
	}
}

// Close marks the store finished and releases all subscribers. Events
// written after Close are discarded; queued events still drain.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := make([]*subscription, 0, len(s.subs))
	for id, sub := range s.subs {
		delete(s.subs, id)
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}
