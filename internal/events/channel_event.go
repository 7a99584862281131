package events

import "sync"

// ChannelEvent fans a value out to registered channels. Sends never block:
// a listener with a full channel misses that event. When replayLast is set,
// a newly registered listener immediately receives the most recent value,
// which is how late-constructed UI widgets pick up the current ride state.
type ChannelEvent[T any] struct {
	mu         sync.RWMutex
	listeners  map[uint64]chan<- T
	nextID     uint64
	replayLast bool
	last       *T
}

func NewChannelEvent[T any](replayLast bool) *ChannelEvent[T] {
	return &ChannelEvent[T]{
		listeners:  make(map[uint64]chan<- T),
		replayLast: replayLast,
	}
}

// Listen registers ch and returns a deregistration function.
func (e *ChannelEvent[T]) Listen(ch chan<- T) func() {
	if ch == nil {
		panic("events: listener channel cannot be nil")
	}

	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = ch
	var replay *T
	if e.replayLast && e.last != nil {
		v := *e.last
		replay = &v
	}
	e.mu.Unlock()

	if replay != nil {
		select {
		case ch <- *replay:
		default:
		}
	}

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Notify sends value to every registered channel without blocking.
func (e *ChannelEvent[T]) Notify(value T) {
	e.mu.Lock()
	if e.replayLast {
		if e.last == nil {
			e.last = new(T)
		}
		*e.last = value
	}
	targets := make([]chan<- T, 0, len(e.listeners))
	for _, ch := range e.listeners {
		targets = append(targets, ch)
	}
	e.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- value:
		default:
		}
	}
}

// ListenerCount reports the number of registered listeners.
func (e *ChannelEvent[T]) ListenerCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}
