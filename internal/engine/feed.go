package engine

import "sync"

// EventFeed is the non-blocking publisher behind Share.Events. Serving
// must never stall on a slow observer, so emissions that would block
// are dropped; consumers recover from gaps through the store once the
// feed closes.
type EventFeed struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// NewEventFeed returns a feed buffering up to buffer events.
func NewEventFeed(buffer int) *EventFeed {
	if buffer < 1 {
		buffer = 1
	}
	return &EventFeed{ch: make(chan Event, buffer)}
}

// Events is the consumer side of the feed. Closed by Close.
func (f *EventFeed) Events() <-chan Event {
	return f.ch
}

// Emit publishes ev unless the feed is closed or full.
func (f *EventFeed) Emit(ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- ev:
	default:
	}
}

// Close ends the feed. Idempotent; Emit after Close is a no-op.
func (f *EventFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
}
