// Package progress carries transfer progress out of the core: typed
// snapshots, pluggable sinks, and a smoothed rate meter.
package progress

import (
	"errors"
	"sync"
)

// ErrSinkClosed reports a publish against a sink that no longer accepts
// snapshots. Publishers treat it as a signal to stop, never as a reason
// to abort the transfer itself.
var ErrSinkClosed = errors.New("progress: sink closed")

// FileTransfer is the per-file progress record. Transferred never
// decreases and never exceeds Total.
type FileTransfer struct {
	Name        string `json:"name"`
	Transferred uint64 `json:"transferred"`
	Total       uint64 `json:"total"`
}

// Snapshot is a point-in-time view of a whole transfer. Files keeps the
// collection order; the aggregate fields are precomputed so consumers
// never walk the slice.
type Snapshot struct {
	Files       []FileTransfer `json:"files"`
	Transferred uint64         `json:"transferred"`
	Total       uint64         `json:"total"`
	Done        bool           `json:"done"`
}

// MakeSnapshot copies files and fills in the aggregate byte counts.
func MakeSnapshot(files []FileTransfer, done bool) Snapshot {
	s := Snapshot{Files: make([]FileTransfer, len(files)), Done: done}
	copy(s.Files, files)
	for _, f := range files {
		s.Transferred += f.Transferred
		s.Total += f.Total
	}
	return s
}

// Sink receives progress snapshots. Implementations must not block the
// caller for long; the transfer loop publishes from its hot path.
type Sink interface {
	Publish(Snapshot) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Snapshot) error

func (f SinkFunc) Publish(s Snapshot) error { return f(s) }

// ChanSink buffers snapshots on a channel. Publish never blocks: when
// the buffer is full the oldest snapshot is dropped, so a slow consumer
// always sees the freshest state.
type ChanSink struct {
	mu     sync.Mutex
	ch     chan Snapshot
	closed bool
}

// NewChanSink returns a sink with the given buffer size (minimum 1).
func NewChanSink(buffer int) *ChanSink {
	if buffer < 1 {
		buffer = 1
	}
	return &ChanSink{ch: make(chan Snapshot, buffer)}
}

// C returns the receive side of the sink.
func (c *ChanSink) C() <-chan Snapshot { return c.ch }

// Publish enqueues a snapshot, evicting the oldest one when full.
func (c *ChanSink) Publish(s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSinkClosed
	}
	for {
		select {
		case c.ch <- s:
			return nil
		default:
		}
		select {
		case <-c.ch:
		default:
		}
	}
}

// Close stops the sink and closes the channel. Safe to call twice.
func (c *ChanSink) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// Multi fans a snapshot out to several sinks. Every sink sees every
// snapshot; errors are joined rather than short-circuiting.
type Multi struct {
	sinks []Sink
}

// NewMulti returns a sink that forwards to all of the given sinks.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: append([]Sink(nil), sinks...)}
}

func (m *Multi) Publish(s Snapshot) error {
	var errs []error
	for _, sink := range m.sinks {
		if err := sink.Publish(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
