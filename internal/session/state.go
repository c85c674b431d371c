// Package session drives send and receive transfers end to end:
// validation, engine calls, progress reconciliation, output writing,
// and cooperative cancellation.
package session

import (
	"errors"
	"sync/atomic"
)

// State is the lifecycle position of a transfer. Transitions only move
// forward; a terminal state never changes.
type State int32

const (
	StateCreated State = iota
	StateNegotiating
	StateActive
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateNegotiating:
		return "negotiating"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

var (
	// ErrCancelled reports a transfer stopped by its own Cancel.
	ErrCancelled = errors.New("session: transfer cancelled")
	// ErrNoFiles reports a send attempt with an empty file list.
	ErrNoFiles = errors.New("session: no files to send")
	// ErrNotRegular reports a path that is not a regular file.
	ErrNotRegular = errors.New("session: not a regular file")
	// ErrDuplicateName reports two paths sharing one file name.
	ErrDuplicateName = errors.New("session: duplicate file name")
	// ErrBadName reports a received file name that would escape the
	// output directory.
	ErrBadName = errors.New("session: unsafe file name")
	// ErrImport reports a sender-side file access or ingestion failure.
	ErrImport = errors.New("session: import failed")
	// ErrDownload reports a transport or blob read failure while
	// receiving.
	ErrDownload = errors.New("session: download failed")
)

// lifecycle holds the monotonic state machine shared by both transfer
// directions.
type lifecycle struct {
	state atomic.Int32
	done  chan struct{}
}

func newLifecycle() lifecycle {
	return lifecycle{done: make(chan struct{})}
}

// advance moves the state forward. Attempts to move backwards or out of
// a terminal state are ignored, so late goroutines cannot resurrect a
// finished transfer.
func (l *lifecycle) advance(to State) bool {
	for {
		cur := State(l.state.Load())
		if cur.Terminal() || to <= cur {
			return false
		}
		if l.state.CompareAndSwap(int32(cur), int32(to)) {
			if to.Terminal() {
				close(l.done)
			}
			return true
		}
	}
}

// State returns the current lifecycle position.
func (l *lifecycle) State() State {
	return State(l.state.Load())
}

// IsFinished reports whether the transfer reached a terminal state.
func (l *lifecycle) IsFinished() bool {
	return l.State().Terminal()
}

// IsCancelled reports whether the transfer ended by cancellation.
func (l *lifecycle) IsCancelled() bool {
	return l.State() == StateCancelled
}

// Done is closed when the transfer reaches a terminal state.
func (l *lifecycle) Done() <-chan struct{} {
	return l.done
}
