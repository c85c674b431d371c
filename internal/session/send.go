package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/internal/progress"
	"github.com/arkdrop/arkdrop/internal/reconcile"
	"github.com/arkdrop/arkdrop/pkg/collection"
	"github.com/arkdrop/arkdrop/pkg/ticket"
)

// Send shares a set of local files and hands out a ticket. A Send is
// single-use.
type Send struct {
	lifecycle
	eng  engine.Engine
	sink progress.Sink
	log  *slog.Logger

	mu        sync.Mutex
	stop      func()
	watch     *reconcile.Reconciler
	stopWatch context.CancelFunc
}

// Offer is the result of a successful Start: everything the sender
// needs to show the user and everything the receiver needs to connect.
type Offer struct {
	Ticket     ticket.Ticket
	Root       collection.Hash
	Collection collection.Collection
}

// NewSend returns a send transfer over the given engine. Snapshots of
// what has been served to peers go to sink, which may be nil.
func NewSend(eng engine.Engine, sink progress.Sink, log *slog.Logger) *Send {
	if log == nil {
		log = slog.Default()
	}
	return &Send{lifecycle: newLifecycle(), eng: eng, sink: sink, log: log}
}

// Start validates and imports the files, builds the collection, and
// starts sharing it. Validation happens up front so nothing is exposed
// when any path is unusable.
func (s *Send) Start(ctx context.Context, paths []string) (Offer, error) {
	s.advance(StateNegotiating)

	if len(paths) == 0 {
		return Offer{}, s.fail(ErrNoFiles)
	}
	names := make(map[string]bool, len(paths))
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return Offer{}, s.fail(fmt.Errorf("%w: stat %s: %w", ErrImport, path, err))
		}
		if !info.Mode().IsRegular() {
			return Offer{}, s.fail(fmt.Errorf("%w: %s", ErrNotRegular, path))
		}
		name := filepath.Base(path)
		if names[name] {
			return Offer{}, s.fail(fmt.Errorf("%w: %s", ErrDuplicateName, name))
		}
		names[name] = true
	}

	items := make([]collection.Item, 0, len(paths))
	for _, path := range paths {
		h, err := s.eng.Import(ctx, path)
		if err != nil {
			return Offer{}, s.fail(fmt.Errorf("%w: %s: %w", ErrImport, path, err))
		}
		info, err := os.Stat(path)
		if err != nil {
			return Offer{}, s.fail(fmt.Errorf("%w: stat %s: %w", ErrImport, path, err))
		}
		items = append(items, collection.Item{
			Name: filepath.Base(path),
			Hash: h,
			Size: uint64(info.Size()),
		})
		s.log.Debug("file imported", "name", filepath.Base(path), "hash", h, "size", info.Size())
	}

	root, err := s.eng.CreateCollection(ctx, items)
	if err != nil {
		return Offer{}, s.fail(fmt.Errorf("create collection: %w", err))
	}
	share, err := s.eng.ShareCollection(ctx, root)
	if err != nil {
		return Offer{}, s.fail(fmt.Errorf("share collection: %w", err))
	}

	s.mu.Lock()
	s.stop = share.Stop
	if share.Events != nil {
		watchCtx, cancel := context.WithCancel(context.Background())
		s.watch = reconcile.New(s.eng, s.sink, s.log)
		s.stopWatch = cancel
		go s.watchServe(watchCtx, share.Events)
	}
	s.mu.Unlock()

	if !s.advance(StateActive) {
		// Cancelled while importing.
		s.stopSharing()
		return Offer{}, ErrCancelled
	}

	col := collection.New(items)
	s.log.Info("sharing collection", "root", root, "files", col.Len(), "bytes", col.TotalBytes())
	return Offer{
		Ticket:     ticket.Ticket{Locator: share.Locator, Confirmation: share.Confirmation},
		Root:       root,
		Collection: col,
	}, nil
}

// watchServe folds the engine's serve feed into progress snapshots for
// the sender's sink. Serving continues after the feed reports
// completion; only Cancel or Complete stops the share.
func (s *Send) watchServe(ctx context.Context, events <-chan engine.Event) {
	if _, err := s.watch.Run(ctx, events); err != nil {
		if !errors.Is(err, context.Canceled) {
			s.log.Debug("serve feed ended", "err", err)
		}
		return
	}
	s.log.Info("collection fully served")
}

// Snapshot reports how much of the collection has been served so far.
// Zero before Start, and when the engine has no serve feed.
func (s *Send) Snapshot() progress.Snapshot {
	s.mu.Lock()
	w := s.watch
	s.mu.Unlock()
	if w == nil {
		return progress.Snapshot{}
	}
	return w.Snapshot()
}

// Cancel stops sharing. Safe to call at any time, any number of times.
func (s *Send) Cancel() {
	if s.advance(StateCancelled) {
		s.stopSharing()
		s.log.Info("share cancelled")
	}
}

// Complete marks the send finished and stops sharing.
func (s *Send) Complete() {
	if s.advance(StateCompleted) {
		s.stopSharing()
	}
}

func (s *Send) stopSharing() {
	s.mu.Lock()
	stop := s.stop
	s.stop = nil
	stopWatch := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()
	// The watcher stops before the feed closes, so a cancelled share
	// never reads as a completed one.
	if stopWatch != nil {
		stopWatch()
	}
	if stop != nil {
		stop()
	}
}

func (s *Send) fail(err error) error {
	s.advance(StateFailed)
	return err
}
