// Package reconcile folds an engine's download event stream into a
// consistent per-file progress picture. It owns the name table derived
// from the collection description and enforces the event-order contract.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/internal/progress"
	"github.com/arkdrop/arkdrop/pkg/collection"
)

// ErrProtocolViolation reports an event stream that breaks the ordering
// contract, such as a file announcement before the collection
// description is available.
var ErrProtocolViolation = errors.New("reconcile: protocol violation")

// ErrIncomplete reports a stream that ended before the collection could
// be confirmed complete.
var ErrIncomplete = errors.New("reconcile: transfer ended before completion")

// Source reads blobs the engine has already fetched locally.
type Source interface {
	ReadToBytes(ctx context.Context, h collection.Hash) ([]byte, error)
	GetCollection(ctx context.Context, root collection.Hash) (collection.Collection, error)
	Has(h collection.Hash) bool
}

// Reconciler consumes one download's events and publishes snapshots to
// a sink. A reconciler is single-use: make a new one per transfer.
type Reconciler struct {
	source Source
	sink   progress.Sink
	log    *slog.Logger

	mu       sync.Mutex
	root     collection.Hash
	haveSeq  bool
	nameFor  map[collection.Hash]string
	files    []progress.FileTransfer
	byID     map[uint64]int
	byHash   map[collection.Hash]int
	done     bool
	sinkLost error
}

// New returns a reconciler reading description blobs from source and
// publishing snapshots to sink. sink may be nil.
func New(source Source, sink progress.Sink, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		source:  source,
		sink:    sink,
		log:     log,
		nameFor: make(map[collection.Hash]string),
		byID:    make(map[uint64]int),
		byHash:  make(map[collection.Hash]int),
	}
}

// Snapshot returns the current progress picture. Safe to call from
// other goroutines while Run is consuming events.
func (r *Reconciler) Snapshot() progress.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return progress.MakeSnapshot(r.files, r.done)
}

// SinkLost reports the first snapshot publish failure, if any. A dead
// sink never aborts the transfer; callers check this after Run.
func (r *Reconciler) SinkLost() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sinkLost
}

// Run consumes events until completion, stream end, or a fatal error.
// It returns the completed collection listing on success.
func (r *Reconciler) Run(ctx context.Context, events <-chan engine.Event) (collection.Collection, error) {
	for {
		select {
		case <-ctx.Done():
			return collection.Collection{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return r.finishEarly(ctx)
			}
			col, terminal, err := r.apply(ctx, ev)
			if err != nil {
				return collection.Collection{}, err
			}
			if terminal {
				return col, nil
			}
		}
	}
}

func (r *Reconciler) apply(ctx context.Context, ev engine.Event) (collection.Collection, bool, error) {
	switch ev := ev.(type) {
	case engine.Connected:
		r.log.Debug("connected to sender", "remote", ev.Remote)

	case engine.HashSeqFound:
		if err := r.resolveNames(ctx, ev.Hash); err != nil {
			return collection.Collection{}, false, err
		}

	case engine.ItemFound:
		if err := r.recordRemote(ev); err != nil {
			return collection.Collection{}, false, err
		}
		r.publish()

	case engine.Progress:
		if r.advance(ev.ID, ev.Offset) {
			r.publish()
		}

	case engine.ItemDone:
		if r.complete(ev.ID) {
			r.publish()
		}

	case engine.LocalFound:
		if err := r.recordLocal(ev); err != nil {
			return collection.Collection{}, false, err
		}
		r.publish()

	case engine.AllDone:
		col, err := r.finish(ctx)
		if err != nil {
			return collection.Collection{}, false, err
		}
		return col, true, nil

	default:
		// Unknown variants are chatter, not errors. No snapshot.
		r.log.Debug("ignoring event", "type", fmt.Sprintf("%T", ev))
	}
	return collection.Collection{}, false, nil
}

// resolveNames loads the hash sequence and collection description and
// builds the hash-to-name table.
func (r *Reconciler) resolveNames(ctx context.Context, root collection.Hash) error {
	seqBytes, err := r.source.ReadToBytes(ctx, root)
	if err != nil {
		return fmt.Errorf("read hash sequence: %w", err)
	}
	seq, err := collection.ParseHashSeq(seqBytes)
	if err != nil {
		return fmt.Errorf("parse hash sequence: %w", err)
	}
	metaBytes, err := r.source.ReadToBytes(ctx, seq[0])
	if err != nil {
		return fmt.Errorf("read collection description: %w", err)
	}
	meta, err := collection.ParseMetadata(metaBytes)
	if err != nil {
		return fmt.Errorf("parse collection description: %w", err)
	}
	if err := meta.ValidateHashSeqLen(len(seq)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.root = root
	for i, h := range seq[1:] {
		if _, dup := r.nameFor[h]; !dup {
			r.nameFor[h] = meta.Names[i]
		}
	}
	r.haveSeq = true
	r.log.Debug("collection resolved", "files", len(seq)-1)
	return nil
}

func (r *Reconciler) recordRemote(ev engine.ItemFound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveSeq {
		return fmt.Errorf("%w: file announced before the collection description", ErrProtocolViolation)
	}
	name, ok := r.nameFor[ev.Hash]
	if !ok {
		return fmt.Errorf("%w: file %s is not part of the collection", ErrProtocolViolation, ev.Hash)
	}
	idx, seen := r.byHash[ev.Hash]
	if !seen {
		idx = len(r.files)
		r.files = append(r.files, progress.FileTransfer{Name: name, Total: ev.Size})
		r.byHash[ev.Hash] = idx
	}
	r.byID[ev.ID] = idx
	return nil
}

func (r *Reconciler) recordLocal(ev engine.LocalFound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.haveSeq {
		return fmt.Errorf("%w: file announced before the collection description", ErrProtocolViolation)
	}
	name, ok := r.nameFor[ev.Hash]
	if !ok {
		return fmt.Errorf("%w: file %s is not part of the collection", ErrProtocolViolation, ev.Hash)
	}
	if idx, seen := r.byHash[ev.Hash]; seen {
		r.files[idx].Total = ev.Size
		r.files[idx].Transferred = ev.Size
		return nil
	}
	r.byHash[ev.Hash] = len(r.files)
	r.files = append(r.files, progress.FileTransfer{Name: name, Transferred: ev.Size, Total: ev.Size})
	return nil
}

// advance applies a progress offset. Offsets for unknown transfer IDs
// and offsets that would move backwards are dropped.
func (r *Reconciler) advance(id uint64, offset uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	if !ok {
		return false
	}
	f := &r.files[idx]
	if offset > f.Total {
		offset = f.Total
	}
	if offset <= f.Transferred {
		return false
	}
	f.Transferred = offset
	return true
}

func (r *Reconciler) complete(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.byID[id]
	if !ok {
		return false
	}
	r.files[idx].Transferred = r.files[idx].Total
	return true
}

// finish rebuilds the final picture from the local store, which is
// authoritative once the download reports completion.
func (r *Reconciler) finish(ctx context.Context) (collection.Collection, error) {
	r.mu.Lock()
	root := r.root
	haveSeq := r.haveSeq
	r.mu.Unlock()
	if !haveSeq {
		return collection.Collection{}, fmt.Errorf("%w: completion before the collection description", ErrProtocolViolation)
	}

	col, err := r.source.GetCollection(ctx, root)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("read completed collection: %w", err)
	}

	r.mu.Lock()
	r.files = r.files[:0]
	for _, item := range col.Items() {
		r.files = append(r.files, progress.FileTransfer{Name: item.Name, Transferred: item.Size, Total: item.Size})
	}
	r.done = true
	r.mu.Unlock()
	r.publish()
	return col, nil
}

// finishEarly handles the stream closing without a completion event.
// When every blob already landed the transfer still succeeded; the
// local store decides.
func (r *Reconciler) finishEarly(ctx context.Context) (collection.Collection, error) {
	r.mu.Lock()
	haveSeq := r.haveSeq
	var missing []collection.Hash
	for h := range r.nameFor {
		if !r.source.Has(h) {
			missing = append(missing, h)
		}
	}
	r.mu.Unlock()
	if !haveSeq {
		return collection.Collection{}, ErrIncomplete
	}
	if len(missing) > 0 {
		return collection.Collection{}, fmt.Errorf("%w: %d of %d files missing from the local store",
			ErrIncomplete, len(missing), len(r.nameFor))
	}
	col, err := r.finish(ctx)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("%w: %v", ErrIncomplete, err)
	}
	r.log.Debug("event stream ended early, collection verified complete")
	return col, nil
}

func (r *Reconciler) publish() {
	if r.sink == nil {
		return
	}
	r.mu.Lock()
	snap := progress.MakeSnapshot(r.files, r.done)
	lost := r.sinkLost != nil
	r.mu.Unlock()
	if lost {
		return
	}
	if err := r.sink.Publish(snap); err != nil {
		r.mu.Lock()
		r.sinkLost = err
		r.mu.Unlock()
		r.log.Warn("progress sink lost", "err", err)
	}
}
