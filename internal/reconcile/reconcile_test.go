package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/internal/progress"
	"github.com/arkdrop/arkdrop/pkg/collection"
)

// storeSource adapts a bare store to the Source interface.
type storeSource struct {
	s *engine.Store
}

func (ss storeSource) ReadToBytes(ctx context.Context, h collection.Hash) ([]byte, error) {
	return ss.s.ReadToBytes(h)
}

func (ss storeSource) GetCollection(ctx context.Context, root collection.Hash) (collection.Collection, error) {
	return ss.s.GetCollection(root)
}

func (ss storeSource) Has(h collection.Hash) bool {
	return ss.s.Has(h)
}

type fixture struct {
	source storeSource
	root   collection.Hash
	hashes []collection.Hash
	sizes  []uint64
}

// newFixture builds a store holding a complete collection, as the local
// store looks after every blob has landed.
func newFixture(t *testing.T, contents map[string][]byte) fixture {
	t.Helper()
	store := engine.NewStore()
	var items []collection.Item
	var hashes []collection.Hash
	var sizes []uint64
	for _, name := range sortedKeys(contents) {
		data := contents[name]
		h := store.Put(data)
		items = append(items, collection.Item{Name: name, Hash: h, Size: uint64(len(data))})
		hashes = append(hashes, h)
		sizes = append(sizes, uint64(len(data)))
	}
	root := store.CreateCollection(items)
	return fixture{source: storeSource{store}, root: root, hashes: hashes, sizes: sizes}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			if keys[i] > keys[j] {
				keys[i], keys[j] = keys[j], keys[i]
			}
		}
	}
	return keys
}

func feed(events ...engine.Event) <-chan engine.Event {
	ch := make(chan engine.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

type captureSink struct {
	snaps []progress.Snapshot
}

func (c *captureSink) Publish(s progress.Snapshot) error {
	c.snaps = append(c.snaps, s)
	return nil
}

func TestRunHappyPath(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"report.txt": make([]byte, 100)})
	sink := &captureSink{}
	r := New(fx.source, sink, nil)

	col, err := r.Run(context.Background(), feed(
		engine.Connected{Remote: "peer"},
		engine.HashSeqFound{Hash: fx.root},
		engine.ItemFound{ID: 1, Hash: fx.hashes[0], Size: 100},
		engine.Progress{ID: 1, Offset: 40},
		engine.Progress{ID: 1, Offset: 100},
		engine.ItemDone{ID: 1},
		engine.AllDone{},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if col.Len() != 1 || col.Items()[0].Name != "report.txt" {
		t.Fatalf("unexpected collection %+v", col.Items())
	}

	// Transferred bytes never move backwards across snapshots.
	var last uint64
	for i, s := range sink.snaps {
		if s.Transferred < last {
			t.Fatalf("snapshot %d went backwards: %d < %d", i, s.Transferred, last)
		}
		last = s.Transferred
	}
	final := sink.snaps[len(sink.snaps)-1]
	if !final.Done || final.Transferred != 100 || final.Total != 100 {
		t.Fatalf("final snapshot %+v, want done with 100/100", final)
	}
	if err := r.SinkLost(); err != nil {
		t.Fatalf("healthy sink reported lost: %v", err)
	}
}

func TestRunClampsAndSnapsOffsets(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 50)})
	sink := &captureSink{}
	r := New(fx.source, sink, nil)

	if _, err := r.Run(context.Background(), feed(
		engine.HashSeqFound{Hash: fx.root},
		engine.ItemFound{ID: 1, Hash: fx.hashes[0], Size: 50},
		engine.Progress{ID: 1, Offset: 10_000},
		engine.Progress{ID: 1, Offset: 20},
		engine.ItemDone{ID: 1},
		engine.AllDone{},
	)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for i, s := range sink.snaps {
		if s.Transferred > 50 {
			t.Fatalf("snapshot %d overshot the total: %d", i, s.Transferred)
		}
	}
}

func TestRunIgnoresUnknownIDs(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	sink := &captureSink{}
	r := New(fx.source, sink, nil)

	if _, err := r.Run(context.Background(), feed(
		engine.HashSeqFound{Hash: fx.root},
		engine.Progress{ID: 42, Offset: 5},
		engine.ItemDone{ID: 42},
		engine.AllDone{},
	)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Only the final completion snapshot; unknown IDs publish nothing.
	if len(sink.snaps) != 1 || !sink.snaps[0].Done {
		t.Fatalf("snapshots = %+v, want a single completion snapshot", sink.snaps)
	}
}

func TestRunItemBeforeDescriptionIsFatal(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	r := New(fx.source, nil, nil)

	_, err := r.Run(context.Background(), feed(
		engine.ItemFound{ID: 1, Hash: fx.hashes[0], Size: 10},
	))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestRunForeignHashIsFatal(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	r := New(fx.source, nil, nil)

	_, err := r.Run(context.Background(), feed(
		engine.HashSeqFound{Hash: fx.root},
		engine.ItemFound{ID: 1, Hash: collection.HashOf([]byte("intruder")), Size: 10},
	))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("expected ErrProtocolViolation, got %v", err)
	}
}

func TestRunLocalFilesCountAsComplete(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 30), "b.bin": make([]byte, 70)})
	sink := &captureSink{}
	r := New(fx.source, sink, nil)

	col, err := r.Run(context.Background(), feed(
		engine.HashSeqFound{Hash: fx.root},
		engine.LocalFound{Hash: fx.hashes[0], Size: 30},
		engine.ItemFound{ID: 2, Hash: fx.hashes[1], Size: 70},
		engine.ItemDone{ID: 2},
		engine.AllDone{},
	))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if col.TotalBytes() != 100 {
		t.Fatalf("TotalBytes = %d, want 100", col.TotalBytes())
	}
	first := sink.snaps[0]
	if first.Transferred != 30 || first.Total != 30 {
		t.Fatalf("local file snapshot %+v, want an immediately complete record", first)
	}
}

func TestRunStreamEndFallsBackToStore(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	r := New(fx.source, nil, nil)

	col, err := r.Run(context.Background(), feed(
		engine.HashSeqFound{Hash: fx.root},
		engine.ItemFound{ID: 1, Hash: fx.hashes[0], Size: 10},
		engine.ItemDone{ID: 1},
	))
	if err != nil {
		t.Fatalf("expected store fallback to succeed, got %v", err)
	}
	if col.Len() != 1 {
		t.Fatalf("collection length %d, want 1", col.Len())
	}
}

func TestRunStreamEndWithMissingBlobsFails(t *testing.T) {
	// The store holds the hash sequence and description but none of the
	// file blobs, as after a transfer that died mid-flight.
	store := engine.NewStore()
	var blob [20]byte
	blob[0] = 7
	fileHash := collection.HashOf(blob[:])
	meta := collection.Metadata{Names: []string{"a.bin"}}
	metaHash := store.Put(meta.Encode())
	root := store.Put(collection.EncodeHashSeq([]collection.Hash{metaHash, fileHash}))

	sink := &captureSink{}
	r := New(storeSource{store}, sink, nil)
	_, err := r.Run(context.Background(), feed(
		engine.HashSeqFound{Hash: root},
		engine.ItemFound{ID: 1, Hash: fileHash, Size: 20},
	))
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete for missing blobs, got %v", err)
	}
	for i, snap := range sink.snaps {
		if snap.Done {
			t.Fatalf("snapshot %d reported done on an incomplete transfer", i)
		}
	}
}

func TestRunIgnoresConnectionChatter(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	sink := &captureSink{}
	r := New(fx.source, sink, nil)

	if _, err := r.Run(context.Background(), feed(
		engine.Connected{Remote: "peer"},
		engine.HashSeqFound{Hash: fx.root},
		engine.Disconnected{Remote: "peer"},
		engine.ItemFound{ID: 1, Hash: fx.hashes[0], Size: 10},
		engine.ItemDone{ID: 1},
		engine.AllDone{},
	)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// Chatter never produces snapshots: ItemFound, ItemDone, completion.
	if len(sink.snaps) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(sink.snaps))
	}
}

func TestRunStreamEndWithoutDescriptionFails(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	r := New(fx.source, nil, nil)

	_, err := r.Run(context.Background(), feed(engine.Connected{Remote: "peer"}))
	if !errors.Is(err, ErrIncomplete) {
		t.Fatalf("expected ErrIncomplete, got %v", err)
	}
}

func TestRunSurvivesDeadSink(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	dead := progress.SinkFunc(func(progress.Snapshot) error { return progress.ErrSinkClosed })
	r := New(fx.source, dead, nil)

	if _, err := r.Run(context.Background(), feed(
		engine.HashSeqFound{Hash: fx.root},
		engine.ItemFound{ID: 1, Hash: fx.hashes[0], Size: 10},
		engine.ItemDone{ID: 1},
		engine.AllDone{},
	)); err != nil {
		t.Fatalf("dead sink must not abort the transfer: %v", err)
	}
	if !errors.Is(r.SinkLost(), progress.ErrSinkClosed) {
		t.Fatalf("SinkLost = %v, want ErrSinkClosed", r.SinkLost())
	}
}

func TestRunCancelled(t *testing.T) {
	fx := newFixture(t, map[string][]byte{"a.bin": make([]byte, 10)})
	r := New(fx.source, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	events := make(chan engine.Event)
	if _, err := r.Run(ctx, events); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
