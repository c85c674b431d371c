package engine

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"

	"github.com/arkdrop/arkdrop/pkg/collection"
)

const mockLocatorPrefix = "mock-"

// Mock is an in-memory Engine for testing. NewMockPair links a sender and a
// receiver so the receiver's downloads replay the sender's store as an event
// stream, chunked to exercise interleaved progress handling.
type Mock struct {
	store  *Store
	remote *Store // sender's store, set on the receiver of a pair

	mu      sync.Mutex
	shared  map[collection.Hash]uint8 // root -> confirmation
	stopped map[collection.Hash]bool
	feeds   map[collection.Hash]*EventFeed // sender-side serve feeds

	// ChunkSize controls how many bytes each synthetic Progress tick
	// covers. Zero means one tick per blob.
	ChunkSize uint64
	// OmitAllDone drops the terminal event to exercise the early-closure
	// fallback path.
	OmitAllDone bool
	// OmitItemFound drops ItemFound for every item, producing unknown-ID
	// Progress/ItemDone events.
	OmitItemFound bool
}

// NewMock returns a standalone mock engine over its own store.
func NewMock() *Mock {
	return &Mock{
		store:   NewStore(),
		shared:  make(map[collection.Hash]uint8),
		stopped: make(map[collection.Hash]bool),
		feeds:   make(map[collection.Hash]*EventFeed),
	}
}

// NewMockPair returns a linked sender and receiver. Content shared by the
// sender is downloadable by the receiver.
func NewMockPair() (*Mock, *Mock) {
	sender := NewMock()
	receiver := NewMock()
	receiver.remote = sender.store
	receiver.shared = sender.shared
	receiver.stopped = sender.stopped
	receiver.feeds = sender.feeds
	return sender, receiver
}

// Store exposes the mock's local store for test setup and assertions.
func (m *Mock) Store() *Store {
	return m.store
}

var _ Engine = (*Mock)(nil)

func (m *Mock) Import(ctx context.Context, path string) (collection.Hash, error) {
	return m.store.ImportFile(ctx, path)
}

func (m *Mock) CreateCollection(ctx context.Context, items []collection.Item) (collection.Hash, error) {
	if err := ctx.Err(); err != nil {
		return collection.Hash{}, err
	}
	return m.store.CreateCollection(items), nil
}

func (m *Mock) ShareCollection(ctx context.Context, root collection.Hash) (Share, error) {
	if err := ctx.Err(); err != nil {
		return Share{}, err
	}
	if !m.store.Has(root) {
		return Share{}, fmt.Errorf("%w: %s", ErrNotFound, root)
	}

	var confBuf [1]byte
	rand.Read(confBuf[:])

	feed := NewEventFeed(64)
	m.mu.Lock()
	m.shared[root] = confBuf[0]
	m.stopped[root] = false
	m.feeds[root] = feed
	m.mu.Unlock()
	feed.Emit(HashSeqFound{Hash: root})

	return Share{
		Locator:      mockLocatorPrefix + root.String(),
		Confirmation: confBuf[0],
		Events:       feed.Events(),
		Stop: func() {
			m.mu.Lock()
			m.stopped[root] = true
			m.mu.Unlock()
			feed.Close()
		},
	}, nil
}

// ParseMockLocator extracts the collection hash from a mock locator.
func ParseMockLocator(locator string) (collection.Hash, error) {
	if !strings.HasPrefix(locator, mockLocatorPrefix) {
		return collection.Hash{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, locator)
	}
	return collection.ParseHash(strings.TrimPrefix(locator, mockLocatorPrefix))
}

func (m *Mock) DownloadHashSeq(ctx context.Context, locator string, confirmation uint8) (<-chan Event, error) {
	root, err := ParseMockLocator(locator)
	if err != nil {
		return nil, err
	}
	if m.remote == nil {
		return nil, fmt.Errorf("mock engine has no linked sender")
	}

	m.mu.Lock()
	want, ok := m.shared[root]
	stopped := m.stopped[root]
	m.mu.Unlock()
	if !ok || stopped {
		return nil, fmt.Errorf("%w: collection is not being shared", ErrNotFound)
	}
	if want != confirmation {
		return nil, ErrBadConfirmation
	}

	events := make(chan Event, 16)
	go m.runDownload(ctx, root, events)
	return events, nil
}

func (m *Mock) runDownload(ctx context.Context, root collection.Hash, events chan<- Event) {
	defer close(events)

	m.mu.Lock()
	feed := m.feeds[root]
	m.mu.Unlock()

	// Every event delivered to the receiver is mirrored onto the
	// sender's serve feed, matching what a real transport observes
	// from its side of the transfer.
	emit := func(ev Event) bool {
		select {
		case events <- ev:
			if feed != nil {
				feed.Emit(ev)
			}
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(Connected{Remote: "mock"}) {
		return
	}

	seqBytes, err := m.remote.ReadToBytes(root)
	if err != nil {
		return
	}
	seq, err := collection.ParseHashSeq(seqBytes)
	if err != nil {
		return
	}
	metaBytes, err := m.remote.ReadToBytes(seq[0])
	if err != nil {
		return
	}

	// Both description blobs land before HashSeqFound so consumers can
	// resolve names as soon as the event arrives.
	m.store.Put(seqBytes)
	m.store.Put(metaBytes)
	if !emit(HashSeqFound{Hash: root}) {
		return
	}

	for i, h := range seq[1:] {
		id := uint64(i + 1)
		if m.store.Has(h) {
			size, _ := m.store.Size(h)
			if !emit(LocalFound{Hash: h, Size: size}) {
				return
			}
			continue
		}

		data, err := m.remote.ReadToBytes(h)
		if err != nil {
			return
		}
		size := uint64(len(data))
		if !m.OmitItemFound {
			if !emit(ItemFound{ID: id, Hash: h, Size: size}) {
				return
			}
		}

		step := m.ChunkSize
		if step == 0 {
			step = size
		}
		for off := step; off < size; off += step {
			if !emit(Progress{ID: id, Offset: off}) {
				return
			}
		}
		m.store.Put(data)
		if !emit(ItemDone{ID: id}) {
			return
		}
	}

	if !m.OmitAllDone {
		emit(AllDone{})
	}
}

// Has reports whether blob h is in the mock's local store.
func (m *Mock) Has(h collection.Hash) bool {
	return m.store.Has(h)
}

func (m *Mock) ReadToBytes(ctx context.Context, h collection.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.store.ReadToBytes(h)
}

func (m *Mock) GetCollection(ctx context.Context, root collection.Hash) (collection.Collection, error) {
	if err := ctx.Err(); err != nil {
		return collection.Collection{}, err
	}
	return m.store.GetCollection(root)
}
