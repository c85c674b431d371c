package engine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"sync"

	"github.com/arkdrop/arkdrop/internal/chunkio"
	"github.com/arkdrop/arkdrop/pkg/collection"
)

// importChunkSize is the claim size used when hashing imported files.
const importChunkSize = 1 << 20

// Store is the thread-safe content-addressed blob store shared by the engine
// implementations. Small blobs (metadata, hash sequences) live in memory;
// imported and downloaded files stay on disk and are referenced by path.
type Store struct {
	mu      sync.RWMutex
	entries map[collection.Hash]storeEntry
}

type storeEntry struct {
	data []byte // in-memory blob; nil for file-backed entries
	path string // file-backed blob
	size uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[collection.Hash]storeEntry)}
}

// Put stores an in-memory blob and returns its content hash.
func (s *Store) Put(data []byte) collection.Hash {
	h := collection.HashOf(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[h]; !ok {
		copied := make([]byte, len(data))
		copy(copied, data)
		s.entries[h] = storeEntry{data: copied, size: uint64(len(copied))}
	}
	return h
}

// ImportFile hashes the file at path chunk by chunk through a claim reader
// and registers it as a file-backed blob.
func (s *Store) ImportFile(ctx context.Context, path string) (collection.Hash, error) {
	r, err := chunkio.OpenClaimReader(path)
	if err != nil {
		return collection.Hash{}, err
	}

	// Claims from a single goroutine arrive in file order, so the digest
	// sees the bytes sequentially.
	hasher := sha256.New()
	for {
		if err := ctx.Err(); err != nil {
			return collection.Hash{}, err
		}
		chunk := r.ClaimChunk(importChunkSize)
		if len(chunk) == 0 {
			break
		}
		hasher.Write(chunk)
	}
	var h collection.Hash
	hasher.Sum(h[:0])

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[h] = storeEntry{path: path, size: uint64(r.Len())}
	return h, nil
}

// LinkFile registers an already-verified on-disk blob under h.
func (s *Store) LinkFile(h collection.Hash, path string, size uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[h] = storeEntry{path: path, size: size}
}

// Has reports whether h is present.
func (s *Store) Has(h collection.Hash) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[h]
	return ok
}

// Size returns the blob length for h.
func (s *Store) Size(h collection.Hash) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[h]
	return e.size, ok
}

// ReadToBytes returns the full contents of blob h.
func (s *Store) ReadToBytes(h collection.Hash) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[h]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	if e.path == "" {
		out := make([]byte, len(e.data))
		copy(out, e.data)
		return out, nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", h, err)
	}
	return data, nil
}

// OpenClaimReader returns a claim reader over a file-backed blob so serving
// code can pull disjoint ranges concurrently. In-memory blobs are served via
// ReadToBytes instead.
func (s *Store) OpenClaimReader(h collection.Hash) (*chunkio.ClaimReader, bool, error) {
	s.mu.RLock()
	e, ok := s.entries[h]
	s.mu.RUnlock()
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	if e.path == "" {
		return nil, false, nil
	}
	r, err := chunkio.OpenClaimReader(e.path)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

// CreateCollection stores metadata and the hash sequence for items and
// returns the collection hash (the hash of the sequence blob).
func (s *Store) CreateCollection(items []collection.Item) collection.Hash {
	col := collection.New(items)
	metaHash := s.Put(col.Metadata().Encode())
	seq := make([]collection.Hash, 0, len(items)+1)
	seq = append(seq, metaHash)
	for _, item := range items {
		seq = append(seq, item.Hash)
	}
	return s.Put(collection.EncodeHashSeq(seq))
}

// GetCollection resolves root into the ordered listing, with sizes filled in
// from the store where the blobs are present.
func (s *Store) GetCollection(root collection.Hash) (collection.Collection, error) {
	seqBytes, err := s.ReadToBytes(root)
	if err != nil {
		return collection.Collection{}, err
	}
	seq, err := collection.ParseHashSeq(seqBytes)
	if err != nil {
		return collection.Collection{}, err
	}
	metaBytes, err := s.ReadToBytes(seq[0])
	if err != nil {
		return collection.Collection{}, err
	}
	meta, err := collection.ParseMetadata(metaBytes)
	if err != nil {
		return collection.Collection{}, err
	}
	if err := meta.ValidateHashSeqLen(len(seq)); err != nil {
		return collection.Collection{}, err
	}

	items := make([]collection.Item, 0, len(meta.Names))
	for i, name := range meta.Names {
		h := seq[i+1]
		size, _ := s.Size(h)
		items = append(items, collection.Item{Name: name, Hash: h, Size: size})
	}
	return collection.New(items), nil
}
