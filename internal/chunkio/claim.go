// Package chunkio provides the file readers and writers used on either side
// of a transfer: a claim reader that lets concurrent callers pull disjoint
// byte ranges from one file, and a range writer that assembles arriving
// ranges into a partially-written output file.
package chunkio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// ClaimReader serves successive, non-overlapping byte ranges of a single
// file to any number of concurrent callers. The only shared mutable state is
// an atomic offset counter and a monotonic finished flag; each range read
// opens its own file handle, so no handle crosses goroutines.
type ClaimReader struct {
	path string
	size int64

	next     atomic.Int64
	finished atomic.Bool

	// Sequential byte-at-a-time mode shares the finished flag with the
	// claim path: exhausting either finishes both.
	mu     sync.Mutex
	shared *os.File
}

// OpenClaimReader stats path eagerly and returns a reader over it. It fails
// if the path is unreadable or not a regular file.
func OpenClaimReader(path string) (*ClaimReader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", path)
	}
	return &ClaimReader{path: path, size: info.Size()}, nil
}

// Len returns the file length observed at open time.
func (r *ClaimReader) Len() int64 {
	return r.size
}

// Finished reports whether the reader has been exhausted. Once true it
// never becomes false again.
func (r *ClaimReader) Finished() bool {
	return r.finished.Load()
}

// ClaimChunk atomically reserves the next n bytes of file offset and returns
// their contents, independent of any other concurrent caller. It returns nil
// once the file is exhausted; an I/O error during the read permanently
// finishes the reader and is observed as end-of-data, keeping the chunk
// protocol error-free at this layer.
func (r *ClaimReader) ClaimChunk(n int) []byte {
	_, data := r.ClaimRange(n)
	return data
}

// ClaimRange is ClaimChunk with the claimed offset exposed, for callers that
// frame chunks with their position on the wire.
func (r *ClaimReader) ClaimRange(n int) (int64, []byte) {
	if n <= 0 || r.finished.Load() {
		return 0, nil
	}

	off := r.next.Add(int64(n)) - int64(n)
	if off >= r.size {
		r.finished.Store(true)
		return off, nil
	}

	remaining := r.size - off
	toRead := int64(n)
	if toRead > remaining {
		toRead = remaining
	}

	f, err := os.Open(r.path)
	if err != nil {
		r.finished.Store(true)
		return off, nil
	}
	defer f.Close()

	buf := make([]byte, toRead)
	if _, err := f.ReadAt(buf, off); err != nil {
		r.finished.Store(true)
		return off, nil
	}

	if off+toRead >= r.size {
		r.finished.Store(true)
	}
	return off, buf
}

// ReadByte reads the file one byte at a time through a lazily-opened shared
// handle. It returns false at end of file or on any error, permanently
// finishing the reader for both read modes.
func (r *ClaimReader) ReadByte() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finished.Load() {
		return 0, false
	}

	if r.shared == nil {
		f, err := os.Open(r.path)
		if err != nil {
			r.finished.Store(true)
			return 0, false
		}
		r.shared = f
	}

	var buf [1]byte
	n, _ := r.shared.Read(buf[:])
	if n == 1 {
		return buf[0], true
	}
	// EOF and read errors both finish the reader.
	r.shared.Close()
	r.shared = nil
	r.finished.Store(true)
	return 0, false
}
