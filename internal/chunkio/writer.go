package chunkio

import (
	"fmt"
	"os"
	"sync"
)

// RangeWriter assembles arriving byte ranges into an output file of known
// size. Ranges may land in any order; WriteAt is safe for concurrent use.
// The file is pre-sized at creation so late ranges never extend it.
type RangeWriter struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	size   int64
	closed bool
}

// CreateRangeWriter creates (or truncates) the file at path and pre-sizes it
// to size bytes.
func CreateRangeWriter(path string, size int64) (*RangeWriter, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative size %d for %s", size, path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("presize %s: %w", path, err)
	}
	return &RangeWriter{f: f, path: path, size: size}, nil
}

// Size returns the declared output size.
func (w *RangeWriter) Size() int64 {
	return w.size
}

// Path returns the output path.
func (w *RangeWriter) Path() string {
	return w.path
}

// WriteAt writes p at offset off. Ranges beyond the declared size are
// rejected rather than silently growing the file.
func (w *RangeWriter) WriteAt(p []byte, off int64) (int, error) {
	w.mu.Lock()
	f, closed := w.f, w.closed
	w.mu.Unlock()
	if closed {
		return 0, os.ErrClosed
	}
	if off < 0 || off+int64(len(p)) > w.size {
		return 0, fmt.Errorf("range [%d, %d) outside file of size %d", off, off+int64(len(p)), w.size)
	}
	return f.WriteAt(p, off)
}

// Commit flushes and closes the output file, keeping it in place.
func (w *RangeWriter) Commit() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("sync %s: %w", w.path, err)
	}
	return w.f.Close()
}

// Abort closes and removes the partial output file. Safe after Commit, in
// which case the file is left alone.
func (w *RangeWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	w.f.Close()
	return os.Remove(w.path)
}
