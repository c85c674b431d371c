package chunkio

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestRangeWriterOutOfOrder(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i % 253)
	}
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := CreateRangeWriter(path, int64(len(data)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Write ranges back to front, concurrently.
	const chunk = 512
	var wg sync.WaitGroup
	for off := len(data) - chunk; off >= 0; off -= chunk {
		wg.Add(1)
		go func(off int) {
			defer wg.Done()
			if _, err := w.WriteAt(data[off:off+chunk], int64(off)); err != nil {
				t.Errorf("WriteAt(%d): %v", off, err)
			}
		}(off)
	}
	wg.Wait()

	if err := w.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("assembled file does not match source")
	}
}

func TestRangeWriterRejectsOutOfBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := CreateRangeWriter(path, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer w.Abort()

	if _, err := w.WriteAt(make([]byte, 10), 95); err == nil {
		t.Fatal("expected error for range past end")
	}
	if _, err := w.WriteAt(make([]byte, 10), -1); err == nil {
		t.Fatal("expected error for negative offset")
	}
}

func TestRangeWriterAbortRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := CreateRangeWriter(path, 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("abort must remove the partial file")
	}
}

func TestRangeWriterCommitThenAbortKeepsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bin")
	w, err := CreateRangeWriter(path, 4)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := w.WriteAt([]byte("data"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("abort after commit: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatal("committed file must survive a later abort")
	}
}
