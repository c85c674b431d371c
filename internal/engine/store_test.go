package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/arkdrop/arkdrop/pkg/collection"
)

func TestStorePutAndRead(t *testing.T) {
	s := NewStore()
	data := []byte("hello blob")
	h := s.Put(data)
	if h != collection.HashOf(data) {
		t.Fatal("Put must return the content hash")
	}
	got, err := s.ReadToBytes(h)
	if err != nil {
		t.Fatalf("ReadToBytes: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("read back mismatch")
	}
	if size, ok := s.Size(h); !ok || size != uint64(len(data)) {
		t.Fatalf("Size = (%d, %v), want (%d, true)", size, ok, len(data))
	}
}

func TestStoreReadMissing(t *testing.T) {
	s := NewStore()
	if _, err := s.ReadToBytes(collection.HashOf([]byte("absent"))); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreImportFile(t *testing.T) {
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i)
	}
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	s := NewStore()
	h, err := s.ImportFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ImportFile: %v", err)
	}
	if h != collection.HashOf(data) {
		t.Fatal("imported hash must equal the content hash")
	}
	got, err := s.ReadToBytes(h)
	if err != nil {
		t.Fatalf("ReadToBytes: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("file-backed read mismatch")
	}

	r, fileBacked, err := s.OpenClaimReader(h)
	if err != nil || !fileBacked {
		t.Fatalf("OpenClaimReader = (%v, %v), want file-backed reader", fileBacked, err)
	}
	if r.Len() != int64(len(data)) {
		t.Fatalf("claim reader length %d, want %d", r.Len(), len(data))
	}
}

func TestStoreCollectionRoundTrip(t *testing.T) {
	s := NewStore()
	items := []collection.Item{
		{Name: "first.txt", Hash: s.Put([]byte("one")), Size: 3},
		{Name: "second name.txt", Hash: s.Put([]byte("twelve bytes")), Size: 12},
	}
	root := s.CreateCollection(items)

	col, err := s.GetCollection(root)
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if !reflect.DeepEqual(col.Items(), items) {
		t.Fatalf("listing mismatch: got %+v, want %+v", col.Items(), items)
	}
	if col.TotalBytes() != 15 {
		t.Fatalf("TotalBytes = %d, want 15", col.TotalBytes())
	}
}
