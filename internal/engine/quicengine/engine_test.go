package quicengine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/pkg/collection"
)

func testOptions(t *testing.T) Options {
	return Options{
		ListenAddr:  "127.0.0.1:0",
		DisableStun: true,
		DataDir:     t.TempDir(),
	}
}

func shareFixture(t *testing.T, sender *Engine, contents map[string][]byte) engine.Share {
	t.Helper()
	dir := t.TempDir()
	var items []collection.Item
	for name, data := range contents {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		h, err := sender.Import(context.Background(), path)
		if err != nil {
			t.Fatalf("import %s: %v", name, err)
		}
		items = append(items, collection.Item{Name: name, Hash: h, Size: uint64(len(data))})
	}
	root, err := sender.CreateCollection(context.Background(), items)
	if err != nil {
		t.Fatalf("CreateCollection: %v", err)
	}
	share, err := sender.ShareCollection(context.Background(), root)
	if err != nil {
		t.Fatalf("ShareCollection: %v", err)
	}
	return share
}

func drain(t *testing.T, events <-chan engine.Event) []engine.Event {
	t.Helper()
	var out []engine.Event
	timeout := time.After(30 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("event stream stalled after %d events", len(out))
		}
	}
}

func TestEngineTransfer(t *testing.T) {
	contents := map[string][]byte{
		"small.txt": []byte("tiny payload"),
		"large.bin": bytes.Repeat([]byte{0x5A, 3}, (inlineLimit+2)/2), // forces the on-disk path
	}

	sender := New(testOptions(t), nil)
	defer sender.Close()
	receiver := New(testOptions(t), nil)
	defer receiver.Close()

	share := shareFixture(t, sender, contents)

	events, err := receiver.DownloadHashSeq(context.Background(), share.Locator, share.Confirmation)
	if err != nil {
		t.Fatalf("DownloadHashSeq: %v", err)
	}

	var sawAllDone bool
	var root collection.Hash
	for _, ev := range drain(t, events) {
		switch ev := ev.(type) {
		case engine.HashSeqFound:
			root = ev.Hash
		case engine.AllDone:
			sawAllDone = true
		}
	}
	if !sawAllDone {
		t.Fatal("download ended without completion")
	}

	col, err := receiver.GetCollection(context.Background(), root)
	if err != nil {
		t.Fatalf("GetCollection: %v", err)
	}
	if col.Len() != len(contents) {
		t.Fatalf("received %d files, want %d", col.Len(), len(contents))
	}
	for _, item := range col.Items() {
		got, err := receiver.ReadToBytes(context.Background(), item.Hash)
		if err != nil {
			t.Fatalf("ReadToBytes %s: %v", item.Name, err)
		}
		if !bytes.Equal(got, contents[item.Name]) {
			t.Fatalf("content mismatch for %s", item.Name)
		}
	}

	// The sender's serve feed saw the whole transfer go out. Stop
	// closes the feed so the drain terminates.
	share.Stop()
	var found, done int
	var serveAllDone bool
	for _, ev := range drain(t, share.Events) {
		switch ev.(type) {
		case engine.ItemFound:
			found++
		case engine.ItemDone:
			done++
		case engine.AllDone:
			serveAllDone = true
		}
	}
	if found != len(contents) || done != len(contents) || !serveAllDone {
		t.Fatalf("serve feed reported %d found, %d done, allDone=%v; want %d files fully served",
			found, done, serveAllDone, len(contents))
	}
}

func TestEngineRejectsWrongConfirmation(t *testing.T) {
	sender := New(testOptions(t), nil)
	defer sender.Close()
	receiver := New(testOptions(t), nil)
	defer receiver.Close()

	share := shareFixture(t, sender, map[string][]byte{"a.txt": []byte("x")})

	if _, err := receiver.DownloadHashSeq(context.Background(), share.Locator, share.Confirmation+1); !errors.Is(err, engine.ErrBadConfirmation) {
		t.Fatalf("expected ErrBadConfirmation, got %v", err)
	}
}

func TestEngineRejectsStoppedShare(t *testing.T) {
	sender := New(testOptions(t), nil)
	defer sender.Close()
	receiver := New(testOptions(t), nil)
	defer receiver.Close()

	share := shareFixture(t, sender, map[string][]byte{"a.txt": []byte("x")})
	share.Stop()

	if _, err := receiver.DownloadHashSeq(context.Background(), share.Locator, share.Confirmation); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEngineRejectsForeignLocator(t *testing.T) {
	receiver := New(testOptions(t), nil)
	defer receiver.Close()

	if _, err := receiver.DownloadHashSeq(context.Background(), "mock-abcdef", 0); !errors.Is(err, engine.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestEngineShareUnknownRoot(t *testing.T) {
	sender := New(testOptions(t), nil)
	defer sender.Close()

	if _, err := sender.ShareCollection(context.Background(), collection.HashOf([]byte("nope"))); !errors.Is(err, engine.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
