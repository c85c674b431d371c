package quicengine

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/arkdrop/arkdrop/internal/chunkio"
	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/pkg/collection"
)

const dialTimeout = 5 * time.Second

// maxDescriptionSize caps the hash sequence and collection description
// blobs. Real descriptions are tiny; anything near this is hostile.
const maxDescriptionSize = 64 << 20

// DownloadHashSeq connects to the sender named by the locator, checks
// the confirmation, and streams the collection into the local store.
// The handshake happens before this returns, so a wrong confirmation
// fails fast instead of surfacing mid-stream.
func (e *Engine) DownloadHashSeq(ctx context.Context, locator string, confirmation uint8) (<-chan engine.Event, error) {
	d, err := decodeLocator(locator)
	if err != nil {
		return nil, err
	}

	conn, err := e.dial(ctx, d)
	if err != nil {
		return nil, err
	}
	if err := e.hello(ctx, conn, d.Root, confirmation); err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}

	events := make(chan engine.Event, 16)
	go e.runDownload(ctx, conn, d, confirmation, events)
	return events, nil
}

// dial tries each locator address in order and keeps the first
// connection whose certificate matches the pinned fingerprint.
func (e *Engine) dial(ctx context.Context, d descriptor) (*quic.Conn, error) {
	tlsConf := clientTLSConfig(d.Fingerprint)
	var lastErr error
	for _, addr := range d.Addrs {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		conn, err := quic.DialAddr(dialCtx, addr, tlsConf, quicConfig())
		cancel()
		if err != nil {
			e.log.Debug("dial failed", "addr", addr, "err", err)
			lastErr = err
			continue
		}
		e.log.Debug("connected", "addr", addr)
		return conn, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("quicengine: locator has no addresses")
	}
	return nil, fmt.Errorf("connect to sender: %w", lastErr)
}

// hello runs the confirmation handshake on a dedicated stream.
func (e *Engine) hello(ctx context.Context, conn *quic.Conn, root collection.Hash, confirmation uint8) error {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return fmt.Errorf("open hello stream: %w", err)
	}
	defer stream.CancelRead(0)

	if err := writeRequest(stream, request{Magic: magicHello, Root: root, Confirmation: confirmation}); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	stream.Close()

	status, err := readStatus(stream)
	if err != nil {
		return fmt.Errorf("hello response: %w", err)
	}
	return statusToError(status)
}

func statusToError(status byte) error {
	switch status {
	case statusOK:
		return nil
	case statusBadConfirmation:
		return engine.ErrBadConfirmation
	case statusNotFound:
		return fmt.Errorf("%w: collection is not being shared", engine.ErrNotFound)
	default:
		return fmt.Errorf("quicengine: unknown status %d", status)
	}
}

func (e *Engine) runDownload(ctx context.Context, conn *quic.Conn, d descriptor, confirmation uint8, events chan<- engine.Event) {
	defer close(events)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.CloseWithError(0, "done")
	}()

	emit := func(ev engine.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	remote := conn.RemoteAddr().String()
	defer emit(engine.Disconnected{Remote: remote})

	if !emit(engine.Connected{Remote: remote}) {
		return
	}

	seqBytes, err := e.fetchSmall(ctx, conn, d, confirmation, d.Root)
	if err != nil {
		e.log.Warn("hash sequence fetch failed", "err", err)
		return
	}
	seq, err := collection.ParseHashSeq(seqBytes)
	if err != nil {
		e.log.Warn("bad hash sequence", "err", err)
		return
	}
	metaBytes, err := e.fetchSmall(ctx, conn, d, confirmation, seq[0])
	if err != nil {
		e.log.Warn("collection description fetch failed", "err", err)
		return
	}

	e.store.Put(seqBytes)
	e.store.Put(metaBytes)
	if !emit(engine.HashSeqFound{Hash: d.Root}) {
		return
	}

	for i, h := range seq[1:] {
		id := uint64(i + 1)
		if e.store.Has(h) {
			size, _ := e.store.Size(h)
			if !emit(engine.LocalFound{Hash: h, Size: size}) {
				return
			}
			continue
		}
		if err := e.fetchItem(ctx, conn, d, confirmation, id, h, emit); err != nil {
			if ctx.Err() == nil {
				e.log.Warn("file fetch failed", "hash", h, "err", err)
			}
			return
		}
	}

	emit(engine.AllDone{})
}

// openBlobStream opens a request stream for one blob and reads the
// status and size.
func (e *Engine) openBlobStream(ctx context.Context, conn *quic.Conn, d descriptor, confirmation uint8, blob collection.Hash) (*quic.Stream, uint64, error) {
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("open blob stream: %w", err)
	}
	if err := writeRequest(stream, request{Magic: magicBlob, Root: d.Root, Confirmation: confirmation, Blob: blob}); err != nil {
		stream.CancelRead(0)
		stream.Close()
		return nil, 0, fmt.Errorf("send blob request: %w", err)
	}
	stream.Close()

	status, err := readStatus(stream)
	if err != nil {
		stream.CancelRead(0)
		return nil, 0, err
	}
	if err := statusToError(status); err != nil {
		stream.CancelRead(0)
		return nil, 0, err
	}
	size, err := readSize(stream)
	if err != nil {
		stream.CancelRead(0)
		return nil, 0, err
	}
	return stream, size, nil
}

// fetchSmall downloads one blob fully into memory and verifies its
// content address.
func (e *Engine) fetchSmall(ctx context.Context, conn *quic.Conn, d descriptor, confirmation uint8, blob collection.Hash) ([]byte, error) {
	stream, size, err := e.openBlobStream(ctx, conn, d, confirmation, blob)
	if err != nil {
		return nil, err
	}
	defer stream.CancelRead(0)
	if size > maxDescriptionSize {
		return nil, fmt.Errorf("quicengine: blob too large for memory: %d", size)
	}

	buf := make([]byte, size)
	rec := e.pool.Get()
	defer e.pool.Put(rec)
	var got uint64
	for {
		off, n, err := readRecord(stream, rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if off+uint64(n) > size {
			return nil, fmt.Errorf("quicengine: record beyond blob end")
		}
		copy(buf[off:], rec[:n])
		got += uint64(n)
	}
	if got != size {
		return nil, fmt.Errorf("quicengine: short blob: %d of %d bytes", got, size)
	}
	if collection.HashOf(buf) != blob {
		return nil, fmt.Errorf("quicengine: content hash mismatch for %s", blob)
	}
	return buf, nil
}

// fetchItem downloads one collection file, emitting progress events.
// Small files assemble in memory; large ones stream to the data dir and
// are linked into the store.
func (e *Engine) fetchItem(ctx context.Context, conn *quic.Conn, d descriptor, confirmation uint8, id uint64, h collection.Hash, emit func(engine.Event) bool) error {
	stream, size, err := e.openBlobStream(ctx, conn, d, confirmation, h)
	if err != nil {
		return err
	}
	defer stream.CancelRead(0)

	if !emit(engine.ItemFound{ID: id, Hash: h, Size: size}) {
		return ctx.Err()
	}

	if size <= inlineLimit {
		return e.fetchInline(stream, size, id, h, emit)
	}
	return e.fetchToFile(stream, size, id, h, emit)
}

func (e *Engine) fetchInline(stream *quic.Stream, size uint64, id uint64, h collection.Hash, emit func(engine.Event) bool) error {
	buf := make([]byte, size)
	rec := e.pool.Get()
	defer e.pool.Put(rec)
	var got uint64
	for {
		off, n, err := readRecord(stream, rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if off+uint64(n) > size {
			return fmt.Errorf("quicengine: record beyond blob end")
		}
		copy(buf[off:], rec[:n])
		got += uint64(n)
		if !emit(engine.Progress{ID: id, Offset: off + uint64(n)}) {
			return nil
		}
	}
	if got != size {
		return fmt.Errorf("quicengine: short blob: %d of %d bytes", got, size)
	}
	if collection.HashOf(buf) != h {
		return fmt.Errorf("quicengine: content hash mismatch for %s", h)
	}
	e.store.Put(buf)
	if !emit(engine.ItemDone{ID: id}) {
		return nil
	}
	return nil
}

func (e *Engine) fetchToFile(stream *quic.Stream, size uint64, id uint64, h collection.Hash, emit func(engine.Event) bool) error {
	dir, err := e.ensureDataDir()
	if err != nil {
		return err
	}
	path := filepath.Join(dir, h.String())
	w, err := chunkio.CreateRangeWriter(path, int64(size))
	if err != nil {
		return err
	}

	// Records arrive in offset order, so the digest can stream.
	hasher := sha256.New()
	rec := e.pool.Get()
	defer e.pool.Put(rec)
	var got uint64
	for {
		off, n, err := readRecord(stream, rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			w.Abort()
			return err
		}
		if off != got {
			w.Abort()
			return fmt.Errorf("quicengine: out-of-order record at %d, want %d", off, got)
		}
		if _, err := w.WriteAt(rec[:n], int64(off)); err != nil {
			w.Abort()
			return err
		}
		hasher.Write(rec[:n])
		got += uint64(n)
		if !emit(engine.Progress{ID: id, Offset: got}) {
			w.Abort()
			return nil
		}
	}
	if got != size {
		w.Abort()
		return fmt.Errorf("quicengine: short blob: %d of %d bytes", got, size)
	}
	var digest collection.Hash
	hasher.Sum(digest[:0])
	if digest != h {
		w.Abort()
		return fmt.Errorf("quicengine: content hash mismatch for %s", h)
	}
	if err := w.Commit(); err != nil {
		return err
	}
	e.store.LinkFile(h, path, size)
	if !emit(engine.ItemDone{ID: id}) {
		return nil
	}
	return nil
}
