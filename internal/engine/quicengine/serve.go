package quicengine

import (
	"context"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/pkg/collection"
)

// serveItem tracks how far one collection item has been served.
type serveItem struct {
	id        uint64
	size      uint64
	announced bool
	done      bool
}

// serveState is the per-share bookkeeping behind the sender's event
// feed. Streams for the same share may run concurrently.
type serveState struct {
	confirmation uint8
	feed         *engine.EventFeed

	mu        sync.Mutex
	items     map[collection.Hash]*serveItem
	remaining int
	allDone   bool
}

func newServeState(confirmation uint8, coll collection.Collection) *serveState {
	st := &serveState{
		confirmation: confirmation,
		feed:         engine.NewEventFeed(64),
		items:        make(map[collection.Hash]*serveItem),
	}
	for i, it := range coll.Items() {
		if _, seen := st.items[it.Hash]; seen {
			continue
		}
		st.items[it.Hash] = &serveItem{id: uint64(i) + 1, size: it.Size}
		st.remaining++
	}
	return st
}

// lookup returns the serve item for h, or nil when h is not a
// collection item (the hash sequence and metadata blobs).
func (st *serveState) lookup(h collection.Hash) *serveItem {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.items[h]
}

func (st *serveState) announce(h collection.Hash, it *serveItem) {
	st.mu.Lock()
	first := !it.announced
	it.announced = true
	st.mu.Unlock()
	if first {
		st.feed.Emit(engine.ItemFound{ID: it.id, Hash: h, Size: it.size})
	}
}

func (st *serveState) progress(it *serveItem, off uint64) {
	st.feed.Emit(engine.Progress{ID: it.id, Offset: off})
}

// finish marks the item fully served. A retransfer of an already-done
// item is a no-op; AllDone fires once, when the last item lands.
func (st *serveState) finish(it *serveItem) {
	st.mu.Lock()
	first := !it.done
	it.done = true
	if first {
		st.remaining--
	}
	last := st.remaining == 0 && !st.allDone
	if last {
		st.allDone = true
	}
	st.mu.Unlock()
	if first {
		st.feed.Emit(engine.ItemDone{ID: it.id})
	}
	if last {
		st.feed.Emit(engine.AllDone{})
	}
}

func (e *Engine) acceptLoop(ctx context.Context, listener *quic.Listener) {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			return
		}
		e.log.Info("receiver connected", "remote", conn.RemoteAddr())
		go e.handleConn(ctx, conn)
	}
}

func (e *Engine) handleConn(ctx context.Context, conn *quic.Conn) {
	defer conn.CloseWithError(0, "")
	remote := conn.RemoteAddr().String()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go e.handleStream(stream, remote)
	}
}

// handleStream answers one request. Hello streams carry only a status;
// blob streams carry the payload as offset-framed records.
func (e *Engine) handleStream(stream *quic.Stream, remote string) {
	defer stream.Close()

	req, err := readRequest(stream)
	if err != nil {
		e.log.Debug("bad request stream", "err", err)
		return
	}

	e.mu.Lock()
	st, shared := e.shared[req.Root]
	e.mu.Unlock()
	if !shared {
		writeStatus(stream, statusNotFound)
		return
	}
	if st.confirmation != req.Confirmation {
		writeStatus(stream, statusBadConfirmation)
		return
	}

	switch req.Magic {
	case magicHello:
		if writeStatus(stream, statusOK) == nil {
			st.feed.Emit(engine.Connected{Remote: remote})
		}
	case magicBlob:
		if e.serveBlob(stream, st, req) {
			e.log.Info("blob served", "hash", req.Blob)
		}
	}
}

// serveBlob reports whether the whole payload went out.
func (e *Engine) serveBlob(stream *quic.Stream, st *serveState, req request) bool {
	size, ok := e.store.Size(req.Blob)
	if !ok {
		writeStatus(stream, statusNotFound)
		return false
	}
	if err := writeStatus(stream, statusOK); err != nil {
		return false
	}
	if err := writeSize(stream, size); err != nil {
		return false
	}

	item := st.lookup(req.Blob)
	if item != nil {
		st.announce(req.Blob, item)
	}
	sent := func(off uint64) {
		if item != nil {
			st.progress(item, off)
		}
	}
	full := func() bool {
		if item != nil {
			st.finish(item)
		}
		return true
	}

	chunk := e.opts.ChunkSize
	if r, fileBacked, err := e.store.OpenClaimReader(req.Blob); err == nil && fileBacked {
		// File-backed blobs stream straight off disk, one claim per
		// record.
		for {
			off, data := r.ClaimRange(chunk)
			if data == nil {
				return full()
			}
			if err := writeRecord(stream, uint64(off), data); err != nil {
				e.log.Debug("blob stream aborted", "hash", req.Blob, "err", err)
				return false
			}
			sent(uint64(off) + uint64(len(data)))
		}
	}

	data, err := e.store.ReadToBytes(req.Blob)
	if err != nil {
		return false
	}
	for off := 0; off < len(data); off += chunk {
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		if err := writeRecord(stream, uint64(off), data[off:end]); err != nil {
			e.log.Debug("blob stream aborted", "hash", req.Blob, "err", err)
			return false
		}
		sent(uint64(end))
	}
	return full()
}
