package quicengine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/arkdrop/arkdrop/internal/bufpool"
	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/pkg/collection"
)

// defaultChunkSize is the payload record size on the wire and the
// pooled buffer size on both ends.
const defaultChunkSize = 1 << 20

// inlineLimit is the largest blob assembled fully in memory on the
// receiving side. Bigger blobs stream to disk.
const inlineLimit = 4 << 20

// Options configures an Engine. The zero value works.
type Options struct {
	// ListenAddr is the UDP address the sender listens on. Empty means
	// an ephemeral port on all interfaces.
	ListenAddr string
	// StunServers overrides the default public STUN servers.
	StunServers []string
	// DisableStun skips reflexive address discovery. The locator then
	// carries local addresses only.
	DisableStun bool
	// DataDir is where downloaded blobs too large for memory land.
	// Empty means a fresh per-run directory under the OS temp dir.
	DataDir string
	// ChunkSize overrides the wire record size.
	ChunkSize int
}

// Engine transfers content-addressed blobs over QUIC with a pinned
// self-signed certificate. One Engine serves any number of shares and
// downloads.
type Engine struct {
	opts  Options
	store *engine.Store
	log   *slog.Logger
	pool  *bufpool.Pool

	mu       sync.Mutex
	udp      *net.UDPConn
	listener *quic.Listener
	fp       [32]byte
	addrs    []string
	shared   map[collection.Hash]*serveState
	stopAcc  context.CancelFunc
	closed   bool

	dataDirOnce sync.Once
	dataDir     string
	dataDirErr  error
}

var _ engine.Engine = (*Engine)(nil)

// New returns an engine over a fresh in-memory store.
func New(opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	return &Engine{
		opts:   opts,
		store:  engine.NewStore(),
		log:    log,
		pool:   bufpool.New(opts.ChunkSize),
		shared: make(map[collection.Hash]*serveState),
	}
}

// Store exposes the underlying blob store.
func (e *Engine) Store() *engine.Store {
	return e.store
}

func (e *Engine) Import(ctx context.Context, path string) (collection.Hash, error) {
	return e.store.ImportFile(ctx, path)
}

func (e *Engine) CreateCollection(ctx context.Context, items []collection.Item) (collection.Hash, error) {
	if err := ctx.Err(); err != nil {
		return collection.Hash{}, err
	}
	return e.store.CreateCollection(items), nil
}

func (e *Engine) ReadToBytes(ctx context.Context, h collection.Hash) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.store.ReadToBytes(h)
}

// Has reports whether blob h is in the local store.
func (e *Engine) Has(h collection.Hash) bool {
	return e.store.Has(h)
}

func (e *Engine) GetCollection(ctx context.Context, root collection.Hash) (collection.Collection, error) {
	if err := ctx.Err(); err != nil {
		return collection.Collection{}, err
	}
	return e.store.GetCollection(root)
}

// ShareCollection starts the listener if needed and registers the root
// for download under a fresh confirmation byte. The returned share's
// Events channel reports what has been served to peers.
func (e *Engine) ShareCollection(ctx context.Context, root collection.Hash) (engine.Share, error) {
	coll, err := e.store.GetCollection(root)
	if err != nil {
		return engine.Share{}, fmt.Errorf("%w: %s", engine.ErrNotFound, root)
	}
	if err := e.ensureListener(ctx); err != nil {
		return engine.Share{}, err
	}

	var confBuf [1]byte
	rand.Read(confBuf[:])
	st := newServeState(confBuf[0], coll)

	e.mu.Lock()
	e.shared[root] = st
	locator := encodeLocator(descriptor{Root: root, Fingerprint: e.fp, Addrs: e.addrs})
	e.mu.Unlock()
	st.feed.Emit(engine.HashSeqFound{Hash: root})

	e.log.Info("collection shared", "root", root, "addrs", len(e.addrs))
	return engine.Share{
		Locator:      locator,
		Confirmation: confBuf[0],
		Events:       st.feed.Events(),
		Stop: func() {
			e.mu.Lock()
			delete(e.shared, root)
			e.mu.Unlock()
			st.feed.Close()
		},
	}, nil
}

// ensureListener binds the UDP socket, resolves dial addresses, and
// starts accepting QUIC connections. Idempotent.
func (e *Engine) ensureListener(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("quicengine: engine closed")
	}
	if e.listener != nil {
		return nil
	}

	listenAddr := e.opts.ListenAddr
	if listenAddr == "" {
		listenAddr = ":0"
	}
	udpAddr, err := net.ResolveUDPAddr("udp4", listenAddr)
	if err != nil {
		return fmt.Errorf("resolve listen addr: %w", err)
	}
	udp, err := net.ListenUDP("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("listen udp: %w", err)
	}
	tuneUDPBuffers(udp, e.log)

	port := udp.LocalAddr().(*net.UDPAddr).Port
	// STUN runs before QUIC owns the socket. Reflexive addresses go
	// first so they survive locator trimming.
	var addrs []string
	if !e.opts.DisableStun {
		addrs = resolveReflexiveAddrs(udp, e.opts.StunServers, e.log)
	}
	addrs = append(addrs, localAddrs(port)...)
	if len(addrs) == 0 {
		udp.Close()
		return fmt.Errorf("quicengine: no dialable addresses")
	}

	cert, fp, err := generateCert()
	if err != nil {
		udp.Close()
		return fmt.Errorf("generate certificate: %w", err)
	}

	listener, err := quic.Listen(udp, serverTLSConfig(cert), quicConfig())
	if err != nil {
		udp.Close()
		return fmt.Errorf("quic listen: %w", err)
	}

	acceptCtx, cancel := context.WithCancel(context.Background())
	e.udp = udp
	e.listener = listener
	e.fp = fp
	e.addrs = addrs
	e.stopAcc = cancel
	go e.acceptLoop(acceptCtx, listener)

	e.log.Info("listener started", "addr", udp.LocalAddr())
	return nil
}

// Close stops the listener and removes the download data directory.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	listener := e.listener
	udp := e.udp
	stop := e.stopAcc
	dataDir := e.dataDir
	states := e.shared
	e.shared = make(map[collection.Hash]*serveState)
	e.mu.Unlock()

	for _, st := range states {
		st.feed.Close()
	}

	if stop != nil {
		stop()
	}
	if listener != nil {
		listener.Close()
	}
	if udp != nil {
		udp.Close()
	}
	if dataDir != "" {
		os.RemoveAll(dataDir)
	}
	return nil
}

// ensureDataDir creates the per-run blob directory on first use.
func (e *Engine) ensureDataDir() (string, error) {
	e.dataDirOnce.Do(func() {
		dir := e.opts.DataDir
		if dir == "" {
			var suffix [4]byte
			rand.Read(suffix[:])
			dir = filepath.Join(os.TempDir(), ".arkdrop-data-"+hex.EncodeToString(suffix[:]))
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			e.dataDirErr = fmt.Errorf("create data dir: %w", err)
			return
		}
		e.mu.Lock()
		e.dataDir = dir
		e.mu.Unlock()
	})
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dataDir, e.dataDirErr
}

func quicConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:                10 * time.Second,
		MaxIdleTimeout:                 30 * time.Second,
		MaxIncomingStreams:             100,
		InitialConnectionReceiveWindow: 64 * 1024 * 1024,
		MaxConnectionReceiveWindow:     64 * 1024 * 1024,
		InitialStreamReceiveWindow:     16 * 1024 * 1024,
		MaxStreamReceiveWindow:         16 * 1024 * 1024,
	}
}
