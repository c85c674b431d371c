package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/arkdrop/arkdrop/internal/chunkio"
	"github.com/arkdrop/arkdrop/internal/engine"
	"github.com/arkdrop/arkdrop/internal/progress"
	"github.com/arkdrop/arkdrop/internal/reconcile"
	"github.com/arkdrop/arkdrop/pkg/collection"
	"github.com/arkdrop/arkdrop/pkg/ticket"
)

// Receive downloads a shared collection into an output directory. A
// Receive is single-use.
type Receive struct {
	lifecycle
	eng    engine.Engine
	outDir string
	sink   progress.Sink
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	rec    *reconcile.Reconciler
	err    error
}

// NewReceive returns a receive transfer writing into outDir. sink may
// be nil.
func NewReceive(eng engine.Engine, outDir string, sink progress.Sink, log *slog.Logger) *Receive {
	if log == nil {
		log = slog.Default()
	}
	return &Receive{lifecycle: newLifecycle(), eng: eng, outDir: outDir, sink: sink, log: log}
}

// Run performs the whole download and blocks until it ends. The
// returned collection lists what was written to the output directory.
func (r *Receive) Run(ctx context.Context, ticketStr string) (collection.Collection, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	col, err := r.run(ctx, ticketStr)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.IsCancelled() {
			err = ErrCancelled
		} else {
			r.advance(StateFailed)
		}
		r.setErr(err)
		return collection.Collection{}, err
	}
	r.advance(StateCompleted)
	return col, nil
}

func (r *Receive) run(ctx context.Context, ticketStr string) (collection.Collection, error) {
	tk, err := ticket.Decode(ticketStr)
	if err != nil {
		return collection.Collection{}, err
	}
	r.advance(StateNegotiating)

	events, err := r.eng.DownloadHashSeq(ctx, tk.Locator, tk.Confirmation)
	if err != nil {
		return collection.Collection{}, fmt.Errorf("%w: %w", ErrDownload, err)
	}
	r.advance(StateActive)
	r.log.Info("download started", "out_dir", r.outDir)

	rec := reconcile.New(r.eng, r.sink, r.log)
	r.mu.Lock()
	r.rec = rec
	r.mu.Unlock()

	col, err := rec.Run(ctx, events)
	if err != nil {
		return collection.Collection{}, err
	}
	if err := rec.SinkLost(); err != nil {
		r.log.Warn("progress updates were lost", "err", err)
	}

	if err := r.writeOutputs(ctx, col); err != nil {
		return collection.Collection{}, err
	}
	r.log.Info("download complete", "files", col.Len(), "bytes", col.TotalBytes())
	return col, nil
}

// Cancel stops the download cooperatively. Safe to call at any time.
func (r *Receive) Cancel() {
	if !r.advance(StateCancelled) {
		return
	}
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.log.Info("download cancelled")
}

// Snapshot returns the current progress picture, or a zero snapshot
// before the download has started.
func (r *Receive) Snapshot() progress.Snapshot {
	r.mu.Lock()
	rec := r.rec
	r.mu.Unlock()
	if rec == nil {
		return progress.Snapshot{}
	}
	return rec.Snapshot()
}

// Err returns the terminal error, if any.
func (r *Receive) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Receive) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Wait blocks until the transfer ends or the context does.
func (r *Receive) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.Done():
		return r.Err()
	}
}

// writeOutputs materializes every collection item under outDir.
func (r *Receive) writeOutputs(ctx context.Context, col collection.Collection) error {
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, item := range col.Items() {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, err := r.outputPath(item.Name)
		if err != nil {
			return err
		}
		data, err := r.eng.ReadToBytes(ctx, item.Hash)
		if err != nil {
			return fmt.Errorf("%w: read %s: %w", ErrDownload, item.Name, err)
		}
		w, err := chunkio.CreateRangeWriter(path, int64(len(data)))
		if err != nil {
			return fmt.Errorf("create %s: %w", item.Name, err)
		}
		if _, err := w.WriteAt(data, 0); err != nil {
			w.Abort()
			return fmt.Errorf("write %s: %w", item.Name, err)
		}
		if err := w.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", item.Name, err)
		}
		r.log.Debug("file written", "name", item.Name, "bytes", len(data))
	}
	return nil
}

// outputPath joins a received name onto outDir, refusing anything that
// would land outside it.
func (r *Receive) outputPath(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	clean := filepath.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	path := filepath.Join(r.outDir, clean)
	if dir := filepath.Dir(path); dir != r.outDir {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create output dir: %w", err)
		}
	}
	return path, nil
}
