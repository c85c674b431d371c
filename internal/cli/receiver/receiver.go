// Package receiver implements the "drop receive" command.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/arkdrop/arkdrop/internal/config"
	"github.com/arkdrop/arkdrop/internal/engine/quicengine"
	"github.com/arkdrop/arkdrop/internal/logging"
	"github.com/arkdrop/arkdrop/internal/progress"
	"github.com/arkdrop/arkdrop/internal/session"
	"github.com/arkdrop/arkdrop/internal/termio"
)

func Run(args []string) {
	if hasHelpFlag(args) {
		printUsage()
		return
	}

	cfg := config.ParseReceiveArgs(args)
	if cfg.Ticket == "" {
		fmt.Fprintln(termio.Stderr(), "no ticket given")
		printUsage()
		os.Exit(2)
	}

	log := logging.NewWithWriter(termio.Stderr(), "drop", cfg.LogLevel)
	eng := quicengine.New(quicengine.Options{}, log)
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := progress.NewChanSink(cfg.SnapshotBuffer)
	var sinks []progress.Sink = []progress.Sink{sink}

	var ws *progress.WSPublisher
	if cfg.WSAddr != "" {
		ws = progress.NewWSPublisher()
		defer ws.Close()
		srv := &http.Server{Addr: cfg.WSAddr, Handler: ws}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("progress websocket unavailable", "addr", cfg.WSAddr, "err", err)
			}
		}()
		defer srv.Close()
		sinks = append(sinks, ws)
	}

	recv := session.NewReceive(eng, cfg.OutDir, progress.NewMulti(sinks...), log)

	// Fold snapshots into the live view the renderer polls.
	meter := progress.NewMeter()
	var viewMu sync.Mutex
	var latest progress.Snapshot
	go func() {
		for snap := range sink.C() {
			meter.Observe(snap)
			viewMu.Lock()
			latest = snap
			viewMu.Unlock()
		}
	}()

	view := func() progress.View {
		viewMu.Lock()
		snap := latest
		viewMu.Unlock()
		v := progress.View{
			OutDir:    cfg.OutDir,
			Stats:     meter.Stats(),
			FileTotal: len(snap.Files),
			Done:      snap.Done,
		}
		for _, f := range snap.Files {
			if f.Transferred >= f.Total && f.Total > 0 {
				v.FileDone++
			} else if v.CurrentFile == "" {
				v.CurrentFile = f.Name
			}
		}
		return v
	}

	stopUI := startRenderer(ctx, cfg, view)

	// Ctrl-C routes into Cancel rather than into Run's context, so
	// shutdown surfaces as a cancellation instead of a bare context
	// error.
	go func() {
		<-ctx.Done()
		recv.Cancel()
	}()

	col, err := recv.Run(context.Background(), cfg.Ticket)
	stopUI()
	sink.Close()
	if err != nil {
		if errors.Is(err, session.ErrCancelled) {
			fmt.Fprintln(termio.Stderr(), "receive cancelled")
			os.Exit(130)
		}
		fmt.Fprintf(termio.Stderr(), "receive failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(termio.Stdout(), "received %d files (%d bytes) into %s\n", col.Len(), col.TotalBytes(), cfg.OutDir)
	for _, item := range col.Items() {
		fmt.Fprintf(termio.Stdout(), "  %s\n", item.Name)
	}
}

func startRenderer(ctx context.Context, cfg config.ReceiveConfig, view func() progress.View) func() {
	if !cfg.Plain && progress.IsTTY(termio.StdoutFile()) {
		return progress.RenderTea(ctx, termio.StdoutFile(), view)
	}
	return progress.RenderPlain(ctx, termio.Stdout(), cfg.PollInterval, view)
}

func printUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: drop receive [flags] <ticket>")
	fmt.Fprintln(w, "flags:")
	fmt.Fprintln(w, "  --out <dir>              output directory (default: your download dir)")
	fmt.Fprintln(w, "  --ws <addr>              progress websocket listen address")
	fmt.Fprintln(w, "  --plain                  line-based output")
	fmt.Fprintln(w, "  --snapshot-buffer <n>    progress snapshot channel depth")
	fmt.Fprintln(w, "  --poll-interval <dur>    progress redraw interval, e.g. 250ms")
	fmt.Fprintln(w, "  --log-level <lvl>        debug, info, warn, error")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
