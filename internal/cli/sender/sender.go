// Package sender implements the "drop send" command.
package sender

import (
	"context"
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
	if len(args) == 0 || hasHelpFlag(args) {
		printUsage()
		if len(args) == 0 {
			os.Exit(2)
		}
		return
	}

	cfg := config.ParseSendArgs(args)
	if len(cfg.Paths) == 0 {
		fmt.Fprintln(termio.Stderr(), "nothing to send: no files given")
		printUsage()
		os.Exit(2)
	}

	log := logging.NewWithWriter(termio.Stderr(), "drop", cfg.LogLevel)
	eng := quicengine.New(quicengine.Options{
		ListenAddr:  cfg.ListenAddr,
		StunServers: cfg.Stun,
		DisableStun: cfg.NoStun,
		ChunkSize:   cfg.ChunkSize,
	}, log)
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := progress.NewChanSink(64)
	var sinks []progress.Sink = []progress.Sink{sink}

	if cfg.WSAddr != "" {
		ws := progress.NewWSPublisher()
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

	send := session.NewSend(eng, progress.NewMulti(sinks...), log)
	offer, err := send.Start(ctx, cfg.Paths)
	if err != nil {
		fmt.Fprintf(termio.Stderr(), "send failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintln(termio.Stdout(), "sharing:")
	for _, item := range offer.Collection.Items() {
		fmt.Fprintf(termio.Stdout(), "  %s  (%d bytes)\n", item.Name, item.Size)
	}
	fmt.Fprintln(termio.Stdout(), "")
	fmt.Fprintln(termio.Stdout(), "ticket (give this to the receiver):")
	fmt.Fprintf(termio.Stdout(), "  %s\n", offer.Ticket)
	fmt.Fprintln(termio.Stdout(), "")
	fmt.Fprintln(termio.Stdout(), "waiting for receivers, press Ctrl-C to stop sharing")

	// Fold serve snapshots into the live view the renderer polls.
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

	<-ctx.Done()
	stopUI()
	sink.Close()
	send.Cancel()
	fmt.Fprintln(termio.Stdout(), "stopped sharing")
}

// startRenderer draws serve progress below the printed ticket: in-place
// redraw on a TTY, one line per tick otherwise. A full-screen renderer
// would hide the ticket, so the send side always uses the line view.
func startRenderer(ctx context.Context, cfg config.SendConfig, view func() progress.View) func() {
	if !cfg.Plain && progress.IsTTY(termio.StdoutFile()) {
		return progress.RenderPlain(ctx, termio.StdoutFile(), 0, view)
	}
	return progress.RenderPlain(ctx, termio.Stdout(), 0, view)
}

func printUsage() {
	w := termio.Stderr()
	fmt.Fprintln(w, "usage: drop send [flags] <file> [<file>...]")
	fmt.Fprintln(w, "flags:")
	fmt.Fprintln(w, "  --listen <addr>     UDP listen address (default: ephemeral)")
	fmt.Fprintln(w, "  --stun <server>     STUN server, repeatable")
	fmt.Fprintln(w, "  --no-stun           skip public address discovery")
	fmt.Fprintln(w, "  --chunk-size <n>    wire record size in bytes")
	fmt.Fprintln(w, "  --ws <addr>         progress websocket listen address")
	fmt.Fprintln(w, "  --plain             line-based output")
	fmt.Fprintln(w, "  --log-level <lvl>   debug, info, warn, error")
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}
