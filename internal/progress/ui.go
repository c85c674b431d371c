package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// View is what the renderers draw. It is assembled by the CLI layer
// from the reconciler snapshot plus the meter stats.
type View struct {
	OutDir      string
	Stats       Stats
	CurrentFile string
	FileDone    int
	FileTotal   int
	Done        bool
}

const (
	colorReset = "\033[0m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

func colorize(s string, color string, enabled bool) string {
	if !enabled || color == "" {
		return s
	}
	return color + s + colorReset
}

func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// RenderPlain redraws the view on a ticker until the returned stop
// function is called. On a TTY it redraws in place; otherwise it logs a
// line per second. interval 0 picks a default per output kind.
func RenderPlain(ctx context.Context, w io.Writer, interval time.Duration, view func() View) func() {
	stop := make(chan struct{})
	isTTY := IsTTY(w)
	lastLines := 0
	var renderMu sync.Mutex
	if interval <= 0 {
		if isTTY {
			interval = 100 * time.Millisecond
		} else {
			interval = 1 * time.Second
		}
	}
	ticker := time.NewTicker(interval)
	if isTTY {
		fmt.Fprint(w, "\033[?25l")
	}

	renderOnce := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		v := view()
		if isTTY {
			if lastLines > 0 {
				fmt.Fprintf(w, "\033[%dA", lastLines)
				fmt.Fprint(w, "\033[J")
			}
			lines := 0
			if v.OutDir != "" {
				fmt.Fprintf(w, "saving to %s\n", v.OutDir)
				lines++
			}
			fmt.Fprintf(w, "%s\n", colorize(formatTransferLine(v), colorGreen, isTTY))
			lines++
			currentFile := v.CurrentFile
			if currentFile == "" {
				currentFile = "-"
			}
			fmt.Fprintf(w, "%s\n", colorize(fmt.Sprintf("file: %s (%d/%d)", currentFile, v.FileDone, v.FileTotal), colorCyan, isTTY))
			lines++
			lastLines = lines
		} else {
			currentFile := v.CurrentFile
			if currentFile == "" {
				currentFile = "-"
			}
			fmt.Fprintf(w, "%s file=%s (%d/%d)\n", formatTransferLine(v), currentFile, v.FileDone, v.FileTotal)
		}
	}

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				renderOnce()
			}
		}
	}()

	return func() {
		close(stop)
		renderOnce()
		if isTTY {
			fmt.Fprint(w, "\033[?25h")
		}
	}
}

func formatTransferLine(v View) string {
	bar := renderBar(v.Stats.Percent, 20)
	return fmt.Sprintf("%s %5.1f%%  %s  ETA %s  (recv %s/%s)",
		bar,
		v.Stats.Percent,
		formatRate(v.Stats.RateBps),
		formatETA(v.Stats.ETA),
		formatGiB(v.Stats.BytesDone),
		formatGiB(v.Stats.Total),
	)
}

func renderBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int((percent / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func formatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	if bps >= g {
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	}
	if bps >= m {
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	}
	if bps >= k {
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

func formatGiB(n uint64) string {
	const g = 1024 * 1024 * 1024
	if n == 0 {
		return "0.00 GiB"
	}
	return fmt.Sprintf("%.2f GiB", float64(n)/float64(g))
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return "--:--:--"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
