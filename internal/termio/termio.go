// Package termio funnels console output through single writer
// goroutines so log lines and progress redraws never interleave
// mid-write.
package termio

import (
	"io"
	"os"
	"sync"
)

type writer struct {
	file *os.File
	ch   chan []byte
}

func (w *writer) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	buf := make([]byte, len(p))
	copy(buf, p)
	w.ch <- buf
	return len(p), nil
}

type manager struct {
	once   sync.Once
	stdout *writer
	stderr *writer
}

var global manager

// Init starts the writer goroutines. Later calls are no-ops.
func Init() {
	global.once.Do(func() {
		global.stdout = newWriter(os.Stdout)
		global.stderr = newWriter(os.Stderr)
	})
}

func newWriter(f *os.File) *writer {
	w := &writer{
		file: f,
		ch:   make(chan []byte, 1024),
	}
	go func() {
		for buf := range w.ch {
			_, _ = w.file.Write(buf)
		}
	}()
	return w
}

// Stdout returns the serialized stdout writer.
func Stdout() io.Writer {
	Init()
	return global.stdout
}

// Stderr returns the serialized stderr writer.
func Stderr() io.Writer {
	Init()
	return global.stderr
}

// StdoutFile returns the underlying stdout file, for TTY checks.
func StdoutFile() *os.File {
	return os.Stdout
}

// StderrFile returns the underlying stderr file, for TTY checks.
func StderrFile() *os.File {
	return os.Stderr
}
