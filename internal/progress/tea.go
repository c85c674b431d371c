package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type tickMsg struct{}
type stopMsg struct{}

type transferTeaModel struct {
	viewFn func() View
	view   View
}

func (m transferTeaModel) Init() tea.Cmd {
	return nil
}

func (m transferTeaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case tea.KeyMsg:
		key := msg.(tea.KeyMsg)
		if key.Type == tea.KeyCtrlC {
			os.Exit(130)
		}
	case tickMsg:
		m.view = m.viewFn()
		return m, nil
	case stopMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m transferTeaModel) View() string {
	return renderTransferTTY(m.view)
}

// RenderTea runs the full-screen renderer until the returned stop
// function is called or the context ends.
func RenderTea(ctx context.Context, w io.Writer, view func() View) func() {
	model := transferTeaModel{viewFn: view, view: view()}
	program := tea.NewProgram(model, tea.WithOutput(w), tea.WithAltScreen())
	go func() {
		_, _ = program.Run()
	}()
	ticker := time.NewTicker(250 * time.Millisecond)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				program.Send(stopMsg{})
				return
			case <-stop:
				program.Send(stopMsg{})
				return
			case <-ticker.C:
				program.Send(tickMsg{})
			}
		}
	}()
	return func() {
		close(stop)
		ticker.Stop()
		program.Send(tickMsg{})
		program.Send(stopMsg{})
	}
}

func renderTransferTTY(v View) string {
	var b strings.Builder
	if v.OutDir != "" {
		fmt.Fprintf(&b, "saving to %s\n", v.OutDir)
	}
	fmt.Fprintf(&b, "%s\n", colorize(formatTransferLine(v), colorGreen, true))
	currentFile := v.CurrentFile
	if currentFile == "" {
		currentFile = "-"
	}
	fmt.Fprintf(&b, "%s\n", colorize(fmt.Sprintf("file: %s (%d/%d)", currentFile, v.FileDone, v.FileTotal), colorCyan, true))
	return strings.TrimSuffix(b.String(), "\n")
}
