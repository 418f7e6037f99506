package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"wxexport/pkg/events"
)

// TUI runs the dashboard and doubles as an events.Sink
type TUI struct {
	program *tea.Program
	model   *Model
	done    chan error
}

// NewTUI creates a dashboard for account
func NewTUI(account string, cooldown time.Duration, opts ...tea.ProgramOption) *TUI {
	model := NewModel(account, cooldown)
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	return &TUI{
		program: tea.NewProgram(&model, opts...),
		model:   &model,
		done:    make(chan error, 1),
	}
}

// Start runs the program in the background
func (t *TUI) Start() {
	go func() {
		_, err := t.program.Run()
		t.done <- err
	}()
}

// Emit forwards e to the program. It is safe for concurrent use.
func (t *TUI) Emit(e events.Event) {
	t.program.Send(EventMsg(e))
}

// Stop quits the program and waits for it to restore the terminal
func (t *TUI) Stop() error {
	t.program.Quit()
	return <-t.done
}

var _ events.Sink = (*TUI)(nil)
