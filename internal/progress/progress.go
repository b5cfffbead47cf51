package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// State is the lifecycle position of a single pipeline step.
type State int

const (
	Pending State = iota
	Running
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Step is one reported transition.
type Step struct {
	Name    string
	State   State
	Message string
}

// Reporter receives step transitions from the release pipeline.
type Reporter interface {
	Update(step Step)
}

var (
	runningStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	succeededStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	messageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// Terminal prints one human-readable line per transition.
// Pending steps are not printed.
type Terminal struct {
	out io.Writer
}

// NewTerminal returns a Terminal writing to w.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{out: w}
}

func (t *Terminal) Update(step Step) {
	var glyph string
	switch step.State {
	case Running:
		glyph = runningStyle.Render("…")
	case Succeeded:
		glyph = succeededStyle.Render("✔")
	case Failed:
		glyph = failedStyle.Render("✖")
	default:
		return
	}
	msg := step.Message
	if step.State == Running {
		msg = messageStyle.Render(msg)
	}
	fmt.Fprintf(t.out, "%s %s\n", glyph, msg)
}

// Log keeps every transition in memory.
type Log struct {
	mu    sync.Mutex
	steps []Step
}

func (l *Log) Update(step Step) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, step)
}

// Steps returns a copy of all recorded transitions.
func (l *Log) Steps() []Step {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// Last returns the latest state recorded for name, or Pending if none.
func (l *Log) Last(name string) State {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.steps) - 1; i >= 0; i-- {
		if l.steps[i].Name == name {
			return l.steps[i].State
		}
	}
	return Pending
}

// Multi fans transitions out to several reporters.
type Multi []Reporter

func (m Multi) Update(step Step) {
	for _, r := range m {
		if r != nil {
			r.Update(step)
		}
	}
}
