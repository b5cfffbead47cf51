package prompt

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jmsnll/ext-release/internal/version"
)

const customLabel = "custom"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// choiceItem implements list.Item for the version menu.
type choiceItem struct {
	label     string
	version   string
	separator bool
}

func (i choiceItem) FilterValue() string { return i.label }

type choiceDelegate struct{}

func (choiceDelegate) Height() int                             { return 1 }
func (choiceDelegate) Spacing() int                            { return 0 }
func (choiceDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (choiceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(choiceItem)
	if !ok {
		return
	}
	if it.separator {
		fmt.Fprint(w, dimStyle.Render("  ──────────────"))
		return
	}
	line := it.label
	if it.version != "" {
		line = fmt.Sprintf("%-8s %s", it.label, dimStyle.Render(it.version))
	}
	if index == m.Index() {
		fmt.Fprint(w, cursorStyle.Render("❯ ")+line)
		return
	}
	fmt.Fprint(w, "  "+line)
}

type stage int

const (
	stageSelect stage = iota
	stageCustom
	stageDone
)

// Model is the bubbletea model behind the interactive prompt.
type Model struct {
	descriptor version.Descriptor
	menu       list.Model
	input      textinput.Model
	stage      stage
	inputErr   string
	result     string
	aborted    bool
}

// NewModel builds the prompt for d.
func NewModel(d version.Descriptor) Model {
	var items []list.Item
	for _, c := range d.Choices() {
		items = append(items, choiceItem{label: c.Label, version: c.Version})
	}
	items = append(items, choiceItem{separator: true}, choiceItem{label: customLabel + "…"})

	menu := list.New(items, choiceDelegate{}, 40, len(items)+4)
	menu.Title = fmt.Sprintf("Select a new version (currently %s)", d.Current)
	menu.Styles.Title = titleStyle
	menu.SetShowStatusBar(false)
	menu.SetFilteringEnabled(false)
	menu.SetShowHelp(false)
	menu.SetShowPagination(false)

	input := textinput.New()
	input.Prompt = "Version: "
	input.CharLimit = 64
	input.SetValue(d.Current)

	return Model{descriptor: d, menu: menu, input: input}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.stage == stageCustom {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch key.String() {
	case "ctrl+c", "esc":
		m.aborted = true
		m.stage = stageDone
		return m, tea.Quit
	}

	switch m.stage {
	case stageSelect:
		return m.updateSelect(key)
	case stageCustom:
		return m.updateCustom(key)
	}
	return m, nil
}

func (m Model) updateSelect(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "up", "k":
		m.menu.CursorUp()
		if m.selected().separator {
			m.menu.CursorUp()
		}
	case "down", "j":
		m.menu.CursorDown()
		if m.selected().separator {
			m.menu.CursorDown()
		}
	case "enter":
		it := m.selected()
		if it.version != "" {
			m.result = it.version
			m.stage = stageDone
			return m, tea.Quit
		}
		m.stage = stageCustom
		m.input.CursorEnd()
		return m, m.input.Focus()
	}
	return m, nil
}

func (m Model) updateCustom(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Type == tea.KeyEnter {
		cleaned, err := version.Clean(m.input.Value())
		if err != nil {
			m.inputErr = err.Error()
			return m, nil
		}
		m.result = cleaned
		m.stage = stageDone
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(key)
	m.inputErr = ""
	return m, cmd
}

func (m Model) selected() choiceItem {
	it, _ := m.menu.SelectedItem().(choiceItem)
	return it
}

func (m Model) View() string {
	switch m.stage {
	case stageDone:
		if m.aborted {
			return ""
		}
		return fmt.Sprintf("%s %s\n", titleStyle.Render("Release version:"), selectedStyle.Render(m.result))
	case stageCustom:
		var b strings.Builder
		b.WriteString(titleStyle.Render("Enter a custom version"))
		b.WriteString("\n\n")
		b.WriteString(m.input.View())
		b.WriteString("\n")
		if m.inputErr != "" {
			b.WriteString(errorStyle.Render("✖ " + m.inputErr))
			b.WriteString("\n")
		}
		b.WriteString(dimStyle.Render("enter to confirm · esc to cancel"))
		b.WriteString("\n")
		return b.String()
	default:
		return m.menu.View() + "\n" + dimStyle.Render("↑/↓ to move · enter to select · esc to cancel") + "\n"
	}
}

// Result returns the confirmed version, or ErrAborted.
func (m Model) Result() (string, error) {
	if m.aborted || m.result == "" {
		return "", ErrAborted
	}
	return m.result, nil
}

// InputError returns the validation message shown under the custom input.
func (m Model) InputError() string {
	return m.inputErr
}

// Editing reports whether the custom version input is active.
func (m Model) Editing() bool {
	return m.stage == stageCustom
}
