// Package tui renders the progress of a single long-running operation in
// the terminal. The operation runs on its own goroutine and reports
// through messages; the bubbletea model owns every piece of display state.
package tui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/maauso/mediadesk/internal/job"
	"github.com/maauso/mediadesk/internal/progress"
)

// ErrInterrupted is returned when the user quits before the task finishes.
var ErrInterrupted = errors.New("interrupted")

const maxBarWidth = 60

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
	stageStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// progressMsg carries one progress report from the task goroutine.
type progressMsg progress.Update

// doneMsg is sent once when the task returns.
type doneMsg struct {
	result *job.Result
	err    error
}

// Model is the bubbletea model for one task.
type Model struct {
	title   string
	spinner spinner.Model
	bar     bprogress.Model

	update  progress.Update
	percent float64

	done        bool
	interrupted bool
	result      *job.Result
	err         error
}

// NewModel creates a Model showing title while the task runs.
func NewModel(title string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("69"))

	return Model{
		title:   title,
		spinner: s,
		bar:     bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(40)),
		percent: -1,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.update = progress.Update(msg)
		if msg.Percent >= 0 {
			m.percent = msg.Percent
		}
		return m, nil

	case doneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.bar.Width = max(min(msg.Width-4, maxBarWidth), 10)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.done {
		if m.err != nil {
			return errorStyle.Render("✗ "+m.title+" failed") + "\n  " + m.err.Error() + "\n"
		}
		return successStyle.Render("✓ "+m.title) + "\n" + Summary(m.result)
	}
	if m.interrupted {
		return errorStyle.Render("✗ interrupted") + "\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", m.spinner.View(), titleStyle.Render(m.title))
	if line := statusLine(m.update); line != "" {
		b.WriteString("  " + stageStyle.Render(line) + "\n")
	}
	if m.percent >= 0 {
		b.WriteString("  " + m.bar.ViewAs(m.percent/100) + "\n")
	}
	return b.String()
}

// Result returns what the task produced, or why it did not.
func (m Model) Result() (*job.Result, error) {
	if m.interrupted && !m.done {
		return nil, ErrInterrupted
	}
	return m.result, m.err
}

// statusLine describes an update in one line, e.g. "combining 2/3 b.mp3".
func statusLine(u progress.Update) string {
	parts := make([]string, 0, 3)
	if u.Stage != "" {
		parts = append(parts, u.Stage)
	}
	if u.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", u.Current, u.Total))
	}
	if u.File != "" {
		parts = append(parts, filepath.Base(u.File))
	}
	line := strings.Join(parts, " ")
	if u.Message != "" {
		if line != "" {
			line += ": "
		}
		line += u.Message
	}
	return line
}

// Summary lists the files, URLs and chunk count of a finished task.
func Summary(res *job.Result) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	if len(res.Chunks) > 0 {
		fmt.Fprintf(&b, "  %d chunks\n", len(res.Chunks))
	}
	for _, out := range res.Outputs {
		b.WriteString("  " + pathStyle.Render(out) + "\n")
	}
	for _, u := range res.URLs {
		b.WriteString("  " + pathStyle.Render(u) + "\n")
	}
	return b.String()
}
