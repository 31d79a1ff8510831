// Package ui implements the interactive snapshot review screen: step
// through pending re-recordings, inspect each diff, and accept or
// reject them one by one.
package ui

import (
	"fmt"
	"strings"

	"snapmatch/internal/diff"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Change is one pending snapshot re-recording under review.
type Change struct {
	TestID       string
	SnapshotPath string
	Diff         *diff.Diff
	IsNew        bool // no recorded entry yet

	Accepted bool
	Rejected bool
}

// Styles collects the lipgloss styles the review screen uses.
type Styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Added    lipgloss.Style
	Removed  lipgloss.Style
	Context  lipgloss.Style
	HunkHead lipgloss.Style
	Accepted lipgloss.Style
	Rejected lipgloss.Style
	Help     lipgloss.Style
}

// DefaultStyles returns the standard color scheme.
func DefaultStyles() Styles {
	return Styles{
		Title:    lipgloss.NewStyle().Bold(true),
		Subtitle: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		Added:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Removed:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Context:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		HunkHead: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Accepted: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		Rejected: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		Help:     lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

// Model is the bubbletea model for the review screen.
type Model struct {
	styles   Styles
	viewport viewport.Model
	changes  []*Change
	index    int
	width    int
	height   int
	done     bool
}

// NewModel builds a review model over the pending changes.
func NewModel(changes []*Change) Model {
	vp := viewport.New(80, 20)
	m := Model{
		styles:   DefaultStyles(),
		viewport: vp,
		changes:  changes,
	}
	m.refresh()
	return m
}

// Changes returns the reviewed changes with their verdicts.
func (m Model) Changes() []*Change { return m.changes }

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 6
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "enter":
			m.done = true
			return m, tea.Quit
		case "ctrl+c":
			// Abort: nothing is applied.
			for _, c := range m.changes {
				c.Accepted = false
			}
			m.done = true
			return m, tea.Quit
		case "a", "y":
			m.current().Accepted = true
			m.current().Rejected = false
			m.advance()
			return m, nil
		case "r", "n":
			m.current().Accepted = false
			m.current().Rejected = true
			m.advance()
			return m, nil
		case "A":
			for _, c := range m.changes {
				c.Accepted = true
				c.Rejected = false
			}
			m.done = true
			return m, tea.Quit
		case "left", "p":
			if m.index > 0 {
				m.index--
				m.refresh()
			}
			return m, nil
		case "right", "tab":
			if m.index < len(m.changes)-1 {
				m.index++
				m.refresh()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if len(m.changes) == 0 || m.done {
		return ""
	}
	c := m.current()

	title := fmt.Sprintf("Reviewing %d/%d: %s", m.index+1, len(m.changes), c.TestID)
	subtitle := c.SnapshotPath
	if c.IsNew {
		subtitle += "  (new entry)"
	}
	var verdict string
	switch {
	case c.Accepted:
		verdict = m.styles.Accepted.Render("will re-record")
	case c.Rejected:
		verdict = m.styles.Rejected.Render("kept as recorded")
	default:
		verdict = m.styles.Subtitle.Render("pending")
	}

	help := m.styles.Help.Render(
		"a accept · r reject · A accept all · ←/→ switch · ↑/↓ scroll · q done · ctrl+c abort")

	return strings.Join([]string{
		m.styles.Title.Render(title),
		m.styles.Subtitle.Render(subtitle) + "  " + verdict,
		"",
		m.viewport.View(),
		"",
		help,
	}, "\n")
}

func (m *Model) current() *Change { return m.changes[m.index] }

func (m *Model) advance() {
	if m.index < len(m.changes)-1 {
		m.index++
	}
	m.refresh()
}

// refresh re-renders the current change's diff into the viewport.
func (m *Model) refresh() {
	if len(m.changes) == 0 {
		return
	}
	c := m.current()
	if c.Diff == nil || c.Diff.Empty() {
		m.viewport.SetContent(m.styles.Context.Render("(no textual difference)"))
		return
	}

	var b strings.Builder
	for _, h := range c.Diff.Hunks {
		b.WriteString(m.styles.HunkHead.Render(fmt.Sprintf("@@ -%d,%d +%d,%d @@",
			h.OldStart, h.OldCount, h.NewStart, h.NewCount)))
		b.WriteByte('\n')
		for _, l := range h.Lines {
			switch l.Type {
			case diff.LineAdded:
				b.WriteString(m.styles.Added.Render("+" + l.Content))
			case diff.LineRemoved:
				b.WriteString(m.styles.Removed.Render("-" + l.Content))
			default:
				b.WriteString(m.styles.Context.Render(" " + l.Content))
			}
			b.WriteByte('\n')
		}
	}
	m.viewport.SetContent(b.String())
	m.viewport.GotoTop()
}

// Run shows the review screen and blocks until the user finishes.
// The returned slice is the input changes with verdicts set.
func Run(changes []*Change) ([]*Change, error) {
	if len(changes) == 0 {
		return changes, nil
	}
	p := tea.NewProgram(NewModel(changes), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Changes(), nil
}
