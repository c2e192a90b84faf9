// Package tui provides an interactive review surface for pending
// approvals.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aide/internal/models"
)

// Reviewer is the subset of the approval gateway the TUI drives.
type Reviewer interface {
	ListPending(ctx context.Context, userID string) ([]*models.Approval, error)
	Decide(ctx context.Context, id string, approve bool, reason, decidedBy string) (*models.Approval, error)
}

// Config controls the approvals TUI.
type Config struct {
	UserID string
}

// Run starts the approvals review TUI and blocks until it exits.
func Run(reviewer Reviewer, cfg Config) error {
	program := tea.NewProgram(newModel(reviewer, cfg), tea.WithAltScreen())
	_, err := program.Run()
	return err
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

type approvalsLoadedMsg struct {
	approvals []*models.Approval
}

type decidedMsg struct {
	approval *models.Approval
	approved bool
}

type reviewErrMsg struct {
	err error
}

type model struct {
	reviewer  Reviewer
	cfg       Config
	approvals []*models.Approval
	cursor    int
	status    string
	statusErr bool
	quitting  bool
}

func newModel(reviewer Reviewer, cfg Config) model {
	return model{reviewer: reviewer, cfg: cfg}
}

func (m model) Init() tea.Cmd {
	return m.loadCmd()
}

func (m model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		approvals, err := m.reviewer.ListPending(context.Background(), m.cfg.UserID)
		if err != nil {
			return reviewErrMsg{err: err}
		}
		return approvalsLoadedMsg{approvals: approvals}
	}
}

func (m model) decideCmd(id string, approve bool) tea.Cmd {
	return func() tea.Msg {
		decided, err := m.reviewer.Decide(context.Background(), id, approve, "", "tui")
		if err != nil {
			return reviewErrMsg{err: err}
		}
		return decidedMsg{approval: decided, approved: approve}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case approvalsLoadedMsg:
		m.approvals = msg.approvals
		if m.cursor >= len(m.approvals) {
			m.cursor = len(m.approvals) - 1
		}
		if m.cursor < 0 {
			m.cursor = 0
		}
		return m, nil

	case decidedMsg:
		verb := "rejected"
		if msg.approved {
			verb = "approved"
		}
		m.status = fmt.Sprintf("%s %s", verb, shortID(msg.approval.ID))
		m.statusErr = false
		return m, m.loadCmd()

	case reviewErrMsg:
		m.status = msg.err.Error()
		m.statusErr = true
		return m, nil
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "j", "down":
		if m.cursor < len(m.approvals)-1 {
			m.cursor++
		}
	case "k", "up":
		if m.cursor > 0 {
			m.cursor--
		}
	case "a":
		if selected := m.selected(); selected != nil {
			return m, m.decideCmd(selected.ID, true)
		}
	case "r":
		if selected := m.selected(); selected != nil {
			return m, m.decideCmd(selected.ID, false)
		}
	case "R":
		return m, m.loadCmd()
	}
	return m, nil
}

func (m model) selected() *models.Approval {
	if m.cursor < 0 || m.cursor >= len(m.approvals) {
		return nil
	}
	return m.approvals[m.cursor]
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Pending approvals"))
	b.WriteString("\n\n")

	if len(m.approvals) == 0 {
		b.WriteString(dimStyle.Render("Nothing waiting on you."))
		b.WriteString("\n")
	}
	for i, approval := range m.approvals {
		line := fmt.Sprintf("%-8s  %-16s  %s",
			shortID(approval.ID),
			approval.ActionType,
			approval.RequestedAt.Format("2006-01-02 15:04"),
		)
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.statusErr {
			b.WriteString(errStyle.Render(m.status))
		} else {
			b.WriteString(okStyle.Render(m.status))
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("j/k move · a approve · r reject · R refresh · q quit"))
	b.WriteString("\n")
	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
