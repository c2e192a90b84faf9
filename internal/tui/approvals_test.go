package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aide/internal/models"
)

type stubReviewer struct {
	pending []*models.Approval
	decided map[string]bool
}

func (r *stubReviewer) ListPending(context.Context, string) ([]*models.Approval, error) {
	return r.pending, nil
}

func (r *stubReviewer) Decide(_ context.Context, id string, approve bool, _, _ string) (*models.Approval, error) {
	if r.decided == nil {
		r.decided = map[string]bool{}
	}
	r.decided[id] = approve
	for i, a := range r.pending {
		if a.ID == id {
			r.pending = append(r.pending[:i], r.pending[i+1:]...)
			return a, nil
		}
	}
	return nil, errors.New("approval not found")
}

func pendingApprovals() []*models.Approval {
	return []*models.Approval{
		{ID: "aaaaaaaa-1111", ActionType: models.ActionTypeSendEmail, Status: models.ApprovalStatusPending, RequestedAt: time.Now()},
		{ID: "bbbbbbbb-2222", ActionType: models.ActionTypeCreateTask, Status: models.ApprovalStatusPending, RequestedAt: time.Now()},
	}
}

func keyMsg(key string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

func TestModelNavigationAndView(t *testing.T) {
	reviewer := &stubReviewer{pending: pendingApprovals()}
	m := newModel(reviewer, Config{})

	updated, _ := m.Update(approvalsLoadedMsg{approvals: reviewer.pending})
	m = updated.(model)

	view := m.View()
	assert.Contains(t, view, "aaaaaaaa")
	assert.Contains(t, view, "send_email")

	updated, _ = m.Update(keyMsg("j"))
	m = updated.(model)
	assert.Equal(t, 1, m.cursor)

	// Cursor is clamped at the end of the list.
	updated, _ = m.Update(keyMsg("j"))
	m = updated.(model)
	assert.Equal(t, 1, m.cursor)

	updated, _ = m.Update(keyMsg("k"))
	m = updated.(model)
	assert.Equal(t, 0, m.cursor)
}

func TestModelApproveSelected(t *testing.T) {
	reviewer := &stubReviewer{pending: pendingApprovals()}
	m := newModel(reviewer, Config{})

	updated, _ := m.Update(approvalsLoadedMsg{approvals: reviewer.pending})
	m = updated.(model)

	_, cmd := m.Update(keyMsg("a"))
	require.NotNil(t, cmd)

	msg := cmd()
	decided, ok := msg.(decidedMsg)
	require.True(t, ok)
	assert.True(t, decided.approved)
	assert.True(t, reviewer.decided["aaaaaaaa-1111"])
}

func TestModelRejectUpdatesStatus(t *testing.T) {
	reviewer := &stubReviewer{pending: pendingApprovals()}
	m := newModel(reviewer, Config{})

	updated, _ := m.Update(approvalsLoadedMsg{approvals: reviewer.pending})
	m = updated.(model)

	_, cmd := m.Update(keyMsg("r"))
	require.NotNil(t, cmd)

	updated, _ = m.Update(cmd())
	m = updated.(model)
	assert.True(t, strings.Contains(m.status, "rejected"))
}

func TestModelQuit(t *testing.T) {
	m := newModel(&stubReviewer{}, Config{})

	updated, cmd := m.Update(keyMsg("q"))
	m = updated.(model)

	assert.True(t, m.quitting)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Empty(t, m.View())
}
