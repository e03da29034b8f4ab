package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttool/agenttool/internal/agent/permission"
	"github.com/agenttool/agenttool/internal/session/models"
)

// mockAdapter counts backend interactions so tests can assert that
// rejected tasks never touch the backend.
type mockAdapter struct {
	kind         string
	policy       *permission.Policy
	perms        map[string]models.AgentPermissions
	interactions int32
}

func newMockAdapter(kind string) *mockAdapter {
	return &mockAdapter{
		kind:   kind,
		policy: permission.ClaudePolicy(),
		perms:  make(map[string]models.AgentPermissions),
	}
}

func (m *mockAdapter) Kind() string { return m.kind }

func (m *mockAdapter) StartSession(_ context.Context, sessionID, _ string, perms models.AgentPermissions) error {
	if _, ok := m.perms[sessionID]; ok {
		return &ErrSessionExists{SessionID: sessionID}
	}
	m.perms[sessionID] = perms
	return nil
}

func (m *mockAdapter) ExecuteTask(_ context.Context, sessionID, task, _ string) (*models.TaskResult, error) {
	perms, ok := m.perms[sessionID]
	if !ok {
		return nil, &ErrSessionNotFound{SessionID: sessionID}
	}
	if !m.policy.Allows(task, perms) {
		result := models.FailedTask(sessionID, task, m.kind, permission.RejectionMessage)
		return &result, nil
	}
	atomic.AddInt32(&m.interactions, 1)
	result := models.CompletedTask(sessionID, task, m.kind, "done: "+task)
	return &result, nil
}

func (m *mockAdapter) ExecuteQuickTask(ctx context.Context, task, workingPath string) (*models.TaskResult, error) {
	result := models.CompletedTask("", task, m.kind, "done: "+task)
	return &result, nil
}

func (m *mockAdapter) StopSession(_ context.Context, sessionID string) error {
	delete(m.perms, sessionID)
	return nil
}

func (m *mockAdapter) SessionStatus(sessionID string) (*models.AgentStatus, bool) {
	if _, ok := m.perms[sessionID]; !ok {
		return nil, false
	}
	return &models.AgentStatus{ID: sessionID, Kind: m.kind, Status: "active", LastActivity: time.Now().UTC()}, true
}

func TestPoolRegisterAndLookup(t *testing.T) {
	p := NewPool(testLogger(t))

	_, err := p.Get("claude_code")
	assert.Error(t, err)
	assert.False(t, p.Has("claude_code"))

	p.Register(newMockAdapter("claude_code"))
	p.Register(newMockAdapter("gemini_cli"))

	a, err := p.Get("claude_code")
	require.NoError(t, err)
	assert.Equal(t, "claude_code", a.Kind())
	assert.Equal(t, []string{"claude_code", "gemini_cli"}, p.Kinds())
}

func TestPoolRejectedTaskNeverTouchesBackend(t *testing.T) {
	p := NewPool(testLogger(t))
	mock := newMockAdapter("claude_code")
	p.Register(mock)

	ctx := context.Background()
	a, err := p.Get("claude_code")
	require.NoError(t, err)

	perms := models.AgentPermissions{FileRead: true, AllowedPaths: []string{"**"}}
	require.NoError(t, a.StartSession(ctx, "s1", "/tmp/proj", perms))

	result, err := a.ExecuteTask(ctx, "s1", "save the plan to disk", "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, result.Status)
	assert.Equal(t, permission.RejectionMessage, result.Error)
	assert.Zero(t, atomic.LoadInt32(&mock.interactions), "rejected task must not reach the backend")
}

func TestPoolStopSessionAcrossAdapters(t *testing.T) {
	p := NewPool(testLogger(t))
	claude := newMockAdapter("claude_code")
	gemini := newMockAdapter("gemini_cli")
	p.Register(claude)
	p.Register(gemini)

	ctx := context.Background()
	perms := models.AgentPermissions{FileRead: true, NetworkAccess: true, AllowedPaths: []string{"**"}}
	require.NoError(t, claude.StartSession(ctx, "s1", "/tmp/proj", perms))
	require.NoError(t, gemini.StartSession(ctx, "s1", "/tmp/proj", perms))

	p.StopSession(ctx, "s1")

	_, ok := claude.SessionStatus("s1")
	assert.False(t, ok)
	_, ok = gemini.SessionStatus("s1")
	assert.False(t, ok)
}
