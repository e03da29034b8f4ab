package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttool/agenttool/internal/agent/permission"
	"github.com/agenttool/agenttool/internal/session/models"
)

func TestGeminiAdapterRequiresNetwork(t *testing.T) {
	a := NewGeminiAdapter(fakeBackend(t), testLogger(t))

	perms := models.AgentPermissions{
		FileRead:     true,
		AllowedPaths: []string{"**"},
	}
	err := a.StartSession(context.Background(), "s1", t.TempDir(), perms)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network access")
}

func TestGeminiAdapterExecuteTask(t *testing.T) {
	a := NewGeminiAdapter(fakeBackend(t), testLogger(t))
	a.quietPeriod = 200 * time.Millisecond
	a.stopGrace = 50 * time.Millisecond
	ctx := context.Background()

	perms := models.AgentPermissions{
		FileRead:      true,
		NetworkAccess: true,
		AllowedPaths:  []string{"**"},
	}
	require.NoError(t, a.StartSession(ctx, "s1", t.TempDir(), perms))
	defer func() { _ = a.StopSession(ctx, "s1") }()

	result, err := a.ExecuteTask(ctx, "s1", "summarize the design", "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, result.Status)
	assert.Contains(t, result.Result, "Task: summarize the design")
}

func TestGeminiAdapterRejectsUngrantedTask(t *testing.T) {
	a := NewGeminiAdapter(fakeBackend(t), testLogger(t))
	a.quietPeriod = 200 * time.Millisecond
	a.stopGrace = 50 * time.Millisecond
	ctx := context.Background()

	perms := models.AgentPermissions{
		NetworkAccess: true,
		AllowedPaths:  []string{"**"},
	}
	require.NoError(t, a.StartSession(ctx, "s1", t.TempDir(), perms))
	defer func() { _ = a.StopSession(ctx, "s1") }()

	result, err := a.ExecuteTask(ctx, "s1", "analyze file main.go", "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, result.Status)
	assert.Equal(t, permission.RejectionMessage, result.Error)
}

func TestFormatGeminiPrompt(t *testing.T) {
	prompt := formatGeminiPrompt("list dependencies", "")
	assert.Equal(t, "Task: list dependencies\n\nPlease provide a clear and concise response.", prompt)

	prompt = formatGeminiPrompt("list dependencies", "User: what does this repo use?")
	assert.Contains(t, prompt, "Context: User: what does this repo use?")
	assert.Contains(t, prompt, "Task: list dependencies")
}

func TestCleanGeminiOutput(t *testing.T) {
	raw := ">>> prompt\nGemini CLI v1\nactual answer\n\nsecond line"
	assert.Equal(t, "actual answer\nsecond line", cleanGeminiOutput(raw))
}
