package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttool/agenttool/internal/agent/permission"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/session/models"
)

// fakeBackend writes a shell script that echoes every stdin line back
// with a prefix, ignoring CLI flags. It stands in for the real agent
// executables in subprocess tests.
func fakeBackend(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake backend script requires a POSIX shell")
	}
	script := "#!/bin/sh\nwhile read line; do\n  echo \"echo: $line\"\ndone\n"
	path := filepath.Join(t.TempDir(), "fake-agent")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	require.NoError(t, err)
	return log
}

func TestClaudeAdapterSessionLifecycle(t *testing.T) {
	a := NewClaudeAdapter(fakeBackend(t), testLogger(t))
	a.quietPeriod = 200 * time.Millisecond
	ctx := context.Background()

	perms := models.AgentPermissions{
		FileRead:      true,
		FileWrite:     true,
		NetworkAccess: true,
		ProcessSpawn:  true,
		AllowedPaths:  []string{"**"},
	}
	require.NoError(t, a.StartSession(ctx, "s1", t.TempDir(), perms))
	defer func() { _ = a.StopSession(ctx, "s1") }()

	status, ok := a.SessionStatus("s1")
	require.True(t, ok)
	assert.Equal(t, "active", status.Status)
	assert.Equal(t, KindClaude, status.Kind)

	err := a.StartSession(ctx, "s1", t.TempDir(), perms)
	var exists *ErrSessionExists
	require.ErrorAs(t, err, &exists)

	result, err := a.ExecuteTask(ctx, "s1", "summarize the module layout", "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, result.Status)
	assert.Contains(t, result.Result, "echo: summarize the module layout")
	require.NotNil(t, result.CompletedAt)

	require.NoError(t, a.StopSession(ctx, "s1"))
	_, ok = a.SessionStatus("s1")
	assert.False(t, ok)
}

func TestClaudeAdapterRejectsUngrantedTask(t *testing.T) {
	a := NewClaudeAdapter(fakeBackend(t), testLogger(t))
	a.quietPeriod = 200 * time.Millisecond
	ctx := context.Background()

	perms := models.AgentPermissions{
		FileRead:     true,
		AllowedPaths: []string{"**"},
	}
	require.NoError(t, a.StartSession(ctx, "s1", t.TempDir(), perms))
	defer func() { _ = a.StopSession(ctx, "s1") }()

	result, err := a.ExecuteTask(ctx, "s1", "save the summary to notes.txt", "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusFailed, result.Status)
	assert.Equal(t, permission.RejectionMessage, result.Error)

	// The rejection never reached the process, so the next accepted task
	// gets a clean response with no leftover output.
	result, err = a.ExecuteTask(ctx, "s1", "summarize the repo", "")
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, result.Status)
	assert.Equal(t, "echo: summarize the repo", result.Result)
}

func TestClaudeAdapterUnknownSession(t *testing.T) {
	a := NewClaudeAdapter(fakeBackend(t), testLogger(t))

	_, err := a.ExecuteTask(context.Background(), "missing", "anything", "")
	var notFound *ErrSessionNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestClaudeAdapterQuickTask(t *testing.T) {
	a := NewClaudeAdapter(fakeBackend(t), testLogger(t))
	a.quietPeriod = 200 * time.Millisecond

	result, err := a.ExecuteQuickTask(context.Background(), "describe the build", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, models.TaskStatusCompleted, result.Status)
	assert.Contains(t, result.Result, "describe the build")
}

func TestClaudeAdapterSpawnFailure(t *testing.T) {
	a := NewClaudeAdapter(filepath.Join(t.TempDir(), "does-not-exist"), testLogger(t))

	err := a.StartSession(context.Background(), "s1", t.TempDir(), models.AgentPermissions{AllowedPaths: []string{"**"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to spawn")
}
