// Package agent implements the process pool and the subprocess-backed
// adapters that execute tasks on behalf of sessions.
package agent

import (
	"context"
	"fmt"

	"github.com/agenttool/agenttool/internal/session/models"
)

// Adapter is the contract every agent backend implements. One adapter
// instance serves all sessions of its kind.
type Adapter interface {
	// Kind returns the agent kind this adapter serves.
	Kind() string

	// StartSession spawns a backend process bound to the session key.
	// It rejects a key that is already active for this kind.
	StartSession(ctx context.Context, sessionID, workingPath string, perms models.AgentPermissions) error

	// ExecuteTask validates the task against the session's permissions and
	// forwards it to the backend. Policy rejections come back as a Failed
	// TaskResult, not an error.
	ExecuteTask(ctx context.Context, sessionID, task, taskContext string) (*models.TaskResult, error)

	// ExecuteQuickTask runs a one-off task in an ephemeral session.
	ExecuteQuickTask(ctx context.Context, task, workingPath string) (*models.TaskResult, error)

	// StopSession shuts the backend process down, gracefully where the
	// backend supports it, and always reaps the process.
	StopSession(ctx context.Context, sessionID string) error

	// SessionStatus reports whether a backend process is registered for
	// the session key.
	SessionStatus(sessionID string) (*models.AgentStatus, bool)
}

// ErrSessionExists is returned by StartSession for an already-active key.
type ErrSessionExists struct {
	SessionID string
}

func (e *ErrSessionExists) Error() string {
	return fmt.Sprintf("session already exists: %s", e.SessionID)
}

// ErrSessionNotFound is returned when no backend process is registered
// for the session key.
type ErrSessionNotFound struct {
	SessionID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}
