// Package store provides the persistent store for sessions, agent
// configuration, task results, and conversation messages.
package store

import (
	"context"
	"errors"

	"github.com/agenttool/agenttool/internal/session/models"
)

// ErrSessionNotFound is returned when a session id has no persisted row.
var ErrSessionNotFound = errors.New("session not found")

// Store is the narrow persistence interface consumed by the orchestrator
// and the agent registry. The relational layout behind it is an
// implementation detail.
type Store interface {
	// SaveSession persists a new session record.
	SaveSession(ctx context.Context, session *models.Session) error
	// UpdateSessionStatus updates the status and updated-at timestamp of a session.
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error
	// GetSession retrieves a session by id.
	GetSession(ctx context.Context, id string) (*models.Session, error)
	// ListSessions returns all persisted sessions, most recently updated first.
	ListSessions(ctx context.Context) ([]*models.Session, error)

	// SaveAgentConfig inserts or replaces an agent configuration.
	SaveAgentConfig(ctx context.Context, cfg *models.AgentConfig) error
	// ListAgentConfigs returns all persisted agent configurations.
	ListAgentConfigs(ctx context.Context) ([]*models.AgentConfig, error)

	// SaveTaskResult persists a task result.
	SaveTaskResult(ctx context.Context, result *models.TaskResult) error
	// SaveMessage persists a conversation message.
	SaveMessage(ctx context.Context, msg *models.ConversationMessage) error
	// ListMessages returns the persisted messages for a session in creation order.
	ListMessages(ctx context.Context, sessionID string) ([]*models.ConversationMessage, error)

	// Close closes the underlying connection.
	Close() error
}
