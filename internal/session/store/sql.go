package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/agenttool/agenttool/internal/session/models"
)

// SQLStore implements Store over sqlx. Rebind keeps the statements
// portable between sqlite3 and pgx.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open connection and ensures the schema exists.
func NewSQLStore(db *sqlx.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		project_path TEXT NOT NULL,
		description TEXT DEFAULT '',
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		workspace_path TEXT DEFAULT '',
		branch_name TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		agent_kind TEXT NOT NULL,
		config TEXT NOT NULL DEFAULT '{}',
		permissions TEXT NOT NULL DEFAULT '{}',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		task_description TEXT NOT NULL,
		agent_kind TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT DEFAULT '',
		error TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		agent_kind TEXT DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_session_id ON tasks(session_id);
	CREATE INDEX IF NOT EXISTS idx_messages_session_id ON messages(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveSession persists a new session record.
func (s *SQLStore) SaveSession(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = now
	}

	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO sessions (id, name, project_path, description, status, created_at, updated_at, workspace_path, branch_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), session.ID, session.Name, session.ProjectPath, session.Description,
		session.Status, session.CreatedAt, session.UpdatedAt,
		session.WorkspacePath, session.BranchName)
	return err
}

// UpdateSessionStatus updates the status of a persisted session.
func (s *SQLStore) UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE sessions SET status = ?, updated_at = ? WHERE id = ?
	`), status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *SQLStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	err := s.db.GetContext(ctx, &session, s.db.Rebind(`
		SELECT id, name, project_path, description, status, created_at, updated_at, workspace_path, branch_name
		FROM sessions WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ListSessions returns all persisted sessions, most recently updated first.
func (s *SQLStore) ListSessions(ctx context.Context) ([]*models.Session, error) {
	var sessions []*models.Session
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT id, name, project_path, description, status, created_at, updated_at, workspace_path, branch_name
		FROM sessions ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// SaveAgentConfig inserts or replaces an agent configuration.
func (s *SQLStore) SaveAgentConfig(ctx context.Context, cfg *models.AgentConfig) error {
	configJSON, err := json.Marshal(cfg.Config)
	if err != nil {
		configJSON = []byte("{}")
	}
	permsJSON, err := json.Marshal(cfg.Permissions)
	if err != nil {
		permsJSON = []byte("{}")
	}
	now := time.Now().UTC()

	// Upsert keyed on the agent kind id.
	_, err = s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO agents (id, name, agent_kind, config, permissions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			agent_kind = excluded.agent_kind,
			config = excluded.config,
			permissions = excluded.permissions,
			updated_at = excluded.updated_at
	`), cfg.ID, cfg.Name, cfg.Kind, string(configJSON), string(permsJSON), now, now)
	return err
}

// ListAgentConfigs returns all persisted agent configurations.
func (s *SQLStore) ListAgentConfigs(ctx context.Context) ([]*models.AgentConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, agent_kind, config, permissions FROM agents ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.AgentConfig
	for rows.Next() {
		var (
			cfg        models.AgentConfig
			configJSON string
			permsJSON  string
		)
		if err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Kind, &configJSON, &permsJSON); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(configJSON), &cfg.Config)
		_ = json.Unmarshal([]byte(permsJSON), &cfg.Permissions)
		configs = append(configs, &cfg)
	}
	return configs, rows.Err()
}

// SaveTaskResult persists a task result.
func (s *SQLStore) SaveTaskResult(ctx context.Context, result *models.TaskResult) error {
	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO tasks (id, session_id, task_description, agent_kind, status, result, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), result.ID, result.SessionID, result.Description, result.AgentKind,
		result.Status, result.Result, result.Error, result.CreatedAt, result.CompletedAt)
	return err
}

// SaveMessage persists a conversation message.
func (s *SQLStore) SaveMessage(ctx context.Context, msg *models.ConversationMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO messages (id, session_id, role, content, agent_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), msg.ID, msg.SessionID, msg.Role, msg.Content, msg.AgentKind, msg.CreatedAt)
	return err
}

// ListMessages returns the persisted messages for a session in creation order.
func (s *SQLStore) ListMessages(ctx context.Context, sessionID string) ([]*models.ConversationMessage, error) {
	var messages []*models.ConversationMessage
	err := s.db.SelectContext(ctx, &messages, s.db.Rebind(`
		SELECT id, session_id, role, content, agent_kind, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, id
	`), sessionID)
	if err != nil {
		return nil, err
	}
	return messages, nil
}
