// Package models defines the session-domain data model: sessions, their
// conversations, dispatched task results, and agent configuration.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusCreated   SessionStatus = "created"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// Session is one unit of user work against a project, with its own
// conversation and optional isolated workspace.
type Session struct {
	ID            string        `json:"id" db:"id"`
	Name          string        `json:"name" db:"name"`
	ProjectPath   string        `json:"project_path" db:"project_path"`
	Description   string        `json:"description,omitempty" db:"description"`
	Status        SessionStatus `json:"status" db:"status"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
	WorkspacePath string        `json:"workspace_path,omitempty" db:"workspace_path"`
	BranchName    string        `json:"branch_name,omitempty" db:"branch_name"`
}

// WorkingPath returns the directory agent work should happen in: the
// isolated workspace when one exists, the raw project path otherwise.
func (s *Session) WorkingPath() string {
	if s.WorkspacePath != "" {
		return s.WorkspacePath
	}
	return s.ProjectPath
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// ConversationMessage is one append-only entry in a session's conversation.
type ConversationMessage struct {
	ID        string      `json:"id" db:"id"`
	SessionID string      `json:"session_id" db:"session_id"`
	Role      MessageRole `json:"role" db:"role"`
	Content   string      `json:"content" db:"content"`
	AgentKind string      `json:"agent_kind,omitempty" db:"agent_kind"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// NewMessage allocates a conversation message with a fresh id and timestamp.
func NewMessage(sessionID string, role MessageRole, content, agentKind string) ConversationMessage {
	return ConversationMessage{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		AgentKind: agentKind,
		CreatedAt: time.Now().UTC(),
	}
}

// TaskStatus is the lifecycle state of a dispatched task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	}
	return false
}

// TaskResult records the outcome of one subtask dispatched to a backend
// agent. CompletedAt is set if and only if Status is terminal.
type TaskResult struct {
	ID          string     `json:"id" db:"id"`
	SessionID   string     `json:"session_id" db:"session_id"`
	Description string     `json:"task_description" db:"task_description"`
	AgentKind   string     `json:"agent_kind" db:"agent_kind"`
	Status      TaskStatus `json:"status" db:"status"`
	Result      string     `json:"result,omitempty" db:"result"`
	Error       string     `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// CompletedTask builds a terminal Completed task result.
func CompletedTask(sessionID, description, agentKind, result string) TaskResult {
	now := time.Now().UTC()
	return TaskResult{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Description: description,
		AgentKind:   agentKind,
		Status:      TaskStatusCompleted,
		Result:      result,
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

// FailedTask builds a terminal Failed task result.
func FailedTask(sessionID, description, agentKind, errMsg string) TaskResult {
	now := time.Now().UTC()
	return TaskResult{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		Description: description,
		AgentKind:   agentKind,
		Status:      TaskStatusFailed,
		Error:       errMsg,
		CreatedAt:   now,
		CompletedAt: &now,
	}
}

// AgentPermissions is the capability set attached to every dispatched task.
// It is enforced before execution and never relaxed mid-task.
type AgentPermissions struct {
	FileRead      bool     `json:"file_read" yaml:"file_read"`
	FileWrite     bool     `json:"file_write" yaml:"file_write"`
	NetworkAccess bool     `json:"network_access" yaml:"network_access"`
	ProcessSpawn  bool     `json:"process_spawn" yaml:"process_spawn"`
	AllowedPaths  []string `json:"allowed_paths" yaml:"allowed_paths"`
}

// AllowsPath reports whether the permission set admits the given working
// path: some allow-list entry is "**" or a prefix of the path.
func (p AgentPermissions) AllowsPath(path string) bool {
	for _, allowed := range p.AllowedPaths {
		if allowed == "**" {
			return true
		}
		if allowed != "" && len(path) >= len(allowed) && path[:len(allowed)] == allowed {
			return true
		}
	}
	return false
}

// AgentConfig describes one backend agent kind: display metadata, free-form
// backend configuration, and the default permission set attached to its tasks.
type AgentConfig struct {
	ID          string                 `json:"id" yaml:"id"`
	Name        string                 `json:"name" yaml:"name"`
	Kind        string                 `json:"agent_kind" yaml:"agent_kind"`
	Config      map[string]interface{} `json:"config" yaml:"config"`
	Permissions AgentPermissions       `json:"permissions" yaml:"permissions"`
}

// AgentStatus is a point-in-time view of one agent kind or agent session.
type AgentStatus struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Kind         string    `json:"agent_kind"`
	Status       string    `json:"status"`
	CurrentTask  string    `json:"current_task,omitempty"`
	LastActivity time.Time `json:"last_activity"`
}
