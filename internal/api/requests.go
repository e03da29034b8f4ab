// Package api provides the HTTP surface of the orchestration service.
package api

import (
	"time"

	"github.com/agenttool/agenttool/internal/session/models"
)

// CreateSessionRequest for creating a session
type CreateSessionRequest struct {
	Name        string `json:"name" binding:"required"`
	ProjectPath string `json:"project_path" binding:"required"`
	Description string `json:"description"`
}

// SendMessageRequest for submitting a user request to a session
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// CompleteSessionRequest for completing a session
type CompleteSessionRequest struct {
	Merge         bool   `json:"merge"`
	CommitMessage string `json:"commit_message"`
}

// MergeSessionRequest for merging a session workspace into main
type MergeSessionRequest struct {
	CommitMessage string `json:"commit_message"`
}

// RegisterAgentRequest for registering an agent kind
type RegisterAgentRequest struct {
	ID          string                  `json:"id" binding:"required"`
	Name        string                  `json:"name" binding:"required"`
	Kind        string                  `json:"agent_kind" binding:"required"`
	Config      map[string]interface{}  `json:"config"`
	Permissions models.AgentPermissions `json:"permissions"`
}

// UpdatePermissionsRequest for replacing an agent's permission set
type UpdatePermissionsRequest struct {
	Permissions models.AgentPermissions `json:"permissions" binding:"required"`
}

// Response types

// SessionResponse represents a session in API responses
type SessionResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	ProjectPath   string    `json:"project_path"`
	Description   string    `json:"description,omitempty"`
	Status        string    `json:"status"`
	WorkspacePath string    `json:"workspace_path,omitempty"`
	BranchName    string    `json:"branch_name,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SessionsListResponse wraps a session listing
type SessionsListResponse struct {
	Sessions []*SessionResponse `json:"sessions"`
	Total    int                `json:"total"`
}

// MessagesResponse wraps conversation messages
type MessagesResponse struct {
	Messages []models.ConversationMessage `json:"messages"`
	Total    int                          `json:"total"`
}

// TasksListResponse wraps task results
type TasksListResponse struct {
	Tasks []models.TaskResult `json:"tasks"`
	Total int                 `json:"total"`
}

// AgentsListResponse wraps agent configurations
type AgentsListResponse struct {
	Agents []*models.AgentConfig `json:"agents"`
	Total  int                   `json:"total"`
}

func sessionToResponse(s *models.Session) *SessionResponse {
	return &SessionResponse{
		ID:            s.ID,
		Name:          s.Name,
		ProjectPath:   s.ProjectPath,
		Description:   s.Description,
		Status:        string(s.Status),
		WorkspacePath: s.WorkspacePath,
		BranchName:    s.BranchName,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}
