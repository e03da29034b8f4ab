package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/agent"
	"github.com/agenttool/agenttool/internal/agent/registry"
	"github.com/agenttool/agenttool/internal/common/errors"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/session"
	"github.com/agenttool/agenttool/internal/session/models"
	"github.com/agenttool/agenttool/internal/session/store"
)

// Handler contains HTTP handlers for the orchestration API
type Handler struct {
	orch     *session.Orchestrator
	registry *registry.Registry
	pool     *agent.Pool
	store    store.Store
	logger   *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(orch *session.Orchestrator, reg *registry.Registry, pool *agent.Pool, st store.Store, log *logger.Logger) *Handler {
	return &Handler{
		orch:     orch,
		registry: reg,
		pool:     pool,
		store:    st,
		logger:   log,
	}
}

// respondError maps an error to its HTTP status, wrapping non-AppErrors
// as internal errors.
func respondError(c *gin.Context, err error, message string) {
	appErr := errors.Wrap(err, message)
	c.JSON(appErr.HTTPStatus, appErr)
}

// Session endpoints

// CreateSession creates a new session
// POST /api/v1/sessions
func (h *Handler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	sess, err := h.orch.CreateSession(c.Request.Context(), req.Name, req.ProjectPath, req.Description)
	if err != nil {
		h.logger.Error("failed to create session", zap.Error(err))
		respondError(c, err, "failed to create session")
		return
	}

	c.JSON(http.StatusCreated, sessionToResponse(sess))
}

// ListSessions returns all sessions
// GET /api/v1/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.orch.ListSessions(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		respondError(c, err, "failed to list sessions")
		return
	}

	resp := SessionsListResponse{
		Sessions: make([]*SessionResponse, len(sessions)),
		Total:    len(sessions),
	}
	for i, s := range sessions {
		resp.Sessions[i] = sessionToResponse(s)
	}

	c.JSON(http.StatusOK, resp)
}

// GetSession retrieves a session by ID, falling back to the store for
// sessions that are no longer active
// GET /api/v1/sessions/:sessionId
func (h *Handler) GetSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if sess := h.orch.GetSession(sessionID); sess != nil {
		c.JSON(http.StatusOK, sessionToResponse(sess))
		return
	}

	sess, err := h.store.GetSession(c.Request.Context(), sessionID)
	if err != nil {
		appErr := errors.NotFound("session", sessionID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(sess))
}

// SendMessage submits a user request and returns the messages it produced
// POST /api/v1/sessions/:sessionId/messages
func (h *Handler) SendMessage(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	messages, err := h.orch.ExecuteUserRequest(c.Request.Context(), sessionID, req.Content)
	if err != nil {
		h.logger.Error("failed to execute user request",
			zap.String("session_id", sessionID),
			zap.Error(err))
		respondError(c, err, "failed to execute user request")
		return
	}

	c.JSON(http.StatusOK, MessagesResponse{Messages: messages, Total: len(messages)})
}

// ListMessages returns the conversation history of a session
// GET /api/v1/sessions/:sessionId/messages
func (h *Handler) ListMessages(c *gin.Context) {
	sessionID := c.Param("sessionId")

	history := h.orch.GetConversationHistory(sessionID)
	if history == nil {
		stored, err := h.store.ListMessages(c.Request.Context(), sessionID)
		if err != nil {
			respondError(c, err, "failed to list messages")
			return
		}
		history = make([]models.ConversationMessage, len(stored))
		for i, msg := range stored {
			history[i] = *msg
		}
	}

	c.JSON(http.StatusOK, MessagesResponse{Messages: history, Total: len(history)})
}

// ListTasks returns the task results recorded for a session
// GET /api/v1/sessions/:sessionId/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	sessionID := c.Param("sessionId")

	tasks := h.orch.GetSessionTasks(sessionID)
	if tasks == nil {
		tasks = []models.TaskResult{}
	}

	c.JSON(http.StatusOK, TasksListResponse{Tasks: tasks, Total: len(tasks)})
}

// PauseSession pauses a session
// POST /api/v1/sessions/:sessionId/pause
func (h *Handler) PauseSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.orch.PauseSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, err, "failed to pause session")
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(h.orch.GetSession(sessionID)))
}

// ResumeSession resumes a paused session
// POST /api/v1/sessions/:sessionId/resume
func (h *Handler) ResumeSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	if err := h.orch.ResumeSession(c.Request.Context(), sessionID); err != nil {
		respondError(c, err, "failed to resume session")
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(h.orch.GetSession(sessionID)))
}

// CompleteSession completes a session, optionally merging its workspace
// POST /api/v1/sessions/:sessionId/complete
func (h *Handler) CompleteSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req CompleteSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr := errors.BadRequest(err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}

	if err := h.orch.CompleteSession(c.Request.Context(), sessionID, req.Merge, req.CommitMessage); err != nil {
		h.logger.Error("failed to complete session",
			zap.String("session_id", sessionID),
			zap.Error(err))
		respondError(c, err, "failed to complete session")
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(h.orch.GetSession(sessionID)))
}

// MergeSession squash-merges the session workspace into the main branch
// POST /api/v1/sessions/:sessionId/merge
func (h *Handler) MergeSession(c *gin.Context) {
	sessionID := c.Param("sessionId")

	var req MergeSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			appErr := errors.BadRequest(err.Error())
			c.JSON(appErr.HTTPStatus, appErr)
			return
		}
	}

	if err := h.orch.MergeSessionToMain(c.Request.Context(), sessionID, req.CommitMessage); err != nil {
		respondError(c, err, "failed to merge session")
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(h.orch.GetSession(sessionID)))
}

// Agent endpoints

// RegisterAgent registers a new agent kind
// POST /api/v1/agents
func (h *Handler) RegisterAgent(c *gin.Context) {
	var req RegisterAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	cfg := &models.AgentConfig{
		ID:          req.ID,
		Name:        req.Name,
		Kind:        req.Kind,
		Config:      req.Config,
		Permissions: req.Permissions,
	}
	if err := h.registry.Register(cfg); err != nil {
		respondError(c, err, "failed to register agent")
		return
	}

	if err := h.store.SaveAgentConfig(c.Request.Context(), cfg); err != nil {
		h.logger.Warn("failed to persist agent config",
			zap.String("agent_id", cfg.ID),
			zap.Error(err))
	}

	c.JSON(http.StatusCreated, cfg)
}

// ListAgents returns all registered agent kinds
// GET /api/v1/agents
func (h *Handler) ListAgents(c *gin.Context) {
	agents := h.registry.List()
	c.JSON(http.StatusOK, AgentsListResponse{Agents: agents, Total: len(agents)})
}

// GetAgent retrieves an agent configuration
// GET /api/v1/agents/:agentId
func (h *Handler) GetAgent(c *gin.Context) {
	agentID := c.Param("agentId")

	cfg, err := h.registry.Get(agentID)
	if err != nil {
		appErr := errors.NotFound("agent", agentID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, cfg)
}

// GetAgentStatus reports the status of an agent kind
// GET /api/v1/agents/:agentId/status
func (h *Handler) GetAgentStatus(c *gin.Context) {
	agentID := c.Param("agentId")

	status, err := h.registry.Status(agentID)
	if err != nil {
		appErr := errors.NotFound("agent", agentID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, status)
}

// UpdateAgentPermissions replaces an agent's permission set
// PUT /api/v1/agents/:agentId/permissions
func (h *Handler) UpdateAgentPermissions(c *gin.Context) {
	agentID := c.Param("agentId")

	var req UpdatePermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		appErr := errors.BadRequest(err.Error())
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	if err := h.registry.UpdatePermissions(agentID, req.Permissions); err != nil {
		appErr := errors.NotFound("agent", agentID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	cfg, err := h.registry.Get(agentID)
	if err != nil {
		appErr := errors.NotFound("agent", agentID)
		c.JSON(appErr.HTTPStatus, appErr)
		return
	}

	c.JSON(http.StatusOK, cfg)
}
