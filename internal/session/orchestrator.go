// Package session implements the orchestration core: session lifecycle,
// conversation state and subtask dispatch.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agenttool/agenttool/internal/agent"
	"github.com/agenttool/agenttool/internal/agent/permission"
	"github.com/agenttool/agenttool/internal/agent/registry"
	apperrors "github.com/agenttool/agenttool/internal/common/errors"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/events"
	"github.com/agenttool/agenttool/internal/events/bus"
	"github.com/agenttool/agenttool/internal/planner"
	"github.com/agenttool/agenttool/internal/session/models"
	"github.com/agenttool/agenttool/internal/session/store"
	"github.com/agenttool/agenttool/internal/workspace"
)

// CoordinatorKind is the agent kind the orchestrator handles inline
// instead of dispatching to the pool.
const CoordinatorKind = "middle_manager"

// contextWindow bounds how many recent messages feed the planner.
const contextWindow = 10

// sessionData is the in-memory state of one active session. The copy in
// memory is authoritative while the session is active.
type sessionData struct {
	session models.Session
	history []models.ConversationMessage
	tasks   []models.TaskResult
}

// Orchestrator owns all session state and drives the conversation loop.
type Orchestrator struct {
	mu       sync.RWMutex
	sessions map[string]*sessionData

	store      store.Store
	pool       *agent.Pool
	planner    *planner.Planner
	workspaces *workspace.Manager
	registry   *registry.Registry
	bus        bus.EventBus
	logger     *logger.Logger
}

// NewOrchestrator wires the orchestrator with its collaborators.
func NewOrchestrator(
	st store.Store,
	pool *agent.Pool,
	pl *planner.Planner,
	ws *workspace.Manager,
	reg *registry.Registry,
	eventBus bus.EventBus,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		sessions:   make(map[string]*sessionData),
		store:      st,
		pool:       pool,
		planner:    pl,
		workspaces: ws,
		registry:   reg,
		bus:        eventBus,
		logger:     log.WithFields(zap.String("component", "orchestrator")),
	}
}

// CreateSession allocates a session, sets up workspace isolation when the
// project is version-controlled, persists the session and registers it in
// the active table. Workspace failure degrades to the raw project path;
// only a store rejection is fatal.
func (o *Orchestrator) CreateSession(ctx context.Context, name, projectPath, description string) (*models.Session, error) {
	sessionID := newSessionID()

	var workspacePath, branchName string
	if o.workspaces != nil && o.workspaces.IsGitRepo(ctx, projectPath) {
		path, err := o.workspaces.CreateWorkspace(ctx, projectPath, sessionID, "", "")
		if err != nil {
			o.logger.Warn("failed to create workspace, continuing without isolation",
				zap.String("session_id", sessionID),
				zap.Error(err))
		} else {
			workspacePath = path
			branchName = o.workspaces.BranchForSession(sessionID)
		}
	}

	now := time.Now().UTC()
	session := models.Session{
		ID:            sessionID,
		Name:          name,
		ProjectPath:   projectPath,
		Description:   description,
		Status:        models.SessionStatusCreated,
		CreatedAt:     now,
		UpdatedAt:     now,
		WorkspacePath: workspacePath,
		BranchName:    branchName,
	}

	if err := o.store.SaveSession(ctx, &session); err != nil {
		return nil, apperrors.Wrap(err, "failed to persist session")
	}

	o.mu.Lock()
	o.sessions[sessionID] = &sessionData{session: session}
	o.mu.Unlock()

	workspaceInfo := ""
	if workspacePath != "" {
		workspaceInfo = " with isolated git workspace at: " + workspacePath
	}
	if _, err := o.addMessage(ctx, sessionID, models.RoleSystem,
		fmt.Sprintf("Session '%s' created for project at: %s%s", name, projectPath, workspaceInfo), ""); err != nil {
		return nil, err
	}

	o.publish(ctx, events.SubjectSessions, events.SessionCreated, map[string]interface{}{
		"session_id":   sessionID,
		"name":         name,
		"project_path": projectPath,
	})

	o.logger.Info("created session",
		zap.String("session_id", sessionID),
		zap.String("name", name))
	return &session, nil
}

// GetSession returns the in-memory session, or nil if it is not active.
func (o *Orchestrator) GetSession(sessionID string) *models.Session {
	o.mu.RLock()
	defer o.mu.RUnlock()

	data, ok := o.sessions[sessionID]
	if !ok {
		return nil
	}
	cp := data.session
	return &cp
}

// ListSessions returns all persisted sessions; the store is the source of
// truth for historical sessions, not the active table.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]*models.Session, error) {
	return o.store.ListSessions(ctx)
}

// GetConversationHistory returns the in-memory history, empty if the
// session is not active.
func (o *Orchestrator) GetConversationHistory(sessionID string) []models.ConversationMessage {
	o.mu.RLock()
	defer o.mu.RUnlock()

	data, ok := o.sessions[sessionID]
	if !ok {
		return nil
	}
	history := make([]models.ConversationMessage, len(data.history))
	copy(history, data.history)
	return history
}

// GetSessionTasks returns the task results recorded for the session.
func (o *Orchestrator) GetSessionTasks(sessionID string) []models.TaskResult {
	o.mu.RLock()
	defer o.mu.RUnlock()

	data, ok := o.sessions[sessionID]
	if !ok {
		return nil
	}
	tasks := make([]models.TaskResult, len(data.tasks))
	copy(tasks, data.tasks)
	return tasks
}

// ExecuteUserRequest appends the user message, plans the request against
// recent conversation context, dispatches every subtask in plan order and
// folds each result back into the conversation. It returns every message
// appended during the call.
func (o *Orchestrator) ExecuteUserRequest(ctx context.Context, sessionID, text string) ([]models.ConversationMessage, error) {
	session := o.GetSession(sessionID)
	if session == nil {
		return nil, apperrors.NotFound("session", sessionID)
	}

	if _, err := o.addMessage(ctx, sessionID, models.RoleUser, text, ""); err != nil {
		return nil, err
	}
	o.setStatus(ctx, sessionID, models.SessionStatusActive, false)

	taskContext := buildContext(o.GetConversationHistory(sessionID))

	plan, err := o.planner.Plan(ctx, text, taskContext)
	if err != nil {
		return nil, apperrors.Wrap(err, "task planning failed")
	}

	var responses []models.ConversationMessage

	planMessage, err := o.addMessage(ctx, sessionID, models.RoleAssistant,
		fmt.Sprintf("Task decomposition: %s - %s", plan.Strategy, plan.Reasoning), CoordinatorKind)
	if err != nil {
		return nil, err
	}
	responses = append(responses, planMessage)

	// Subtasks run strictly in plan order. Dependency ids on subtasks are
	// descriptive only and do not reorder dispatch.
	for _, subtask := range plan.Subtasks {
		o.publish(ctx, events.SubjectTasks, events.TaskStarted, map[string]interface{}{
			"session_id": sessionID,
			"agent_kind": subtask.Agent,
		})

		result, err := o.dispatchSubtask(ctx, session, subtask)
		if err != nil {
			return nil, err
		}

		o.recordTaskResult(ctx, sessionID, *result)

		content := "Task completed with no output"
		if result.Error != "" {
			content = "Task failed: " + result.Error
		} else if result.Result != "" {
			content = "Task completed: " + result.Result
		}

		agentMessage, err := o.addMessage(ctx, sessionID, models.RoleAssistant, content, result.AgentKind)
		if err != nil {
			return nil, err
		}
		responses = append(responses, agentMessage)
	}

	return responses, nil
}

// dispatchSubtask routes one subtask to its agent. Coordinator subtasks
// are handled inline; everything else goes through the pool. An
// unrecognized agent kind aborts the whole request.
func (o *Orchestrator) dispatchSubtask(ctx context.Context, session *models.Session, subtask planner.SubTask) (*models.TaskResult, error) {
	if subtask.Agent == CoordinatorKind {
		result := models.CompletedTask(session.ID, subtask.Description, CoordinatorKind,
			"Coordination task handled by middle manager")
		return &result, nil
	}

	adapter, err := o.pool.Get(subtask.Agent)
	if err != nil {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown agent kind: %s", subtask.Agent))
	}

	workingPath := session.WorkingPath()

	// The gemini backend holds no useful per-session state, so each
	// subtask runs in an ephemeral session.
	if subtask.Agent == agent.KindGemini {
		result, err := adapter.ExecuteQuickTask(ctx, subtask.Description, workingPath)
		if err != nil {
			failed := models.FailedTask(session.ID, subtask.Description, subtask.Agent, err.Error())
			return &failed, nil
		}
		result.SessionID = session.ID
		return result, nil
	}

	if _, active := adapter.SessionStatus(session.ID); !active {
		perms := o.permissionsFor(subtask.Agent, workingPath)
		err := adapter.StartSession(ctx, session.ID, workingPath, perms)
		var exists *agent.ErrSessionExists
		if err != nil && !errors.As(err, &exists) {
			// Spawn failure is a backend failure of this subtask, not a
			// reason to abort the remaining subtasks.
			result := models.FailedTask(session.ID, subtask.Description, subtask.Agent, err.Error())
			return &result, nil
		}
	}

	result, err := adapter.ExecuteTask(ctx, session.ID, subtask.Description, "")
	if err != nil {
		failed := models.FailedTask(session.ID, subtask.Description, subtask.Agent, err.Error())
		return &failed, nil
	}
	return result, nil
}

// permissionsFor resolves the permissions attached to a dispatch from the
// registry, extending the allow-list with the session working path.
func (o *Orchestrator) permissionsFor(kind, workingPath string) models.AgentPermissions {
	perms := models.AgentPermissions{
		FileRead:      true,
		FileWrite:     true,
		NetworkAccess: true,
		ProcessSpawn:  true,
	}
	if o.registry != nil {
		if fromRegistry, err := o.registry.Permissions(kind); err == nil {
			perms = fromRegistry
		}
	}
	perms.AllowedPaths = append([]string{workingPath}, perms.AllowedPaths...)
	if len(perms.AllowedPaths) == 1 {
		perms.AllowedPaths = append(perms.AllowedPaths, "**")
	}
	return perms
}

// PauseSession marks the session Paused and stops the default coding
// assistant's backend process. Stop failures are swallowed.
func (o *Orchestrator) PauseSession(ctx context.Context, sessionID string) error {
	if !o.setStatus(ctx, sessionID, models.SessionStatusPaused, true) {
		return apperrors.NotFound("session", sessionID)
	}

	if adapter, err := o.pool.Get(planner.DefaultAgent); err == nil {
		_ = adapter.StopSession(ctx, sessionID)
	}

	o.publish(ctx, events.SubjectSessions, events.SessionPaused, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// ResumeSession marks the session Active. Stopped backend processes are
// recreated lazily on the next dispatch.
func (o *Orchestrator) ResumeSession(ctx context.Context, sessionID string) error {
	if !o.setStatus(ctx, sessionID, models.SessionStatusActive, true) {
		return apperrors.NotFound("session", sessionID)
	}

	o.publish(ctx, events.SubjectSessions, events.SessionResumed, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// CompleteSession marks the session Completed, stops all of its backend
// processes and tears down the workspace: merged into main when merge is
// set, removed otherwise. Removal failures are swallowed; a failed merge
// is surfaced because integration did not happen.
func (o *Orchestrator) CompleteSession(ctx context.Context, sessionID string, merge bool, commitMessage string) error {
	session := o.GetSession(sessionID)
	if session == nil {
		return apperrors.NotFound("session", sessionID)
	}

	o.pool.StopSession(ctx, sessionID)

	if session.WorkspacePath != "" && o.workspaces != nil {
		if merge {
			if commitMessage == "" {
				commitMessage = fmt.Sprintf("Squashed changes from session %s", sessionID)
			}
			if err := o.workspaces.SquashAndMergeToMain(ctx, session.ProjectPath, session.WorkspacePath, commitMessage, ""); err != nil {
				return apperrors.Wrap(err, "failed to merge session workspace")
			}
			o.publish(ctx, events.SubjectSessions, events.SessionMerged, map[string]interface{}{
				"session_id": sessionID,
			})
		}
		_ = o.workspaces.RemoveWorkspace(ctx, session.ProjectPath, session.WorkspacePath)
	}

	o.setStatus(ctx, sessionID, models.SessionStatusCompleted, true)
	o.publish(ctx, events.SubjectSessions, events.SessionCompleted, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// MergeSessionToMain squash-merges the session workspace into the main
// branch without completing the session.
func (o *Orchestrator) MergeSessionToMain(ctx context.Context, sessionID, commitMessage string) error {
	session := o.GetSession(sessionID)
	if session == nil {
		return apperrors.NotFound("session", sessionID)
	}
	if session.WorkspacePath == "" || o.workspaces == nil {
		return apperrors.BadRequest("session has no isolated workspace to merge")
	}

	if err := o.workspaces.SquashAndMergeToMain(ctx, session.ProjectPath, session.WorkspacePath, commitMessage, ""); err != nil {
		return apperrors.Wrap(err, "failed to merge session workspace")
	}

	o.publish(ctx, events.SubjectSessions, events.SessionMerged, map[string]interface{}{
		"session_id": sessionID,
	})
	return nil
}

// CleanupAllSessions stops every backend process, removes abandoned
// workspaces for each known project and clears the active table. Used at
// shutdown; individual failures are logged, never fatal.
func (o *Orchestrator) CleanupAllSessions(ctx context.Context) error {
	o.mu.RLock()
	sessionIDs := make([]string, 0, len(o.sessions))
	projects := make(map[string]bool)
	for id, data := range o.sessions {
		sessionIDs = append(sessionIDs, id)
		projects[data.session.ProjectPath] = true
	}
	o.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range sessionIDs {
		id := id
		g.Go(func() error {
			o.pool.StopSession(gctx, id)
			return nil
		})
	}
	_ = g.Wait()

	if o.workspaces != nil {
		for project := range projects {
			if err := o.workspaces.CleanupAbandonedWorkspaces(ctx, project, nil); err != nil {
				o.logger.Warn("failed to clean up workspaces",
					zap.String("project_path", project),
					zap.Error(err))
			}
		}
	}

	o.mu.Lock()
	o.sessions = make(map[string]*sessionData)
	o.mu.Unlock()
	return nil
}

// addMessage appends to the session history under the write lock and
// persists the message best-effort.
func (o *Orchestrator) addMessage(ctx context.Context, sessionID string, role models.MessageRole, content, agentKind string) (models.ConversationMessage, error) {
	message := models.NewMessage(sessionID, role, content, agentKind)

	o.mu.Lock()
	data, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return models.ConversationMessage{}, apperrors.NotFound("session", sessionID)
	}
	data.history = append(data.history, message)
	data.session.UpdatedAt = time.Now().UTC()
	o.mu.Unlock()

	if err := o.store.SaveMessage(ctx, &message); err != nil {
		o.logger.Warn("failed to persist message",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	o.publish(ctx, events.SubjectMessages, events.MessageAdded, map[string]interface{}{
		"session_id": sessionID,
		"message_id": message.ID,
		"role":       string(role),
	})
	return message, nil
}

// recordTaskResult stores the result in memory and best-effort in the
// store, and publishes the matching task event.
func (o *Orchestrator) recordTaskResult(ctx context.Context, sessionID string, result models.TaskResult) {
	o.mu.Lock()
	if data, ok := o.sessions[sessionID]; ok {
		data.tasks = append(data.tasks, result)
	}
	o.mu.Unlock()

	if err := o.store.SaveTaskResult(ctx, &result); err != nil {
		o.logger.Warn("failed to persist task result",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	eventType := events.TaskCompleted
	switch {
	case result.Error == permission.RejectionMessage:
		eventType = events.TaskRejected
	case result.Status == models.TaskStatusFailed:
		eventType = events.TaskFailed
	}
	o.publish(ctx, events.SubjectTasks, eventType, map[string]interface{}{
		"session_id": sessionID,
		"task_id":    result.ID,
		"agent_kind": result.AgentKind,
		"status":     string(result.Status),
	})
}

// setStatus updates the in-memory status and optionally persists it.
// Returns false when the session is not in the active table.
func (o *Orchestrator) setStatus(ctx context.Context, sessionID string, status models.SessionStatus, persist bool) bool {
	o.mu.Lock()
	data, ok := o.sessions[sessionID]
	if !ok {
		o.mu.Unlock()
		return false
	}
	data.session.Status = status
	data.session.UpdatedAt = time.Now().UTC()
	o.mu.Unlock()

	if persist {
		if err := o.store.UpdateSessionStatus(ctx, sessionID, status); err != nil {
			o.logger.Warn("failed to persist session status",
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
	return true
}

// publish emits a domain event. Delivery is best-effort.
func (o *Orchestrator) publish(ctx context.Context, subject, eventType string, data map[string]interface{}) {
	if o.bus == nil {
		return
	}
	if err := o.bus.Publish(ctx, subject, bus.NewEvent(eventType, "orchestrator", data)); err != nil {
		o.logger.Debug("failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// buildContext renders the most recent messages, oldest first, as
// `Role[ (agentKind)]: content` lines.
func buildContext(history []models.ConversationMessage) string {
	start := 0
	if len(history) > contextWindow {
		start = len(history) - contextWindow
	}

	lines := make([]string, 0, len(history)-start)
	for _, msg := range history[start:] {
		agentInfo := ""
		if msg.AgentKind != "" {
			agentInfo = fmt.Sprintf(" (%s)", msg.AgentKind)
		}
		lines = append(lines, fmt.Sprintf("%s%s: %s", roleLabel(msg.Role), agentInfo, msg.Content))
	}
	return strings.Join(lines, "\n")
}

func newSessionID() string {
	return uuid.New().String()
}

func roleLabel(role models.MessageRole) string {
	switch role {
	case models.RoleUser:
		return "User"
	case models.RoleAssistant:
		return "Assistant"
	case models.RoleSystem:
		return "System"
	}
	return string(role)
}
