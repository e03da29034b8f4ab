package agent

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/agent/permission"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/session/models"
)

// KindClaude is the agent kind served by ClaudeAdapter.
const KindClaude = "claude_code"

type claudeProcess struct {
	proc        *backendProcess
	workingPath string
	perms       models.AgentPermissions
}

// ClaudeAdapter drives claude-code CLI processes, one per session.
type ClaudeAdapter struct {
	mu          sync.Mutex
	processes   map[string]*claudeProcess
	executable  string
	quietPeriod time.Duration
	policy      *permission.Policy
	logger      *logger.Logger
}

// NewClaudeAdapter creates an adapter spawning the given executable.
func NewClaudeAdapter(executable string, log *logger.Logger) *ClaudeAdapter {
	return &ClaudeAdapter{
		processes:   make(map[string]*claudeProcess),
		executable:  executable,
		quietPeriod: defaultQuietPeriod,
		policy:      permission.ClaudePolicy(),
		logger:      log.WithAgentKind(KindClaude),
	}
}

func (a *ClaudeAdapter) Kind() string { return KindClaude }

// StartSession spawns a claude-code process for the session. Network is
// cut with a CLI flag when the permission set does not grant it, and the
// project path is only exported when file access is permitted.
func (a *ClaudeAdapter) StartSession(_ context.Context, sessionID, workingPath string, perms models.AgentPermissions) error {
	a.mu.Lock()
	if _, exists := a.processes[sessionID]; exists {
		a.mu.Unlock()
		return &ErrSessionExists{SessionID: sessionID}
	}
	a.mu.Unlock()

	args := []string{"--no-update-check"}
	if !perms.NetworkAccess {
		args = append(args, "--no-network")
	}

	var env []string
	if perms.FileRead || perms.FileWrite {
		env = append(env, "CLAUDE_PROJECT_PATH="+workingPath)
	}

	dir := ""
	if perms.AllowsPath(workingPath) {
		dir = workingPath
	}

	proc, err := spawnProcess(a.executable, args, env, dir)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.processes[sessionID]; exists {
		// Lost the race to another starter.
		_ = proc.terminate()
		return &ErrSessionExists{SessionID: sessionID}
	}
	a.processes[sessionID] = &claudeProcess{proc: proc, workingPath: workingPath, perms: perms}

	a.logger.Info("started claude session", zap.String("session_id", sessionID))
	return nil
}

// ExecuteTask gates the task, then forwards it to the session's process
// and collects the response. Rejections never reach the process.
func (a *ClaudeAdapter) ExecuteTask(ctx context.Context, sessionID, task, _ string) (*models.TaskResult, error) {
	a.mu.Lock()
	entry, ok := a.processes[sessionID]
	if !ok {
		a.mu.Unlock()
		return nil, &ErrSessionNotFound{SessionID: sessionID}
	}
	perms := entry.perms
	proc := entry.proc
	a.mu.Unlock()

	if !a.policy.Allows(task, perms) {
		result := models.FailedTask(sessionID, task, KindClaude, permission.RejectionMessage)
		return &result, nil
	}

	if err := proc.send(task); err != nil {
		result := models.FailedTask(sessionID, task, KindClaude, "failed to forward task: "+err.Error())
		return &result, nil
	}

	output, err := proc.collect(ctx, a.quietPeriod)
	if err != nil || output == "" {
		msg := "no output from agent backend"
		if err != nil {
			msg = err.Error()
		}
		result := models.FailedTask(sessionID, task, KindClaude, msg)
		return &result, nil
	}

	result := models.CompletedTask(sessionID, task, KindClaude, output)
	return &result, nil
}

// ExecuteQuickTask runs a one-off task in an ephemeral read-only session.
func (a *ClaudeAdapter) ExecuteQuickTask(ctx context.Context, task, workingPath string) (*models.TaskResult, error) {
	sessionID := uuid.New().String()
	perms := models.AgentPermissions{
		FileRead:      true,
		NetworkAccess: true,
		AllowedPaths:  []string{workingPath},
	}

	if err := a.StartSession(ctx, sessionID, workingPath, perms); err != nil {
		return nil, err
	}
	result, err := a.ExecuteTask(ctx, sessionID, task, "")
	_ = a.StopSession(ctx, sessionID)
	return result, err
}

// StopSession kills the session's process. Termination errors are logged
// only; cleanup is unconditional.
func (a *ClaudeAdapter) StopSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	entry, ok := a.processes[sessionID]
	delete(a.processes, sessionID)
	a.mu.Unlock()

	if !ok {
		return nil
	}
	if err := entry.proc.terminate(); err != nil {
		a.logger.Warn("failed to terminate claude process",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return nil
}

// SessionStatus reports whether a process is registered for the session.
func (a *ClaudeAdapter) SessionStatus(sessionID string) (*models.AgentStatus, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.processes[sessionID]; !ok {
		return nil, false
	}
	return &models.AgentStatus{
		ID:           sessionID,
		Name:         "Claude Code",
		Kind:         KindClaude,
		Status:       "active",
		LastActivity: time.Now().UTC(),
	}, true
}
