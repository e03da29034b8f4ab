package agent

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/agent/permission"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/session/models"
)

// KindGemini is the agent kind served by GeminiAdapter.
const KindGemini = "gemini_cli"

// geminiStopGrace is how long a session gets to exit after the exit
// instruction before it is force-killed.
const geminiStopGrace = 500 * time.Millisecond

type geminiProcess struct {
	proc        *backendProcess
	workingPath string
	perms       models.AgentPermissions
}

// GeminiAdapter drives gemini CLI processes. The gemini backend has no
// offline mode, so sessions without network access are refused outright.
type GeminiAdapter struct {
	mu          sync.Mutex
	processes   map[string]*geminiProcess
	executable  string
	quietPeriod time.Duration
	stopGrace   time.Duration
	policy      *permission.Policy
	logger      *logger.Logger
}

// NewGeminiAdapter creates an adapter spawning the given executable.
func NewGeminiAdapter(executable string, log *logger.Logger) *GeminiAdapter {
	return &GeminiAdapter{
		processes:   make(map[string]*geminiProcess),
		executable:  executable,
		quietPeriod: defaultQuietPeriod,
		stopGrace:   geminiStopGrace,
		policy:      permission.GeminiPolicy(),
		logger:      log.WithAgentKind(KindGemini),
	}
}

func (a *GeminiAdapter) Kind() string { return KindGemini }

// StartSession spawns an interactive gemini process for the session.
func (a *GeminiAdapter) StartSession(_ context.Context, sessionID, workingPath string, perms models.AgentPermissions) error {
	if !perms.NetworkAccess {
		return fmt.Errorf("gemini CLI requires network access to function")
	}

	a.mu.Lock()
	if _, exists := a.processes[sessionID]; exists {
		a.mu.Unlock()
		return &ErrSessionExists{SessionID: sessionID}
	}
	a.mu.Unlock()

	var env []string
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		env = append(env, "GEMINI_API_KEY="+key)
	}
	if perms.FileRead || perms.FileWrite {
		env = append(env, "GEMINI_PROJECT_PATH="+workingPath)
	}

	dir := ""
	if perms.AllowsPath(workingPath) {
		dir = workingPath
	}

	proc, err := spawnProcess(a.executable, []string{"--interactive"}, env, dir)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.processes[sessionID]; exists {
		_ = proc.terminate()
		return &ErrSessionExists{SessionID: sessionID}
	}
	a.processes[sessionID] = &geminiProcess{proc: proc, workingPath: workingPath, perms: perms}

	a.logger.Info("started gemini session", zap.String("session_id", sessionID))
	return nil
}

// ExecuteTask gates the task, formats the prompt with any conversation
// context, and forwards it to the session's process.
func (a *GeminiAdapter) ExecuteTask(ctx context.Context, sessionID, task, taskContext string) (*models.TaskResult, error) {
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
		result := models.FailedTask(sessionID, task, KindGemini, permission.RejectionMessage)
		return &result, nil
	}

	prompt := formatGeminiPrompt(task, taskContext)
	if err := proc.send(prompt); err != nil {
		result := models.FailedTask(sessionID, task, KindGemini, "failed to forward task: "+err.Error())
		return &result, nil
	}

	output, err := proc.collect(ctx, a.quietPeriod)
	if err != nil || output == "" {
		msg := "no output from agent backend"
		if err != nil {
			msg = err.Error()
		}
		result := models.FailedTask(sessionID, task, KindGemini, msg)
		return &result, nil
	}

	result := models.CompletedTask(sessionID, task, KindGemini, cleanGeminiOutput(output))
	return &result, nil
}

// ExecuteQuickTask runs a one-off task in an ephemeral read-only session.
func (a *GeminiAdapter) ExecuteQuickTask(ctx context.Context, task, workingPath string) (*models.TaskResult, error) {
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

// StopSession asks the CLI to exit, waits the grace period, then kills
// whatever is left. Termination errors are logged only.
func (a *GeminiAdapter) StopSession(_ context.Context, sessionID string) error {
	a.mu.Lock()
	entry, ok := a.processes[sessionID]
	delete(a.processes, sessionID)
	a.mu.Unlock()

	if !ok {
		return nil
	}

	_ = entry.proc.send("exit")
	time.Sleep(a.stopGrace)

	if err := entry.proc.terminate(); err != nil {
		a.logger.Warn("failed to terminate gemini process",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	return nil
}

// SessionStatus reports whether a process is registered for the session.
func (a *GeminiAdapter) SessionStatus(sessionID string) (*models.AgentStatus, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.processes[sessionID]; !ok {
		return nil, false
	}
	return &models.AgentStatus{
		ID:           sessionID,
		Name:         "Gemini CLI",
		Kind:         KindGemini,
		Status:       "active",
		LastActivity: time.Now().UTC(),
	}, true
}

// formatGeminiPrompt renders the prompt the CLI receives on stdin.
func formatGeminiPrompt(task, taskContext string) string {
	var b strings.Builder
	if taskContext != "" {
		b.WriteString("Context: ")
		b.WriteString(taskContext)
		b.WriteString("\n\n")
	}
	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\n\nPlease provide a clear and concise response.")
	return b.String()
}

// cleanGeminiOutput strips CLI prompt markers and blank lines from the
// raw interactive output.
func cleanGeminiOutput(output string) string {
	var kept []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, ">>> ") || strings.HasPrefix(trimmed, "Gemini") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
