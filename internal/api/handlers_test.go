package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/agenttool/agenttool/internal/agent"
	"github.com/agenttool/agenttool/internal/agent/registry"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/events/bus"
	"github.com/agenttool/agenttool/internal/planner"
	"github.com/agenttool/agenttool/internal/session"
	"github.com/agenttool/agenttool/internal/session/models"
	"github.com/agenttool/agenttool/internal/session/store"
)

// stubAdapter satisfies agent.Adapter without spawning processes.
type stubAdapter struct {
	kind string
	mu   sync.Mutex
	live map[string]bool
}

func newStubAdapter(kind string) *stubAdapter {
	return &stubAdapter{kind: kind, live: make(map[string]bool)}
}

func (s *stubAdapter) Kind() string { return s.kind }

func (s *stubAdapter) StartSession(ctx context.Context, sessionID, workingPath string, perms models.AgentPermissions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live[sessionID] {
		return &agent.ErrSessionExists{SessionID: sessionID}
	}
	s.live[sessionID] = true
	return nil
}

func (s *stubAdapter) ExecuteTask(ctx context.Context, sessionID, task, taskContext string) (*models.TaskResult, error) {
	result := models.CompletedTask(sessionID, task, s.kind, "handled: "+task)
	return &result, nil
}

func (s *stubAdapter) ExecuteQuickTask(ctx context.Context, task, workingPath string) (*models.TaskResult, error) {
	result := models.CompletedTask("", task, s.kind, "handled: "+task)
	return &result, nil
}

func (s *stubAdapter) StopSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.live, sessionID)
	return nil
}

func (s *stubAdapter) SessionStatus(sessionID string) (*models.AgentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.live[sessionID] {
		return nil, false
	}
	return &models.AgentStatus{ID: sessionID, Kind: s.kind, Status: "active"}, true
}

func setupTestRouter(t *testing.T) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log, err := logger.New(logger.Config{Level: "error", Format: "console"})
	if err != nil {
		t.Fatalf("failed to create logger: %v", err)
	}

	st := store.NewMemoryStore()
	eventBus := bus.NewMemoryEventBus(log)

	reg := registry.NewRegistry(log)
	reg.LoadDefaults()

	pool := agent.NewPool(log)
	pool.Register(newStubAdapter(agent.KindClaude))
	pool.Register(newStubAdapter(agent.KindGemini))

	orch := session.NewOrchestrator(st, pool, planner.New(nil, log), nil, reg, eventBus, log)
	return NewRouter(orch, reg, pool, st, eventBus, log), st
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createSession(t *testing.T, router *gin.Engine) SessionResponse {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions", CreateSessionRequest{
		Name:        "test session",
		ProjectPath: t.TempDir(),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode session response: %v", err)
	}
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestCreateAndGetSession(t *testing.T) {
	router, _ := setupTestRouter(t)

	created := createSession(t, router)
	if created.Status != "created" {
		t.Errorf("expected status created, got %s", created.Status)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/sessions/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/sessions/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestCreateSessionValidation(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions", map[string]string{"name": "no path"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListSessions(t *testing.T) {
	router, _ := setupTestRouter(t)

	createSession(t, router)
	createSession(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/v1/sessions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp SessionsListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode list response: %v", err)
	}
	if resp.Total != 2 {
		t.Errorf("expected 2 sessions, got %d", resp.Total)
	}
}

func TestSendMessageFlow(t *testing.T) {
	router, _ := setupTestRouter(t)
	created := createSession(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/sessions/%s/messages", created.ID),
		SendMessageRequest{Content: "refactor the parser"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp MessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode messages response: %v", err)
	}
	if resp.Total != 2 {
		t.Fatalf("expected plan and result messages, got %d", resp.Total)
	}
	if resp.Messages[1].Content != "Task completed: handled: refactor the parser" {
		t.Errorf("unexpected result message: %s", resp.Messages[1].Content)
	}

	w = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/v1/sessions/%s/messages", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode history response: %v", err)
	}
	// system message + user message + plan + result
	if resp.Total != 4 {
		t.Errorf("expected 4 messages in history, got %d", resp.Total)
	}

	w = doJSON(t, router, http.MethodGet,
		fmt.Sprintf("/api/v1/sessions/%s/tasks", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var tasks TasksListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
		t.Fatalf("failed to decode tasks response: %v", err)
	}
	if tasks.Total != 1 {
		t.Errorf("expected 1 task, got %d", tasks.Total)
	}
}

func TestSendMessageUnknownSession(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sessions/missing/messages",
		SendMessageRequest{Content: "do something"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPauseResumeComplete(t *testing.T) {
	router, _ := setupTestRouter(t)
	created := createSession(t, router)

	w := doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/sessions/%s/pause", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", w.Code)
	}
	var resp SessionResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "paused" {
		t.Errorf("expected paused, got %s", resp.Status)
	}

	w = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/sessions/%s/resume", created.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d", w.Code)
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "active" {
		t.Errorf("expected active, got %s", resp.Status)
	}

	w = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/sessions/%s/complete", created.ID), CompleteSessionRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "completed" {
		t.Errorf("expected completed, got %s", resp.Status)
	}
}

func TestAgentEndpoints(t *testing.T) {
	router, _ := setupTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/agents", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list AgentsListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("failed to decode agents response: %v", err)
	}
	if list.Total != 3 {
		t.Errorf("expected 3 default agents, got %d", list.Total)
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/agents/claude_code/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/api/v1/agents", RegisterAgentRequest{
		ID:   "custom_agent",
		Name: "Custom Agent",
		Kind: "custom_agent",
		Permissions: models.AgentPermissions{
			FileRead:     true,
			AllowedPaths: []string{"**"},
		},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/agents/custom_agent", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, http.MethodPut, "/api/v1/agents/custom_agent/permissions",
		UpdatePermissionsRequest{Permissions: models.AgentPermissions{FileRead: true, FileWrite: true}})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var cfg models.AgentConfig
	if err := json.Unmarshal(w.Body.Bytes(), &cfg); err != nil {
		t.Fatalf("failed to decode agent config: %v", err)
	}
	if !cfg.Permissions.FileWrite {
		t.Error("expected file_write permission to be granted")
	}

	w = doJSON(t, router, http.MethodGet, "/api/v1/agents/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
