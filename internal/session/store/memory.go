package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenttool/agenttool/internal/session/models"
)

// MemoryStore is an in-memory Store used in tests and when persistence
// is disabled.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	agents   map[string]*models.AgentConfig
	tasks    []*models.TaskResult
	messages map[string][]*models.ConversationMessage
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.Session),
		agents:   make(map[string]*models.AgentConfig),
		messages: make(map[string][]*models.ConversationMessage),
	}
}

func (s *MemoryStore) SaveSession(_ context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

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
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

func (s *MemoryStore) UpdateSessionStatus(_ context.Context, id string, status models.SessionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	session.Status = status
	session.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *MemoryStore) ListSessions(_ context.Context) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]*models.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		cp := *session
		sessions = append(sessions, &cp)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

func (s *MemoryStore) SaveAgentConfig(_ context.Context, cfg *models.AgentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *cfg
	s.agents[cfg.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAgentConfigs(_ context.Context) ([]*models.AgentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs := make([]*models.AgentConfig, 0, len(s.agents))
	for _, cfg := range s.agents {
		cp := *cfg
		configs = append(configs, &cp)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs, nil
}

func (s *MemoryStore) SaveTaskResult(_ context.Context, result *models.TaskResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	cp := *result
	s.tasks = append(s.tasks, &cp)
	return nil
}

func (s *MemoryStore) SaveMessage(_ context.Context, msg *models.ConversationMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	cp := *msg
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], &cp)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]*models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[sessionID]
	out := make([]*models.ConversationMessage, 0, len(msgs))
	for _, msg := range msgs {
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
