// Package registry manages available agent kinds and their permission grants.
package registry

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/session/models"
)

// Registry holds agent configurations keyed by agent kind.
type Registry struct {
	agents map[string]*models.AgentConfig
	mu     sync.RWMutex
	logger *logger.Logger
}

// NewRegistry creates an empty agent registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		agents: make(map[string]*models.AgentConfig),
		logger: log,
	}
}

// Register adds or replaces an agent configuration.
func (r *Registry) Register(cfg *models.AgentConfig) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *cfg
	r.agents[cfg.ID] = &cp
	r.logger.Info("registered agent", zap.String("id", cfg.ID), zap.String("kind", cfg.Kind))
	return nil
}

// Unregister removes an agent configuration.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[id]; !exists {
		return fmt.Errorf("agent %q not found", id)
	}
	delete(r.agents, id)
	r.logger.Info("unregistered agent", zap.String("id", id))
	return nil
}

// Get returns a copy of an agent configuration.
func (r *Registry) Get(id string) (*models.AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.agents[id]
	if !exists {
		return nil, fmt.Errorf("agent %q not found", id)
	}
	cp := *cfg
	return &cp, nil
}

// Permissions returns the permission grants for an agent kind.
func (r *Registry) Permissions(id string) (models.AgentPermissions, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.agents[id]
	if !exists {
		return models.AgentPermissions{}, fmt.Errorf("agent %q not found", id)
	}
	return cfg.Permissions, nil
}

// UpdatePermissions replaces the permission grants for an agent kind.
func (r *Registry) UpdatePermissions(id string, perms models.AgentPermissions) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, exists := r.agents[id]
	if !exists {
		return fmt.Errorf("agent %q not found", id)
	}
	cfg.Permissions = perms
	r.logger.Info("updated agent permissions", zap.String("id", id))
	return nil
}

// List returns copies of all registered agent configurations.
func (r *Registry) List() []*models.AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.AgentConfig, 0, len(r.agents))
	for _, cfg := range r.agents {
		cp := *cfg
		result = append(result, &cp)
	}
	return result
}

// Status reports an agent as ready if it is registered.
func (r *Registry) Status(id string) (*models.AgentStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, exists := r.agents[id]
	if !exists {
		return nil, fmt.Errorf("agent %q not found", id)
	}
	return &models.AgentStatus{
		ID:           cfg.ID,
		Name:         cfg.Name,
		Kind:         cfg.Kind,
		Status:       "ready",
		LastActivity: time.Now().UTC(),
	}, nil
}

// ListStatuses returns the status of every registered agent.
func (r *Registry) ListStatuses() []*models.AgentStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := time.Now().UTC()
	result := make([]*models.AgentStatus, 0, len(r.agents))
	for _, cfg := range r.agents {
		result = append(result, &models.AgentStatus{
			ID:           cfg.ID,
			Name:         cfg.Name,
			Kind:         cfg.Kind,
			Status:       "ready",
			LastActivity: now,
		})
	}
	return result
}

// Exists checks whether an agent kind is registered.
func (r *Registry) Exists(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.agents[id]
	return exists
}

// ValidateConfig validates an agent configuration.
func ValidateConfig(cfg *models.AgentConfig) error {
	if cfg.ID == "" {
		return fmt.Errorf("agent id is required")
	}
	if cfg.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if cfg.Kind == "" {
		return fmt.Errorf("agent kind is required")
	}
	return nil
}
