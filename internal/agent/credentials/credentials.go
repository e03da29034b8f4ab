// Package credentials resolves the API keys backend agents and the
// planner need, without ever persisting them.
package credentials

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/common/logger"
)

// Credential is a resolved secret. Value never appears in logs.
type Credential struct {
	Key    string
	Value  string
	Source string
}

// Provider resolves credentials from one backing source.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// GetCredential resolves a single key.
	GetCredential(ctx context.Context, key string) (*Credential, error)

	// ListAvailable returns the keys the provider can currently resolve.
	ListAvailable(ctx context.Context) ([]string, error)
}

// Manager queries providers in registration order and returns the first
// hit.
type Manager struct {
	providers []Provider
	logger    *logger.Logger
}

// NewManager creates an empty credentials manager.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{logger: log}
}

// AddProvider appends a provider. Earlier providers win.
func (m *Manager) AddProvider(p Provider) {
	m.providers = append(m.providers, p)
}

// Get resolves a credential across all providers.
func (m *Manager) Get(ctx context.Context, key string) (*Credential, error) {
	for _, p := range m.providers {
		cred, err := p.GetCredential(ctx, key)
		if err != nil {
			continue
		}
		m.logger.Debug("resolved credential",
			zap.String("key", key),
			zap.String("provider", p.Name()))
		return cred, nil
	}
	return nil, fmt.Errorf("credential not found: %s", key)
}

// ListAvailable merges the available keys of all providers.
func (m *Manager) ListAvailable(ctx context.Context) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, p := range m.providers {
		available, err := p.ListAvailable(ctx)
		if err != nil {
			continue
		}
		for _, key := range available {
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}
	}
	return keys
}
