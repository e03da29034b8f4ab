package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/common/logger"
)

// Pool maps agent kinds to their adapters. Adapters are registered at
// startup; lookups at dispatch time are read-only.
type Pool struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   *logger.Logger
}

// NewPool creates an empty adapter pool.
func NewPool(log *logger.Logger) *Pool {
	return &Pool{
		adapters: make(map[string]Adapter),
		logger:   log,
	}
}

// Register adds an adapter for its kind, replacing any previous one.
func (p *Pool) Register(a Adapter) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adapters[a.Kind()] = a
	p.logger.Info("registered agent adapter", zap.String("kind", a.Kind()))
}

// Get returns the adapter for an agent kind.
func (p *Pool) Get(kind string) (Adapter, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	a, ok := p.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for agent kind %q", kind)
	}
	return a, nil
}

// Has reports whether an adapter is registered for the kind.
func (p *Pool) Has(kind string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.adapters[kind]
	return ok
}

// Kinds returns the registered agent kinds in sorted order.
func (p *Pool) Kinds() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	kinds := make([]string, 0, len(p.adapters))
	for kind := range p.adapters {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

// StopSession stops the session on every registered adapter. Individual
// stop failures are logged, never surfaced.
func (p *Pool) StopSession(ctx context.Context, sessionID string) {
	p.mu.RLock()
	adapters := make([]Adapter, 0, len(p.adapters))
	for _, a := range p.adapters {
		adapters = append(adapters, a)
	}
	p.mu.RUnlock()

	for _, a := range adapters {
		if err := a.StopSession(ctx, sessionID); err != nil {
			p.logger.Warn("failed to stop agent session",
				zap.String("kind", a.Kind()),
				zap.String("session_id", sessionID),
				zap.Error(err))
		}
	}
}
