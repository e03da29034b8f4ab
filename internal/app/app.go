// Package app wires the service components together. All dependencies are
// constructed here and passed down explicitly; nothing reaches for global
// state.
package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/agenttool/agenttool/internal/agent"
	"github.com/agenttool/agenttool/internal/agent/credentials"
	"github.com/agenttool/agenttool/internal/agent/registry"
	"github.com/agenttool/agenttool/internal/common/config"
	"github.com/agenttool/agenttool/internal/common/logger"
	"github.com/agenttool/agenttool/internal/events/bus"
	"github.com/agenttool/agenttool/internal/planner"
	"github.com/agenttool/agenttool/internal/session"
	"github.com/agenttool/agenttool/internal/session/store"
	"github.com/agenttool/agenttool/internal/workspace"
)

// App holds every long-lived component of the service.
type App struct {
	Config       *config.Config
	Logger       *logger.Logger
	Bus          bus.EventBus
	Store        *store.SQLStore
	Registry     *registry.Registry
	Pool         *agent.Pool
	Planner      *planner.Planner
	Workspaces   *workspace.Manager
	Orchestrator *session.Orchestrator
}

// New builds the full component graph from configuration.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return nil, err
	}

	eventBus, err := bus.New(cfg.NATS, log)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	reg := registry.NewRegistry(log)
	reg.LoadDefaults()
	if cfg.Agents.RegistryFile != "" {
		if err := reg.LoadFile(cfg.Agents.RegistryFile); err != nil {
			log.Warn("failed to load agent registry file",
				zap.String("path", cfg.Agents.RegistryFile),
				zap.Error(err))
		}
	}

	pool := agent.NewPool(log)
	pool.Register(agent.NewClaudeAdapter(cfg.Agents.ClaudePath, log))
	pool.Register(agent.NewGeminiAdapter(cfg.Agents.GeminiPath, log))

	creds := credentials.NewManager(log)
	creds.AddProvider(credentials.NewEnvProvider("AGENTTOOL_"))

	// Without a credential the planner degrades to single-subtask plans.
	plannerCfg := cfg.Planner
	if plannerCfg.APIKey == "" {
		if cred, err := creds.Get(context.Background(), "OPENROUTER_API_KEY"); err == nil {
			plannerCfg.APIKey = cred.Value
		}
	}
	var completer planner.Completer
	if plannerCfg.APIKey != "" {
		completer = planner.NewOpenRouterClient(plannerCfg)
	}
	pl := planner.New(completer, log)

	workspaces, err := workspace.NewManager(cfg.Workspace, log)
	if err != nil {
		return nil, err
	}

	orch := session.NewOrchestrator(st, pool, pl, workspaces, reg, eventBus, log)

	return &App{
		Config:       cfg,
		Logger:       log,
		Bus:          eventBus,
		Store:        st,
		Registry:     reg,
		Pool:         pool,
		Planner:      pl,
		Workspaces:   workspaces,
		Orchestrator: orch,
	}, nil
}

// Shutdown stops agent backends, cleans up workspaces and releases the
// store and bus. Safe to call once at process exit.
func (a *App) Shutdown(ctx context.Context) {
	if err := a.Orchestrator.CleanupAllSessions(ctx); err != nil {
		a.Logger.Warn("session cleanup failed during shutdown", zap.Error(err))
	}
	a.Bus.Close()
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("failed to close store", zap.Error(err))
	}
}
