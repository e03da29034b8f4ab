package registry

import "github.com/agenttool/agenttool/internal/session/models"

// DefaultAgents returns the built-in agent configurations.
func DefaultAgents() []*models.AgentConfig {
	return []*models.AgentConfig{
		{
			ID:   "claude_code",
			Name: "Claude Code",
			Kind: "claude_code",
			Config: map[string]interface{}{
				"executable_path": "claude-code",
				"default_args":    []string{"--no-update-check"},
			},
			Permissions: models.AgentPermissions{
				FileRead:      true,
				FileWrite:     true,
				NetworkAccess: true,
				ProcessSpawn:  true,
				AllowedPaths:  []string{"**"},
			},
		},
		{
			ID:   "gemini_cli",
			Name: "Gemini CLI",
			Kind: "gemini_cli",
			Config: map[string]interface{}{
				"executable_path": "gemini",
				"default_args":    []string{},
			},
			Permissions: models.AgentPermissions{
				FileRead:      true,
				FileWrite:     true,
				NetworkAccess: true,
				ProcessSpawn:  true,
				AllowedPaths:  []string{"**"},
			},
		},
		{
			ID:   "middle_manager",
			Name: "Middle Manager",
			Kind: "middle_manager",
			Config: map[string]interface{}{
				"default_model":              "anthropic/claude-3-sonnet",
				"task_decomposition_enabled": true,
			},
			Permissions: models.AgentPermissions{
				FileRead:      true,
				FileWrite:     false,
				NetworkAccess: true,
				ProcessSpawn:  false,
				AllowedPaths:  []string{"**"},
			},
		},
	}
}

// LoadDefaults registers the built-in agents.
func (r *Registry) LoadDefaults() {
	for _, cfg := range DefaultAgents() {
		_ = r.Register(cfg)
	}
}
