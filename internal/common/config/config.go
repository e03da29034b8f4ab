// Package config provides configuration management for the AgentTool backend.
// It supports loading configuration from environment variables, config files,
// and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the service.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Workspace WorkspaceConfig `mapstructure:"workspace"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Agents    AgentsConfig    `mapstructure:"agents"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"readTimeout"`  // in seconds
	WriteTimeout int    `mapstructure:"writeTimeout"` // in seconds
}

// DatabaseConfig holds persistent store configuration.
// Driver selects between the embedded sqlite store and postgres.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"` // sqlite or postgres
	Path     string `mapstructure:"path"`   // sqlite file path
	DSN      string `mapstructure:"dsn"`    // postgres connection string
	MaxConns int    `mapstructure:"maxConns"`
	MinConns int    `mapstructure:"minConns"`
}

// NATSConfig holds NATS messaging configuration.
// An empty URL selects the in-memory event bus.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	ClientID      string `mapstructure:"clientId"`
	MaxReconnects int    `mapstructure:"maxReconnects"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// WorkspaceConfig holds git worktree isolation configuration.
type WorkspaceConfig struct {
	BasePath      string `mapstructure:"basePath"`      // base directory for session worktrees
	BranchPrefix  string `mapstructure:"branchPrefix"`  // prefix for session branches (default: session/)
	DefaultBranch string `mapstructure:"defaultBranch"` // fallback base branch when probing fails
}

// PlannerConfig holds the task-decomposition planner configuration.
type PlannerConfig struct {
	APIKey    string `mapstructure:"apiKey"`    // OpenRouter API key; empty disables remote planning
	Model     string `mapstructure:"model"`     // completion model identifier
	Endpoint  string `mapstructure:"endpoint"`  // chat completions endpoint
	MaxTokens int    `mapstructure:"maxTokens"` // completion token budget
	TimeoutS  int    `mapstructure:"timeout"`   // request timeout in seconds
}

// AgentsConfig holds backend agent adapter configuration.
type AgentsConfig struct {
	ClaudePath   string `mapstructure:"claudePath"`   // claude-code executable
	GeminiPath   string `mapstructure:"geminiPath"`   // gemini CLI executable
	RegistryFile string `mapstructure:"registryFile"` // optional agents.yaml with extra agent kinds
}

// ReadTimeoutDuration returns the read timeout as a time.Duration.
func (s *ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// WriteTimeoutDuration returns the write timeout as a time.Duration.
func (s *ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// Timeout returns the planner request timeout as a time.Duration.
func (p *PlannerConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutS) * time.Second
}

// detectDefaultLogFormat returns json for production environments and
// text (human-readable console output) for terminal use.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("AGENTTOOL_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8085)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 30)

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./agenttool.db")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// NATS defaults - empty URL means use in-memory event bus
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.clientId", "agenttool-backend")
	v.SetDefault("nats.maxReconnects", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	// Workspace defaults
	v.SetDefault("workspace.basePath", "~/.agenttool/worktrees")
	v.SetDefault("workspace.branchPrefix", "session/")
	v.SetDefault("workspace.defaultBranch", "main")

	// Planner defaults
	v.SetDefault("planner.apiKey", "")
	v.SetDefault("planner.model", "anthropic/claude-3-sonnet")
	v.SetDefault("planner.endpoint", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("planner.maxTokens", 2000)
	v.SetDefault("planner.timeout", 60)

	// Agent adapter defaults
	v.SetDefault("agents.claudePath", "claude-code")
	v.SetDefault("agents.geminiPath", "gemini")
	v.SetDefault("agents.registryFile", "")
}

// Load reads configuration from environment variables, config file, and
// defaults. Environment variables use the AGENTTOOL_ prefix with underscore
// naming; the config file is config.yaml in the current directory or
// /etc/agenttool/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTTOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase config keys to SNAKE_CASE env vars,
	// so bind the keys whose env name differs from the config key name. The
	// planner key also honors the original OPENROUTER_API_KEY variable.
	_ = v.BindEnv("planner.apiKey", "OPENROUTER_API_KEY", "AGENTTOOL_PLANNER_API_KEY")
	_ = v.BindEnv("workspace.basePath", "AGENTTOOL_WORKTREE_DIR", "AGENTTOOL_WORKSPACE_BASE_PATH")
	_ = v.BindEnv("database.driver", "AGENTTOOL_DB_DRIVER")
	_ = v.BindEnv("database.path", "AGENTTOOL_DB_PATH")
	_ = v.BindEnv("database.dsn", "AGENTTOOL_DB_DSN")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/agenttool/")
	}

	// A missing config file is fine; everything has a default.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
