package registry

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/agenttool/agenttool/internal/session/models"
)

// registryFile is the structure of an agents.yaml file.
type registryFile struct {
	Agents []*models.AgentConfig `yaml:"agents"`
}

// LoadFile merges agent configurations from a YAML file. Entries with the
// same id override built-in agents. Invalid entries are skipped.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read registry file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse registry file: %w", err)
	}

	for _, cfg := range file.Agents {
		if err := r.Register(cfg); err != nil {
			r.logger.Warn("skipping invalid agent config",
				zap.String("id", cfg.ID),
				zap.Error(err))
		}
	}
	return nil
}
