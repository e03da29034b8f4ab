package bus

import (
	"github.com/agenttool/agenttool/internal/common/config"
	"github.com/agenttool/agenttool/internal/common/logger"
)

// New selects the bus implementation from configuration. An empty NATS
// URL yields the in-memory bus.
func New(cfg config.NATSConfig, log *logger.Logger) (EventBus, error) {
	if cfg.URL == "" {
		return NewMemoryEventBus(log), nil
	}
	return NewNATSEventBus(cfg, log)
}
