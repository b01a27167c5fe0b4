package bus

import (
	"fmt"

	"github.com/openrisk/kestrel/internal/domain"
)

// New creates an event bus based on configuration.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	default:
		return nil, fmt.Errorf("unsupported bus type: %s", cfg.Type)
	}
}
