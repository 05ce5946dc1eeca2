package bus

import (
	"fmt"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// New creates an event bus from configuration: "channel" for a single
// node, "nats" when several nodes share the pipeline.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}
