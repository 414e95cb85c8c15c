package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/casaflow/casaflow/pkg/channels/gochannel"
	"github.com/casaflow/casaflow/pkg/channels/kafka"
	"github.com/casaflow/casaflow/pkg/eventbus"
)

// NewEventBus creates an event bus for the topic on the selected
// provider. gochannel is in-process only and meant for local
// development.
func NewEventBus(provider, topic, serviceName string, logger *slog.Logger) eventbus.EventBus {
	switch provider {
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), serviceName)
		if err != nil {
			panic(fmt.Errorf("failed to create Kafka pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(topic, pub, sub)
	case "gochannel":
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			panic(fmt.Errorf("failed to create in-memory pub/sub: %w", err))
		}

		return eventbus.NewWatermillEventBus(topic, pub, sub)
	default:
		panic("Unsupported event bus provider: " + provider)
	}
}
