// Package bus provides event bus implementations for Kestrel.
package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a new event bus based on configuration.
// "channel" delivers in process, "nats" across processes, and "none"
// discards every message.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "none", "":
		return NoopBus{}, nil

	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

func newMessage(topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Metadata:  map[string]string{"source": "kestrel"},
		Timestamp: time.Now().UnixNano(),
	}
}

// NoopBus accepts every publish and never delivers.
type NoopBus struct{}

func (NoopBus) Publish(context.Context, string, []byte) error { return nil }

func (NoopBus) Subscribe(_ context.Context, topic string, _ domain.MessageHandler) (domain.Subscription, error) {
	return noopSubscription(topic), nil
}

func (NoopBus) Ping(context.Context) error { return nil }
func (NoopBus) Close() error               { return nil }

type noopSubscription string

func (noopSubscription) Unsubscribe() error { return nil }
func (s noopSubscription) Topic() string    { return string(s) }
