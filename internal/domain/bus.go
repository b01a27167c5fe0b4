package domain

import "context"

// EventBus fans decisions, alerts and accepted fraud reports out to
// downstream consumers. Publishing is fire-and-forget and must never block
// an evaluation.
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string `json:"id"`
	Topic     string `json:"topic"`
	Payload   []byte `json:"payload"`
	Timestamp int64  `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type. Only "channel" is supported.
	Type string `yaml:"type" validate:"oneof=channel"`

	ChannelBufferSize int `yaml:"channel_buffer_size"`
}

// Standard topic names for the evaluation pipeline.
const (
	TopicDecision = "kestrel.decision"
	TopicAlert    = "kestrel.alert"
	TopicReport   = "kestrel.report"
)
