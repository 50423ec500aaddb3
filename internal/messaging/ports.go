package messaging

import (
	"context"
	"time"
)

// Delivery is one message handed to a consumer.
type Delivery struct {
	RoutingKey  string
	Body        []byte
	Headers     map[string]string
	Redelivered bool
}

// Handler processes a delivery. A non-nil error leaves the message
// unacknowledged: the broker redelivers it until it succeeds or its TTL
// expires and it is dead-lettered. This is the crash-recovery path; handlers
// must not swallow transient store or publish failures.
type Handler func(ctx context.Context, d Delivery) error

// PublishOptions carry per-publish behavior.
type PublishOptions struct {
	// Delay holds the message at the broker before it is routed. Retries use
	// it to schedule backoff without blocking a consumer.
	Delay time.Duration
}

type PublishOption func(*PublishOptions)

// WithDelay delays routing of the message by d.
func WithDelay(d time.Duration) PublishOption {
	return func(o *PublishOptions) { o.Delay = d }
}

// Publisher publishes a message to the topic exchange.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte, opts ...PublishOption) error
}

// Subscriber binds a queue to a routing-key pattern. Patterns use topic
// matching: `*` matches exactly one word, `#` matches zero or more.
type Subscriber interface {
	Subscribe(queue, pattern string, h Handler)
}
