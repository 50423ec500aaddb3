package deadletter

import (
	"context"
	"encoding/json"
	"time"
)

// Context captures the delivery metadata of a dead-lettered message.
type Context struct {
	RoutingKey string            `json:"routingKey"`
	Headers    map[string]string `json:"headers,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	ReceivedAt time.Time         `json:"receivedAt"`
}

// DeadLetter is an opaque capture of a message that expired, was rejected, or
// could not be routed. The payload is stored verbatim for offline inspection.
type DeadLetter struct {
	Payload json.RawMessage `json:"payload"`
	Context Context         `json:"context"`
}

// Repository is the document-store port for the dlq collection.
type Repository interface {
	Insert(ctx context.Context, d *DeadLetter) error
	List(ctx context.Context) ([]*DeadLetter, error)
}
