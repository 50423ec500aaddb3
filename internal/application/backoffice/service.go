// Package backoffice owns the operator-facing side of the saga: submitting
// trigger events and capturing dead-lettered messages for inspection.
package backoffice

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sagaflow/internal/domain/deadletter"
	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/logging"
	"sagaflow/internal/pkg/metrics"
)

type Service struct {
	deadLetters deadletter.Repository
	publisher   messaging.Publisher
	metrics     *metrics.Metrics
}

func NewService(deadLetters deadletter.Repository, publisher messaging.Publisher, m *metrics.Metrics) *Service {
	return &Service{deadLetters: deadLetters, publisher: publisher, metrics: m}
}

// SubmitOrder publishes an orders.create trigger and returns its eventId so
// the caller can correlate the saga it starts.
func (s *Service) SubmitOrder(ctx context.Context, payload messaging.OrderCreate) (string, error) {
	env := messaging.NewEnvelope(payload)
	body, err := env.Encode()
	if err != nil {
		return "", err
	}
	if err := s.publisher.Publish(ctx, messaging.TopicOrderCreate, body); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues(messaging.TopicOrderCreate).Inc()
		}
		return "", fmt.Errorf("backoffice: publish %s: %w", messaging.TopicOrderCreate, err)
	}
	return env.EventID, nil
}

// SubmitStockReservation publishes a standalone reservation command, used by
// operators to reserve stock outside an order saga.
func (s *Service) SubmitStockReservation(ctx context.Context, payload messaging.StockCreate) (string, error) {
	env := messaging.NewEnvelope(payload)
	body, err := env.Encode()
	if err != nil {
		return "", err
	}
	if err := s.publisher.Publish(ctx, messaging.TopicStockCreate, body); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues(messaging.TopicStockCreate).Inc()
		}
		return "", fmt.Errorf("backoffice: publish %s: %w", messaging.TopicStockCreate, err)
	}
	return env.EventID, nil
}

// HandleDeadLetter persists a dead-lettered message verbatim. It always
// acknowledges: a capture that failed to persist is logged, not redelivered,
// because looping a poison message through the dead-letter queue helps nobody.
func (s *Service) HandleDeadLetter(ctx context.Context, d messaging.Delivery) error {
	log := logging.FromContext(ctx)

	dl := &deadletter.DeadLetter{
		Payload: append([]byte(nil), d.Body...),
		Context: deadletter.Context{
			RoutingKey: d.Headers["x-original-routing-key"],
			Headers:    d.Headers,
			Reason:     d.Headers["x-death-reason"],
			ReceivedAt: time.Now().UTC(),
		},
	}
	if err := s.deadLetters.Insert(ctx, dl); err != nil {
		log.Error("dead_letter_persist_failed", zap.Error(err))
		return nil
	}
	if s.metrics != nil {
		s.metrics.DeadLetters.Inc()
	}
	log.Warn("dead_letter_captured",
		zap.String("original_routing_key", dl.Context.RoutingKey),
		zap.String("reason", dl.Context.Reason),
	)
	return nil
}
