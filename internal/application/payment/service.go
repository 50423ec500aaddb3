// Package payment is the payment participant: it executes the create and
// confirm commands against the gateway and publishes results that echo the
// command's envelope identity, leaving retry decisions to the orchestrator.
package payment

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/logging"
	"sagaflow/internal/pkg/metrics"
)

type Service struct {
	gateway   Gateway
	publisher messaging.Publisher
	metrics   *metrics.Metrics
}

func NewService(gateway Gateway, publisher messaging.Publisher, m *metrics.Metrics) *Service {
	return &Service{gateway: gateway, publisher: publisher, metrics: m}
}

func (s *Service) HandleCreate(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.PaymentCreate](d.Body)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx).With(
		zap.String("order_id", env.Data.OrderID),
		zap.String("event_id", env.EventID),
	)

	res, err := s.gateway.CreatePayment(ctx, env.Data.OrderID, env.Data.Amount, env.Data.PaymentMethod)
	if err != nil {
		return fmt.Errorf("payment: create for order %s: %w", env.Data.OrderID, err)
	}
	log.Info("payment_create_handled",
		zap.Bool("success", res.Success),
		zap.Int64("payment_id", res.PaymentID),
	)

	return s.respond(ctx, messaging.TopicPaymentCreateResult,
		messaging.Respond(env, messaging.PaymentResult{
			OrderID:   env.Data.OrderID,
			Success:   res.Success,
			PaymentID: res.PaymentID,
			Message:   res.Message,
		}))
}

func (s *Service) HandleConfirm(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.PaymentConfirm](d.Body)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx).With(
		zap.String("order_id", env.Data.OrderID),
		zap.String("event_id", env.EventID),
		zap.Int("current_try", env.CurrentTry),
	)

	res, err := s.gateway.ConfirmPayment(ctx, env.Data.OrderID, env.Data.PaymentID)
	if err != nil {
		return fmt.Errorf("payment: confirm for order %s: %w", env.Data.OrderID, err)
	}
	log.Info("payment_confirm_handled", zap.Bool("success", res.Success))

	return s.respond(ctx, messaging.TopicPaymentConfirmResult,
		messaging.Respond(env, messaging.PaymentResult{
			OrderID:   env.Data.OrderID,
			Success:   res.Success,
			PaymentID: res.PaymentID,
			Message:   res.Message,
		}))
}

func (s *Service) respond(ctx context.Context, topic string, env messaging.Envelope[messaging.PaymentResult]) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, topic, body); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues(topic).Inc()
		}
		return fmt.Errorf("payment: publish %s: %w", topic, err)
	}
	return nil
}
