// Package stock is the stock participant: it reserves and commits inventory
// for the saga and answers with results that echo the command's envelope
// identity.
package stock

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/logging"
	"sagaflow/internal/pkg/metrics"
)

type Service struct {
	inventory Inventory
	publisher messaging.Publisher
	metrics   *metrics.Metrics
}

func NewService(inventory Inventory, publisher messaging.Publisher, m *metrics.Metrics) *Service {
	return &Service{inventory: inventory, publisher: publisher, metrics: m}
}

func (s *Service) HandleCreate(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.StockCreate](d.Body)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx).With(
		zap.String("order_id", env.Data.OrderID),
		zap.String("event_id", env.EventID),
	)

	res, err := s.inventory.Reserve(ctx, env.Data.OrderID, env.Data.Items)
	if err != nil {
		return fmt.Errorf("stock: reserve for order %s: %w", env.Data.OrderID, err)
	}
	log.Info("stock_create_handled",
		zap.Bool("success", res.Success),
		zap.Int64("reservation_id", res.ReservationID),
	)

	return s.respond(ctx, messaging.TopicStockCreateResult,
		messaging.Respond(env, messaging.StockResult{
			OrderID:       env.Data.OrderID,
			Success:       res.Success,
			ReservationID: res.ReservationID,
			Message:       res.Message,
		}))
}

func (s *Service) HandleConfirm(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.StockConfirm](d.Body)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx).With(
		zap.String("order_id", env.Data.OrderID),
		zap.String("event_id", env.EventID),
		zap.Int("current_try", env.CurrentTry),
	)

	res, err := s.inventory.Commit(ctx, env.Data.OrderID, env.Data.ReservationID)
	if err != nil {
		return fmt.Errorf("stock: commit for order %s: %w", env.Data.OrderID, err)
	}
	log.Info("stock_confirm_handled", zap.Bool("success", res.Success))

	return s.respond(ctx, messaging.TopicStockConfirmResult,
		messaging.Respond(env, messaging.StockResult{
			OrderID:       env.Data.OrderID,
			Success:       res.Success,
			ReservationID: res.ReservationID,
			Message:       res.Message,
		}))
}

func (s *Service) respond(ctx context.Context, topic string, env messaging.Envelope[messaging.StockResult]) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, topic, body); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues(topic).Inc()
		}
		return fmt.Errorf("stock: publish %s: %w", topic, err)
	}
	return nil
}
