// Package orders hosts the saga orchestrator. It owns the order aggregate and
// drives the payment and stock participants through broker commands; all of
// its decisions are guarded by the order's status so redelivered and
// out-of-order results collapse into no-ops.
package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sagaflow/internal/domain/order"
	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/logging"
	"sagaflow/internal/pkg/metrics"
)

type Service struct {
	orders    order.Repository
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	backoff   messaging.Backoff
}

func NewService(orders order.Repository, publisher messaging.Publisher, m *metrics.Metrics, backoff messaging.Backoff) *Service {
	if backoff.Delay <= 0 {
		backoff.Delay = messaging.DefaultRetryDelay
	}
	if backoff.MaxTries <= 0 {
		backoff.MaxTries = messaging.DefaultMaxTries
	}
	return &Service{
		orders:    orders,
		publisher: publisher,
		metrics:   m,
		backoff:   backoff,
	}
}

// HandleOrderCreate starts a saga from an orders.create trigger. Redeliveries
// are detected by the trigger's eventId: if any order already carries it, the
// message is acknowledged without side effects.
func (s *Service) HandleOrderCreate(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.OrderCreate](d.Body)
	if err != nil {
		return err
	}
	log := logging.FromContext(ctx).With(zap.String("event_id", env.EventID))

	if existing, err := s.orders.FindByEventID(ctx, env.EventID); err == nil {
		log.Info("order_create_duplicate", zap.String("order_id", existing.ID))
		return nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return fmt.Errorf("orders: dedupe lookup: %w", err)
	}

	o := order.New(uuid.NewString(), env.EventID, env.Data.CustomerID,
		env.Data.Customer, env.Data.Items, env.Data.TotalAmount, env.Data.PaymentMethod)

	if err := s.orders.Insert(ctx, o); err != nil {
		if errors.Is(err, order.ErrConflict) {
			log.Info("order_create_duplicate", zap.String("order_id", o.ID))
			return nil
		}
		return fmt.Errorf("orders: insert order %s: %w", o.ID, err)
	}
	log.Info("order_created",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
	)

	return publish(ctx, s, messaging.TopicPaymentCreate,
		messaging.NewEnvelopeWithBackoff(messaging.PaymentCreate{
			OrderID:         o.ID,
			Amount:          o.Payment.TotalAmount,
			PaymentMethod:   o.Payment.PaymentMethod,
			ShippingAddress: o.Customer.Address.Delivery,
			BillingAddress:  o.Customer.Address.Billing,
		}, s.backoff))
}

// HandlePaymentCreateResult moves a pending order forward on success or
// cancels it on failure. Opening a payment is not retried; a participant that
// cannot even accept the payment fails the saga outright.
func (s *Service) HandlePaymentCreateResult(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.PaymentResult](d.Body)
	if err != nil {
		return err
	}
	o, log, err := s.load(ctx, env.Data.OrderID, env.EventID)
	if err != nil || o == nil {
		return err
	}

	if !env.Data.Success {
		return s.cancel(ctx, o, env.EventID, "payment rejected: "+env.Data.Message)
	}

	if err := o.PaymentAccepted(env.EventID, env.Data.PaymentID); err != nil {
		log.Warn("stale_payment_create_result", zap.String("status", string(o.Status)))
		return nil
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("orders: update order %s: %w", o.ID, err)
	}
	log.Info("payment_accepted", zap.Int64("payment_id", env.Data.PaymentID))

	return publish(ctx, s, messaging.TopicPaymentConfirm,
		messaging.NewEnvelopeWithBackoff(messaging.PaymentConfirm{
			OrderID:   o.ID,
			PaymentID: o.Payment.PaymentID,
		}, s.backoff))
}

// HandlePaymentConfirmResult advances a confirmed payment to the stock phase.
// Confirmation failures are retried with the envelope's backoff until the
// policy is exhausted, then the saga is canceled.
func (s *Service) HandlePaymentConfirmResult(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.PaymentResult](d.Body)
	if err != nil {
		return err
	}
	o, log, err := s.load(ctx, env.Data.OrderID, env.EventID)
	if err != nil || o == nil {
		return err
	}

	if env.Data.Success {
		if err := o.PaymentConfirmed(env.EventID); err != nil {
			log.Warn("stale_payment_confirm_result", zap.String("status", string(o.Status)))
			return nil
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return fmt.Errorf("orders: update order %s: %w", o.ID, err)
		}
		log.Info("payment_confirmed")

		return publish(ctx, s, messaging.TopicStockCreate,
			messaging.NewEnvelopeWithBackoff(messaging.StockCreate{
				OrderID: o.ID,
				Items:   o.Items,
			}, s.backoff))
	}

	// A failed confirmation only matters while the order is still waiting for
	// it; anything else is a late result.
	if o.Status != order.StatusPendingPayment {
		log.Warn("stale_payment_confirm_result", zap.String("status", string(o.Status)))
		return nil
	}
	if env.Exhausted() {
		return s.cancel(ctx, o, env.EventID, "payment confirmation retries exhausted: "+env.Data.Message)
	}
	return scheduleRetry(ctx, s, log, "payment.confirm", messaging.TopicPaymentConfirm,
		messaging.Retry(env, messaging.PaymentConfirm{
			OrderID:   o.ID,
			PaymentID: o.Payment.PaymentID,
		}))
}

// HandleStockCreateResult records the reservation and issues the confirmation
// command, or cancels on failure. Reservation is not retried for the same
// reason payment creation is not.
func (s *Service) HandleStockCreateResult(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.StockResult](d.Body)
	if err != nil {
		return err
	}
	o, log, err := s.load(ctx, env.Data.OrderID, env.EventID)
	if err != nil || o == nil {
		return err
	}

	if !env.Data.Success {
		return s.cancel(ctx, o, env.EventID, "stock reservation rejected: "+env.Data.Message)
	}

	if err := o.StockReserved(env.EventID, env.Data.ReservationID); err != nil {
		log.Warn("stale_stock_create_result", zap.String("status", string(o.Status)))
		return nil
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("orders: update order %s: %w", o.ID, err)
	}
	log.Info("stock_reserved", zap.Int64("reservation_id", env.Data.ReservationID))

	return publish(ctx, s, messaging.TopicStockConfirm,
		messaging.NewEnvelopeWithBackoff(messaging.StockConfirm{
			OrderID:       o.ID,
			ReservationID: o.StockReservationID,
		}, s.backoff))
}

// HandleStockConfirmResult closes the saga: a confirmed reservation makes the
// order ready. Failures retry with backoff, then cancel, mirroring the
// payment confirmation phase.
func (s *Service) HandleStockConfirmResult(ctx context.Context, d messaging.Delivery) error {
	env, err := messaging.Decode[messaging.StockResult](d.Body)
	if err != nil {
		return err
	}
	o, log, err := s.load(ctx, env.Data.OrderID, env.EventID)
	if err != nil || o == nil {
		return err
	}

	if env.Data.Success {
		if err := o.StockConfirmed(env.EventID); err != nil {
			log.Warn("stale_stock_confirm_result", zap.String("status", string(o.Status)))
			return nil
		}
		if err := s.orders.Update(ctx, o); err != nil {
			return fmt.Errorf("orders: update order %s: %w", o.ID, err)
		}
		log.Info("order_ready")
		return nil
	}

	if o.Status != order.StatusPendingStock || o.StockReservationID == 0 {
		log.Warn("stale_stock_confirm_result", zap.String("status", string(o.Status)))
		return nil
	}
	if env.Exhausted() {
		return s.cancel(ctx, o, env.EventID, "stock confirmation retries exhausted: "+env.Data.Message)
	}
	return scheduleRetry(ctx, s, log, "stock.reservation.confirm", messaging.TopicStockConfirm,
		messaging.Retry(env, messaging.StockConfirm{
			OrderID:       o.ID,
			ReservationID: o.StockReservationID,
		}))
}

// load fetches the order and applies the shared guards: an unknown order is
// logged and dropped (nil, nil), an already-seen eventId is acknowledged as a
// duplicate, a store failure is surfaced for redelivery.
func (s *Service) load(ctx context.Context, orderID, eventID string) (*order.Order, *zap.Logger, error) {
	log := logging.FromContext(ctx).With(
		zap.String("order_id", orderID),
		zap.String("event_id", eventID),
	)
	o, err := s.orders.FindByID(ctx, orderID)
	if errors.Is(err, order.ErrNotFound) {
		log.Error("result_for_unknown_order")
		return nil, log, nil
	}
	if err != nil {
		return nil, log, fmt.Errorf("orders: load order %s: %w", orderID, err)
	}
	if o.Seen(eventID) {
		log.Info("duplicate_result_skipped")
		return nil, log, nil
	}
	return o, log, nil
}

// cancel aborts the saga. Cancel on an order that already reached another
// terminal status is stale and dropped; cancel on a canceled order is a no-op.
func (s *Service) cancel(ctx context.Context, o *order.Order, eventID, reason string) error {
	log := logging.FromContext(ctx).With(
		zap.String("order_id", o.ID),
		zap.String("event_id", eventID),
	)
	if err := o.Cancel(eventID, reason); err != nil {
		log.Warn("stale_cancel_dropped", zap.String("status", string(o.Status)))
		return nil
	}
	if err := s.orders.Update(ctx, o); err != nil {
		return fmt.Errorf("orders: update order %s: %w", o.ID, err)
	}
	log.Info("order_canceled", zap.String("reason", reason))
	return nil
}

// scheduleRetry republishes the command with the broker-side delay the
// envelope computes for this attempt. No state is written; the retry lives
// entirely in the message.
func scheduleRetry[T any](ctx context.Context, s *Service, log *zap.Logger, step, topic string, env messaging.Envelope[T]) error {
	delay := env.RetryDelay()
	if s.metrics != nil {
		s.metrics.RetriesScheduled.WithLabelValues(step).Inc()
	}
	log.Info("retry_scheduled",
		zap.String("step", step),
		zap.Int("current_try", env.CurrentTry),
		zap.Duration("delay", delay),
	)
	return publish(ctx, s, topic, env, messaging.WithDelay(delay))
}

func publish[T any](ctx context.Context, s *Service, topic string, env messaging.Envelope[T], opts ...messaging.PublishOption) error {
	body, err := env.Encode()
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, topic, body, opts...); err != nil {
		if s.metrics != nil {
			s.metrics.PublishFailures.WithLabelValues(topic).Inc()
		}
		return fmt.Errorf("orders: publish %s: %w", topic, err)
	}
	return nil
}
