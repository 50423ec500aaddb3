package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sagaflow/internal/domain/order"
)

// Reporter periodically snapshots the order-status distribution into the
// report store. Each snapshot carries its own eventId, so a crashed run that
// retries the same snapshot is deduplicated the same way saga events are.
type Reporter struct {
	orders   order.Repository
	reports  order.ReportRepository
	interval time.Duration
	logger   *zap.Logger
}

func NewReporter(orders order.Repository, reports order.ReportRepository, interval time.Duration, logger *zap.Logger) *Reporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reporter{
		orders:   orders,
		reports:  reports,
		interval: interval,
		logger:   logger,
	}
}

// Run snapshots on the configured interval until the context is canceled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Snapshot(ctx); err != nil {
				r.logger.Error("report_snapshot_failed", zap.Error(err))
			}
		}
	}
}

// Snapshot writes one report. The snapshot id is checked against the store
// first so a redelivered snapshot job does not produce a second row.
func (r *Reporter) Snapshot(ctx context.Context) error {
	eventID := uuid.NewString()
	if _, err := r.reports.FindByEventID(ctx, eventID); err == nil {
		return nil
	} else if !errors.Is(err, order.ErrNotFound) {
		return fmt.Errorf("orders: report dedupe lookup: %w", err)
	}

	counts, err := r.orders.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("orders: count by status: %w", err)
	}
	rep := order.NewReport(eventID, counts)
	if err := r.reports.Insert(ctx, rep); err != nil {
		if errors.Is(err, order.ErrConflict) {
			return nil
		}
		return fmt.Errorf("orders: insert report: %w", err)
	}
	r.logger.Info("report_snapshot", zap.String("event_id", eventID))
	return nil
}
