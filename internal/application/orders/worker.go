package orders

import (
	"go.uber.org/zap"

	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/metrics"
)

// Worker binds the orchestrator's handlers to the orders queue.
type Worker struct {
	service *Service
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewWorker(service *Service, logger *zap.Logger, m *metrics.Metrics) *Worker {
	return &Worker{service: service, logger: logger, metrics: m}
}

func (w *Worker) Start(sub messaging.Subscriber) {
	bindings := map[string]messaging.Handler{
		messaging.TopicOrderCreate:          w.service.HandleOrderCreate,
		messaging.TopicPaymentCreateResult:  w.service.HandlePaymentCreateResult,
		messaging.TopicPaymentConfirmResult: w.service.HandlePaymentConfirmResult,
		messaging.TopicStockCreateResult:    w.service.HandleStockCreateResult,
		messaging.TopicStockConfirmResult:   w.service.HandleStockConfirmResult,
	}
	for pattern, h := range bindings {
		sub.Subscribe("orders", pattern, messaging.Instrument(h, w.logger, w.metrics))
	}
}
