package stock

import (
	"go.uber.org/zap"

	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/metrics"
)

type Worker struct {
	service *Service
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewWorker(service *Service, logger *zap.Logger, m *metrics.Metrics) *Worker {
	return &Worker{service: service, logger: logger, metrics: m}
}

func (w *Worker) Start(sub messaging.Subscriber) {
	sub.Subscribe("stock", messaging.TopicStockCreate,
		messaging.Instrument(w.service.HandleCreate, w.logger, w.metrics))
	sub.Subscribe("stock", messaging.TopicStockConfirm,
		messaging.Instrument(w.service.HandleConfirm, w.logger, w.metrics))
}
