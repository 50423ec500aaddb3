package backoffice

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
	sub.Subscribe("dlq", messaging.TopicDeadLetter,
		messaging.Instrument(w.service.HandleDeadLetter, w.logger, w.metrics))
}
