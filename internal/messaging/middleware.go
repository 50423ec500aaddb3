package messaging

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sagaflow/internal/pkg/logging"
	"sagaflow/internal/pkg/metrics"
)

const tracerName = "sagaflow"

// Instrument wraps a handler with the consumer-side observability stack: a
// span per delivery, a delivery-scoped logger on the context, handler metrics,
// and panic recovery. A recovered panic is returned as an error so the broker
// leaves the message unacknowledged and redelivers it.
func Instrument(h Handler, logger *zap.Logger, m *metrics.Metrics) Handler {
	tracer := otel.Tracer(tracerName)

	return func(ctx context.Context, d Delivery) (err error) {
		ctx, span := tracer.Start(ctx, "consume "+d.RoutingKey,
			trace.WithAttributes(
				attribute.String("messaging.routing_key", d.RoutingKey),
				attribute.Bool("messaging.redelivered", d.Redelivered),
			),
		)
		start := time.Now()

		dlog := logger.With(zap.String("routing_key", d.RoutingKey))
		if sc := span.SpanContext(); sc.IsValid() {
			dlog = dlog.With(
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
		ctx = logging.ContextWithLogger(ctx, dlog)

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("handler panic: %v", r)
				dlog.Error("event_handler_panic",
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())),
				)
			}

			outcome := "success"
			if err != nil {
				outcome = "error"
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else {
				span.SetStatus(codes.Ok, "")
			}
			span.End()

			if m != nil {
				m.EventsConsumed.WithLabelValues(d.RoutingKey, outcome).Inc()
				m.HandlerDuration.WithLabelValues(d.RoutingKey).Observe(time.Since(start).Seconds())
			}
		}()

		return h(ctx, d)
	}
}
