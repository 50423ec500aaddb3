package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sagaflow/internal/application/backoffice"
	"sagaflow/internal/application/orders"
	"sagaflow/internal/application/payment"
	"sagaflow/internal/application/stock"
	"sagaflow/internal/config"
	"sagaflow/internal/domain/order"
	"sagaflow/internal/infrastructure/broker"
	"sagaflow/internal/infrastructure/memory"
	"sagaflow/internal/infrastructure/redisstore"
	"sagaflow/internal/messaging"
	"sagaflow/internal/pkg/logging"
	"sagaflow/internal/pkg/metrics"
	sagahttp "sagaflow/internal/presentation/http"
)

func main() {
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	bus := broker.New(broker.Config{
		MessageTTL:   cfg.MessageTTL,
		RequeueDelay: cfg.RequeueDelay,
	}, logger)

	var orderRepo order.Repository
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis_unreachable", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		defer func() { _ = client.Close() }()
		orderRepo = redisstore.NewOrderRepository(client)
		logger.Info("order_store", zap.String("backend", "redis"), zap.String("addr", cfg.RedisAddr))
	} else {
		orderRepo = memory.NewOrderRepository()
		logger.Info("order_store", zap.String("backend", "memory"))
	}
	reportRepo := memory.NewReportRepository()
	deadLetterRepo := memory.NewDeadLetterRepository()

	backoff := messaging.Backoff{Delay: cfg.RetryDelay, MaxTries: cfg.MaxTries}

	ordersService := orders.NewService(orderRepo, bus, m, backoff)
	paymentService := payment.NewService(
		payment.NewSimulatedGateway(cfg.PaymentSuccessRate, cfg.SimMaxLatency), bus, m)
	stockService := stock.NewService(
		stock.NewSimulatedInventory(cfg.StockSuccessRate, cfg.SimMaxLatency), bus, m)
	backofficeService := backoffice.NewService(deadLetterRepo, bus, m)

	orders.NewWorker(ordersService, logger, m).Start(bus)
	payment.NewWorker(paymentService, logger, m).Start(bus)
	stock.NewWorker(stockService, logger, m).Start(bus)
	backoffice.NewWorker(backofficeService, logger, m).Start(bus)

	reporter := orders.NewReporter(orderRepo, reportRepo, cfg.ReportInterval, logger)
	go reporter.Run(ctx)

	handler := sagahttp.NewHandler(backofficeService, orderRepo, reportRepo)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", handler.Router(logger, m))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http_listening", zap.String("addr", cfg.HTTPAddr), zap.String("version", config.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http_server_failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http_shutdown_failed", zap.Error(err))
	}
	if err := bus.Shutdown(shutdownCtx); err != nil {
		logger.Error("broker_shutdown_failed", zap.Error(err))
	}
	logger.Info("stopped")
}
