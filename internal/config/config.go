// Package config loads runtime settings from the environment with sensible
// defaults, so the binary runs with zero configuration in development.
package config

import (
	"os"
	"strconv"
	"time"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	// RetryDelay and MaxTries form the backoff policy stamped onto every new
	// unit of work the orchestrator starts.
	RetryDelay time.Duration
	MaxTries   int

	// MessageTTL and RequeueDelay tune the broker's unacknowledged-message
	// handling.
	MessageTTL   time.Duration
	RequeueDelay time.Duration

	// Participant simulation knobs.
	PaymentSuccessRate float64
	StockSuccessRate   float64
	SimMaxLatency      time.Duration

	ReportInterval time.Duration

	// RedisAddr selects the Redis-backed order store. Empty means in-memory.
	RedisAddr string
}

func Load() Config {
	return Config{
		ServiceName:        getenv("SERVICE_NAME", "sagaflow"),
		Env:                getenv("ENV", "development"),
		HTTPAddr:           getenv("HTTP_ADDR", ":8080"),
		RetryDelay:         getenvDuration("RETRY_DELAY", time.Second),
		MaxTries:           getenvInt("MAX_TRIES", 5),
		MessageTTL:         getenvDuration("MESSAGE_TTL", 5*time.Second),
		RequeueDelay:       getenvDuration("REQUEUE_DELAY", 50*time.Millisecond),
		PaymentSuccessRate: getenvFloat("PAYMENT_SUCCESS_RATE", 0.99),
		StockSuccessRate:   getenvFloat("STOCK_SUCCESS_RATE", 0.60),
		SimMaxLatency:      getenvDuration("SIM_MAX_LATENCY", 200*time.Millisecond),
		ReportInterval:     getenvDuration("REPORT_INTERVAL", time.Minute),
		RedisAddr:          getenv("REDIS_ADDR", ""),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
