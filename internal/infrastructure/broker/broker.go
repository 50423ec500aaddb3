// Package broker is an in-process topic exchange implementing the messaging
// contract the saga relies on: wildcard bindings, per-message TTL, delayed
// delivery, dead-letter routing, and redelivery of unacknowledged messages.
// It stands in for an external broker in tests and single-process deployments;
// the application only ever sees the messaging ports.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sagaflow/internal/messaging"
)

// ErrClosed is returned by Publish after the broker has been shut down.
var ErrClosed = errors.New("broker: closed")

const (
	reasonExpired    = "expired"
	reasonUnroutable = "unroutable"
)

// Config tunes queue behavior. Zero values fall back to the defaults the
// original deployment used (5s TTL).
type Config struct {
	// MessageTTL bounds how long a message may stay unacknowledged before it
	// is dead-lettered. The clock starts when the message is routed, after
	// any publish delay.
	MessageTTL time.Duration
	// RequeueDelay paces redelivery of a nacked message.
	RequeueDelay time.Duration
	// HandlerTimeout bounds a single handler invocation.
	HandlerTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.MessageTTL <= 0 {
		c.MessageTTL = 5 * time.Second
	}
	if c.RequeueDelay <= 0 {
		c.RequeueDelay = 50 * time.Millisecond
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	return c
}

type binding struct {
	queue   string
	pattern string
	handler messaging.Handler
}

// Broker routes published messages to bound handlers.
type Broker struct {
	mu       sync.RWMutex
	bindings []binding

	cfg  Config
	log  *zap.Logger
	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

func New(cfg Config, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		cfg:  cfg.withDefaults(),
		log:  logger.With(zap.String("component", "broker")),
		done: make(chan struct{}),
	}
}

// Subscribe binds a queue to a routing-key pattern. Each binding gets its own
// copy of every matching message, mirroring one queue per consumer service.
func (b *Broker) Subscribe(queue, pattern string, h messaging.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bindings = append(b.bindings, binding{queue: queue, pattern: pattern, handler: h})
}

// Publish routes the message asynchronously. It only fails when the broker is
// closed; delivery outcomes are the consumers' business.
func (b *Broker) Publish(ctx context.Context, routingKey string, body []byte, opts ...messaging.PublishOption) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var o messaging.PublishOptions
	for _, opt := range opts {
		opt(&o)
	}

	b.wg.Add(1)
	go b.route(routingKey, body, nil, o.Delay)
	return nil
}

// Shutdown waits for in-flight deliveries to settle.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.once.Do(func() { close(b.done) })

	settled := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Broker) route(routingKey string, body []byte, headers map[string]string, delay time.Duration) {
	defer b.wg.Done()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-b.done:
			return
		}
	}

	matches := b.match(routingKey)
	if len(matches) == 0 {
		if routingKey == messaging.TopicDeadLetter {
			b.log.Warn("dead_letter_unconsumed", zap.String("routing_key", routingKey))
			return
		}
		b.deadLetter(routingKey, body, headers, reasonUnroutable)
		return
	}

	enqueued := time.Now()
	for _, bd := range matches {
		d := messaging.Delivery{
			RoutingKey: routingKey,
			Body:       body,
			Headers:    headers,
		}
		b.wg.Add(1)
		go b.deliver(bd, d, enqueued)
	}
}

// deliver invokes the handler until it acknowledges (returns nil) or the
// message outlives its TTL and is dead-lettered. A handler error or panic
// leaves the message unacknowledged, which is the crash-recovery contract.
func (b *Broker) deliver(bd binding, d messaging.Delivery, enqueued time.Time) {
	defer b.wg.Done()

	expiry := enqueued.Add(b.cfg.MessageTTL)
	for {
		err := b.invoke(bd.handler, d)
		if err == nil {
			return
		}
		b.log.Warn("delivery_nacked",
			zap.String("queue", bd.queue),
			zap.String("routing_key", d.RoutingKey),
			zap.Error(err),
		)

		d.Redelivered = true
		if time.Now().After(expiry) {
			b.deadLetter(d.RoutingKey, d.Body, d.Headers, reasonExpired)
			return
		}

		timer := time.NewTimer(b.cfg.RequeueDelay)
		select {
		case <-timer.C:
		case <-b.done:
			timer.Stop()
			return
		}
		timer.Stop()
	}
}

func (b *Broker) invoke(h messaging.Handler, d messaging.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("broker: handler panic: %v", r)
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.HandlerTimeout)
	defer cancel()
	return h(ctx, d)
}

// deadLetter republishes the message on the dead-letter routing key, tagging
// the delivery context the way a dead-letter exchange would. Dead letters are
// delivered best-effort, exactly once per binding, and never dead-letter
// again.
func (b *Broker) deadLetter(originalKey string, body []byte, headers map[string]string, reason string) {
	dlHeaders := make(map[string]string, len(headers)+2)
	for k, v := range headers {
		dlHeaders[k] = v
	}
	dlHeaders["x-death-reason"] = reason
	dlHeaders["x-original-routing-key"] = originalKey

	matches := b.match(messaging.TopicDeadLetter)
	if len(matches) == 0 {
		b.log.Warn("dead_letter_dropped",
			zap.String("routing_key", originalKey),
			zap.String("reason", reason),
		)
		return
	}

	d := messaging.Delivery{
		RoutingKey: messaging.TopicDeadLetter,
		Body:       body,
		Headers:    dlHeaders,
	}
	for _, bd := range matches {
		if err := b.invoke(bd.handler, d); err != nil {
			b.log.Error("dead_letter_capture_failed",
				zap.String("queue", bd.queue),
				zap.Error(err),
			)
		}
	}
}

func (b *Broker) match(routingKey string) []binding {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var matches []binding
	for _, bd := range b.bindings {
		if MatchTopic(bd.pattern, routingKey) {
			matches = append(matches, bd)
		}
	}
	return matches
}
