package payment

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Result is the gateway's answer for either phase.
type Result struct {
	Success   bool
	PaymentID int64
	Message   string
}

// Gateway abstracts the payment provider. An error return means the provider
// could not be reached and the attempt should be redelivered; a Result with
// Success=false is a definitive business answer.
type Gateway interface {
	CreatePayment(ctx context.Context, orderID string, amount float64, method string) (Result, error)
	ConfirmPayment(ctx context.Context, orderID string, paymentID int64) (Result, error)
}

// SimulatedGateway approves payments with a configurable success rate after a
// random processing delay.
type SimulatedGateway struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
	maxLatency  time.Duration
}

func NewSimulatedGateway(successRate float64, maxLatency time.Duration) *SimulatedGateway {
	return &SimulatedGateway{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
		maxLatency:  maxLatency,
	}
}

func (g *SimulatedGateway) CreatePayment(ctx context.Context, orderID string, amount float64, method string) (Result, error) {
	if err := g.simulate(ctx); err != nil {
		return Result{}, err
	}
	if !g.roll() {
		return Result{Message: "payment declined"}, nil
	}
	return Result{
		Success:   true,
		PaymentID: g.id(),
		Message:   "payment created",
	}, nil
}

func (g *SimulatedGateway) ConfirmPayment(ctx context.Context, orderID string, paymentID int64) (Result, error) {
	if err := g.simulate(ctx); err != nil {
		return Result{}, err
	}
	if !g.roll() {
		return Result{PaymentID: paymentID, Message: "payment confirmation failed"}, nil
	}
	return Result{
		Success:   true,
		PaymentID: paymentID,
		Message:   "payment confirmed",
	}, nil
}

func (g *SimulatedGateway) simulate(ctx context.Context) error {
	if g.maxLatency <= 0 {
		return ctx.Err()
	}
	g.mu.Lock()
	d := time.Duration(g.rng.Int63n(int64(g.maxLatency)))
	g.mu.Unlock()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *SimulatedGateway) roll() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64() < g.successRate
}

func (g *SimulatedGateway) id() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Int63n(100000) + 1
}
