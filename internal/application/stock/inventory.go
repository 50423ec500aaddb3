package stock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"sagaflow/internal/domain/order"
)

// Result is the inventory's answer for either phase.
type Result struct {
	Success       bool
	ReservationID int64
	Message       string
}

// Inventory abstracts the warehouse system. An error means it was unreachable
// and the attempt should be redelivered; Success=false is a definitive answer.
type Inventory interface {
	Reserve(ctx context.Context, orderID string, items []order.Item) (Result, error)
	Commit(ctx context.Context, orderID string, reservationID int64) (Result, error)
}

// SimulatedInventory grants reservations with a configurable success rate
// after a random processing delay. The default rate is deliberately low so
// the retry path gets exercised under load.
type SimulatedInventory struct {
	mu          sync.Mutex
	rng         *rand.Rand
	successRate float64
	maxLatency  time.Duration
}

func NewSimulatedInventory(successRate float64, maxLatency time.Duration) *SimulatedInventory {
	return &SimulatedInventory{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		successRate: successRate,
		maxLatency:  maxLatency,
	}
}

func (s *SimulatedInventory) Reserve(ctx context.Context, orderID string, items []order.Item) (Result, error) {
	if err := s.simulate(ctx); err != nil {
		return Result{}, err
	}
	if !s.roll() {
		return Result{Message: "insufficient stock"}, nil
	}
	return Result{
		Success:       true,
		ReservationID: s.id(),
		Message:       "stock reserved",
	}, nil
}

func (s *SimulatedInventory) Commit(ctx context.Context, orderID string, reservationID int64) (Result, error) {
	if err := s.simulate(ctx); err != nil {
		return Result{}, err
	}
	if !s.roll() {
		return Result{ReservationID: reservationID, Message: "reservation commit failed"}, nil
	}
	return Result{
		Success:       true,
		ReservationID: reservationID,
		Message:       "reservation committed",
	}, nil
}

func (s *SimulatedInventory) simulate(ctx context.Context) error {
	if s.maxLatency <= 0 {
		return ctx.Err()
	}
	s.mu.Lock()
	d := time.Duration(s.rng.Int63n(int64(s.maxLatency)))
	s.mu.Unlock()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SimulatedInventory) roll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.successRate
}

func (s *SimulatedInventory) id() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Int63n(100000) + 1
}
