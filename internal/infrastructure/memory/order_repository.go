// Package memory provides map-backed repositories used by tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"

	"sagaflow/internal/domain/order"
)

type OrderRepository struct {
	mu      sync.RWMutex
	orders  map[string]*order.Order
	byEvent map[string]string // eventID -> orderID, covers every recorded transition
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:  make(map[string]*order.Order),
		byEvent: make(map[string]string),
	}
}

func (r *OrderRepository) Insert(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return order.ErrConflict
	}
	r.orders[o.ID] = o.Clone()
	r.index(o)
	return nil
}

func (r *OrderRepository) FindByID(_ context.Context, id string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o.Clone(), nil
}

func (r *OrderRepository) FindByEventID(_ context.Context, eventID string) (*order.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEvent[eventID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return r.orders[id].Clone(), nil
}

func (r *OrderRepository) Update(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	r.orders[o.ID] = o.Clone()
	r.index(o)
	return nil
}

func (r *OrderRepository) CountByStatus(_ context.Context) (map[order.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[order.Status]int)
	for _, o := range r.orders {
		counts[o.Status]++
	}
	return counts, nil
}

func (r *OrderRepository) index(o *order.Order) {
	for _, h := range o.StatusHistory {
		r.byEvent[h.EventID] = o.ID
	}
}
