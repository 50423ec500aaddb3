// Package redisstore persists saga state in Redis so orchestrator restarts
// pick up in-flight orders.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"sagaflow/internal/domain/order"
)

const (
	orderKeyPrefix = "orders:"
	eventKeyPrefix = "orders:event:"
	idSetKey       = "orders:ids"
)

type OrderRepository struct {
	client *redis.Client
}

func NewOrderRepository(client *redis.Client) *OrderRepository {
	return &OrderRepository{client: client}
}

func orderKey(id string) string { return orderKeyPrefix + id }
func eventKey(id string) string { return eventKeyPrefix + id }

func (r *OrderRepository) Insert(ctx context.Context, o *order.Order) error {
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("redisstore: marshal order %s: %w", o.ID, err)
	}
	ok, err := r.client.SetNX(ctx, orderKey(o.ID), body, 0).Result()
	if err != nil {
		return fmt.Errorf("redisstore: insert order %s: %w", o.ID, err)
	}
	if !ok {
		return order.ErrConflict
	}
	return r.index(ctx, o)
}

func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	body, err := r.client.Get(ctx, orderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get order %s: %w", id, err)
	}
	var o order.Order
	if err := json.Unmarshal(body, &o); err != nil {
		return nil, fmt.Errorf("redisstore: unmarshal order %s: %w", id, err)
	}
	return &o, nil
}

func (r *OrderRepository) FindByEventID(ctx context.Context, eventID string) (*order.Order, error) {
	id, err := r.client.Get(ctx, eventKey(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, order.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: lookup event %s: %w", eventID, err)
	}
	return r.FindByID(ctx, id)
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	exists, err := r.client.Exists(ctx, orderKey(o.ID)).Result()
	if err != nil {
		return fmt.Errorf("redisstore: check order %s: %w", o.ID, err)
	}
	if exists == 0 {
		return order.ErrNotFound
	}
	body, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("redisstore: marshal order %s: %w", o.ID, err)
	}
	if err := r.client.Set(ctx, orderKey(o.ID), body, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: update order %s: %w", o.ID, err)
	}
	return r.index(ctx, o)
}

func (r *OrderRepository) CountByStatus(ctx context.Context) (map[order.Status]int, error) {
	ids, err := r.client.SMembers(ctx, idSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list order ids: %w", err)
	}
	counts := make(map[order.Status]int)
	for _, id := range ids {
		o, err := r.FindByID(ctx, id)
		if errors.Is(err, order.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		counts[o.Status]++
	}
	return counts, nil
}

// index records the id-set membership and the eventId lookup entries in one
// round trip alongside the write.
func (r *OrderRepository) index(ctx context.Context, o *order.Order) error {
	pipe := r.client.Pipeline()
	pipe.SAdd(ctx, idSetKey, o.ID)
	for _, h := range o.StatusHistory {
		pipe.Set(ctx, eventKey(h.EventID), o.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisstore: index order %s: %w", o.ID, err)
	}
	return nil
}
