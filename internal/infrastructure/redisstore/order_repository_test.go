package redisstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"sagaflow/internal/domain/order"
)

func newTestRepository(t *testing.T) *OrderRepository {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewOrderRepository(client)
}

func sampleOrder(id, eventID string) *order.Order {
	return order.New(id, eventID, "cust-1",
		order.Customer{Name: "Ada", Email: "ada@example.com"},
		[]order.Item{{ItemID: 7, ItemName: "widget", UnitPrice: 9.5, Quantity: 2}},
		19.0, "credit-card")
}

func TestInsertAndFindByID(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	o := sampleOrder("o-1", "evt-1")
	if err := repo.Insert(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := repo.FindByID(ctx, "o-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != order.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if len(got.Items) != 1 || got.Items[0].ItemID != 7 {
		t.Errorf("items not round-tripped: %+v", got.Items)
	}
}

func TestInsertDuplicateIsConflict(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if err := repo.Insert(ctx, sampleOrder("o-1", "evt-1")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.Insert(ctx, sampleOrder("o-1", "evt-2")); !errors.Is(err, order.ErrConflict) {
		t.Errorf("second insert = %v, want ErrConflict", err)
	}
}

func TestFindByEventIDCoversEveryTransition(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	o := sampleOrder("o-1", "evt-create")
	if err := repo.Insert(ctx, o); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := o.PaymentAccepted("evt-pay", 42); err != nil {
		t.Fatalf("payment accepted: %v", err)
	}
	if err := repo.Update(ctx, o); err != nil {
		t.Fatalf("update: %v", err)
	}

	for _, eventID := range []string{"evt-create", "evt-pay"} {
		got, err := repo.FindByEventID(ctx, eventID)
		if err != nil {
			t.Fatalf("find by event %s: %v", eventID, err)
		}
		if got.ID != "o-1" {
			t.Errorf("event %s resolved to order %s", eventID, got.ID)
		}
	}
	if _, err := repo.FindByEventID(ctx, "evt-unknown"); !errors.Is(err, order.ErrNotFound) {
		t.Errorf("unknown event = %v, want ErrNotFound", err)
	}
}

func TestUpdateMissingOrder(t *testing.T) {
	repo := newTestRepository(t)
	err := repo.Update(context.Background(), sampleOrder("o-missing", "evt-1"))
	if !errors.Is(err, order.ErrNotFound) {
		t.Errorf("update missing = %v, want ErrNotFound", err)
	}
}

func TestCountByStatus(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	a := sampleOrder("o-a", "evt-a")
	b := sampleOrder("o-b", "evt-b")
	if err := repo.Insert(ctx, a); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := repo.Insert(ctx, b); err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := b.Cancel("evt-cancel", "payment failed"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := repo.Update(ctx, b); err != nil {
		t.Fatalf("update: %v", err)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[order.StatusPending] != 1 {
		t.Errorf("pending = %d, want 1", counts[order.StatusPending])
	}
	if counts[order.StatusCanceled] != 1 {
		t.Errorf("canceled = %d, want 1", counts[order.StatusCanceled])
	}
}
