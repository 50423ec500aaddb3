package order

import "context"

// Repository is the document-store port for the orders collection.
type Repository interface {
	Insert(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	// FindByEventID locates the order whose statusHistory contains the given
	// eventId. ErrNotFound when no order carries it.
	FindByEventID(ctx context.Context, eventID string) (*Order, error)
	Update(ctx context.Context, o *Order) error
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
