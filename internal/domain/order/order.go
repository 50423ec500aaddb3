package order

import (
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("order: not found")
	ErrConflict = errors.New("order: already exists")
	// ErrStaleTransition means the order's current status does not allow the
	// requested transition. Callers treat it as a late or out-of-order event,
	// not a failure.
	ErrStaleTransition = errors.New("order: status does not allow transition")
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusPendingPayment Status = "pending-payment"
	StatusPendingStock   Status = "pending-stock"
	StatusReady          Status = "ready"
	StatusShipped        Status = "shipped"
	StatusDelivered      Status = "delivered"
	StatusCanceled       Status = "canceled"
)

// Statuses lists every known status in lifecycle order. Report snapshots use it
// to emit zero counts for statuses with no orders.
func Statuses() []Status {
	return []Status{
		StatusPending,
		StatusPendingPayment,
		StatusPendingStock,
		StatusReady,
		StatusShipped,
		StatusDelivered,
		StatusCanceled,
	}
}

// Terminal reports whether the saga is finished for this status. No transition
// guard matches a terminal order, so late results are dropped as no-ops.
func (s Status) Terminal() bool {
	switch s {
	case StatusReady, StatusShipped, StatusDelivered, StatusCanceled:
		return true
	}
	return false
}

type Address struct {
	Billing  string `json:"billing"`
	Delivery string `json:"delivery"`
}

type Customer struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Address Address `json:"address"`
}

type Item struct {
	ItemID    int64   `json:"itemId"`
	ItemName  string  `json:"itemName"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

type Payment struct {
	PaymentMethod string  `json:"paymentMethod"`
	TotalAmount   float64 `json:"totalAmount"`
	PaymentID     int64   `json:"paymentId,omitempty"`
}

// HistoryEntry is one element of the append-only status trail. The eventId it
// carries doubles as the idempotency ledger for the aggregate.
type HistoryEntry struct {
	EventID   string    `json:"eventId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Order is the saga aggregate. Only the orchestrator mutates it; participants
// see it exclusively through messages.
type Order struct {
	ID                 string         `json:"id"`
	CustomerID         string         `json:"customerId"`
	Customer           Customer       `json:"customer"`
	Items              []Item         `json:"items"`
	Payment            Payment        `json:"payment"`
	StockReservationID int64          `json:"stockReservationId,omitempty"`
	Status             Status         `json:"status"`
	StatusHistory      []HistoryEntry `json:"statusHistory"`
}

// New creates a pending order. The eventId of the triggering orders.create
// envelope becomes the first history entry so re-deliveries are detectable.
func New(id, eventID, customerID string, customer Customer, items []Item, totalAmount float64, paymentMethod string) *Order {
	o := &Order{
		ID:         id,
		CustomerID: customerID,
		Customer:   customer,
		Items:      append([]Item(nil), items...),
		Payment: Payment{
			PaymentMethod: paymentMethod,
			TotalAmount:   totalAmount,
		},
	}
	o.apply(eventID, StatusPending, "")
	return o
}

// Seen reports whether any history entry carries the given eventId. This is
// the element-match semantics the idempotency check relies on.
func (o *Order) Seen(eventID string) bool {
	for _, h := range o.StatusHistory {
		if h.EventID == eventID {
			return true
		}
	}
	return false
}

// PaymentAccepted records a successful payment.create result: the payment id
// is set exactly once and the order moves to pending-payment.
func (o *Order) PaymentAccepted(eventID string, paymentID int64) error {
	if o.Status != StatusPending {
		return ErrStaleTransition
	}
	if o.Payment.PaymentID == 0 {
		o.Payment.PaymentID = paymentID
	}
	o.apply(eventID, StatusPendingPayment, "")
	return nil
}

// PaymentConfirmed moves a pending-payment order with a known payment id to
// pending-stock.
func (o *Order) PaymentConfirmed(eventID string) error {
	if o.Status != StatusPendingPayment || o.Payment.PaymentID == 0 {
		return ErrStaleTransition
	}
	o.apply(eventID, StatusPendingStock, "")
	return nil
}

// StockReserved records the reservation id from a successful
// stock.reservation.create result. The status stays pending-stock; the history
// entry keeps the event deduplicable.
func (o *Order) StockReserved(eventID string, reservationID int64) error {
	if o.Status != StatusPendingStock {
		return ErrStaleTransition
	}
	if o.StockReservationID == 0 {
		o.StockReservationID = reservationID
	}
	o.apply(eventID, StatusPendingStock, "")
	return nil
}

// StockConfirmed completes the saga: the order becomes ready.
func (o *Order) StockConfirmed(eventID string) error {
	if o.Status != StatusPendingStock || o.StockReservationID == 0 {
		return ErrStaleTransition
	}
	o.apply(eventID, StatusReady, "")
	return nil
}

// Cancel aborts the saga with a human-readable reason. Canceling an already
// canceled order is a no-op; any other terminal status rejects the cancel as
// stale.
func (o *Order) Cancel(eventID, reason string) error {
	if o.Status == StatusCanceled {
		return nil
	}
	if o.Status.Terminal() {
		return ErrStaleTransition
	}
	o.apply(eventID, StatusCanceled, reason)
	return nil
}

func (o *Order) apply(eventID string, status Status, reason string) {
	o.Status = status
	o.StatusHistory = append(o.StatusHistory, HistoryEntry{
		EventID:   eventID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
}

// Clone returns a deep copy so repositories never hand out shared state.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	clone.StatusHistory = append([]HistoryEntry(nil), o.StatusHistory...)
	return &clone
}
