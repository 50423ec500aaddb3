package messaging

import (
	validatorv10 "github.com/go-playground/validator/v10"

	"sagaflow/internal/domain/order"
)

// Routing keys on the orders topic exchange. Payload shapes are fixed per key;
// consumers validate them at the boundary instead of trusting the producer.
const (
	TopicOrderCreate = "orders.create"

	TopicPaymentCreate        = "payment.create"
	TopicPaymentCreateResult  = "payment.create.result"
	TopicPaymentConfirm       = "payment.confirm"
	TopicPaymentConfirmResult = "payment.confirm.result"

	TopicStockCreate        = "stock.reservation.create"
	TopicStockCreateResult  = "stock.reservation.create.result"
	TopicStockConfirm       = "stock.reservation.confirm"
	TopicStockConfirmResult = "stock.reservation.confirm.result"

	// TopicDeadLetter is the dead-letter routing key. Expired, rejected, and
	// unroutable messages are republished here.
	TopicDeadLetter = "dlq"
)

var validate = validatorv10.New()

// OrderCreate triggers a new saga.
type OrderCreate struct {
	CustomerID    string         `json:"customerId" validate:"required"`
	Customer      order.Customer `json:"customer"`
	Items         []order.Item   `json:"items" validate:"required,min=1"`
	TotalAmount   float64        `json:"totalAmount" validate:"required,gt=0"`
	PaymentMethod string         `json:"paymentMethod" validate:"required"`
}

// PaymentCreate asks the payment participant to open a payment.
type PaymentCreate struct {
	OrderID         string  `json:"orderId" validate:"required"`
	Amount          float64 `json:"amount" validate:"required,gt=0"`
	PaymentMethod   string  `json:"paymentMethod" validate:"required"`
	ShippingAddress string  `json:"shippingAddress"`
	BillingAddress  string  `json:"billingAddress"`
}

// PaymentConfirm asks the payment participant to settle an opened payment.
type PaymentConfirm struct {
	OrderID   string `json:"orderId" validate:"required"`
	PaymentID int64  `json:"paymentId" validate:"required"`
}

// PaymentResult is emitted by the payment participant for both phases.
type PaymentResult struct {
	OrderID   string `json:"orderId" validate:"required"`
	Success   bool   `json:"success"`
	PaymentID int64  `json:"paymentId,omitempty"`
	Message   string `json:"message"`
}

// StockCreate asks the stock participant to reserve the order's items.
type StockCreate struct {
	OrderID string       `json:"orderId" validate:"required"`
	Items   []order.Item `json:"items" validate:"required,min=1"`
}

// StockConfirm asks the stock participant to commit a reservation.
type StockConfirm struct {
	OrderID       string `json:"orderId" validate:"required"`
	ReservationID int64  `json:"reservationId" validate:"required"`
}

// StockResult is emitted by the stock participant for both phases.
type StockResult struct {
	OrderID       string `json:"orderId" validate:"required"`
	Success       bool   `json:"success"`
	ReservationID int64  `json:"reservationId,omitempty"`
	Message       string `json:"message"`
}
