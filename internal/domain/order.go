package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated         OrderStatus = "created"
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusFulfilled       OrderStatus = "fulfilled"
	OrderStatusExpired         OrderStatus = "expired"
	// OrderStatusPaidUnfulfilled marks a verified payment whose location pool was empty.
	// It waits for an operator refund and is never swept.
	OrderStatusPaidUnfulfilled OrderStatus = "paid_unfulfilled"
	OrderStatusRefunded        OrderStatus = "refunded"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:         {OrderStatusAwaitingPayment},
	OrderStatusAwaitingPayment: {OrderStatusFulfilled, OrderStatusPaidUnfulfilled, OrderStatusExpired},
	OrderStatusPaidUnfulfilled: {OrderStatusRefunded},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(transitions[s]) == 0
}

type Order struct {
	ID                 uuid.UUID       `json:"id"`
	CustomerID         int64           `json:"customer_id"`
	ProductID          int64           `json:"product_id"`
	LocationID         int64           `json:"location_id"`
	PriceFiat          decimal.Decimal `json:"price_fiat"`
	ExpectedAmount     decimal.Decimal `json:"expected_amount"`
	DisambiguationUnit int             `json:"disambiguation_unit"`
	Rate               decimal.Decimal `json:"rate"`
	Status             OrderStatus     `json:"status"`
	AllocatedContentID *int64          `json:"allocated_content_id,omitempty"`
	ObservedAmount     decimal.Decimal `json:"observed_amount"`
	PaidAt             *time.Time      `json:"paid_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// Transition moves the order to the next status or returns ErrInvalidTransition.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidTransition
	}
	o.Status = to
	o.UpdatedAt = at
	return nil
}

// Deadline is the instant after which an unpaid order is expired.
func (o *Order) Deadline(window time.Duration) time.Time {
	return o.CreatedAt.Add(window)
}
