package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	StatusPending,
	StatusPaid,
	StatusShipped,
	StatusDelivered,
	StatusCancelled,
}

// OrderStatuses returns the closed set of order statuses in lifecycle order.
func OrderStatuses() []OrderStatus {
	statuses := make([]OrderStatus, len(orderStatuses))
	copy(statuses, orderStatuses)
	return statuses
}

// ParseOrderStatus rejects anything outside the five known statuses.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, status := range orderStatuses {
		if string(status) == value {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown order status %q", value)
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPaid:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	default:
		return -1
	}
}

// CanTransitionStrict reports whether from -> to follows the forward-only
// lifecycle pending -> paid -> shipped -> delivered, with cancelled reachable
// from any non-terminal status. Setting the current status again is allowed.
func CanTransitionStrict(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	if from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return to.rank() > from.rank()
}

// LineItem is a snapshot of a cart line taken when checkout starts. Name and
// price never follow later catalog edits.
type LineItem struct {
	ProductID string          `json:"productId" validate:"required"`
	Name      string          `json:"name" validate:"required"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity" validate:"gt=0"`
	Size      string          `json:"size" validate:"required"`
	Color     string          `json:"color" validate:"required"`
}

// UnitAmountMinor converts the unit price into minor currency units (cents).
func (i LineItem) UnitAmountMinor() int64 {
	return i.Price.Shift(2).Round(0).IntPart()
}

type Order struct {
	ID                    uuid.UUID       `json:"id"`
	UserID                string          `json:"userId"`
	Customer              string          `json:"customer"`
	CustomerEmail         string          `json:"customerEmail,omitempty"`
	Items                 []LineItem      `json:"items"`
	Bill                  decimal.Decimal `json:"bill"`
	Status                OrderStatus     `json:"status"`
	StripeSessionID       string          `json:"stripeSessionId"`
	StripePaymentIntentID string          `json:"paymentIntentId,omitempty"`
	CreatedAt             time.Time       `json:"createdAt"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// PendingCheckout is the short-lived cart snapshot held between checkout
// initiation and webhook promotion. It is never mutated after creation.
type PendingCheckout struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Items     []LineItem `json:"items"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// BillFromMinor converts an amount in minor currency units into the major unit.
func BillFromMinor(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}
