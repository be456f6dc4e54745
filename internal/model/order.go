package model

import (
	"time"
)

// Order statuses. An order is created in pending_payment and only ever
// moves forward; cancelled is reserved for checkout compensation.
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPending        = "pending"
	OrderStatusPaid           = "paid"
	OrderStatusCancelled      = "cancelled"
)

type LineItem struct {
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int    `json:"quantity"`
}

func (li LineItem) TotalCents() int64 {
	return li.UnitPriceCents * int64(li.Quantity)
}

type Contact struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
}

type Order struct {
	ID               string         `json:"id"`
	Code             string         `json:"code"`
	Email            string         `json:"email"`
	Name             string         `json:"name"`
	Phone            string         `json:"phone,omitempty"`
	Items            []LineItem     `json:"items"`
	SubtotalCents    int64          `json:"subtotal_cents"`
	Currency         string         `json:"currency"`
	Status           string         `json:"status"`
	PaymentSessionID string         `json:"payment_session_id,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
