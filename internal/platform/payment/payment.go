// Package payment talks to the external payment gateway used for
// appointment fees. Amounts are in the currency's minor unit (paise).
package payment

import (
	"context"
	"time"
)

// Order is a gateway order awaiting capture.
type Order struct {
	ID        string    `json:"id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Refund is the gateway's record of money returned to the payer.
type Refund struct {
	ID        string    `json:"id"`
	PaymentID string    `json:"payment_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Gateway abstracts the payment provider. The booking coordinator depends on
// this interface, not on the concrete HTTP client.
type Gateway interface {
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
	Refund(ctx context.Context, paymentID string, amount int64) (*Refund, error)
}
