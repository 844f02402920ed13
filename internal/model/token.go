package model

import "time"

// PaymentToken is an opaque reference to a payment method vaulted at the
// processor. A deleted token must never be reused.
type PaymentToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
