package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)

// Subscription is a recurring charge whose renewals are paid with a vaulted
// payment method. ParentOrderID is the order that started it.
type Subscription struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	ParentOrderID string          `json:"parent_order_id"`
	Status        string          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PeriodDays    int             `json:"period_days"`
	NextRenewalAt time.Time       `json:"next_renewal_at"`
	CreatedAt     time.Time       `json:"created_at"`
}
