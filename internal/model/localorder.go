package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Merchant-side order states. These track what this system knows, as opposed
// to OrderStatus which mirrors the processor.
const (
	LocalStatusCreated           = "created"
	LocalStatusPaid              = "paid"
	LocalStatusFailed            = "failed"
	LocalStatusPendingTokenCheck = "pending_token_check"
)

// LocalOrder is the merchant's order record. RemoteOrderID links it to the
// processor's order resource once one has been created.
type LocalOrder struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	RemoteOrderID  string          `json:"remote_order_id,omitempty"`
	Status         string          `json:"status"`
	Intent         Intent          `json:"intent"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	TransactionID  string          `json:"transaction_id,omitempty"`
	Captured       bool            `json:"captured"`
	Trial          bool            `json:"trial"`
	FailureMessage string          `json:"failure_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
