package model

import "time"

// User is a merchant customer account. Orders, payment tokens and
// subscriptions all hang off its ID.
type User struct {
	ID           string    `json:"id"`
	Login        string    `json:"login"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
