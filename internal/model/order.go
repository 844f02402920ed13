package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValidationError reports a malformed enum value or a missing required wire
// field. It is never retried.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// OrderStatus is the remote order's lifecycle state.
type OrderStatus string

const (
	StatusInternal  OrderStatus = "INTERNAL"
	StatusCreated   OrderStatus = "CREATED"
	StatusSaved     OrderStatus = "SAVED"
	StatusApproved  OrderStatus = "APPROVED"
	StatusVoided    OrderStatus = "VOIDED"
	StatusCompleted OrderStatus = "COMPLETED"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(s); status {
	case StatusInternal, StatusCreated, StatusSaved, StatusApproved, StatusVoided, StatusCompleted:
		return status, nil
	}
	return "", &ValidationError{Field: "status", Msg: "unknown order status " + s}
}

// Intent selects whether funds move at approval or are only held.
type Intent string

const (
	IntentCapture   Intent = "CAPTURE"
	IntentAuthorize Intent = "AUTHORIZE"
)

func ParseIntent(s string) (Intent, error) {
	switch intent := Intent(s); intent {
	case IntentCapture, IntentAuthorize:
		return intent, nil
	}
	return "", &ValidationError{Field: "intent", Msg: "unknown intent " + s}
}

type ItemCategory string

const (
	CategoryPhysical ItemCategory = "PHYSICAL"
	CategoryDigital  ItemCategory = "DIGITAL"
)

// LineItem is one priced cart line, owned by the purchase unit that lists it.
type LineItem struct {
	Name       string       `json:"name"`
	UnitAmount Money        `json:"unit_amount"`
	Quantity   int          `json:"quantity"`
	Tax        *Money       `json:"tax,omitempty"`
	SKU        string       `json:"sku,omitempty"`
	Category   ItemCategory `json:"category,omitempty"`
}

type Address struct {
	AddressLine1 string `json:"address_line_1,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	AdminArea2   string `json:"admin_area_2,omitempty"`
	AdminArea1   string `json:"admin_area_1,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	CountryCode  string `json:"country_code"`
}

type Shipping struct {
	Name    string   `json:"name,omitempty"`
	Address *Address `json:"address,omitempty"`
}

type Payee struct {
	EmailAddress string `json:"email_address,omitempty"`
	MerchantID   string `json:"merchant_id,omitempty"`
}

type PayerName struct {
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

type Payer struct {
	EmailAddress string     `json:"email_address,omitempty"`
	PayerID      string     `json:"payer_id,omitempty"`
	Name         *PayerName `json:"name,omitempty"`
}

// AuthorizationStatus is the lifecycle state of a hold on funds.
type AuthorizationStatus string

const (
	AuthCreated           AuthorizationStatus = "CREATED"
	AuthCaptured          AuthorizationStatus = "CAPTURED"
	AuthCompleted         AuthorizationStatus = "COMPLETED"
	AuthDenied            AuthorizationStatus = "DENIED"
	AuthExpired           AuthorizationStatus = "EXPIRED"
	AuthPartiallyCaptured AuthorizationStatus = "PARTIALLY_CAPTURED"
	AuthVoided            AuthorizationStatus = "VOIDED"
	AuthPending           AuthorizationStatus = "PENDING"
)

func ParseAuthorizationStatus(s string) (AuthorizationStatus, error) {
	switch status := AuthorizationStatus(s); status {
	case AuthCreated, AuthCaptured, AuthCompleted, AuthDenied, AuthExpired,
		AuthPartiallyCaptured, AuthVoided, AuthPending:
		return status, nil
	}
	return "", &ValidationError{Field: "authorization status", Msg: "unknown status " + s}
}

type Authorization struct {
	ID     string              `json:"id"`
	Status AuthorizationStatus `json:"status"`
	Amount *Money              `json:"amount,omitempty"`
}

// IsVoidable reports whether the hold can still be released.
func (a Authorization) IsVoidable() bool {
	switch a.Status {
	case AuthCreated, AuthPending, AuthPartiallyCaptured:
		return true
	}
	return false
}

type Capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount *Money `json:"amount,omitempty"`
}

type Payments struct {
	Authorizations []Authorization `json:"authorizations,omitempty"`
	Captures       []Capture       `json:"captures,omitempty"`
}

// PurchaseUnit is one priced group of items within a remote order. It is
// immutable once sent; patching builds a fresh instance for comparison.
type PurchaseUnit struct {
	ReferenceID    string     `json:"reference_id"`
	Amount         Amount     `json:"amount"`
	Items          []LineItem `json:"items,omitempty"`
	Shipping       *Shipping  `json:"shipping,omitempty"`
	Payee          *Payee     `json:"payee,omitempty"`
	CustomID       string     `json:"custom_id,omitempty"`
	InvoiceID      string     `json:"invoice_id,omitempty"`
	SoftDescriptor string     `json:"soft_descriptor,omitempty"`
	Payments       *Payments  `json:"payments,omitempty"`
}

// TokenSource references a vaulted payment method as the funding source of a
// new order.
type TokenSource struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

type PaymentSource struct {
	Token *TokenSource `json:"token,omitempty"`
}

// Order mirrors the processor's order resource. It is never mutated locally
// and trusted; every state change is confirmed by re-parsing a remote
// response.
type Order struct {
	ID            string         `json:"id"`
	CreateTime    time.Time      `json:"create_time"`
	UpdateTime    *time.Time     `json:"update_time,omitempty"`
	Intent        Intent         `json:"intent"`
	Status        OrderStatus    `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	Payer         *Payer         `json:"payer,omitempty"`
	PaymentSource *PaymentSource `json:"payment_source,omitempty"`
}

// VaultedToken returns the payment-method token the processor vaulted for
// this order, or nil when none was saved.
func (o *Order) VaultedToken() *TokenSource {
	if o.PaymentSource == nil || o.PaymentSource.Token == nil || o.PaymentSource.Token.ID == "" {
		return nil
	}
	return o.PaymentSource.Token
}

// ParseOrder decodes a remote order response, failing fast when a required
// field is absent or an enum value is out of range.
func ParseOrder(data []byte) (*Order, error) {
	var raw struct {
		ID            string         `json:"id"`
		CreateTime    time.Time      `json:"create_time"`
		UpdateTime    *time.Time     `json:"update_time"`
		Intent        string         `json:"intent"`
		Status        string         `json:"status"`
		PurchaseUnits []PurchaseUnit `json:"purchase_units"`
		Payer         *Payer         `json:"payer"`
		PaymentSource *PaymentSource `json:"payment_source"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.ID == "" {
		return nil, &ValidationError{Field: "id", Msg: "missing"}
	}
	status, err := ParseOrderStatus(raw.Status)
	if err != nil {
		return nil, err
	}
	intent, err := ParseIntent(raw.Intent)
	if err != nil {
		return nil, err
	}
	for _, pu := range raw.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, a := range pu.Payments.Authorizations {
			if _, err := ParseAuthorizationStatus(string(a.Status)); err != nil {
				return nil, err
			}
		}
	}
	return &Order{
		ID:            raw.ID,
		CreateTime:    raw.CreateTime,
		UpdateTime:    raw.UpdateTime,
		Intent:        intent,
		Status:        status,
		PurchaseUnits: raw.PurchaseUnits,
		Payer:         raw.Payer,
		PaymentSource: raw.PaymentSource,
	}, nil
}

// Authorizations flattens every authorization across the order's purchase
// units.
func (o *Order) Authorizations() []Authorization {
	var auths []Authorization
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil {
			auths = append(auths, pu.Payments.Authorizations...)
		}
	}
	return auths
}

// Captures flattens every capture across the order's purchase units.
func (o *Order) Captures() []Capture {
	var caps []Capture
	for _, pu := range o.PurchaseUnits {
		if pu.Payments != nil {
			caps = append(caps, pu.Payments.Captures...)
		}
	}
	return caps
}
