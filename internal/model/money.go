package model

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// Currencies the processor treats as zero-decimal; everything else uses two
// fractional digits on the wire.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"TWD": true,
	"HUF": true,
}

// Money is an immutable amount/currency pair. Local arithmetic may carry more
// precision than the wire format; serialization always rounds to the
// currency's minor-unit count.
type Money struct {
	Value    decimal.Decimal
	Currency string
}

func NewMoney(value decimal.Decimal, currency string) (Money, error) {
	if currency == "" {
		return Money{}, errors.New("currency is required")
	}
	return Money{Value: value, Currency: currency}, nil
}

// MinorUnits returns the number of fractional digits the currency carries on
// the wire.
func MinorUnits(currency string) int32 {
	if zeroDecimalCurrencies[currency] {
		return 0
	}
	return 2
}

// Format renders the value at the currency's minor-unit precision. This is
// the representation sent to the remote API and the one used for equality
// during reconciliation.
func (m Money) Format() string {
	return m.Value.StringFixed(MinorUnits(m.Currency))
}

// EqualFormatted compares two Money values by their wire representation, so
// binary float artifacts accumulated during computation cannot produce a
// spurious mismatch.
func (m Money) EqualFormatted(other Money) bool {
	return m.Currency == other.Currency && m.Format() == other.Format()
}

type moneyJSON struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{CurrencyCode: m.Currency, Value: m.Format()})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.CurrencyCode == "" {
		return &ValidationError{Field: "currency_code", Msg: "missing"}
	}
	value, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return &ValidationError{Field: "value", Msg: "not a decimal: " + raw.Value}
	}
	m.Currency = raw.CurrencyCode
	m.Value = value
	return nil
}

// AmountBreakdown itemizes an Amount. A component set to a zero Money is
// still present and participates in the breakdown sum.
type AmountBreakdown struct {
	ItemTotal        *Money `json:"item_total,omitempty"`
	Shipping         *Money `json:"shipping,omitempty"`
	TaxTotal         *Money `json:"tax_total,omitempty"`
	Handling         *Money `json:"handling,omitempty"`
	Insurance        *Money `json:"insurance,omitempty"`
	ShippingDiscount *Money `json:"shipping_discount,omitempty"`
	Discount         *Money `json:"discount,omitempty"`
}

// Total sums the present components: positives plus tax, minus discounts.
func (b *AmountBreakdown) Total(currency string) Money {
	total := decimal.Zero
	for _, m := range []*Money{b.ItemTotal, b.Shipping, b.TaxTotal, b.Handling, b.Insurance} {
		if m != nil {
			total = total.Add(m.Value)
		}
	}
	for _, m := range []*Money{b.Discount, b.ShippingDiscount} {
		if m != nil {
			total = total.Sub(m.Value)
		}
	}
	return Money{Value: total, Currency: currency}
}

// Amount is a Money with an optional breakdown.
type Amount struct {
	Money     Money
	Breakdown *AmountBreakdown
}

type amountJSON struct {
	CurrencyCode string           `json:"currency_code"`
	Value        string           `json:"value"`
	Breakdown    *AmountBreakdown `json:"breakdown,omitempty"`
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(amountJSON{
		CurrencyCode: a.Money.Currency,
		Value:        a.Money.Format(),
		Breakdown:    a.Breakdown,
	})
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var raw amountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.CurrencyCode == "" {
		return &ValidationError{Field: "currency_code", Msg: "missing"}
	}
	value, err := decimal.NewFromString(raw.Value)
	if err != nil {
		return &ValidationError{Field: "value", Msg: "not a decimal: " + raw.Value}
	}
	a.Money = Money{Value: value, Currency: raw.CurrencyCode}
	a.Breakdown = raw.Breakdown
	return nil
}
