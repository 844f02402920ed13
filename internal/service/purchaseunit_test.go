package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderpay/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func consistentDraft() CheckoutDraft {
	return CheckoutDraft{
		ReferenceID:   "order-42",
		Currency:      "EUR",
		Total:         dec("26.00"),
		ItemTotal:     decPtr("20.00"),
		TaxTotal:      decPtr("4.00"),
		ShippingTotal: decPtr("2.00"),
		Lines: []CheckoutLine{
			{Name: "widget", SKU: "W-1", UnitPrice: dec("10.00"), Quantity: 2, Tax: decPtr("2.00")},
		},
	}
}

func TestBuildPurchaseUnitConsistentDraftKeepsItems(t *testing.T) {
	unit, err := BuildPurchaseUnit(consistentDraft())
	require.NoError(t, err)

	assert.Equal(t, "order-42", unit.ReferenceID)
	require.Len(t, unit.Items, 1)
	assert.Equal(t, "widget", unit.Items[0].Name)
	assert.Equal(t, model.CategoryPhysical, unit.Items[0].Category)
	require.NotNil(t, unit.Amount.Breakdown)
	assert.Equal(t, "20.00", unit.Amount.Breakdown.ItemTotal.Format())
	assert.Equal(t, "26.00", unit.Amount.Money.Format())
}

func TestBuildPurchaseUnitInconsistentTotalDitchesBoth(t *testing.T) {
	draft := consistentDraft()
	draft.ItemTotal = decPtr("11.00")

	unit, err := BuildPurchaseUnit(draft)
	require.NoError(t, err)

	// Sending only the final amount is still a valid order.
	assert.Nil(t, unit.Items)
	assert.Nil(t, unit.Amount.Breakdown)
	assert.Equal(t, "26.00", unit.Amount.Money.Format())
}

func TestBuildPurchaseUnitMissingLineTaxDitches(t *testing.T) {
	draft := consistentDraft()
	draft.Lines[0].Tax = nil

	unit, err := BuildPurchaseUnit(draft)
	require.NoError(t, err)
	assert.Nil(t, unit.Items)
	assert.Nil(t, unit.Amount.Breakdown)
}

func TestBuildPurchaseUnitNoBreakdownKeepsItems(t *testing.T) {
	draft := CheckoutDraft{
		Currency: "EUR",
		Total:    dec("10.00"),
		Lines: []CheckoutLine{
			{Name: "ebook", UnitPrice: dec("10.00"), Quantity: 1, Digital: true},
		},
	}

	unit, err := BuildPurchaseUnit(draft)
	require.NoError(t, err)
	assert.Equal(t, DefaultReferenceID, unit.ReferenceID)
	require.Len(t, unit.Items, 1)
	assert.Equal(t, model.CategoryDigital, unit.Items[0].Category)
	assert.Nil(t, unit.Amount.Breakdown)
}

func TestBuildPurchaseUnitMissingCurrency(t *testing.T) {
	_, err := BuildPurchaseUnit(CheckoutDraft{Total: dec("1.00")})
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "currency", verr.Field)
}
