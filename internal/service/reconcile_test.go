package service

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderpay/internal/model"
)

func eur(s string) model.Money {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return model.Money{Value: v, Currency: "EUR"}
}

func eurPtr(s string) *model.Money {
	m := eur(s)
	return &m
}

func TestShouldDitchConsistentBreakdown(t *testing.T) {
	amount := model.Amount{
		Money: eur("26.00"),
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("20"),
			TaxTotal:  eurPtr("6"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("10"), Quantity: 2, Tax: eurPtr("3")},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.False(t, ditch)

	// Pure function: a second call with the same inputs agrees.
	again, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.Equal(t, ditch, again)
}

func TestShouldDitchItemTotalMismatch(t *testing.T) {
	amount := model.Amount{
		Money: eur("26.00"),
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("11"),
			TaxTotal:  eurPtr("6"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("10"), Quantity: 2, Tax: eurPtr("3")},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.True(t, ditch)
}

func TestShouldDitchOneCentDiscrepancy(t *testing.T) {
	amount := model.Amount{
		Money: eur("26.00"),
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("20"),
			TaxTotal:  eurPtr("6.01"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("10"), Quantity: 2, Tax: eurPtr("3")},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.True(t, ditch)
}

func TestShouldDitchNoBreakdown(t *testing.T) {
	amount := model.Amount{Money: eur("26.00")}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("99"), Quantity: 5},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.False(t, ditch)
}

func TestShouldDitchBreakdownSumMismatch(t *testing.T) {
	// Items reconcile against the claimed totals, but the totals do not sum
	// to the amount.
	amount := model.Amount{
		Money: eur("27.50"),
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("20"),
			TaxTotal:  eurPtr("6"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("10"), Quantity: 2, Tax: eurPtr("3")},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.True(t, ditch)
}

func TestShouldDitchZeroComponentIsPresent(t *testing.T) {
	// A component carrying 0 still participates in the breakdown sum.
	amount := model.Amount{
		Money: eur("20.00"),
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("20"),
			Shipping:  eurPtr("0"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("10"), Quantity: 2},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.False(t, ditch)
}

func TestShouldDitchMissingTax(t *testing.T) {
	amount := model.Amount{
		Money: eur("26.00"),
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("20"),
			TaxTotal:  eurPtr("6"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("20"), Quantity: 1},
	}

	_, err := ShouldDitchLineItems(amount, items)
	require.Error(t, err)
	var missingTax *MissingTaxError
	require.True(t, errors.As(err, &missingTax))
	assert.Equal(t, "widget", missingTax.ItemName)
}

func TestShouldDitchZeroQuantitySkipped(t *testing.T) {
	// A zero-quantity item contributes nothing and must not trigger the
	// missing-tax error even without a tax amount.
	amount := model.Amount{
		Money: eur("26.00"),
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("20"),
			TaxTotal:  eurPtr("6"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("10"), Quantity: 2, Tax: eurPtr("3")},
		{Name: "sample", UnitAmount: eur("5"), Quantity: 0},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.False(t, ditch)
}

func TestShouldDitchHigherPrecisionTotals(t *testing.T) {
	// The merchant side computed at higher precision; formatted at two
	// decimals everything still lines up.
	amount := model.Amount{
		Money: model.Money{
			Value:    decimal.NewFromFloat(0.1).Add(decimal.NewFromFloat(0.2)),
			Currency: "EUR",
		},
		Breakdown: &model.AmountBreakdown{
			ItemTotal: eurPtr("0.1"),
			Shipping:  eurPtr("0.2"),
		},
	}
	items := []model.LineItem{
		{Name: "widget", UnitAmount: eur("0.1"), Quantity: 1},
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	require.NoError(t, err)
	assert.False(t, ditch)
}
