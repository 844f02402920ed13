package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"orderpay/internal/model"
)

// MissingTaxError reports an item without a tax amount while the breakdown
// claims a tax total, which makes the breakdown unverifiable.
type MissingTaxError struct {
	ItemName string
}

func (e *MissingTaxError) Error() string {
	return fmt.Sprintf("item %q has no tax but the breakdown tracks a tax total", e.ItemName)
}

// ShouldDitchLineItems decides whether the computed line items and breakdown
// can be trusted to sum to the order total. The merchant side computes with
// arbitrary precision while the wire format carries two decimals, so the sums
// can legitimately drift apart; a breakdown that does not reconcile would make
// the remote API reject the whole request, and the safe behavior is to send
// the bare total instead. Pure function, no side effects.
func ShouldDitchLineItems(amount model.Amount, items []model.LineItem) (bool, error) {
	var itemsRemainder, taxRemainder *decimal.Decimal
	if bd := amount.Breakdown; bd != nil {
		if bd.ItemTotal != nil {
			v := bd.ItemTotal.Value
			itemsRemainder = &v
		}
		if bd.TaxTotal != nil {
			v := bd.TaxTotal.Value
			taxRemainder = &v
		}
	}

	for _, item := range items {
		if item.Quantity == 0 {
			continue
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		if itemsRemainder != nil {
			r := itemsRemainder.Sub(item.UnitAmount.Value.Mul(qty))
			itemsRemainder = &r
		}
		if taxRemainder != nil {
			if item.Tax == nil {
				return false, &MissingTaxError{ItemName: item.Name}
			}
			r := taxRemainder.Sub(item.Tax.Value.Mul(qty))
			taxRemainder = &r
		}
	}

	if itemsRemainder != nil && !itemsRemainder.Round(2).IsZero() {
		return true, nil
	}
	if taxRemainder != nil && !taxRemainder.Round(2).IsZero() {
		return true, nil
	}

	bd := amount.Breakdown
	if bd == nil {
		// Nothing claimed, nothing to reconcile.
		return false, nil
	}

	// Compare string-formatted at the currency's minor-unit precision, never
	// with float equality.
	total := bd.Total(amount.Money.Currency)
	if !total.EqualFormatted(amount.Money) {
		return true, nil
	}
	return false, nil
}
