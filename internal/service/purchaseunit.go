package service

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"orderpay/internal/model"
)

// CheckoutLine is one merchant cart line as the storefront computed it,
// possibly at higher precision than the wire format.
type CheckoutLine struct {
	Name      string
	SKU       string
	UnitPrice decimal.Decimal
	Quantity  int
	Tax       *decimal.Decimal
	Digital   bool
}

// CheckoutDraft carries everything the builder needs, passed explicitly; the
// builder never reads ambient cart or session state.
type CheckoutDraft struct {
	ReferenceID    string
	CustomID       string
	InvoiceID      string
	SoftDescriptor string
	Currency       string
	Total          decimal.Decimal
	ItemTotal      *decimal.Decimal
	TaxTotal       *decimal.Decimal
	ShippingTotal  *decimal.Decimal
	Discount       *decimal.Decimal
	Lines          []CheckoutLine
	Shipping       *model.Shipping
	Payee          *model.Payee
	Payer          *model.Payer
	Trial          bool
}

// DefaultReferenceID is used when the draft does not name one; the processor
// requires every purchase unit to carry a reference id.
const DefaultReferenceID = "default"

// BuildPurchaseUnit maps a checkout draft to a purchase unit. When the
// reconciler cannot prove the breakdown consistent with the total, items and
// breakdown are ditched and only the final amount is sent. Pure transform; no
// remote calls.
func BuildPurchaseUnit(draft CheckoutDraft) (model.PurchaseUnit, error) {
	if draft.Currency == "" {
		return model.PurchaseUnit{}, &model.ValidationError{Field: "currency", Msg: "missing"}
	}

	items := make([]model.LineItem, 0, len(draft.Lines))
	for _, line := range draft.Lines {
		item := model.LineItem{
			Name:       line.Name,
			UnitAmount: model.Money{Value: line.UnitPrice, Currency: draft.Currency},
			Quantity:   line.Quantity,
			SKU:        line.SKU,
			Category:   model.CategoryPhysical,
		}
		if line.Digital {
			item.Category = model.CategoryDigital
		}
		if line.Tax != nil {
			item.Tax = &model.Money{Value: *line.Tax, Currency: draft.Currency}
		}
		items = append(items, item)
	}

	amount := model.Amount{
		Money:     model.Money{Value: draft.Total, Currency: draft.Currency},
		Breakdown: breakdownFromDraft(draft),
	}

	ditch, err := ShouldDitchLineItems(amount, items)
	if err != nil {
		var missingTax *MissingTaxError
		if !errors.As(err, &missingTax) {
			return model.PurchaseUnit{}, fmt.Errorf("reconcile amount: %w", err)
		}
		// An unverifiable breakdown is treated like an inconsistent one.
		ditch = true
	}
	if ditch {
		items = nil
		amount.Breakdown = nil
	}

	referenceID := draft.ReferenceID
	if referenceID == "" {
		referenceID = DefaultReferenceID
	}

	return model.PurchaseUnit{
		ReferenceID:    referenceID,
		Amount:         amount,
		Items:          items,
		Shipping:       draft.Shipping,
		Payee:          draft.Payee,
		CustomID:       draft.CustomID,
		InvoiceID:      draft.InvoiceID,
		SoftDescriptor: draft.SoftDescriptor,
	}, nil
}

func breakdownFromDraft(draft CheckoutDraft) *model.AmountBreakdown {
	if draft.ItemTotal == nil && draft.TaxTotal == nil && draft.ShippingTotal == nil && draft.Discount == nil {
		return nil
	}
	bd := &model.AmountBreakdown{}
	if draft.ItemTotal != nil {
		bd.ItemTotal = &model.Money{Value: *draft.ItemTotal, Currency: draft.Currency}
	}
	if draft.TaxTotal != nil {
		bd.TaxTotal = &model.Money{Value: *draft.TaxTotal, Currency: draft.Currency}
	}
	if draft.ShippingTotal != nil {
		bd.Shipping = &model.Money{Value: *draft.ShippingTotal, Currency: draft.Currency}
	}
	if draft.Discount != nil {
		bd.Discount = &model.Money{Value: *draft.Discount, Currency: draft.Currency}
	}
	return bd
}
