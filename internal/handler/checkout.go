package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"orderpay/internal/events"
	"orderpay/internal/model"
	"orderpay/internal/mw"
	"orderpay/internal/service"
)

type checkoutLine struct {
	Name      string  `json:"name"`
	SKU       string  `json:"sku,omitempty"`
	UnitPrice string  `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	Tax       *string `json:"tax,omitempty"`
	Digital   bool    `json:"digital,omitempty"`
}

type checkoutRequest struct {
	Currency      string         `json:"currency"`
	Total         string         `json:"total"`
	ItemTotal     *string        `json:"item_total,omitempty"`
	TaxTotal      *string        `json:"tax_total,omitempty"`
	ShippingTotal *string        `json:"shipping_total,omitempty"`
	Discount      *string        `json:"discount,omitempty"`
	Lines         []checkoutLine `json:"lines"`
	Shipping      *model.Shipping `json:"shipping,omitempty"`
	Payer         *model.Payer    `json:"payer,omitempty"`
	InvoiceID     string         `json:"invoice_id,omitempty"`
	Trial         bool           `json:"trial,omitempty"`
}

type checkoutResponse struct {
	OrderID       string `json:"order_id"`
	RemoteOrderID string `json:"remote_order_id"`
	RemoteStatus  string `json:"remote_status"`
}

func draftFromRequest(req checkoutRequest) (service.CheckoutDraft, error) {
	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		return service.CheckoutDraft{}, &model.ValidationError{Field: "total", Msg: "not a decimal: " + req.Total}
	}
	draft := service.CheckoutDraft{
		Currency:  req.Currency,
		Total:     total,
		Shipping:  req.Shipping,
		Payer:     req.Payer,
		InvoiceID: req.InvoiceID,
		Trial:     req.Trial,
	}
	for field, pair := range map[string]struct {
		src *string
		dst **decimal.Decimal
	}{
		"item_total":     {req.ItemTotal, &draft.ItemTotal},
		"tax_total":      {req.TaxTotal, &draft.TaxTotal},
		"shipping_total": {req.ShippingTotal, &draft.ShippingTotal},
		"discount":       {req.Discount, &draft.Discount},
	} {
		if pair.src == nil {
			continue
		}
		v, err := decimal.NewFromString(*pair.src)
		if err != nil {
			return service.CheckoutDraft{}, &model.ValidationError{Field: field, Msg: "not a decimal: " + *pair.src}
		}
		*pair.dst = &v
	}
	for _, line := range req.Lines {
		price, err := decimal.NewFromString(line.UnitPrice)
		if err != nil {
			return service.CheckoutDraft{}, &model.ValidationError{Field: "unit_price", Msg: "not a decimal: " + line.UnitPrice}
		}
		cl := service.CheckoutLine{
			Name:      line.Name,
			SKU:       line.SKU,
			UnitPrice: price,
			Quantity:  line.Quantity,
			Digital:   line.Digital,
		}
		if line.Tax != nil {
			tax, err := decimal.NewFromString(*line.Tax)
			if err != nil {
				return service.CheckoutDraft{}, &model.ValidationError{Field: "tax", Msg: "not a decimal: " + *line.Tax}
			}
			cl.Tax = &tax
		}
		draft.Lines = append(draft.Lines, cl)
	}
	return draft, nil
}

// CreateOrderHandler builds a purchase unit from the posted cart draft,
// creates the remote order and records the local order row.
func CreateOrderHandler(orderSvc *service.OrderService, pp *service.PayPalClient, intent model.Intent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)

		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		draft, err := draftFromRequest(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		pu, err := service.BuildPurchaseUnit(draft)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		local, err := orderSvc.Create(r.Context(), userID, draft.Total, draft.Currency, intent, draft.Trial)
		if err != nil {
			slog.Error("order create failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		draft.ReferenceID = local.ID
		pu.ReferenceID = local.ID

		remote, err := pp.Create(r.Context(), service.CreateOrderRequest{
			Intent:        intent,
			PurchaseUnits: []model.PurchaseUnit{pu},
			Payer:         draft.Payer,
		})
		if err != nil {
			slog.Error("remote order create failed", "order_id", local.ID, "error", err)
			http.Error(w, "payment could not be processed", http.StatusBadGateway)
			return
		}
		if err := orderSvc.SetRemoteOrderID(r.Context(), local.ID, remote.ID); err != nil {
			slog.Error("failed to store remote order id", "order_id", local.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(checkoutResponse{
			OrderID:       local.ID,
			RemoteOrderID: remote.ID,
			RemoteStatus:  string(remote.Status),
		})
	}
}

// UpdateOrderHandler re-posts the cart draft against a not-yet-settled order.
// The remote order is patched to the newly built purchase unit; an unchanged
// draft is a no-op.
func UpdateOrderHandler(orderSvc *service.OrderService, pp *service.PayPalClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)
		orderID := chi.URLParam(r, "orderID")

		local, err := orderSvc.GetByID(r.Context(), orderID, userID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if local.RemoteOrderID == "" {
			http.Error(w, "order has no remote order", http.StatusConflict)
			return
		}
		if local.Status != model.LocalStatusCreated {
			http.Error(w, "order can no longer be updated", http.StatusConflict)
			return
		}

		var req checkoutRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		draft, err := draftFromRequest(req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		draft.ReferenceID = local.ID
		pu, err := service.BuildPurchaseUnit(draft)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		current, err := pp.Fetch(r.Context(), local.RemoteOrderID)
		if err != nil {
			slog.Error("remote order fetch failed", "order_id", local.ID, "error", err)
			http.Error(w, "payment could not be processed", http.StatusBadGateway)
			return
		}
		desired := *current
		desired.PurchaseUnits = []model.PurchaseUnit{pu}

		updated, err := pp.Patch(r.Context(), current, &desired)
		if err != nil {
			slog.Error("remote order patch failed", "order_id", local.ID, "error", err)
			http.Error(w, "payment could not be processed", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(updated)
	}
}

// CaptureOrderHandler captures the remote order and settles the local one.
func CaptureOrderHandler(orderSvc *service.OrderService, tokenSvc *service.TokenService, pp *service.PayPalClient, producer *events.Producer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)
		orderID := chi.URLParam(r, "orderID")

		local, err := orderSvc.GetByID(r.Context(), orderID, userID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if local.RemoteOrderID == "" {
			http.Error(w, "order has no remote order", http.StatusConflict)
			return
		}

		remote, err := pp.Fetch(r.Context(), local.RemoteOrderID)
		if err != nil {
			slog.Error("remote order fetch failed", "order_id", local.ID, "error", err)
			http.Error(w, "payment could not be processed", http.StatusBadGateway)
			return
		}
		captured, err := pp.Capture(r.Context(), remote)
		if err != nil {
			slog.Error("capture failed", "order_id", local.ID, "error", err)
			producer.Publish(events.PaymentEvent{
				Type:          events.TypePaymentFailed,
				OrderID:       local.ID,
				RemoteOrderID: local.RemoteOrderID,
			})
			http.Error(w, "payment could not be processed", http.StatusBadGateway)
			return
		}

		if caps := captured.Captures(); len(caps) > 0 {
			if err := orderSvc.RecordTransaction(r.Context(), local.ID, caps[0].ID, true); err != nil {
				slog.Error("failed to record transaction", "order_id", local.ID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			local.TransactionID = caps[0].ID
		}
		if err := orderSvc.MarkPaid(r.Context(), local.ID); err != nil {
			slog.Error("failed to mark order paid", "order_id", local.ID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		saveVaultedToken(r.Context(), tokenSvc, captured, userID)

		producer.Publish(events.PaymentEvent{
			Type:          events.TypePaymentCaptured,
			OrderID:       local.ID,
			RemoteOrderID: captured.ID,
			TransactionID: local.TransactionID,
			Amount:        local.Total.StringFixed(model.MinorUnits(local.Currency)),
			Currency:      local.Currency,
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(captured)
	}
}

// AuthorizeOrderHandler places a hold on the remote order's funds.
func AuthorizeOrderHandler(orderSvc *service.OrderService, tokenSvc *service.TokenService, pp *service.PayPalClient, producer *events.Producer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)
		orderID := chi.URLParam(r, "orderID")

		local, err := orderSvc.GetByID(r.Context(), orderID, userID)
		if err != nil {
			if errors.Is(err, service.ErrOrderNotFound) {
				http.Error(w, "order not found", http.StatusNotFound)
				return
			}
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if local.RemoteOrderID == "" {
			http.Error(w, "order has no remote order", http.StatusConflict)
			return
		}

		remote, err := pp.Fetch(r.Context(), local.RemoteOrderID)
		if err != nil {
			slog.Error("remote order fetch failed", "order_id", local.ID, "error", err)
			http.Error(w, "payment could not be processed", http.StatusBadGateway)
			return
		}
		authorized, err := pp.Authorize(r.Context(), remote)
		if err != nil {
			slog.Error("authorize failed", "order_id", local.ID, "error", err)
			http.Error(w, "payment could not be processed", http.StatusBadGateway)
			return
		}

		if auths := authorized.Authorizations(); len(auths) > 0 {
			if err := orderSvc.RecordTransaction(r.Context(), local.ID, auths[0].ID, false); err != nil {
				slog.Error("failed to record transaction", "order_id", local.ID, "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			local.TransactionID = auths[0].ID
		}
		saveVaultedToken(r.Context(), tokenSvc, authorized, userID)

		producer.Publish(events.PaymentEvent{
			Type:          events.TypePaymentAuthorized,
			OrderID:       local.ID,
			RemoteOrderID: authorized.ID,
			TransactionID: local.TransactionID,
			Amount:        local.Total.StringFixed(model.MinorUnits(local.Currency)),
			Currency:      local.Currency,
		})

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(authorized)
	}
}

// saveVaultedToken stores the payment-method token the processor reports as
// vaulted on the order, if any. A failed save is logged, not surfaced; the
// consistency checker settles any renewal that depends on it.
func saveVaultedToken(ctx context.Context, tokenSvc *service.TokenService, order *model.Order, userID string) {
	tok := order.VaultedToken()
	if tok == nil {
		return
	}
	err := tokenSvc.Save(ctx, model.PaymentToken{ID: tok.ID, UserID: userID, Type: tok.Type})
	if err != nil {
		slog.Warn("failed to save vaulted payment token",
			"token_id", tok.ID, "user_id", userID, "error", err)
	}
}

// ListOrdersHandler returns the caller's local orders, newest first.
func ListOrdersHandler(orderSvc *service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(mw.UserCtxKey).(string)

		orders, err := orderSvc.ListByUser(r.Context(), userID)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if len(orders) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(orders); err != nil {
			http.Error(w, "encode error", http.StatusInternalServerError)
		}
	}
}
