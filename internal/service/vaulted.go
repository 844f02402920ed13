package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orderpay/internal/model"
)

var (
	ErrUnexpectedOrderStatus = errors.New("unexpected order status")
	ErrUnsupportedIntent     = errors.New("unsupported intent")
	ErrNoTransactionID       = errors.New("no transaction id in order payments")
)

type vaultAPI interface {
	Create(ctx context.Context, req CreateOrderRequest) (*model.Order, error)
	Authorize(ctx context.Context, order *model.Order) (*model.Order, error)
	CaptureAuthorized(ctx context.Context, authorizationID string) (*model.Capture, error)
	Void(ctx context.Context, authorizationID string) error
}

type executorOrderStore interface {
	RecordTransaction(ctx context.Context, orderID, transactionID string, captured bool) error
	MarkPaid(ctx context.Context, orderID string) error
}

// VaultedExecutor drives a one-shot payment with a stored payment-method
// token: create with the token as funding source, authorize or capture per
// intent, persist the transaction id, then settle.
type VaultedExecutor struct {
	api    vaultAPI
	orders executorOrderStore
	intent model.Intent
}

func NewVaultedExecutor(api vaultAPI, orders executorOrderStore, intent model.Intent) *VaultedExecutor {
	return &VaultedExecutor{api: api, orders: orders, intent: intent}
}

// Intent is the merchant-configured checkout intent the executor pays with.
func (e *VaultedExecutor) Intent() model.Intent { return e.intent }

// Pay executes the payment for localOrderID. No local state is written until
// the remote side has settled, so a failure before the transaction-id record
// leaves nothing to roll back.
func (e *VaultedExecutor) Pay(ctx context.Context, token model.PaymentToken, draft CheckoutDraft, localOrderID string) (*model.Order, error) {
	pu, err := BuildPurchaseUnit(draft)
	if err != nil {
		return nil, err
	}

	order, err := e.api.Create(ctx, CreateOrderRequest{
		Intent:        e.intent,
		PurchaseUnits: []model.PurchaseUnit{pu},
		Payer:         draft.Payer,
		PaymentSource: &model.PaymentSource{Token: &model.TokenSource{ID: token.ID, Type: token.Type}},
	})
	if err != nil {
		return nil, err
	}

	if order.Status != model.StatusCompleted {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedOrderStatus, order.Status)
	}
	if order.Intent != model.IntentCapture && order.Intent != model.IntentAuthorize {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedIntent, order.Intent)
	}

	captured := order.Intent == model.IntentCapture
	if order.Intent == model.IntentAuthorize {
		order, err = e.api.Authorize(ctx, order)
		if err != nil {
			return nil, err
		}
	}

	transactionID := firstTransactionID(order, captured)
	if transactionID == "" {
		return nil, ErrNoTransactionID
	}
	if err := e.orders.RecordTransaction(ctx, localOrderID, transactionID, captured); err != nil {
		return nil, err
	}

	if draft.Trial {
		// No funds may move for a free trial; release every outstanding hold.
		for _, auth := range order.Authorizations() {
			if !auth.IsVoidable() {
				continue
			}
			if err := e.api.Void(ctx, auth.ID); err != nil {
				slog.Warn("failed to void trial authorization",
					"order_id", localOrderID, "authorization_id", auth.ID, "error", err)
			}
		}
		if err := e.orders.MarkPaid(ctx, localOrderID); err != nil {
			return nil, err
		}
		return order, nil
	}

	if !captured && e.intent == model.IntentCapture {
		capture, err := e.api.CaptureAuthorized(ctx, transactionID)
		if err != nil {
			return nil, err
		}
		if err := e.orders.RecordTransaction(ctx, localOrderID, capture.ID, true); err != nil {
			return nil, err
		}
		captured = true
	}
	if captured {
		if err := e.orders.MarkPaid(ctx, localOrderID); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func firstTransactionID(order *model.Order, captured bool) string {
	if captured {
		if caps := order.Captures(); len(caps) > 0 {
			return caps[0].ID
		}
		return ""
	}
	if auths := order.Authorizations(); len(auths) > 0 {
		return auths[0].ID
	}
	return ""
}
