package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"orderpay/internal/model"
)

var (
	ErrPaymentTokenNotSaved     = errors.New("payment method could not be saved")
	ErrNoRemoteOrder            = errors.New("order has no remote order id")
	ErrNoVoidableAuthorizations = errors.New("no voidable authorizations found")
)

// CompensationFailure records one best-effort remedial action that failed.
// It never aborts sibling actions and never masks the primary failure.
type CompensationFailure struct {
	Item string
	Err  error
}

type checkAPI interface {
	Fetch(ctx context.Context, id string) (*model.Order, error)
	CaptureAuthorized(ctx context.Context, authorizationID string) (*model.Capture, error)
	Void(ctx context.Context, authorizationID string) error
}

type tokenLister interface {
	ListByUser(ctx context.Context, userID string) ([]model.PaymentToken, error)
}

type checkerOrderStore interface {
	MarkPaid(ctx context.Context, orderID string) error
	MarkFailed(ctx context.Context, orderID, message string) error
}

type subscriptionStore interface {
	ListByParentOrder(ctx context.Context, orderID string) ([]model.Subscription, error)
	Cancel(ctx context.Context, subscriptionID string) error
}

// ConsistencyChecker reconciles a renewal order whose payment-token save
// status is uncertain. With a token on file the outstanding authorization is
// captured; without one the renewal can never succeed again, so the current
// authorization is voided and the subscription cancelled rather than left
// retrying forever.
type ConsistencyChecker struct {
	api    checkAPI
	tokens tokenLister
	orders checkerOrderStore
	subs   subscriptionStore
}

func NewConsistencyChecker(api checkAPI, tokens tokenLister, orders checkerOrderStore, subs subscriptionStore) *ConsistencyChecker {
	return &ConsistencyChecker{api: api, tokens: tokens, orders: orders, subs: subs}
}

// Check resolves the uncertain order. On the failure path it returns
// ErrPaymentTokenNotSaved after all compensating actions were attempted;
// per-item compensation failures are logged, accumulated and reported through
// the returned Compensations slice, never raised.
func (c *ConsistencyChecker) Check(ctx context.Context, order model.LocalOrder) ([]CompensationFailure, error) {
	tokens, err := c.tokens.ListByUser(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("list payment tokens: %w", err)
	}

	if len(tokens) > 0 {
		if _, err := c.api.CaptureAuthorized(ctx, order.TransactionID); err != nil {
			return nil, err
		}
		if err := c.orders.MarkPaid(ctx, order.ID); err != nil {
			return nil, err
		}
		slog.Info("captured authorized renewal payment",
			"order_id", order.ID, "authorization_id", order.TransactionID)
		return nil, nil
	}

	// No token was saved: void the holds, fail the order, cancel the
	// subscriptions that depend on it.
	if order.RemoteOrderID == "" {
		return nil, ErrNoRemoteOrder
	}
	remote, err := c.api.Fetch(ctx, order.RemoteOrderID)
	if err != nil {
		return nil, err
	}

	var voidable []model.Authorization
	for _, auth := range remote.Authorizations() {
		if auth.IsVoidable() {
			voidable = append(voidable, auth)
		}
	}
	if len(voidable) == 0 {
		return nil, ErrNoVoidableAuthorizations
	}

	var failures []CompensationFailure
	for _, auth := range voidable {
		if err := c.api.Void(ctx, auth.ID); err != nil {
			slog.Warn("failed to void authorization",
				"order_id", order.ID, "authorization_id", auth.ID, "error", err)
			failures = append(failures, CompensationFailure{Item: auth.ID, Err: err})
		}
	}

	if err := c.orders.MarkFailed(ctx, order.ID,
		"payment method could not be saved for future renewals"); err != nil {
		slog.Error("failed to mark order failed", "order_id", order.ID, "error", err)
		failures = append(failures, CompensationFailure{Item: order.ID, Err: err})
	}

	subs, err := c.subs.ListByParentOrder(ctx, order.ID)
	if err != nil {
		slog.Error("failed to list subscriptions", "order_id", order.ID, "error", err)
		failures = append(failures, CompensationFailure{Item: order.ID, Err: err})
	}
	for _, sub := range subs {
		if err := c.subs.Cancel(ctx, sub.ID); err != nil {
			slog.Warn("failed to cancel subscription",
				"order_id", order.ID, "subscription_id", sub.ID, "error", err)
			failures = append(failures, CompensationFailure{Item: sub.ID, Err: err})
		}
	}

	return failures, ErrPaymentTokenNotSaved
}
