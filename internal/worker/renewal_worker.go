package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"orderpay/internal/events"
	"orderpay/internal/model"
	"orderpay/internal/service"
)

// RenewalWorker drives subscription renewals through the vaulted payment
// executor and drains uncertain renewals through the consistency checker.
type RenewalWorker struct {
	subs     *service.SubscriptionService
	orders   *service.OrderService
	tokens   *service.TokenService
	executor *service.VaultedExecutor
	checker  *service.ConsistencyChecker
	producer *events.Producer

	interval  time.Duration
	batchSize int
}

func NewRenewalWorker(
	subs *service.SubscriptionService,
	orders *service.OrderService,
	tokens *service.TokenService,
	executor *service.VaultedExecutor,
	checker *service.ConsistencyChecker,
	producer *events.Producer,
	interval time.Duration,
) *RenewalWorker {
	return &RenewalWorker{
		subs:      subs,
		orders:    orders,
		tokens:    tokens,
		executor:  executor,
		checker:   checker,
		producer:  producer,
		interval:  interval,
		batchSize: 10,
	}
}

func (w *RenewalWorker) Start(ctx context.Context) {
	slog.Info("starting renewal worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("renewal worker stopped")
			return
		case <-ticker.C:
			if err := w.processBatch(ctx); err != nil {
				slog.Error("renewal batch failed", "error", err)
			}
		}
	}
}

func (w *RenewalWorker) processBatch(ctx context.Context) error {
	renewals, err := w.subs.ListDueRenewals(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list due renewals: %w", err)
	}
	for _, sub := range renewals {
		if err := w.renew(ctx, sub); err != nil {
			slog.Error("renewal failed", "subscription_id", sub.ID, "error", err)
		}
	}

	pending, err := w.orders.ListPendingTokenCheck(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("list pending token checks: %w", err)
	}
	for _, order := range pending {
		w.resolve(ctx, order)
	}
	return nil
}

func (w *RenewalWorker) renew(ctx context.Context, sub model.Subscription) error {
	order, err := w.orders.Create(ctx, sub.UserID, sub.Amount, sub.Currency, w.executor.Intent(), sub.Amount.IsZero())
	if err != nil {
		return fmt.Errorf("create renewal order: %w", err)
	}

	tokens, err := w.tokens.ListByUser(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("list payment tokens: %w", err)
	}
	if len(tokens) == 0 {
		// Without a vaulted method this renewal, and every future one, is
		// unpayable.
		if err := w.orders.MarkFailed(ctx, order.ID, "no vaulted payment method on file"); err != nil {
			slog.Error("failed to mark renewal order failed", "order_id", order.ID, "error", err)
		}
		if err := w.subs.Cancel(ctx, sub.ID); err != nil {
			slog.Warn("failed to cancel subscription", "subscription_id", sub.ID, "error", err)
		}
		w.producer.Publish(events.PaymentEvent{
			Type:    events.TypePaymentFailed,
			OrderID: order.ID,
		})
		return nil
	}

	remote, err := w.executor.Pay(ctx, tokens[0], renewalDraft(sub, order.ID), order.ID)
	if err != nil {
		if markErr := w.orders.MarkFailed(ctx, order.ID, err.Error()); markErr != nil {
			slog.Error("failed to mark renewal order failed", "order_id", order.ID, "error", markErr)
		}
		w.producer.Publish(events.PaymentEvent{
			Type:    events.TypePaymentFailed,
			OrderID: order.ID,
		})
		return fmt.Errorf("vaulted payment: %w", err)
	}
	if err := w.orders.SetRemoteOrderID(ctx, order.ID, remote.ID); err != nil {
		return fmt.Errorf("store remote order id: %w", err)
	}

	updated, err := w.orders.GetByID(ctx, order.ID, sub.UserID)
	if err != nil {
		return fmt.Errorf("reload renewal order: %w", err)
	}
	if !updated.Captured {
		// Funds are held but not captured; whether the token survived the
		// renewal is not yet known. The checker resolves it next tick.
		if err := w.orders.MarkPendingTokenCheck(ctx, order.ID); err != nil {
			return fmt.Errorf("mark pending token check: %w", err)
		}
	}
	if err := w.subs.MarkRenewed(ctx, sub); err != nil {
		return fmt.Errorf("mark subscription renewed: %w", err)
	}

	eventType := events.TypePaymentCaptured
	if !updated.Captured {
		eventType = events.TypePaymentAuthorized
	}
	w.producer.Publish(events.PaymentEvent{
		Type:          eventType,
		OrderID:       order.ID,
		RemoteOrderID: remote.ID,
		TransactionID: updated.TransactionID,
		Amount:        sub.Amount.StringFixed(model.MinorUnits(sub.Currency)),
		Currency:      sub.Currency,
	})
	slog.Info("subscription renewed", "subscription_id", sub.ID, "order_id", order.ID)
	return nil
}

func (w *RenewalWorker) resolve(ctx context.Context, order model.LocalOrder) {
	failures, err := w.checker.Check(ctx, order)
	for _, f := range failures {
		slog.Warn("compensation failed", "order_id", order.ID, "item", f.Item, "error", f.Err)
	}
	switch {
	case err == nil:
		slog.Info("pending renewal resolved", "order_id", order.ID)
	case errors.Is(err, service.ErrPaymentTokenNotSaved):
		w.producer.Publish(events.PaymentEvent{
			Type:          events.TypePaymentFailed,
			OrderID:       order.ID,
			RemoteOrderID: order.RemoteOrderID,
		})
		slog.Info("pending renewal failed, compensations applied", "order_id", order.ID)
	default:
		slog.Error("token consistency check failed", "order_id", order.ID, "error", err)
	}
}

func renewalDraft(sub model.Subscription, orderID string) service.CheckoutDraft {
	amount := sub.Amount
	return service.CheckoutDraft{
		ReferenceID: orderID,
		CustomID:    sub.ID,
		Currency:    sub.Currency,
		Total:       amount,
		ItemTotal:   &amount,
		Lines: []service.CheckoutLine{{
			Name:      "Subscription renewal",
			UnitPrice: amount,
			Quantity:  1,
			Digital:   true,
		}},
		Trial: amount.IsZero(),
	}
}
