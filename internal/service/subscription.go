package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"orderpay/internal/model"
)

var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionService persists recurring charges renewed with vaulted tokens.
type SubscriptionService struct {
	db *sql.DB
}

func NewSubscriptionService(db *sql.DB) *SubscriptionService {
	return &SubscriptionService{db: db}
}

func (s *SubscriptionService) Create(ctx context.Context, sub model.Subscription) (*model.Subscription, error) {
	sub.Status = model.SubscriptionActive
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO subscriptions (user_id, parent_order_id, status, amount, currency, period_days, next_renewal_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, sub.UserID, sub.ParentOrderID, sub.Status, sub.Amount, sub.Currency, sub.PeriodDays, sub.NextRenewalAt)
	if err := row.Scan(&sub.ID, &sub.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return &sub, nil
}

// ListDueRenewals returns active subscriptions whose renewal time has passed,
// oldest first.
func (s *SubscriptionService) ListDueRenewals(ctx context.Context, limit int) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, parent_order_id, status, amount, currency, period_days, next_renewal_at, created_at
		FROM subscriptions
		WHERE status = $1 AND next_renewal_at <= NOW()
		ORDER BY next_renewal_at ASC
		LIMIT $2
	`, model.SubscriptionActive, limit)
	if err != nil {
		return nil, fmt.Errorf("query due renewals: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *SubscriptionService) ListByUser(ctx context.Context, userID string) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, parent_order_id, status, amount, currency, period_days, next_renewal_at, created_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *SubscriptionService) ListByParentOrder(ctx context.Context, orderID string) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, parent_order_id, status, amount, currency, period_days, next_renewal_at, created_at
		FROM subscriptions
		WHERE parent_order_id = $1
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1 WHERE id = $2`,
		model.SubscriptionCancelled, subscriptionID,
	)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// CancelForUser cancels the subscription only when it belongs to userID.
func (s *SubscriptionService) CancelForUser(ctx context.Context, subscriptionID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET status = $1 WHERE id = $2 AND user_id = $3`,
		model.SubscriptionCancelled, subscriptionID, userID,
	)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// MarkRenewed advances the next renewal time by the subscription period.
func (s *SubscriptionService) MarkRenewed(ctx context.Context, sub model.Subscription) error {
	next := sub.NextRenewalAt.Add(time.Duration(sub.PeriodDays) * 24 * time.Hour)
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscriptions SET next_renewal_at = $1 WHERE id = $2`,
		next, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("mark subscription renewed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func collectSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		var sub model.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.ParentOrderID, &sub.Status,
			&sub.Amount, &sub.Currency, &sub.PeriodDays, &sub.NextRenewalAt, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return subs, nil
}
