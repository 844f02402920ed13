package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"orderpay/internal/model"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderService persists the merchant-side order records.
type OrderService struct {
	db *sql.DB
}

func NewOrderService(db *sql.DB) *OrderService {
	return &OrderService{db: db}
}

func (s *OrderService) Create(ctx context.Context, userID string, total decimal.Decimal, currency string, intent model.Intent, trial bool) (*model.LocalOrder, error) {
	order := model.LocalOrder{
		UserID:   userID,
		Status:   model.LocalStatusCreated,
		Intent:   intent,
		Total:    total,
		Currency: currency,
		Trial:    trial,
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, status, intent, total, currency, trial)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`, userID, order.Status, string(intent), total, currency, trial)
	if err := row.Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return &order, nil
}

func (s *OrderService) SetRemoteOrderID(ctx context.Context, orderID, remoteOrderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET remote_order_id = $1, updated_at = $2 WHERE id = $3`,
		remoteOrderID, time.Now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("set remote order id: %w", err)
	}
	return requireRow(res)
}

// RecordTransaction stores the remote transaction id (a capture id when
// captured, an authorization id otherwise).
func (s *OrderService) RecordTransaction(ctx context.Context, orderID, transactionID string, captured bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET transaction_id = $1, captured = $2, updated_at = $3 WHERE id = $4`,
		transactionID, captured, time.Now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return requireRow(res)
}

func (s *OrderService) MarkPaid(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		model.LocalStatusPaid, time.Now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	return requireRow(res)
}

func (s *OrderService) MarkFailed(ctx context.Context, orderID, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, failure_message = $2, updated_at = $3 WHERE id = $4`,
		model.LocalStatusFailed, message, time.Now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("mark order failed: %w", err)
	}
	return requireRow(res)
}

// MarkPendingTokenCheck flags the order for the consistency checker.
func (s *OrderService) MarkPendingTokenCheck(ctx context.Context, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3`,
		model.LocalStatusPendingTokenCheck, time.Now(), orderID,
	)
	if err != nil {
		return fmt.Errorf("mark order pending token check: %w", err)
	}
	return requireRow(res)
}

func (s *OrderService) GetByID(ctx context.Context, orderID, userID string) (*model.LocalOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, COALESCE(remote_order_id, ''), status, intent, total, currency,
		       COALESCE(transaction_id, ''), captured, trial, COALESCE(failure_message, ''),
		       created_at, updated_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, userID)
	return scanLocalOrder(row)
}

func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]model.LocalOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(remote_order_id, ''), status, intent, total, currency,
		       COALESCE(transaction_id, ''), captured, trial, COALESCE(failure_message, ''),
		       created_at, updated_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()
	return collectLocalOrders(rows)
}

// ListPendingTokenCheck returns renewal orders waiting for the consistency
// checker, oldest first.
func (s *OrderService) ListPendingTokenCheck(ctx context.Context, limit int) ([]model.LocalOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(remote_order_id, ''), status, intent, total, currency,
		       COALESCE(transaction_id, ''), captured, trial, COALESCE(failure_message, ''),
		       created_at, updated_at
		FROM orders
		WHERE status = $1
		ORDER BY updated_at ASC
		LIMIT $2
	`, model.LocalStatusPendingTokenCheck, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending orders: %w", err)
	}
	defer rows.Close()
	return collectLocalOrders(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLocalOrder(row rowScanner) (*model.LocalOrder, error) {
	var o model.LocalOrder
	var intent string
	err := row.Scan(&o.ID, &o.UserID, &o.RemoteOrderID, &o.Status, &intent, &o.Total, &o.Currency,
		&o.TransactionID, &o.Captured, &o.Trial, &o.FailureMessage, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Intent = model.Intent(intent)
	return &o, nil
}

func collectLocalOrders(rows *sql.Rows) ([]model.LocalOrder, error) {
	var orders []model.LocalOrder
	for rows.Next() {
		o, err := scanLocalOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return orders, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}
