package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"orderpay/internal/model"
)

var ErrTokenNotFound = errors.New("payment token not found")

type remoteTokenDeleter interface {
	DeleteToken(ctx context.Context, tokenID string) error
}

// TokenService stores vaulted payment-method references with a per-user
// read-through cache. The cache is best-effort, not transactional: a delete
// clears the cache entry before the remote call, so a remote failure still
// leaves the cache emptied and the next read goes back to storage.
type TokenService struct {
	db  *sql.DB
	api remoteTokenDeleter

	mu    sync.RWMutex
	cache map[string][]model.PaymentToken
}

func NewTokenService(db *sql.DB, api remoteTokenDeleter) *TokenService {
	return &TokenService{
		db:    db,
		api:   api,
		cache: make(map[string][]model.PaymentToken),
	}
}

func (s *TokenService) ListByUser(ctx context.Context, userID string) ([]model.PaymentToken, error) {
	s.mu.RLock()
	tokens, ok := s.cache[userID]
	s.mu.RUnlock()
	if ok {
		return tokens, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, type, created_at
		FROM payment_tokens
		WHERE user_id = $1
		ORDER BY created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query payment tokens: %w", err)
	}
	defer rows.Close()

	tokens = []model.PaymentToken{}
	for rows.Next() {
		var t model.PaymentToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	s.mu.Lock()
	s.cache[userID] = tokens
	s.mu.Unlock()
	return tokens, nil
}

// Save stores a token the processor reported as vaulted.
func (s *TokenService) Save(ctx context.Context, token model.PaymentToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_tokens (id, user_id, type)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`, token.ID, token.UserID, token.Type)
	if err != nil {
		return fmt.Errorf("insert payment token: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, token.UserID)
	s.mu.Unlock()
	return nil
}

// Delete removes the token locally and at the processor. The cache entry is
// cleared first; whatever happens afterwards, the stale entry is gone and a
// later read re-fetches from storage.
func (s *TokenService) Delete(ctx context.Context, userID, tokenID string) error {
	s.mu.Lock()
	delete(s.cache, userID)
	s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM payment_tokens WHERE id = $1 AND user_id = $2`,
		tokenID, userID,
	)
	if err != nil {
		return fmt.Errorf("delete payment token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}

	if err := s.api.DeleteToken(ctx, tokenID); err != nil {
		return fmt.Errorf("delete remote payment token: %w", err)
	}
	return nil
}
