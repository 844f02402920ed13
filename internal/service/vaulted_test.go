package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderpay/internal/model"
)

type fakeVaultAPI struct {
	createOrder *model.Order
	createErr   error
	authOrder   *model.Order
	authErr     error
	captureErr  error

	createReqs  []CreateOrderRequest
	authorized  []string
	capturedIDs []string
	voidedIDs   []string
	voidErr     error
}

func (f *fakeVaultAPI) Create(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	f.createReqs = append(f.createReqs, req)
	return f.createOrder, f.createErr
}

func (f *fakeVaultAPI) Authorize(ctx context.Context, order *model.Order) (*model.Order, error) {
	f.authorized = append(f.authorized, order.ID)
	return f.authOrder, f.authErr
}

func (f *fakeVaultAPI) CaptureAuthorized(ctx context.Context, authorizationID string) (*model.Capture, error) {
	f.capturedIDs = append(f.capturedIDs, authorizationID)
	if f.captureErr != nil {
		return nil, f.captureErr
	}
	return &model.Capture{ID: "CAP-9", Status: "COMPLETED"}, nil
}

func (f *fakeVaultAPI) Void(ctx context.Context, authorizationID string) error {
	f.voidedIDs = append(f.voidedIDs, authorizationID)
	return f.voidErr
}

type transactionRecord struct {
	TransactionID string
	Captured      bool
}

type fakeOrderStore struct {
	transactions map[string][]transactionRecord
	paid         []string
	failed       map[string]string
}

func newFakeOrderStore() *fakeOrderStore {
	return &fakeOrderStore{
		transactions: make(map[string][]transactionRecord),
		failed:       make(map[string]string),
	}
}

func (f *fakeOrderStore) RecordTransaction(ctx context.Context, orderID, transactionID string, captured bool) error {
	f.transactions[orderID] = append(f.transactions[orderID], transactionRecord{transactionID, captured})
	return nil
}

func (f *fakeOrderStore) MarkPaid(ctx context.Context, orderID string) error {
	f.paid = append(f.paid, orderID)
	return nil
}

func (f *fakeOrderStore) MarkFailed(ctx context.Context, orderID, message string) error {
	f.failed[orderID] = message
	return nil
}

func completedRemoteOrder(intent model.Intent, payments *model.Payments) *model.Order {
	return &model.Order{
		ID:     "REMOTE-1",
		Intent: intent,
		Status: model.StatusCompleted,
		PurchaseUnits: []model.PurchaseUnit{{
			ReferenceID: "local-1",
			Amount:      model.Amount{Money: eur("26.00")},
			Payments:    payments,
		}},
	}
}

func vaultedDraft() CheckoutDraft {
	return CheckoutDraft{
		ReferenceID: "local-1",
		Currency:    "EUR",
		Total:       decimal.RequireFromString("26.00"),
	}
}

func TestVaultedPayCaptureIntent(t *testing.T) {
	api := &fakeVaultAPI{
		createOrder: completedRemoteOrder(model.IntentCapture, &model.Payments{
			Captures: []model.Capture{{ID: "CAP-1", Status: "COMPLETED"}},
		}),
	}
	store := newFakeOrderStore()
	executor := NewVaultedExecutor(api, store, model.IntentCapture)

	order, err := executor.Pay(context.Background(), model.PaymentToken{ID: "TOK-1", Type: "card"}, vaultedDraft(), "local-1")
	require.NoError(t, err)
	assert.Equal(t, "REMOTE-1", order.ID)

	require.Len(t, api.createReqs, 1)
	require.NotNil(t, api.createReqs[0].PaymentSource)
	assert.Equal(t, "TOK-1", api.createReqs[0].PaymentSource.Token.ID)

	assert.Equal(t, []transactionRecord{{"CAP-1", true}}, store.transactions["local-1"])
	assert.Equal(t, []string{"local-1"}, store.paid)
	assert.Empty(t, api.authorized)
	assert.Empty(t, api.voidedIDs)
}

func TestVaultedPayAuthorizeIntent(t *testing.T) {
	created := completedRemoteOrder(model.IntentAuthorize, nil)
	authorized := completedRemoteOrder(model.IntentAuthorize, &model.Payments{
		Authorizations: []model.Authorization{{ID: "AUTH-1", Status: model.AuthCreated}},
	})
	api := &fakeVaultAPI{createOrder: created, authOrder: authorized}
	store := newFakeOrderStore()
	executor := NewVaultedExecutor(api, store, model.IntentAuthorize)

	_, err := executor.Pay(context.Background(), model.PaymentToken{ID: "TOK-1", Type: "card"}, vaultedDraft(), "local-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"REMOTE-1"}, api.authorized)
	// Not yet captured: transaction id recorded as an authorization, order
	// stays unpaid.
	assert.Equal(t, []transactionRecord{{"AUTH-1", false}}, store.transactions["local-1"])
	assert.Empty(t, store.paid)
	assert.Empty(t, api.capturedIDs)
}

func TestVaultedPayCapturesAuthorizedWhenConfiguredCapture(t *testing.T) {
	// The processor answered with an AUTHORIZE order while the merchant is
	// configured to capture: the executor captures the hold right away.
	created := completedRemoteOrder(model.IntentAuthorize, nil)
	authorized := completedRemoteOrder(model.IntentAuthorize, &model.Payments{
		Authorizations: []model.Authorization{{ID: "AUTH-1", Status: model.AuthCreated}},
	})
	api := &fakeVaultAPI{createOrder: created, authOrder: authorized}
	store := newFakeOrderStore()
	executor := NewVaultedExecutor(api, store, model.IntentCapture)

	_, err := executor.Pay(context.Background(), model.PaymentToken{ID: "TOK-1", Type: "card"}, vaultedDraft(), "local-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"AUTH-1"}, api.capturedIDs)
	assert.Equal(t, []transactionRecord{{"AUTH-1", false}, {"CAP-9", true}}, store.transactions["local-1"])
	assert.Equal(t, []string{"local-1"}, store.paid)
}

func TestVaultedPayUnexpectedStatus(t *testing.T) {
	created := completedRemoteOrder(model.IntentCapture, nil)
	created.Status = model.StatusApproved
	api := &fakeVaultAPI{createOrder: created}
	store := newFakeOrderStore()
	executor := NewVaultedExecutor(api, store, model.IntentCapture)

	_, err := executor.Pay(context.Background(), model.PaymentToken{ID: "TOK-1", Type: "card"}, vaultedDraft(), "local-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnexpectedOrderStatus)
	// Nothing was persisted before the failure.
	assert.Empty(t, store.transactions)
	assert.Empty(t, store.paid)
}

func TestVaultedPayFreeTrialVoidsAuthorizations(t *testing.T) {
	created := completedRemoteOrder(model.IntentAuthorize, nil)
	authorized := completedRemoteOrder(model.IntentAuthorize, &model.Payments{
		Authorizations: []model.Authorization{
			{ID: "AUTH-1", Status: model.AuthCreated},
			{ID: "AUTH-2", Status: model.AuthCaptured},
		},
	})
	api := &fakeVaultAPI{createOrder: created, authOrder: authorized}
	store := newFakeOrderStore()
	executor := NewVaultedExecutor(api, store, model.IntentCapture)

	draft := vaultedDraft()
	draft.Trial = true
	_, err := executor.Pay(context.Background(), model.PaymentToken{ID: "TOK-1", Type: "card"}, draft, "local-1")
	require.NoError(t, err)

	// Only the voidable hold is released; no funds move for a trial.
	assert.Equal(t, []string{"AUTH-1"}, api.voidedIDs)
	assert.Empty(t, api.capturedIDs)
	assert.Equal(t, []string{"local-1"}, store.paid)
}

func TestVaultedPayCreateFailurePropagates(t *testing.T) {
	api := &fakeVaultAPI{createErr: errors.New("boom")}
	store := newFakeOrderStore()
	executor := NewVaultedExecutor(api, store, model.IntentCapture)

	_, err := executor.Pay(context.Background(), model.PaymentToken{ID: "TOK-1", Type: "card"}, vaultedDraft(), "local-1")
	require.Error(t, err)
	assert.Empty(t, store.transactions)
}
