package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderpay/internal/model"
)

type staticBearer string

func (b staticBearer) Token(ctx context.Context) (string, error) { return string(b), nil }

func approvedOrder(t *testing.T) *model.Order {
	t.Helper()
	order, err := model.ParseOrder([]byte(orderBody("APPROVED")))
	require.NoError(t, err)
	return order
}

func orderBody(status string) string {
	switch status {
	case "APPROVED":
		return `{"id":"5O190127TN364715T","create_time":"2024-01-02T03:04:05Z","intent":"CAPTURE","status":"APPROVED","purchase_units":[{"reference_id":"u1","amount":{"currency_code":"EUR","value":"26.00"}}]}`
	case "COMPLETED":
		return `{"id":"5O190127TN364715T","create_time":"2024-01-02T03:04:05Z","intent":"CAPTURE","status":"COMPLETED","purchase_units":[{"reference_id":"u1","amount":{"currency_code":"EUR","value":"26.00"},"payments":{"captures":[{"id":"CAP-1","status":"COMPLETED"}]}}]}`
	default:
		panic("unknown status " + status)
	}
}

// callCounter tracks requests per method+path.
type callCounter struct {
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: make(map[string]int)}
}

func (c *callCounter) record(r *http.Request) {
	c.calls[r.Method+" "+r.URL.Path]++
}

func (c *callCounter) total() int {
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

func TestCaptureCompletedShortCircuits(t *testing.T) {
	counter := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record(r)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	completed, err := model.ParseOrder([]byte(orderBody("COMPLETED")))
	require.NoError(t, err)

	result, err := client.Capture(context.Background(), completed)
	require.NoError(t, err)
	assert.Same(t, completed, result)
	assert.Zero(t, counter.total(), "a completed order must not hit the network")
}

func TestCaptureReturnsUpdatedOrder(t *testing.T) {
	counter := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record(r)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(orderBody("COMPLETED")))
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	result, err := client.Capture(context.Background(), approvedOrder(t))
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, "CAP-1", result.Captures()[0].ID)
	assert.Equal(t, 1, counter.calls["POST /v2/checkout/orders/5O190127TN364715T/capture"])
}

func TestCaptureConflictRecoversViaFetch(t *testing.T) {
	counter := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record(r)
		if r.Method == http.MethodPost {
			// The conflict can arrive with any error status; only the issue
			// code matters.
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","details":[{"issue":"ORDER_ALREADY_CAPTURED","description":"Order already captured."}]}`))
			return
		}
		_, _ = w.Write([]byte(orderBody("COMPLETED")))
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	result, err := client.Capture(context.Background(), approvedOrder(t))
	require.NoError(t, err, "a lost capture race must resolve to a read, not an error")
	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, 1, counter.calls["POST /v2/checkout/orders/5O190127TN364715T/capture"])
	assert.Equal(t, 1, counter.calls["GET /v2/checkout/orders/5O190127TN364715T"])
}

func TestCaptureUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"name":"INTERNAL_ERROR"}`))
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	_, err := client.Capture(context.Background(), approvedOrder(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCaptureFailed)
	var statusErr *UnexpectedStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, http.MethodPost, statusErr.Method)
	assert.Contains(t, statusErr.URL, "/capture")
}

func TestCreateRequires201(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(orderBody("APPROVED")))
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	_, err := client.Create(context.Background(), CreateOrderRequest{Intent: model.IntentCapture})
	assert.ErrorIs(t, err, ErrOrderCreationFailed)
}

func TestCreateParsesOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/checkout/orders", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(orderBody("APPROVED")))
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	order, err := client.Create(context.Background(), CreateOrderRequest{
		Intent:        model.IntentCapture,
		PurchaseUnits: []model.PurchaseUnit{unit("u1", "26.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, "5O190127TN364715T", order.ID)
	assert.Equal(t, model.StatusApproved, order.Status)
}

func TestCreateTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	_, err := client.Create(context.Background(), CreateOrderRequest{Intent: model.IntentCapture})
	require.Error(t, err)
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestPatchNoDiffSkipsNetwork(t *testing.T) {
	counter := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record(r)
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	current := approvedOrder(t)
	desired := approvedOrder(t)

	result, err := client.Patch(context.Background(), current, desired)
	require.NoError(t, err)
	assert.Same(t, current, result)
	assert.Zero(t, counter.total())
}

func TestPatchRoundTrip(t *testing.T) {
	counter := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record(r)
		switch r.Method {
		case http.MethodPatch:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodGet:
			_, _ = w.Write([]byte(orderBody("COMPLETED")))
		}
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	current := approvedOrder(t)
	desired := approvedOrder(t)
	desired.PurchaseUnits = []model.PurchaseUnit{unit("u1", "30.00")}

	result, err := client.Patch(context.Background(), current, desired)
	require.NoError(t, err)
	// The result is the fetched canonical state, not a local assembly.
	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, 1, counter.calls["PATCH /v2/checkout/orders/5O190127TN364715T"])
	assert.Equal(t, 1, counter.calls["GET /v2/checkout/orders/5O190127TN364715T"])
	assert.Equal(t, 2, counter.total())
}

func TestAuthorizeRequires201(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	_, err := client.Authorize(context.Background(), approvedOrder(t))
	assert.ErrorIs(t, err, ErrAuthorizationFailed)
}

func TestVoidRequires204(t *testing.T) {
	counter := newCallCounter()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		counter.record(r)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	err := client.Void(context.Background(), "AUTH-1")
	require.NoError(t, err)
	assert.Equal(t, 1, counter.calls["POST /v2/payments/authorizations/AUTH-1/void"])
}

func TestCaptureAuthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v2/payments/authorizations/AUTH-1/capture", r.URL.Path)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"CAP-7","status":"COMPLETED"}`))
	}))
	defer srv.Close()
	client := NewPayPalClient(srv.URL, staticBearer("tok"))

	capture, err := client.CaptureAuthorized(context.Background(), "AUTH-1")
	require.NoError(t, err)
	assert.Equal(t, "CAP-7", capture.ID)
}
