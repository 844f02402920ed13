package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"orderpay/internal/model"
)

var (
	ErrOrderCreationFailed = errors.New("order creation failed")
	ErrCaptureFailed       = errors.New("capture failed")
	ErrAuthorizationFailed = errors.New("authorization failed")
	ErrPatchFailed         = errors.New("patch failed")
)

// TransportError means the HTTP call itself could not be completed. It is
// surfaced as-is and never retried by the client.
type TransportError struct {
	Op     string
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnexpectedStatusError means the call completed with a status the operation
// does not accept. The request context is kept for diagnostics.
type UnexpectedStatusError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s: %s %s: unexpected status %d: %s", e.Op, e.Method, e.URL, e.StatusCode, e.Body)
}

// BearerProvider supplies the Authorization header value. Token refresh is the
// provider's concern, not the client's.
type BearerProvider interface {
	Token(ctx context.Context) (string, error)
}

const issueOrderAlreadyCaptured = "ORDER_ALREADY_CAPTURED"

// apiError is the remote API's error-response body.
type apiError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Details []struct {
		Issue       string `json:"issue"`
		Description string `json:"description"`
	} `json:"details"`
}

// hasIssue reports whether any detail carries the given issue code, whatever
// HTTP status the response arrived with.
func (e apiError) hasIssue(issue string) bool {
	for _, d := range e.Details {
		if d.Issue == issue {
			return true
		}
	}
	return false
}

// CreateOrderRequest is the draft body of a new remote order.
type CreateOrderRequest struct {
	Intent        model.Intent         `json:"intent"`
	PurchaseUnits []model.PurchaseUnit `json:"purchase_units"`
	Payer         *model.Payer         `json:"payer,omitempty"`
	PaymentSource *model.PaymentSource `json:"payment_source,omitempty"`
}

// PayPalClient drives the remote order resource through its lifecycle. All
// calls are blocking; sequencing is the caller's responsibility.
type PayPalClient struct {
	baseURL string
	bearer  BearerProvider
	client  *http.Client
}

func NewPayPalClient(baseURL string, bearer BearerProvider) *PayPalClient {
	return &PayPalClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		bearer:  bearer,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *PayPalClient) do(ctx context.Context, op, method, path string, body any) (int, []byte, string, error) {
	fullURL := c.baseURL + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fullURL, fmt.Errorf("%s: marshal request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reqBody)
	if err != nil {
		return 0, nil, fullURL, fmt.Errorf("%s: create request: %w", op, err)
	}
	token, err := c.bearer.Token(ctx)
	if err != nil {
		return 0, nil, fullURL, fmt.Errorf("%s: bearer token: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fullURL, &TransportError{Op: op, Method: method, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fullURL, &TransportError{Op: op, Method: method, URL: fullURL, Err: err}
	}
	return resp.StatusCode, respBody, fullURL, nil
}

// Create posts a new order. Anything but 201 fails the creation.
func (c *PayPalClient) Create(ctx context.Context, req CreateOrderRequest) (*model.Order, error) {
	status, body, fullURL, err := c.do(ctx, "create order", http.MethodPost, "/v2/checkout/orders", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, err)
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("%w: %w", ErrOrderCreationFailed, &UnexpectedStatusError{
			Op: "create order", Method: http.MethodPost, URL: fullURL, StatusCode: status, Body: string(body),
		})
	}
	order, err := model.ParseOrder(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrOrderCreationFailed, err)
	}
	return order, nil
}

// Fetch reads the authoritative state of an order.
func (c *PayPalClient) Fetch(ctx context.Context, id string) (*model.Order, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(id)
	status, body, fullURL, err := c.do(ctx, "fetch order", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, &UnexpectedStatusError{
			Op: "fetch order", Method: http.MethodGet, URL: fullURL, StatusCode: status, Body: string(body),
		}
	}
	order, err := model.ParseOrder(body)
	if err != nil {
		return nil, fmt.Errorf("fetch order: parse response: %w", err)
	}
	return order, nil
}

// Capture captures an approved order. An order already COMPLETED is returned
// unchanged without a network call, so caller-level retries cannot
// double-charge. When the processor reports ORDER_ALREADY_CAPTURED, another
// actor won the race; the authoritative state is re-fetched and returned
// instead of an error.
func (c *PayPalClient) Capture(ctx context.Context, order *model.Order) (*model.Order, error) {
	if order.Status == model.StatusCompleted {
		return order, nil
	}

	path := "/v2/checkout/orders/" + url.PathEscape(order.ID) + "/capture"
	status, body, fullURL, err := c.do(ctx, "capture order", http.MethodPost, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	if status == http.StatusCreated {
		captured, err := model.ParseOrder(body)
		if err != nil {
			return nil, fmt.Errorf("%w: parse response: %w", ErrCaptureFailed, err)
		}
		return captured, nil
	}

	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.hasIssue(issueOrderAlreadyCaptured) {
		return c.Fetch(ctx, order.ID)
	}
	return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, &UnexpectedStatusError{
		Op: "capture order", Method: http.MethodPost, URL: fullURL, StatusCode: status, Body: string(body),
	})
}

// Authorize places a hold on the order's funds.
func (c *PayPalClient) Authorize(ctx context.Context, order *model.Order) (*model.Order, error) {
	path := "/v2/checkout/orders/" + url.PathEscape(order.ID) + "/authorize"
	status, body, fullURL, err := c.do(ctx, "authorize order", http.MethodPost, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationFailed, err)
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("%w: %w", ErrAuthorizationFailed, &UnexpectedStatusError{
			Op: "authorize order", Method: http.MethodPost, URL: fullURL, StatusCode: status, Body: string(body),
		})
	}
	authorized, err := model.ParseOrder(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrAuthorizationFailed, err)
	}
	return authorized, nil
}

// Patch diffs current against desired and applies the difference. With no
// difference it returns current without a network call. A successful PATCH
// returns 204 with no body, so the canonical state comes from a re-fetch.
func (c *PayPalClient) Patch(ctx context.Context, current, desired *model.Order) (*model.Order, error) {
	ops, err := PatchOps(current.PurchaseUnits, desired.PurchaseUnits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPatchFailed, err)
	}
	if len(ops) == 0 {
		return current, nil
	}

	path := "/v2/checkout/orders/" + url.PathEscape(current.ID)
	status, body, fullURL, err := c.do(ctx, "patch order", http.MethodPatch, path, ops)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPatchFailed, err)
	}
	if status != http.StatusNoContent {
		return nil, fmt.Errorf("%w: %w", ErrPatchFailed, &UnexpectedStatusError{
			Op: "patch order", Method: http.MethodPatch, URL: fullURL, StatusCode: status, Body: string(body),
		})
	}
	return c.Fetch(ctx, current.ID)
}

// Void releases an authorization hold.
func (c *PayPalClient) Void(ctx context.Context, authorizationID string) error {
	path := "/v2/payments/authorizations/" + url.PathEscape(authorizationID) + "/void"
	status, body, fullURL, err := c.do(ctx, "void authorization", http.MethodPost, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return &UnexpectedStatusError{
			Op: "void authorization", Method: http.MethodPost, URL: fullURL, StatusCode: status, Body: string(body),
		}
	}
	return nil
}

// CaptureAuthorized captures a previously authorized payment and returns the
// resulting capture.
func (c *PayPalClient) CaptureAuthorized(ctx context.Context, authorizationID string) (*model.Capture, error) {
	path := "/v2/payments/authorizations/" + url.PathEscape(authorizationID) + "/capture"
	status, body, fullURL, err := c.do(ctx, "capture authorized payment", http.MethodPost, path, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, &UnexpectedStatusError{
			Op: "capture authorized payment", Method: http.MethodPost, URL: fullURL, StatusCode: status, Body: string(body),
		})
	}
	var capture model.Capture
	if err := json.Unmarshal(body, &capture); err != nil {
		return nil, fmt.Errorf("%w: parse response: %w", ErrCaptureFailed, err)
	}
	if capture.ID == "" {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, &model.ValidationError{Field: "id", Msg: "missing"})
	}
	return &capture, nil
}

// DeleteToken removes a vaulted payment method at the processor.
func (c *PayPalClient) DeleteToken(ctx context.Context, tokenID string) error {
	path := "/v3/vault/payment-tokens/" + url.PathEscape(tokenID)
	status, body, fullURL, err := c.do(ctx, "delete payment token", http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return &UnexpectedStatusError{
			Op: "delete payment token", Method: http.MethodDelete, URL: fullURL, StatusCode: status, Body: string(body),
		}
	}
	return nil
}

// ClientCredentials exchanges the merchant's API credentials for bearer
// tokens and caches them until shortly before expiry.
type ClientCredentials struct {
	baseURL  string
	clientID string
	secret   string
	client   *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewClientCredentials(baseURL, clientID, secret string) *ClientCredentials {
	return &ClientCredentials{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientID: clientID,
		secret:   secret,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *ClientCredentials) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	fullURL := c.baseURL + "/v1/oauth2/token"
	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, form)
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}
	req.SetBasicAuth(c.clientID, c.secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &TransportError{Op: "acquire token", Method: http.MethodPost, URL: fullURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &TransportError{Op: "acquire token", Method: http.MethodPost, URL: fullURL, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &UnexpectedStatusError{
			Op: "acquire token", Method: http.MethodPost, URL: fullURL, StatusCode: resp.StatusCode, Body: string(body),
		}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", &model.ValidationError{Field: "access_token", Msg: "missing"}
	}

	c.token = tokenResp.AccessToken
	c.expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}
