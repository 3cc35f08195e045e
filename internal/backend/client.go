// Package backend is the HTTP client for the storefront REST backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/Sung-star/storefront-checkout/internal/logger"
)

// Breaker settings: open after 5 consecutive failures, let a trial call through after 30s.
const (
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
)

// Client calls the backend with an optional bearer token per request.
// Calls are never retried.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*response]
	logger     *zap.Logger
}

type response struct {
	status int
	body   []byte
}

// NewClient returns a client for baseURL (e.g. http://localhost:8080/api).
func NewClient(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	log = logger.OrNop(log)
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:    "backend",
		Timeout: breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// request describes one backend call.
type request struct {
	method  string
	path    string
	query   url.Values
	body    any
	token   string
	headers map[string]string
}

// do sends r through the breaker. Transport errors and 5xx count as breaker
// failures; any non-2xx is returned as *APIError.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.send(ctx, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, ErrUnavailable)
	}
	if resp != nil && resp.status >= 400 {
		return nil, newAPIError(resp.status, resp.body)
	}
	if err != nil {
		return nil, err
	}
	return resp.body, nil
}

func (c *Client) send(ctx context.Context, r request) (*response, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		raw, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("method", r.method), zap.String("path", r.path), zap.Error(err))
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("backend request",
		zap.String("method", r.method),
		zap.String("path", r.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	out := &response{status: resp.StatusCode, body: raw}
	if resp.StatusCode >= 500 {
		return out, newAPIError(resp.StatusCode, raw)
	}
	return out, nil
}

// CreateOrderRequest is one POST /orders call.
type CreateOrderRequest struct {
	Token          string
	Payload        any
	PayloadVersion int
	IdempotencyKey string
}

// CreateOrder posts an order and returns the created id.
func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (string, error) {
	headers := map[string]string{}
	if in.PayloadVersion > 0 {
		headers["X-Order-Payload-Version"] = strconv.Itoa(in.PayloadVersion)
	}
	if in.IdempotencyKey != "" {
		headers["Idempotency-Key"] = in.IdempotencyKey
	}
	body, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/orders",
		body:    in.Payload,
		token:   in.Token,
		headers: headers,
	})
	if err != nil {
		return "", err
	}
	var created struct {
		ID ID `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode order: %w", err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("decode order: response has no id")
	}
	return string(created.ID), nil
}

// CreatePaymentLink asks the backend for a gateway URL for orderID.
func (c *Client) CreatePaymentLink(ctx context.Context, token string, amount int64, orderID string) (string, error) {
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/payment/create_payment",
		query: url.Values{
			"amount":  {strconv.FormatInt(amount, 10)},
			"orderId": {orderID},
		},
		token: token,
	})
	if err != nil {
		return "", err
	}
	var link struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &link); err != nil || link.URL == "" {
		return "", ErrNoPaymentURL
	}
	return link.URL, nil
}

// VerifyPayment forwards the gateway return parameters unchanged. A nil error
// means the backend accepted the signature.
func (c *Client) VerifyPayment(ctx context.Context, token string, params url.Values) error {
	_, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/payment/vnpay-return",
		query:  params,
		token:  token,
	})
	return err
}

// GetProduct fetches one catalog product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/products/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, err
	}
	var p Product
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}
	return &p, nil
}

// GetUserAddresses lists the saved addresses of a user.
func (c *Client) GetUserAddresses(ctx context.Context, token, userID string) ([]Address, error) {
	body, err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/addresses/user/" + url.PathEscape(userID),
		token:  token,
	})
	if err != nil {
		return nil, err
	}
	var addrs []Address
	if err := json.Unmarshal(body, &addrs); err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}
	return addrs, nil
}

// DefaultAddress returns the address flagged default, if any.
func DefaultAddress(addrs []Address) (Address, bool) {
	for _, a := range addrs {
		if a.IsDefault {
			return a, true
		}
	}
	return Address{}, false
}

// Login exchanges credentials for a token and a profile.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body: map[string]string{
			"username": username,
			"password": password,
		},
	})
	if err != nil {
		return nil, err
	}
	var res LoginResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode login: %w", err)
	}
	if res.Token == "" {
		return nil, &APIError{Status: http.StatusUnauthorized, Message: "login response has no token"}
	}
	return &res, nil
}
