// Package marketplace is the REST client for the external marketplace API.
// It owns the cross-cutting auth policy: any 401/403 from any endpoint
// triggers the registered auth-failure handler (global forced logout)
// before the error is surfaced.
package marketplace

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
	"sync"

	"github.com/circulo/surplus-gateway-go/internal/domain"
	"github.com/circulo/surplus-gateway-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("marketplace")

// Client wraps HTTP calls to the marketplace REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	bh         *resilience.Bulkhead
	cfg        resilience.Config
	logger     *zap.Logger

	mu            sync.RWMutex
	onAuthFailure func(token string)
}

// NewClient creates a marketplace client.
func NewClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		bh:         resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:        cfg,
		logger:     logger,
	}
}

// OnAuthFailure registers the forced-logout handler. The handler runs for
// every 401/403 response, whatever endpoint produced it.
func (c *Client) OnAuthFailure(fn func(token string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = fn
}

func (c *Client) authFailed(token string) {
	c.mu.RLock()
	fn := c.onAuthFailure
	c.mu.RUnlock()
	if fn != nil && token != "" {
		fn(token)
	}
}

// upstreamError is the error envelope the marketplace API returns.
type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest executes one request against the marketplace API. The bearer
// token is attached when present. Typed domain errors come out of here;
// raw transport errors never escape the package.
func (c *Client) doRequest(ctx context.Context, token, method, path string, payload any) ([]byte, error) {
	if err := c.bh.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bh.Release()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("marketplace: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, &domain.ErrNetwork{Operation: method + " " + path, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.ErrNetwork{Operation: method + " " + path, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		c.logger.Warn("marketplace: auth rejected, forcing logout",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		c.authFailed(token)
		if resp.StatusCode == http.StatusForbidden {
			return nil, &domain.ErrAuthorization{Action: method + " " + path}
		}
		return nil, &domain.ErrAuthentication{Message: upstreamMessage(raw)}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &domain.ErrNotFound{Resource: path}
	case resp.StatusCode == http.StatusNoContent:
		return nil, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.logger.Warn("marketplace: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(raw)),
		)
		return nil, &domain.ErrUpstream{Status: resp.StatusCode, Message: upstreamMessage(raw)}
	}

	c.logger.Debug("marketplace: request OK",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return raw, nil
}

// upstreamMessage extracts the server's error message so it can be shown
// verbatim; empty when the body is not the known envelope.
func upstreamMessage(raw []byte) string {
	var env upstreamError
	if err := json.Unmarshal(raw, &env); err == nil {
		if env.Error != "" {
			return env.Error
		}
		return env.Message
	}
	return ""
}

// retryable reports whether a read failure may succeed on another attempt.
// Auth rejections, missing resources and other 4xx answers are final;
// re-sending them would only re-fire the forced-logout hook and burn
// breaker budget.
func retryable(err error) bool {
	var authn *domain.ErrAuthentication
	var authz *domain.ErrAuthorization
	var notFound *domain.ErrNotFound
	if errors.As(err, &authn) || errors.As(err, &authz) || errors.As(err, &notFound) {
		return false
	}
	var upstream *domain.ErrUpstream
	if errors.As(err, &upstream) && upstream.Status < http.StatusInternalServerError {
		return false
	}
	return true
}

// get runs an idempotent read through the breaker. Transient failures are
// retried with backoff; definitive answers come back on the first attempt.
func (c *Client) get(ctx context.Context, token, path string) ([]byte, error) {
	var out []byte
	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			raw, err := c.doRequest(ctx, token, http.MethodGet, path, nil)
			if err != nil {
				if !retryable(err) {
					return resilience.Permanent(err)
				}
				return err
			}
			out = raw
			return nil
		})
	})
	return out, err
}

// send runs a mutation through the breaker, single shot. Mutations are not
// retried automatically; retry is a caller decision.
func (c *Client) send(ctx context.Context, token, method, path string, payload any) ([]byte, error) {
	var out []byte
	_, err := c.cb.Execute(func() (any, error) {
		raw, err := c.doRequest(ctx, token, method, path, payload)
		if err != nil {
			return nil, err
		}
		out = raw
		return nil, nil
	})
	return out, err
}

// criteriaQuery renders ListCriteria into the upstream's filter dialect.
func criteriaQuery(criteria domain.ListCriteria) string {
	q := url.Values{}
	if criteria.Query != "" {
		q.Set("title.contains", criteria.Query)
	}
	if criteria.Category != "" {
		q.Set("category.equals", criteria.Category)
	}
	if criteria.Status != "" {
		q.Set("status.equals", criteria.Status)
	}
	if criteria.Location != "" {
		q.Set("location.contains", criteria.Location)
	}
	if criteria.PriceMin > 0 {
		q.Set("salePrice.greaterThanOrEqual", strconv.FormatFloat(criteria.PriceMin, 'f', -1, 64))
	}
	if criteria.PriceMax > 0 {
		q.Set("salePrice.lessThanOrEqual", strconv.FormatFloat(criteria.PriceMax, 'f', -1, 64))
	}
	if criteria.Page > 0 {
		q.Set("page", strconv.Itoa(criteria.Page))
	}
	if criteria.Size > 0 {
		q.Set("size", strconv.Itoa(criteria.Size))
	}
	if criteria.Sort != "" {
		q.Set("sort", criteria.Sort)
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}
