package httpclient

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
	"time"

	"github.com/appforge/engine/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HTTPError carries the full diagnostic context of a failed vendor call.
// Provisioning failures are rare, so verbose beats terse here.
type HTTPError struct {
	StatusCode int
	Status     string
	Method     string
	Endpoint   string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: %s: %s", e.Method, e.Endpoint, e.Status, e.Body)
}

// IsConflict reports whether the error is a naming/resource conflict.
func IsConflict(err error) bool {
	var he *HTTPError
	if !errors.As(err, &he) {
		return false
	}
	if he.StatusCode == http.StatusConflict {
		return true
	}
	body := strings.ToLower(he.Body)
	return strings.Contains(body, "already exists") || strings.Contains(body, "conflict")
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithMinInterval sets the minimum spacing between request starts.
func WithMinInterval(d time.Duration) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Every(d), 1) }
}

// WithRetry sets the 429 retry budget and base backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(c *Client) { c.maxRetries = maxRetries; c.baseDelay = baseDelay }
}

// Client is a bearer-token JSON client for one provisioning vendor.
// A burst-1 limiter serializes request starts so no two requests from the
// same instance begin closer together than the configured interval. On 429
// it retries with exponential backoff; any other non-2xx is returned as an
// *HTTPError with the response body attached.
type Client struct {
	http       *http.Client
	baseURL    string
	token      string
	limiter    *rate.Limiter
	maxRetries int
	baseDelay  time.Duration
}

// New creates a Client for the given base URL and bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		http:       &http.Client{Timeout: 60 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		limiter:    rate.NewLimiter(rate.Every(400*time.Millisecond), 1),
		maxRetries: 3,
		baseDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do issues a request and returns the raw JSON response body. body, when
// non-nil, is JSON-encoded. query may be nil.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// baseDelay * 2^(attempt-1) after the attempt-1'th failure
			delay := c.baseDelay << (attempt - 1)
			logger.L().Warn("rate limited, backing off",
				zap.String("endpoint", path),
				zap.Duration("delay", delay),
				zap.Int("attempt", attempt),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		raw, err := c.do(ctx, method, path, query, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var he *HTTPError
		if !errors.As(err, &he) || he.StatusCode != http.StatusTooManyRequests {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Method:     method,
			Endpoint:   endpoint,
			Body:       errorBody(data),
		}
	}
	return json.RawMessage(data), nil
}

// errorBody compacts the body when it is valid JSON, otherwise returns it raw.
func errorBody(data []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err == nil {
		return buf.String()
	}
	return string(data)
}

// Get issues a GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	raw, err := c.Do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

// Post issues a POST and decodes the response into out (out may be nil).
func (c *Client) Post(ctx context.Context, path string, query url.Values, body, out any) error {
	raw, err := c.Do(ctx, http.MethodPost, path, query, body)
	if err != nil {
		return err
	}
	return decode(raw, out)
}

func decode(raw json.RawMessage, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
