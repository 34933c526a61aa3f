// Package apiclient is the REST client for the external marketplace backend.
// Every response is normalized here so callers only ever see canonical DTOs
// and *Error values.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/akeditz/storefront/internal/logger"
)

// TokenSource supplies the bearer token for a request. An empty token means
// the request is sent anonymously.
type TokenSource interface {
	Token() string
}

// UnauthorizedFunc is told which token the backend rejected with 401.
type UnauthorizedFunc func(ctx context.Context, token string)

// Client handles communication with the marketplace backend
type Client struct {
	baseURL        string
	assetURL       string
	httpClient     *http.Client
	limiter        *rate.Limiter
	tokens         TokenSource
	onUnauthorized UnauthorizedFunc
	metrics        *Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithAssetBaseURL sets the root used to resolve relative image paths.
func WithAssetBaseURL(u string) Option {
	return func(c *Client) {
		c.assetURL = strings.TrimRight(u, "/")
	}
}

// WithRateLimit paces outbound requests. A non-positive limit disables pacing.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New creates a new backend client
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultBurst),
		metrics: &Metrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithAuth returns a copy of c that authenticates with ts and reports 401
// responses to onUnauthorized. The copy shares the transport, limiter and
// metrics of c.
func (c *Client) WithAuth(ts TokenSource, onUnauthorized UnauthorizedFunc) *Client {
	cp := *c
	cp.tokens = ts
	cp.onUnauthorized = onUnauthorized
	return &cp
}

// Metrics returns a snapshot of call metrics.
func (c *Client) Metrics() Snapshot {
	return c.metrics.Snapshot()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, key string, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, key, out)
}

func (c *Client) post(ctx context.Context, path string, body any, key string, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, body, key, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, key string, out any) error {
	log := logger.New(ctx)
	op := method + " " + path

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return networkError(fmt.Errorf("rate limiter: %w", err))
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rid := logger.RequestID(ctx); rid != "" {
		req.Header.Set("X-Request-Id", rid)
	}

	token := ""
	if c.tokens != nil {
		token = c.tokens.Token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErr := networkError(err)
		c.metrics.record(time.Since(start), apiErr)
		log.LogError(op, err)
		return apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := networkError(fmt.Errorf("read response: %w", err))
		c.metrics.record(time.Since(start), apiErr)
		return apiErr
	}

	if resp.StatusCode >= 400 {
		apiErr := errorFromResponse(resp.StatusCode, data)
		c.metrics.record(time.Since(start), apiErr)
		log.LogWarnf(op, "backend returned status %d", resp.StatusCode)
		if apiErr.Kind == KindUnauthorized && token != "" && c.onUnauthorized != nil {
			c.onUnauthorized(ctx, token)
		}
		return apiErr
	}

	c.metrics.record(time.Since(start), nil)
	return decodeEnvelope(data, key, out)
}

// resolveAsset turns a backend-relative image path into an absolute URL.
func (c *Client) resolveAsset(p string) string {
	if p == "" || c.assetURL == "" {
		return p
	}
	lower := strings.ToLower(p)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:") {
		return p
	}
	return c.assetURL + "/" + strings.TrimLeft(p, "/")
}
