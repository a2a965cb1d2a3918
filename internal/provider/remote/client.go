// Package remote is the rate-limited HTTP client shared by the remote
// lookup services.
package remote

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/matsen/bipcite/internal/logging"
	"github.com/matsen/bipcite/internal/provider"
)

const (
	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit is requests per second per client.
	DefaultRateLimit = 5.0

	// UserAgent identifies requests; Crossref asks for a contact address.
	UserAgent = "bipcite/1.0 (https://github.com/matsen/bipcite)"

	maxBodyBytes = 16 << 20
)

// Client is a rate-limited HTTP client bound to one service.
type Client struct {
	name       string
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	headers    http.Header
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRateLimit sets requests per second; zero or less disables limiting.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrNop(l)
	}
}

// NewClient creates a client for the named service at baseURL.
func NewClient(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:       name,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		baseURL:    strings.TrimRight(baseURL, "/"),
		headers:    http.Header{},
		logger:     zap.NewNop(),
	}
	c.headers.Set("User-Agent", UserAgent)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the service name used in errors.
func (c *Client) Name() string { return c.name }

// BaseURL returns the service base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Response is a completed request. NotModified is set for 304 responses,
// which carry no body.
type Response struct {
	StatusCode  int
	Header      http.Header
	Body        []byte
	NotModified bool
}

// Get issues a GET for path (relative to the base URL, or absolute) with
// query parameters and extra headers.
func (c *Client) Get(ctx context.Context, path string, query url.Values, header http.Header) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(path, "/")
	}
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if provider.IsNoHost(err) {
			return nil, fmt.Errorf("%w: %s: %v", provider.ErrNoHost, c.name, err)
		}
		return nil, fmt.Errorf("requesting %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request",
		zap.String("service", c.name),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusNotModified {
		return &Response{StatusCode: resp.StatusCode, Header: resp.Header, NotModified: true}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", c.name, err)
	}

	if err := c.checkHTTPErrors(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// GetJSON issues a GET and decodes a JSON body into v.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, v any) error {
	resp, err := c.Get(ctx, path, query, http.Header{"Accept": {"application/json"}})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", provider.ErrInvalidResponse, c.name, err)
	}
	return nil
}

// GetXML issues a GET and decodes an XML body into v.
func (c *Client) GetXML(ctx context.Context, path string, query url.Values, v any) error {
	resp, err := c.Get(ctx, path, query, http.Header{"Accept": {"application/xml"}})
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("%w: %s: %v", provider.ErrInvalidResponse, c.name, err)
	}
	return nil
}

// checkHTTPErrors returns an error if the status indicates a problem.
func (c *Client) checkHTTPErrors(status int, body []byte) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w: %s: status %d", provider.ErrAuth, c.name, status)
	case status == 429:
		return fmt.Errorf("%w: %s: status %d", provider.ErrRateLimited, c.name, status)
	case status >= 400:
		msg := strings.TrimSpace(string(body))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		return &provider.APIError{StatusCode: status, Provider: c.name, Message: msg}
	}
	return nil
}

var markupPattern = regexp.MustCompile(`<[^>]+>`)

// StripMarkup removes inline XML/HTML tags (JATS <i>, <sub>, ...) from
// titles returned by metadata services.
func StripMarkup(s string) string {
	return strings.Join(strings.Fields(markupPattern.ReplaceAllString(s, "")), " ")
}
