package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL = "http://localhost:5050"
	DefaultTimeout = 10 * time.Second

	maxErrorBody = 64 << 10
)

// TokenSource returns the bearer token to attach, or "" for anonymous calls.
type TokenSource func() string

// AuthRejectedHandler is invoked after an authenticated request came back 401,
// with the token that was rejected.
type AuthRejectedHandler func(token string)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

func WithAuthRejectedHandler(h AuthRejectedHandler) Option {
	return func(c *Client) { c.onAuthRejected = h }
}

// Client talks to the presentation backend over JSON/HTTP.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	timeout time.Duration

	mu             sync.RWMutex
	tokens         TokenSource
	onAuthRejected AuthRejectedHandler
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	u, err := ValidateBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{baseURL: u, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// ValidateBaseURL accepts absolute http(s) URLs with a host.
func ValidateBaseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("invalid base URL %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return nil, errors.Errorf("invalid base URL %q: host is required", raw)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Client) BaseURL() string {
	if c == nil || c.baseURL == nil {
		return ""
	}
	return c.baseURL.String()
}

// SetTokenSource replaces the token source; used when the auth manager is
// built after the client.
func (c *Client) SetTokenSource(ts TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) SetAuthRejectedHandler(h AuthRejectedHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthRejected = h
}

func (c *Client) token() string {
	c.mu.RLock()
	ts := c.tokens
	c.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts()
}

func (c *Client) authRejected(token string) {
	c.mu.RLock()
	h := c.onAuthRejected
	c.mu.RUnlock()
	if h != nil {
		h(token)
	}
}

func (c *Client) endpoint(p string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + p
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	// anonymous requests never carry the bearer token
	anonymous bool
}

func jsonRequest(op, method, path string, payload any) (request, error) {
	r := request{op: op, method: method, path: path}
	if payload == nil {
		return r, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return r, errors.Wrapf(err, "%s: marshal request", op)
	}
	r.body = bytes.NewReader(b)
	r.contentType = "application/json"
	return r, nil
}

// do sends r and decodes a 2xx JSON body into out (when out is non-nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	if c == nil {
		return errors.New("api client is nil")
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.endpoint(r.path, r.query), r.body)
	if err != nil {
		return errors.Wrapf(err, "%s: build request", r.op)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	token := ""
	if !r.anonymous {
		token = c.token()
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Str("component", "api").Str("op", r.op).Err(err).Msg("request failed")
		return &Error{Kind: KindTransient, Op: r.op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	log.Debug().
		Str("component", "api").
		Str("op", r.op).
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("request done")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Op:      r.op,
			Status:  resp.StatusCode,
			Message: readErrorMessage(resp.Body),
		}
		if apiErr.Kind == KindAuthRejected && token != "" {
			c.authRejected(token)
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindTransient, Op: r.op, Status: resp.StatusCode, Err: errors.Wrap(err, "decode response")}
	}
	return nil
}

func readErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	if payload.Error != "" {
		return payload.Error
	}
	return payload.Message
}
