// Package apiclient is the single entry point for calls to the remote data
// service. It attaches the session's bearer token, recovers from expired
// access tokens with a single-flight refresh, and forces a logout when the
// session cannot be recovered.
package apiclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/betul-abla-portal/credstore"
	"github.com/jrsteele09/betul-abla-portal/internal/config"
	"github.com/jrsteele09/betul-abla-portal/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config describes the remote service endpoints.
type Config struct {
	BaseURL         string
	LoginEndpoint   string
	RefreshEndpoint string
	RequestTimeout  time.Duration
	RefreshTimeout  time.Duration
}

// ConfigFrom reads the client configuration from the portal config.
func ConfigFrom(c config.APIConfig) Config {
	return Config{
		BaseURL:         c.GetAPIBaseURL(),
		LoginEndpoint:   c.GetLoginEndpoint(),
		RefreshEndpoint: c.GetRefreshEndpoint(),
		RequestTimeout:  c.GetRequestTimeout(),
		RefreshTimeout:  c.GetRefreshTimeout(),
	}
}

// LogoutReason says why the client dropped the session.
type LogoutReason string

const (
	LogoutNoRefreshToken LogoutReason = "no_refresh_token"
	LogoutRefreshFailed  LogoutReason = "refresh_failed"
)

// LogoutHook is invoked after the client has cleared the credentials.
type LogoutHook func(ctx context.Context, reason LogoutReason)

// RequestOptions are the caller supplied parts of a request.
// Body is a byte slice so the request can be replayed after a refresh.
type RequestOptions struct {
	Method string
	Header http.Header
	Query  url.Values
	Body   []byte
}

// Stats counts refresh protocol events.
type Stats struct {
	RefreshAttempts  int
	RefreshSuccesses int
	RefreshFailures  int
	QueuedRequests   int
	ForcedLogouts    int
}

type Client struct {
	cfg      Config
	store    credstore.Store
	http     *http.Client
	logger   zerolog.Logger
	onLogout LogoutHook
	now      func() time.Time

	// refresh protocol state; waiters are released in FIFO order
	mu         sync.Mutex
	refreshing bool
	waiters    []chan refreshOutcome
	stats      Stats
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithLogoutHook(h LogoutHook) Option {
	return func(c *Client) { c.onLogout = h }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(cfg Config, store credstore.Store, opts ...Option) *Client {
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 10 * time.Second
	}
	c := &Client{
		cfg:      cfg,
		store:    store,
		http:     &http.Client{Timeout: cfg.RequestTimeout},
		logger:   log.Logger,
		onLogout: func(context.Context, LogoutReason) {},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the credential store the client reads tokens from.
func (c *Client) Store() credstore.Store {
	return c.store
}

func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Refreshing reports whether a refresh call is in flight.
func (c *Client) Refreshing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshing
}

// Request issues an authenticated call to endpoint.
//
// A 401 on a call that carried a bearer token starts (or joins) the refresh
// protocol and the call is retried once with the new token. A retry that
// fails again is returned as-is. When the refresh fails the call that ran it
// gets the original 401 response while queued calls get ErrRefreshFailed.
// Non-2xx statuses are left for the caller to interpret.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (*http.Response, error) {
	token, err := c.store.AccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("[apiclient Request] read access token: %w", err)
	}

	if token != "" && c.expired(token) {
		c.logger.Debug().Str("endpoint", endpoint).Msg("access token expired before send, refreshing")
		fresh, _, err := c.freshToken(ctx, token)
		if err != nil {
			return nil, fmt.Errorf("[apiclient Request] %w: %w", errors.ErrSessionExpired, err)
		}
		token = fresh
	}

	resp, err := c.send(ctx, endpoint, opts, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || token == "" {
		return resp, nil
	}

	fresh, refresher, err := c.freshToken(ctx, token)
	if err != nil {
		if refresher || errors.Is(err, errors.ErrNoRefreshToken) {
			return resp, nil
		}
		drain(resp)
		return nil, err
	}

	drain(resp)
	return c.send(ctx, endpoint, opts, fresh)
}

func (c *Client) expired(token string) bool {
	exp := credstore.TokenExpiry(token)
	return !exp.IsZero() && !c.now().Before(exp)
}

func (c *Client) send(ctx context.Context, endpoint string, opts RequestOptions, token string) (*http.Response, error) {
	req, err := c.newRequest(ctx, endpoint, opts)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("[apiclient send] %s %s: %w", req.Method, endpoint, err)
	}
	return resp, nil
}

func (c *Client) newRequest(ctx context.Context, endpoint string, opts RequestOptions) (*http.Request, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := c.url(endpoint, opts.Query)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if opts.Body != nil {
		body = bytes.NewReader(opts.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("[apiclient newRequest] %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	for k, vs := range opts.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func (c *Client) url(endpoint string, query url.Values) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/" + strings.TrimLeft(endpoint, "/"))
	if err != nil {
		return "", fmt.Errorf("[apiclient url] %s: %w", endpoint, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// drain discards and closes a response body so the connection can be reused.
func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
