package adminsdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/aussiebroadwan/passport/pkg/credstore"
	"github.com/aussiebroadwan/passport/pkg/hooks"
	"github.com/aussiebroadwan/passport/pkg/httpx"
	"golang.org/x/time/rate"
)

// DefaultLocale is sent in Accept-Language when Options.Locale is empty.
const DefaultLocale = "en"

// Options configures a Client. Only BaseURL is required.
type Options struct {
	BaseURL string

	// Store holds the session credentials. Defaults to an in-memory store.
	Store credstore.Store

	// Hooks are run around every request. Defaults to an empty registry.
	Hooks *hooks.Registry

	// Notifier shows error messages. Defaults to logging them.
	Notifier Notifier

	// LogoutFunc runs once per forced logout, after the credentials are cleared.
	LogoutFunc func(ctx context.Context)

	// Locale is sent as Accept-Language on authenticated requests.
	Locale string

	// Timeout bounds each call, including the refresh. Defaults to 5s.
	Timeout time.Duration

	// Transport replaces the default HTTP round tripper.
	Transport http.RoundTripper

	// ReplayTurnWait is how long a request replayed after a refresh may hold
	// up the requests queued behind it. Defaults to DefaultReplayTurnWait.
	ReplayTurnWait time.Duration

	// RateLimit paces outbound calls when non-zero.
	RateLimit rate.Limit
	RateBurst int

	// Message coalescing and flood limits.
	MessageWait    time.Duration
	MessageMaxWait time.Duration
	MessageRate    rate.Limit
	MessageBurst   int

	Logger *slog.Logger
}

// Client is an admin API client that keeps its session alive. It is safe for
// concurrent use.
type Client struct {
	baseURL   string
	store     credstore.Store
	hooks     *hooks.Registry
	locale    string
	timeout   time.Duration
	transport http.RoundTripper
	logout    func(context.Context)
	logger    *slog.Logger

	http  *httpx.Client
	msgs  *messenger
	coord *Coordinator
	now   func() time.Time
}

// New builds a Client from opts.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("adminsdk: base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("adminsdk: base URL: %w", err)
	}

	c := &Client{
		baseURL:   opts.BaseURL,
		store:     opts.Store,
		hooks:     opts.Hooks,
		locale:    opts.Locale,
		timeout:   opts.Timeout,
		transport: opts.Transport,
		logout:    opts.LogoutFunc,
		logger:    opts.Logger,
		now:       time.Now,
	}
	if c.store == nil {
		c.store = credstore.NewMemory()
	}
	if c.hooks == nil {
		c.hooks = hooks.NewRegistry()
	}
	if c.locale == "" {
		c.locale = DefaultLocale
	}
	if c.timeout <= 0 {
		c.timeout = httpx.DefaultTimeout
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = logNotifier{logger: c.logger}
	}
	wait, maxWait := opts.MessageWait, opts.MessageMaxWait
	if wait <= 0 {
		wait = DefaultMessageWait
	}
	if maxWait <= 0 {
		maxWait = DefaultMessageMaxWait
	}
	limit, burst := opts.MessageRate, opts.MessageBurst
	if limit <= 0 {
		limit = DefaultMessageRate
	}
	if burst <= 0 {
		burst = DefaultMessageBurst
	}
	c.msgs = newMessenger(notifier, wait, maxWait, limit, burst, c.logout)

	clientOpts := c.transportOptions()
	if opts.RateLimit > 0 {
		clientOpts = append(clientOpts, httpx.WithRateLimit(opts.RateLimit, max(opts.RateBurst, 1)))
	}
	c.http = httpx.NewClient(c.baseURL, clientOpts...)

	turnWait := opts.ReplayTurnWait
	if turnWait <= 0 {
		turnWait = DefaultReplayTurnWait
	}
	c.coord = &Coordinator{
		store:   c.store,
		refresh: c.refresh,
		prepare: c.intercept,
		replay: func(ctx context.Context, req *httpx.Request) (*Response, error) {
			return c.roundTrip(ctx, req, true)
		},
		expire:   c.forceLogout,
		logger:   c.logger,
		turnWait: turnWait,
	}
	return c, nil
}

// transportOptions are shared by the main client and every isolated client.
func (c *Client) transportOptions() []httpx.ClientOption {
	opts := []httpx.ClientOption{
		httpx.WithTimeout(c.timeout),
		httpx.WithLogger(c.logger),
	}
	if c.transport != nil {
		opts = append(opts, httpx.WithRoundTripper(c.transport))
	}
	return opts
}

// isolated returns a fresh transport that skips the interceptors and carries
// only the given headers.
func (c *Client) isolated(header ...string) *httpx.Client {
	opts := c.transportOptions()
	for i := 0; i+1 < len(header); i += 2 {
		opts = append(opts, httpx.WithHeader(header[i], header[i+1]))
	}
	return httpx.NewClient(c.baseURL, opts...)
}

// Hooks returns the registry run around every request.
func (c *Client) Hooks() *hooks.Registry { return c.hooks }

// Store returns the credential store.
func (c *Client) Store() credstore.Store { return c.store }

// Coordinator returns the refresh coordinator.
func (c *Client) Coordinator() *Coordinator { return c.coord }

// Close fires any message or forced logout still waiting in its debounce window.
func (c *Client) Close() {
	c.msgs.flush()
}

// Do sends req through the interceptors. req is mutated: its headers are
// rewritten on every pass, including a replay after a token refresh.
func (c *Client) Do(ctx context.Context, req *httpx.Request) (*Response, error) {
	if err := c.intercept(ctx, req); err != nil {
		return nil, err
	}
	return c.roundTrip(ctx, req, false)
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, &httpx.Request{Method: http.MethodGet, Path: path, Query: query})
}

// Post sends body as JSON.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.withBody(ctx, http.MethodPost, path, body)
}

// Put sends body as JSON.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.withBody(ctx, http.MethodPut, path, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, &httpx.Request{Method: http.MethodDelete, Path: path})
}

func (c *Client) withBody(ctx context.Context, method, path string, body any) (*Response, error) {
	req := &httpx.Request{Method: method, Path: path}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("adminsdk: encode body: %w", err)
		}
		req.Body = raw
	}
	return c.Do(ctx, req)
}
