// Package network performs the upstream fetches of the offline shell.
//
// The client rewrites requests addressed to the application origin onto the
// configured upstream, classifies failures, retries idempotent requests that
// never got a response, and reports every outcome to a connectivity observer.
// HTTP error statuses are returned as responses, never as errors: only a
// fetch without any response yields a *FetchError.
package network

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for upstream fetches.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_upstream_requests_total",
		Help: "Total upstream requests by status",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "offline_shell_upstream_request_duration_seconds",
		Help:    "Upstream request duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	upstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_shell_upstream_errors_total",
		Help: "Total upstream errors by class",
	}, []string{"class"})

	upstreamRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "offline_shell_upstream_retries_total",
		Help: "Total number of upstream retry attempts",
	})
)

// hopHeaders are removed when an inbound request is forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Observer receives the outcome of every fetch.
type Observer interface {
	RecordSuccess()
	RecordFailure(err error)
}

// Config holds the client configuration.
type Config struct {
	// AppOrigin is the origin the web client addresses (scheme://host[:port]).
	AppOrigin string

	// Upstream is the base URL requests to AppOrigin are sent to.
	Upstream string

	// Timeout bounds a single attempt.
	Timeout time.Duration

	Retry RetryConfig
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		AppOrigin: "http://localhost:8080",
		Upstream:  "http://localhost:3000",
		Timeout:   30 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// Option configures a Client.
type Option func(*Client)

// WithObserver reports fetch outcomes to o.
func WithObserver(o Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// Client performs upstream fetches.
type Client struct {
	httpClient *http.Client
	appOrigin  *url.URL
	upstream   *url.URL
	config     Config
	observer   Observer
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config, opts ...Option) (*Client, error) {
	appOrigin, err := parseBase(cfg.AppOrigin)
	if err != nil {
		return nil, fmt.Errorf("app origin: %w", err)
	}
	upstream, err := parseBase(cfg.Upstream)
	if err != nil {
		return nil, fmt.Errorf("upstream: %w", err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		appOrigin: appOrigin,
		upstream:  upstream,
		config:    cfg,
		logger:    log.With().Str("component", "network").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func parseBase(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%q must be an absolute URL", raw)
	}
	return u, nil
}

// WithRetry returns a copy of the client using rc for every request.
func (c *Client) WithRetry(rc RetryConfig) *Client {
	cp := *c
	cp.config.Retry = rc
	return &cp
}

// Upstream returns the upstream base URL.
func (c *Client) Upstream() *url.URL {
	u := *c.upstream
	return &u
}

// Rewrite points u at the upstream when it addresses the application origin.
// Other origins are left unchanged.
func (c *Client) Rewrite(u *url.URL) {
	if !strings.EqualFold(u.Scheme, c.appOrigin.Scheme) || !strings.EqualFold(u.Host, c.appOrigin.Host) {
		return
	}
	u.Scheme = c.upstream.Scheme
	u.Host = c.upstream.Host
	if base := strings.TrimSuffix(c.upstream.Path, "/"); base != "" {
		u.Path = base + u.Path
		if u.RawPath != "" {
			u.RawPath = base + u.RawPath
		}
	}
}

// Do sends req upstream. The request URL must be absolute.
// Any HTTP response is returned without error; a fetch that produced no
// response returns a *FetchError of class network.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	method := req.Method
	target := req.URL.String()

	out := req.Clone(ctx)
	c.Rewrite(out.URL)
	out.Host = ""
	out.RequestURI = ""

	var resp *http.Response
	err := retryWithBackoff(ctx, c.config.Retry, method, func() error {
		start := time.Now()
		r, err := c.httpClient.Do(out)
		upstreamRequestDuration.Observe(time.Since(start).Seconds())

		if err != nil {
			upstreamErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			upstreamRequestsTotal.WithLabelValues("network_error").Inc()
			ferr := &FetchError{Method: method, URL: target, Class: ErrorClassNetwork, Err: err}

			// a caller giving up says nothing about the upstream
			if ctx.Err() == nil && c.observer != nil {
				c.observer.RecordFailure(ferr)
			}
			c.logger.Debug().Err(err).Str("url", target).Msg("Upstream fetch failed")
			return ferr
		}

		if c.observer != nil {
			c.observer.RecordSuccess()
		}
		upstreamRequestsTotal.WithLabelValues(strconv.Itoa(r.StatusCode)).Inc()
		if class := ClassifyStatus(r.StatusCode); class != "" {
			upstreamErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Debug().
				Str("url", target).
				Int("status_code", r.StatusCode).
				Str("error_class", string(class)).
				Msg("Upstream error status")
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Get performs a GET request against an absolute URL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return c.Do(req)
}

// Forward builds an outbound request for the inbound request r, addressed to
// the absolute target URL. Hop-by-hop headers are dropped; the body is shared.
func Forward(r *http.Request, target string) (*http.Request, error) {
	out, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	out.Header = r.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	out.ContentLength = r.ContentLength
	return out, nil
}
