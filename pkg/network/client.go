// Package network provides the fetcher the offline cache manager uses to
// reach the origin: classified errors, optional timeout and retry, metrics.
package network

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for fetch operations.
var (
	fetchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_fetch_requests_total",
		Help: "Total origin fetches by method and status",
	}, []string{"method", "status"})

	fetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offline_fetch_duration_seconds",
		Help:    "Origin fetch duration in seconds by method",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"method"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_fetch_errors_total",
		Help: "Total fetch failures by class",
	}, []string{"class"})
)

// Fetcher performs network requests. *http.Client and *Client satisfy it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the client configuration.
type Config struct {
	// UserAgent is set on requests that carry none.
	UserAgent string

	// Timeout bounds each attempt including the body read. Zero means no
	// timeout: a fetch that never resolves stalls only its own request.
	Timeout time.Duration

	// Retry controls retries of network and server errors.
	Retry RetryConfig

	// Transport overrides http.DefaultTransport (tests, custom dialers).
	Transport http.RoundTripper
}

// DefaultConfig returns a configuration without timeout or retries.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Retry:     DefaultRetryConfig(),
	}
}

// Client is the origin fetcher.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must be >= 0 (got %s)", cfg.Timeout)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		config: cfg,
		logger: log.With().Str("component", "network").Logger(),
	}, nil
}

// Do performs req. HTTP error statuses are returned as responses, not
// errors; only transport failures produce a *FetchError. Network and server
// failures are retried when the retry config allows and the body can be
// replayed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	method := req.Method

	startTime := time.Now()
	defer func() {
		fetchDuration.WithLabelValues(method).Observe(time.Since(startTime).Seconds())
	}()

	retry := c.config.Retry
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		retry.MaxAttempts = 1
	}

	var resp *http.Response
	err := retryWithBackoff(ctx, retry, c.logger, func(attempt int) attemptResult {
		if resp != nil {
			// A retried server error; discard it.
			resp.Body.Close()
			resp = nil
		}

		out := req.Clone(ctx)
		if attempt > 1 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return attemptResult{err: fmt.Errorf("replay request body: %w", err)}
			}
			out.Body = body
		}
		if out.Header.Get("User-Agent") == "" {
			out.Header.Set("User-Agent", c.config.UserAgent)
		}

		r, err := c.httpClient.Do(out)
		if err != nil {
			fetchErrorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
			fetchRequestsTotal.WithLabelValues(method, "network_error").Inc()
			c.logger.Debug().Err(err).Str("url", req.URL.String()).Int("attempt", attempt).Msg("Fetch failed")
			return attemptResult{
				class: ErrorClassNetwork,
				err: &FetchError{
					URL:   req.URL.String(),
					Class: ErrorClassNetwork,
					Err:   err,
				},
			}
		}

		fetchRequestsTotal.WithLabelValues(method, strconv.Itoa(r.StatusCode)).Inc()
		class := ClassifyStatus(r.StatusCode)
		if class != "" {
			fetchErrorsTotal.WithLabelValues(string(class)).Inc()
			c.logger.Debug().
				Str("url", req.URL.String()).
				Int("status", r.StatusCode).
				Str("error_class", string(class)).
				Msg("Fetch returned error status")
		}

		resp = r
		return attemptResult{class: class}
	})
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}

	return resp, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
