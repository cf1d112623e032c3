package network

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_fetch_retries_total",
		Help: "Total number of fetch retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "offline_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for fetch retries by error class",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "offline_fetch_retry_exhausted_total",
		Help: "Total number of fetches that exhausted their retry attempts by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	// Values below 1 are treated as 1.
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration: a single
// attempt. Offline fallback already covers failed fetches.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       1,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// attemptResult is what one attempt reports back to retryWithBackoff.
// class is empty when the attempt should not be retried.
type attemptResult struct {
	class ErrorClass
	err   error
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable class,
// or config.MaxAttempts is reached. It respects context cancellation and adds
// jitter to the backoff.
func retryWithBackoff(ctx context.Context, config RetryConfig, logger zerolog.Logger, fn func(attempt int) attemptResult) error {
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var last attemptResult
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = fn(attempt)
		if last.class == "" || !shouldRetry(last.class) {
			if attempt > 1 && last.err == nil {
				logger.Info().
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return last.err
		}

		// If this was the last attempt, don't wait
		if attempt >= maxAttempts {
			break
		}

		fetchRetriesTotal.WithLabelValues(string(last.class)).Inc()

		// Add jitter (±20% randomness)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		fetchRetryBackoffSeconds.WithLabelValues(string(last.class)).Observe(jitter.Seconds())

		logger.Debug().
			Str("error_class", string(last.class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying fetch after backoff")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-time.After(jitter):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffMultiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	if maxAttempts > 1 {
		fetchRetryExhaustedTotal.WithLabelValues(string(last.class)).Inc()
		logger.Warn().
			Str("error_class", string(last.class)).
			Int("max_attempts", maxAttempts).
			Msg("Fetch retry attempts exhausted")

		if last.err != nil {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, maxAttempts, last.err)
		}
	}

	return last.err
}
