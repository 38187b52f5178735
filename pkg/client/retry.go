package client

import (
	"context"
	"errors"
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
		Name: "duoload_fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duoload_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 4, 8, 16},
	}, []string{"error_class"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duoload_fetch_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps every delay.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64

	// Jitter spreads each delay by ±Jitter (0.2 = ±20%). Zero disables it.
	Jitter float64
}

// DefaultRetryConfig returns the default retry configuration:
// 1s, 2s, 4s between the four attempts, never more than 16s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        16 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff is the retry schedule of a single page fetch. The zero value is not
// usable; create one with NewBackoff.
type Backoff struct {
	config  RetryConfig
	retries int
	next    time.Duration
	rand    func() float64
}

// NewBackoff creates a fresh schedule.
func NewBackoff(config RetryConfig) *Backoff {
	return &Backoff{
		config: config,
		next:   config.InitialBackoff,
		rand:   rand.Float64,
	}
}

// Next returns the delay before the next retry, or false when no retries remain.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.retries >= b.config.MaxRetries {
		return 0, false
	}
	b.retries++

	delay := b.next
	if b.config.MaxBackoff > 0 && delay > b.config.MaxBackoff {
		delay = b.config.MaxBackoff
	}

	b.next = time.Duration(float64(b.next) * b.config.BackoffMultiplier)
	if b.config.MaxBackoff > 0 && b.next > b.config.MaxBackoff {
		b.next = b.config.MaxBackoff
	}

	if b.config.Jitter > 0 {
		delay = time.Duration(float64(delay) * (1 - b.config.Jitter + b.rand()*2*b.config.Jitter))
	}
	return delay, true
}

// Retries returns how many retries have been handed out so far.
func (b *Backoff) Retries() int {
	return b.retries
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the real Sleeper.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryWithBackoff executes fn until it succeeds, fails with a
// non-retryable error, or the schedule runs out.
func retryWithBackoff(ctx context.Context, config RetryConfig, sleep Sleeper, logger zerolog.Logger, fn func(attempt int) error) error {
	backoff := NewBackoff(config)

	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		var ae *attemptError
		if !errors.As(err, &ae) || !shouldRetry(ae.class) {
			return err
		}
		errorClass := string(ae.class)

		if ctx.Err() != nil {
			return err
		}

		delay, ok := backoff.Next()
		if !ok {
			fetchRetryExhaustedTotal.WithLabelValues(errorClass).Inc()
			logger.Warn().
				Str("error_class", errorClass).
				Int("attempts", attempt).
				Msg("Retry attempts exhausted")
			return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		fetchRetriesTotal.WithLabelValues(errorClass).Inc()
		fetchRetryBackoffSeconds.WithLabelValues(errorClass).Observe(delay.Seconds())

		logger.Debug().
			Str("error_class", errorClass).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying request after backoff")

		if err := sleep(ctx, delay); err != nil {
			logger.Warn().
				Str("error_class", errorClass).
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return err
		}
	}
}
