// Package ratelimit enforces the polite delay between requests to the remote
// vocabulary source. The delay is a cooperative wait, not a limit negotiated
// with the server: the first request goes out immediately and every later
// request waits until at least the configured delay has passed since the
// previous one.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Prometheus metrics for pacing.
var (
	politeWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duoload_polite_wait_seconds",
		Help:    "Time spent waiting for the polite inter-request delay",
		Buckets: []float64{0, 0.1, 0.5, 1, 1.5, 2, 5},
	}, []string{"backend"})
)

// DefaultDelay is the polite delay used when none is configured.
const DefaultDelay = 1500 * time.Millisecond

// Pacer gates outgoing requests.
type Pacer interface {
	// Wait blocks until the next request may be sent or ctx is done.
	Wait(ctx context.Context) error
}

// LocalPacer paces requests within a single process.
type LocalPacer struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewLocalPacer creates a pacer that spaces requests by delay.
// A delay <= 0 disables pacing.
func NewLocalPacer(delay time.Duration, logger zerolog.Logger) *LocalPacer {
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &LocalPacer{
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Wait implements Pacer.
func (p *LocalPacer) Wait(ctx context.Context) error {
	start := time.Now()
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("polite delay: %w", err)
	}

	waited := time.Since(start)
	politeWaitSeconds.WithLabelValues("local").Observe(waited.Seconds())
	if waited > 0 {
		p.logger.Debug().Dur("waited", waited).Msg("Polite delay elapsed")
	}
	return nil
}

// NopPacer never waits. Useful in tests.
type NopPacer struct{}

// Wait implements Pacer.
func (NopPacer) Wait(ctx context.Context) error {
	return ctx.Err()
}
