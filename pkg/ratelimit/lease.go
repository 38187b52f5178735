package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisPacer shares the polite delay between every duoload process that
// points at the same Redis instance. A request may be sent by whoever sets the
// lease key; the key expires after the delay, which spaces requests across
// processes. Only the lease token is stored, never fetched data.
type RedisPacer struct {
	redis    *redis.Client
	key      string
	delay    time.Duration
	token    string
	fallback *LocalPacer
	logger   zerolog.Logger
}

// NewRedisPacer creates a Redis-backed pacer for key.
func NewRedisPacer(redisClient *redis.Client, key string, delay time.Duration, logger zerolog.Logger) *RedisPacer {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisPacer{
		redis:    redisClient,
		key:      key,
		delay:    delay,
		token:    uuid.NewString(),
		fallback: NewLocalPacer(delay, logger),
		logger:   logger,
	}
}

// TryAcquire makes a single attempt at the lease.
func (p *RedisPacer) TryAcquire(ctx context.Context) (LeaseState, error) {
	ok, err := p.redis.SetNX(ctx, p.key, p.token, p.delay).Result()
	if err != nil {
		return LeaseState{}, fmt.Errorf("acquire pacing lease: %w", err)
	}
	if ok {
		return LeaseState{Acquired: true}, nil
	}

	ttl, err := p.redis.PTTL(ctx, p.key).Result()
	if err != nil {
		return LeaseState{}, fmt.Errorf("read pacing lease ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	return LeaseState{RetryIn: ttl}, nil
}

// Wait implements Pacer. When Redis is unreachable the pacer degrades to the
// in-process delay so a run never fails because of the pacing backend.
func (p *RedisPacer) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return ctx.Err()
	}

	start := time.Now()
	for {
		state, err := p.TryAcquire(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("polite delay: %w", ctx.Err())
			}
			p.logger.Warn().Err(err).Str("key", p.key).Msg("Pacing lease unavailable, using local delay")
			return p.fallback.Wait(ctx)
		}

		if state.Acquired {
			// The fallback must see this request too, or a later outage
			// would let the next one out immediately.
			p.fallback.limiter.Allow()
			politeWaitSeconds.WithLabelValues("redis").Observe(time.Since(start).Seconds())
			return nil
		}

		wait := state.NextWait()
		p.logger.Debug().
			Str("key", p.key).
			Dur("retry_in", wait).
			Msg("Pacing lease held elsewhere")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("polite delay: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
