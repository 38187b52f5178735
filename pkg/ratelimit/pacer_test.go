package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLocalPacer_FirstRequestImmediate(t *testing.T) {
	pacer := NewLocalPacer(time.Hour, zerolog.Nop())

	start := time.Now()
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("First Wait took %v, want immediate", elapsed)
	}
}

func TestLocalPacer_SpacesRequests(t *testing.T) {
	delay := 150 * time.Millisecond
	pacer := NewLocalPacer(delay, zerolog.Nop())
	ctx := context.Background()

	timestamps := []time.Time{}
	for i := 0; i < 3; i++ {
		if err := pacer.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
		timestamps = append(timestamps, time.Now())
	}

	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		// Allow a little scheduler slack below the nominal delay.
		if gap < delay-20*time.Millisecond {
			t.Errorf("Gap %d = %v, want >= %v", i, gap, delay)
		}
	}
}

func TestLocalPacer_ZeroDelay(t *testing.T) {
	pacer := NewLocalPacer(0, zerolog.Nop())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := pacer.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Zero delay pacer took %v", elapsed)
	}
}

func TestLocalPacer_ContextCancelled(t *testing.T) {
	pacer := NewLocalPacer(time.Hour, zerolog.Nop())

	// Consume the initial token.
	if err := pacer.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pacer.Wait(ctx)
	if err == nil {
		t.Fatal("Expected error for cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestNopPacer(t *testing.T) {
	var pacer Pacer = NopPacer{}
	if err := pacer.Wait(context.Background()); err != nil {
		t.Errorf("NopPacer.Wait() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := pacer.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("NopPacer.Wait(cancelled) = %v, want context.Canceled", err)
	}
}
