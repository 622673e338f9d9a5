package utils

import (
	"context"
	"time"
)

// Backoff describes an exponential retry schedule: Base * 2^attempt, capped at Max.
type Backoff struct {
	Base     time.Duration
	Max      time.Duration
	Attempts int
}

// DefaultBackoff is three attempts starting at one second, capped at eight.
func DefaultBackoff() Backoff {
	return Backoff{Base: time.Second, Max: 8 * time.Second, Attempts: 3}
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return b.Max
	}
	d := b.Base * time.Duration(1<<attempt)
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SleepFunc is the signature of Sleep, injectable for tests.
type SleepFunc func(ctx context.Context, d time.Duration) error
