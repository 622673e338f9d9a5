package ai

import (
	"sync"
	"time"
)

// RateLimits is a Gemini quota tier.
type RateLimits struct {
	RPM int // requests per minute
	TPM int // tokens per minute
	RPD int // requests per day
}

var tierLimits = map[string]RateLimits{
	"free":  {RPM: 10, TPM: 250_000, RPD: 250},
	"tier1": {RPM: 1000, TPM: 1_000_000, RPD: 10_000},
	"tier2": {RPM: 2000, TPM: 4_000_000, RPD: 50_000},
}

// getRateLimits falls back to the free tier for unknown names.
func getRateLimits(tier string) RateLimits {
	if l, ok := tierLimits[tier]; ok {
		return l
	}
	return tierLimits["free"]
}

type usageWindow struct {
	length   time.Duration
	start    time.Time
	requests int
	tokens   int
}

func (w *usageWindow) roll(now time.Time) {
	if now.Sub(w.start) >= w.length {
		*w = usageWindow{length: w.length, start: now}
	}
}

// TokenCounter tracks generation usage against per-minute and per-day quotas
// so requests that would be rejected upstream fail locally.
type TokenCounter struct {
	mu     sync.Mutex
	limits RateLimits
	minute usageWindow
	day    usageWindow
	now    func() time.Time
}

func NewTokenCounter(limits RateLimits) *TokenCounter {
	return &TokenCounter{
		limits: limits,
		minute: usageWindow{length: time.Minute},
		day:    usageWindow{length: 24 * time.Hour},
		now:    time.Now,
	}
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.rollLocked()

	return tc.minute.requests+requests <= tc.limits.RPM &&
		tc.minute.tokens+tokens <= tc.limits.TPM &&
		tc.day.requests+requests <= tc.limits.RPD
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.rollLocked()

	for _, w := range []*usageWindow{&tc.minute, &tc.day} {
		w.requests += requests
		w.tokens += tokens
	}
}

func (tc *TokenCounter) rollLocked() {
	now := tc.now()
	tc.minute.roll(now)
	tc.day.roll(now)
}
