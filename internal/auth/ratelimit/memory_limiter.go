package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/AlibekovAA/session-guard/internal/common/clock"
	"github.com/AlibekovAA/session-guard/internal/common/constants"
	"github.com/AlibekovAA/session-guard/internal/observability/metrics"
)

type MemoryLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	window   time.Duration
	clock    clock.Clock
}

func NewMemoryLimiter(limit int, window time.Duration, clk clock.Clock) *MemoryLimiter {
	return &MemoryLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		clock:    clk,
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, keys ...string) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	now := l.clock.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	var retryAfter time.Duration
	for _, key := range keys {
		log := prune(l.attempts[key], cutoff)
		l.attempts[key] = log
		if len(log) >= l.limit {
			wait := log[0].Add(l.window).Sub(now)
			if wait > retryAfter {
				retryAfter = wait
			}
		}
	}

	if retryAfter > 0 {
		metrics.RateLimitBlocked.WithLabelValues("rotation", "memory").Inc()
		return Decision{Allowed: false, RetryAfter: retryAfter}, nil
	}

	for _, key := range keys {
		l.attempts[key] = append(l.attempts[key], now)
	}
	return Decision{Allowed: true}, nil
}

// Start sweeps idle keys until ctx is cancelled.
func (l *MemoryLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(constants.RateLimitSweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.sweep()
			}
		}
	}()
}

func (l *MemoryLimiter) sweep() int {
	cutoff := l.clock.Now().Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, log := range l.attempts {
		log = prune(log, cutoff)
		if len(log) == 0 {
			delete(l.attempts, key)
			removed++
			continue
		}
		l.attempts[key] = log
	}
	return removed
}

func (l *MemoryLimiter) trackedKeys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

// prune drops entries at or before cutoff. Entries are in insertion order,
// which is also time order.
func prune(log []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(log) && !log[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return log
	}
	return append(log[:0], log[i:]...)
}
