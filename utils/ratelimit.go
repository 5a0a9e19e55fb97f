package utils

import (
	"math/rand"
	"sync"
	"time"
)

// RateLimits are the per-key ceilings, loaded from the tenant's integration
// record.
type RateLimits struct {
	PerMinute     int
	PerHour       int
	MaxConcurrent int
}

// Reservation reports the outcome of an Acquire call.
type Reservation struct {
	Allowed             bool
	RemainingMinute     int
	RemainingHour       int
	RemainingConcurrent int
	MinuteResetAt       time.Time
	HourResetAt         time.Time
	RetryAfter          time.Duration
}

// RateLimiter hands out sliding-window slots per tenant key. The in-memory
// implementation only holds within one process; RedisRateLimiter shares its
// counters across instances.
type RateLimiter interface {
	// Acquire takes a slot if all three windows have headroom, incrementing
	// minute, hour and concurrency counters atomically with respect to other
	// acquisitions for the same key.
	Acquire(key string, limits RateLimits) *Reservation
	// Release returns a concurrency slot. Must be called exactly once per
	// successful Acquire, including on error paths.
	Release(key string)
}

type slidingWindow struct {
	minuteStart time.Time
	hourStart   time.Time
	minuteCount int
	hourCount   int
	concurrent  int
}

// MemoryRateLimiter is the default single-instance limiter: a mutex-guarded
// map of per-key windows.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	windows map[string]*slidingWindow
	now     func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		windows: make(map[string]*slidingWindow),
		now:     time.Now,
	}
}

func (rl *MemoryRateLimiter) Acquire(key string, limits RateLimits) *Reservation {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	w, ok := rl.windows[key]
	if !ok {
		w = &slidingWindow{minuteStart: now, hourStart: now}
		rl.windows[key] = w
	}

	// Each window resets independently when its boundary advances.
	if now.Sub(w.minuteStart) >= time.Minute {
		w.minuteStart = now
		w.minuteCount = 0
	}
	if now.Sub(w.hourStart) >= time.Hour {
		w.hourStart = now
		w.hourCount = 0
	}

	res := &Reservation{
		MinuteResetAt: w.minuteStart.Add(time.Minute),
		HourResetAt:   w.hourStart.Add(time.Hour),
	}

	switch {
	case w.minuteCount >= limits.PerMinute:
		res.RetryAfter = res.MinuteResetAt.Sub(now)
	case w.hourCount >= limits.PerHour:
		res.RetryAfter = res.HourResetAt.Sub(now)
	case w.concurrent >= limits.MaxConcurrent:
		res.RetryAfter = time.Second
	default:
		w.minuteCount++
		w.hourCount++
		w.concurrent++
		res.Allowed = true
	}

	if res.RetryAfter < 0 {
		res.RetryAfter = 0
	}
	res.RemainingMinute = max(limits.PerMinute-w.minuteCount, 0)
	res.RemainingHour = max(limits.PerHour-w.hourCount, 0)
	res.RemainingConcurrent = max(limits.MaxConcurrent-w.concurrent, 0)
	return res
}

func (rl *MemoryRateLimiter) Release(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if w, ok := rl.windows[key]; ok && w.concurrent > 0 {
		w.concurrent--
	}
}

// Concurrent reports the in-flight count for a key. Used by tests and the
// sync summary.
func (rl *MemoryRateLimiter) Concurrent(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if w, ok := rl.windows[key]; ok {
		return w.concurrent
	}
	return 0
}

const (
	backoffBase = 500 * time.Millisecond
	backoffMax  = 30 * time.Second
	jitterMax   = 250 * time.Millisecond
)

// ComputeBackoff returns min(base * 2^attempt + jitter, max). The jitter is a
// bounded random addend so retries across tenants do not align.
func ComputeBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	backoff := backoffBase << uint(attempt)
	if backoff > backoffMax || backoff <= 0 {
		backoff = backoffMax
	}
	backoff += time.Duration(rand.Int63n(int64(jitterMax)))
	if backoff > backoffMax {
		backoff = backoffMax
	}
	return backoff
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
