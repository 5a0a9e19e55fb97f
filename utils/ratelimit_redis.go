package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisRateLimiter shares the sliding-window counters across instances via
// atomically incremented Redis keys. Used when more than one process serves
// the same tenants; otherwise MemoryRateLimiter is the default.
type RedisRateLimiter struct {
	client *redis.Client
	logger *logrus.Entry
}

func NewRedisRateLimiter(client *redis.Client, logger *logrus.Entry) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, logger: logger}
}

func (rl *RedisRateLimiter) keys(key string, now time.Time) (minuteKey, hourKey, concKey string) {
	minuteKey = fmt.Sprintf("rl:%s:m:%d", key, now.Unix()/60)
	hourKey = fmt.Sprintf("rl:%s:h:%d", key, now.Unix()/3600)
	concKey = fmt.Sprintf("rl:%s:c", key)
	return
}

func (rl *RedisRateLimiter) Acquire(key string, limits RateLimits) *Reservation {
	ctx := context.Background()
	now := time.Now()
	minuteKey, hourKey, concKey := rl.keys(key, now)

	res := &Reservation{
		MinuteResetAt: now.Truncate(time.Minute).Add(time.Minute),
		HourResetAt:   now.Truncate(time.Hour).Add(time.Hour),
	}

	minuteCount, err := rl.client.Incr(ctx, minuteKey).Result()
	if err != nil {
		// Fail open: a limiter outage must not take down ingestion.
		rl.logger.WithError(err).Warn("redis rate limiter unavailable, allowing request")
		res.Allowed = true
		return res
	}
	rl.client.Expire(ctx, minuteKey, 2*time.Minute)

	hourCount, _ := rl.client.Incr(ctx, hourKey).Result()
	rl.client.Expire(ctx, hourKey, 2*time.Hour)

	if minuteCount > int64(limits.PerMinute) {
		rl.client.Decr(ctx, minuteKey)
		rl.client.Decr(ctx, hourKey)
		res.RetryAfter = time.Until(res.MinuteResetAt)
		return res
	}
	if hourCount > int64(limits.PerHour) {
		rl.client.Decr(ctx, minuteKey)
		rl.client.Decr(ctx, hourKey)
		res.RetryAfter = time.Until(res.HourResetAt)
		return res
	}

	concurrent, _ := rl.client.Incr(ctx, concKey).Result()
	if concurrent > int64(limits.MaxConcurrent) {
		rl.client.Decr(ctx, concKey)
		rl.client.Decr(ctx, minuteKey)
		rl.client.Decr(ctx, hourKey)
		res.RetryAfter = time.Second
		return res
	}

	res.Allowed = true
	res.RemainingMinute = max(limits.PerMinute-int(minuteCount), 0)
	res.RemainingHour = max(limits.PerHour-int(hourCount), 0)
	res.RemainingConcurrent = max(limits.MaxConcurrent-int(concurrent), 0)
	return res
}

func (rl *RedisRateLimiter) Release(key string) {
	ctx := context.Background()
	_, _, concKey := rl.keys(key, time.Now())

	val, err := rl.client.Decr(ctx, concKey).Result()
	if err != nil {
		rl.logger.WithError(err).Warn("failed to release concurrency slot")
		return
	}
	if val < 0 {
		rl.client.Set(ctx, concKey, 0, 0)
	}
}
