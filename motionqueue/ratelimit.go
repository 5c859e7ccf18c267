package motionqueue

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BucketBackend persists minute-bucketed submission counters keyed by a
// unique (key, bucket_minute) constraint, supporting atomic upsert, per
// spec section 4.9's rate-limit gate.
type BucketBackend interface {
	// IncrementAndCountWindow upserts one count into the bucket for
	// (key, bucketMinute) and returns the total count across the trailing
	// windowMinutes bucket-minutes ending at bucketMinute, inclusive.
	IncrementAndCountWindow(ctx context.Context, key string, bucketMinute int64, windowMinutes int64) (int, error)
}

// RateLimiter layers an in-process golang.org/x/time/rate cheap-reject
// check in front of BucketBackend's persistent sliding-window counter,
// layering an in-process throttle in front of a persistent counter
// (defense in depth: the in-process limiter turns away floods before they
// reach the database bucket at all).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	backend  BucketBackend
	limit    int
	window   time.Duration
}

// NewRateLimiter constructs a RateLimiter allowing limit submissions per
// window, per key.
func NewRateLimiter(backend BucketBackend, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		backend:  backend,
		limit:    limit,
		window:   window,
	}
}

func (r *RateLimiter) inProcessLimiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		// Burst equals the full window limit so the first legitimate burst
		// of traffic in a cold window isn't cheap-rejected before ever
		// reaching the persistent counter.
		l = rate.NewLimiter(rate.Every(r.window/time.Duration(r.limit)), r.limit)
		r.limiters[key] = l
	}
	return l
}

// Allow reports whether key may submit at now, and if not, how long until
// it may retry.
func (r *RateLimiter) Allow(ctx context.Context, key string, now time.Time) (allowed bool, retryAfter time.Duration, err error) {
	if !r.inProcessLimiter(key).AllowN(now, 1) {
		return false, time.Second, nil
	}

	windowMinutes := int64(r.window / time.Minute)
	bucketMinute := now.Unix() / 60
	count, err := r.backend.IncrementAndCountWindow(ctx, key, bucketMinute, windowMinutes)
	if err != nil {
		return false, 0, err
	}
	if count > r.limit {
		return false, r.window, nil
	}
	return true, 0, nil
}
