// Package ratelimit implements token bucket rate limiting for HTTP handlers.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// staleAfter is how long an idle full bucket is kept.
const staleAfter = 10 * time.Minute

// Result contains the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int           // requests per window
	Remaining  int           // requests left in current window
	ResetAt    time.Time     // when the bucket will be full again
	RetryAfter time.Duration // how long to wait before retrying (0 if allowed)
}

// Limiter manages one token bucket per key.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    rate.Limit
	burst   int
	window  time.Duration
	stop    chan struct{}
	once    sync.Once
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a rate limiter allowing requests tokens per window with
// burst capacity. Call Close to stop the background cleanup.
func NewLimiter(requests int, window time.Duration, burst int) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   burst,
		window:  window,
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Allow consumes one token of key's bucket if available.
func (l *Limiter) Allow(key string) Result {
	now := time.Now()
	l.mu.Lock()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	l.mu.Unlock()

	res := b.limiter.ReserveN(now, 1)
	allowed := res.OK() && res.DelayFrom(now) == 0
	if !allowed && res.OK() {
		res.CancelAt(now)
	}

	tokens := b.limiter.TokensAt(now)
	refill := time.Duration((float64(l.burst) - tokens) / float64(l.rate) * float64(time.Second))
	var retryAfter time.Duration
	if !allowed {
		retryAfter = max(time.Duration(float64(time.Second)/float64(l.rate)), time.Second)
	}
	return Result{
		Allowed:    allowed,
		Limit:      int(float64(l.rate)*l.window.Seconds() + 0.5),
		Remaining:  max(int(tokens), 0),
		ResetAt:    now.Add(refill),
		RetryAfter: retryAfter,
	}
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(staleAfter)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stop:
			return
		}
	}
}

// cleanup removes buckets idle since staleAfter that have fully refilled.
func (l *Limiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := now.Add(-staleAfter)
	for key, b := range l.buckets {
		if b.lastSeen.Before(threshold) && b.limiter.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stop) })
}
