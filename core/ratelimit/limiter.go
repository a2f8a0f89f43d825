// Package ratelimit implements the bridge's admission control (C3): a
// token bucket plus per-minute/per-hour quotas, with an optional
// distributed sliding-window tier so multiple bridge instances behind the
// same Outlook identity share one logical quota. The local token bucket is
// grounded on the teacher's atomic lock-free bucket in
// adapter/in/worker/worker_pool.go; the distributed tier is grounded on
// pkg/ratelimit/worker_limiter.go's Lua-script sliding window.
package ratelimit

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"bridgify/core/port/out"
)

// RateLimitedError is distinct from out.AdapterError: it is raised by the
// limiter itself, never by a MailAdapter, and maps onto its own JSON-RPC
// code (-32007) rather than any FailureKind.
type RateLimitedError struct {
	Reason string
}

func (e *RateLimitedError) Error() string { return "rate_limited: " + e.Reason }

// IsRateLimited reports whether err was produced by Limiter.Admit.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

// Config parameterizes the limiter per spec §4.3.
type Config struct {
	RPS          int
	Burst        int
	PerMinute    int
	PerHour      int
	PerCallerCap int // bounded LRU size for per-caller segmentation
}

func DefaultConfig() Config {
	return Config{RPS: 10, Burst: 20, PerMinute: 300, PerHour: 5000, PerCallerCap: 1000}
}

// bucket is a lock-free token bucket, same refill arithmetic as the
// teacher's worker_pool.go RateLimiter.
type bucket struct {
	tokens       int64
	maxTokens    int64
	refillRate   int64
	intervalNs   int64
	lastRefillNs int64
}

// newBucket builds a bucket holding up to capacity tokens, refilled at
// refillRate tokens per interval (§4.3: capacity is the burst ceiling,
// refillRate/interval is the sustained rate — the two are independent
// knobs, not one rate reused for both).
func newBucket(capacity, refillRate int, interval time.Duration) *bucket {
	return &bucket{
		tokens: int64(capacity), maxTokens: int64(capacity), refillRate: int64(refillRate),
		intervalNs: int64(interval), lastRefillNs: time.Now().UnixNano(),
	}
}

func (b *bucket) allow() bool {
	now := time.Now().UnixNano()
	intervalNs := atomic.LoadInt64(&b.intervalNs)
	lastRefill := atomic.LoadInt64(&b.lastRefillNs)

	if elapsed := now - lastRefill; elapsed >= intervalNs {
		intervals := elapsed / intervalNs
		tokensToAdd := intervals * atomic.LoadInt64(&b.refillRate)
		if atomic.CompareAndSwapInt64(&b.lastRefillNs, lastRefill, now) {
			maxTokens := atomic.LoadInt64(&b.maxTokens)
			for {
				cur := atomic.LoadInt64(&b.tokens)
				next := cur + tokensToAdd
				if next > maxTokens {
					next = maxTokens
				}
				if atomic.CompareAndSwapInt64(&b.tokens, cur, next) {
					break
				}
			}
		}
	}

	for {
		cur := atomic.LoadInt64(&b.tokens)
		if cur <= 0 {
			return false
		}
		if atomic.CompareAndSwapInt64(&b.tokens, cur, cur-1) {
			return true
		}
	}
}

// window is a simple fixed-window counter used for the per-minute/per-hour
// quotas layered on top of the token bucket.
type window struct {
	mu       sync.Mutex
	limit    int
	period   time.Duration
	count    int
	windowAt time.Time
}

func newWindow(limit int, period time.Duration) *window {
	return &window{limit: limit, period: period, windowAt: time.Now()}
}

func (w *window) allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if now.Sub(w.windowAt) >= w.period {
		w.windowAt = now
		w.count = 0
	}
	if w.count >= w.limit {
		return false
	}
	w.count++
	return true
}

// callerBucket is one entry in the per-caller LRU.
type callerBucket struct {
	key    string
	tokens *bucket
}

// Limiter is the process-wide admission gate.
type Limiter struct {
	cfg Config

	global *bucket
	minute *window
	hour   *window

	distributed out.DistributedWindow

	mu        sync.Mutex
	perCaller map[string]*list.Element
	lru       *list.List
}

func New(cfg Config, distributed out.DistributedWindow) *Limiter {
	return &Limiter{
		cfg:         cfg,
		global:      newBucket(max1(cfg.Burst), cfg.RPS, time.Second),
		minute:      newWindow(cfg.PerMinute, time.Minute),
		hour:        newWindow(cfg.PerHour, time.Hour),
		distributed: distributed,
		perCaller:   make(map[string]*list.Element),
		lru:         list.New(),
	}
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// Admit implements admit(cost=1, deadline) from §4.3: if capacity is
// available under every active window it returns immediately; otherwise it
// denies with rate_limited. caller is optional ("" disables per-caller
// segmentation).
func (l *Limiter) Admit(ctx context.Context, caller string) error {
	if !l.global.allow() {
		return rateLimited("global rps exceeded")
	}
	if !l.minute.allow() {
		return rateLimited("per-minute quota exceeded")
	}
	if !l.hour.allow() {
		return rateLimited("per-hour quota exceeded")
	}

	if caller != "" {
		if !l.callerBucketFor(caller).allow() {
			return rateLimited("per-caller burst exceeded")
		}
		if l.distributed != nil {
			count, err := l.distributed.Incr(ctx, caller, time.Second)
			if err == nil && int(count) > l.cfg.RPS+l.cfg.Burst {
				return rateLimited("distributed window exceeded")
			}
		}
	}

	return nil
}

func (l *Limiter) callerBucketFor(caller string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if el, ok := l.perCaller[caller]; ok {
		l.lru.MoveToFront(el)
		return el.Value.(*callerBucket).tokens
	}

	cb := &callerBucket{key: caller, tokens: newBucket(max1(l.cfg.Burst), l.cfg.RPS, time.Second)}
	el := l.lru.PushFront(cb)
	l.perCaller[caller] = el

	for l.lru.Len() > l.cfg.PerCallerCap {
		back := l.lru.Back()
		if back == nil {
			break
		}
		l.lru.Remove(back)
		delete(l.perCaller, back.Value.(*callerBucket).key)
	}

	return cb.tokens
}

func rateLimited(msg string) error {
	return &RateLimitedError{Reason: msg}
}
