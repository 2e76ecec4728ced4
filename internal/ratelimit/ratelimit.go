// Package ratelimit gates outbound fetches per source across three
// dimensions: requests/minute, bytes/minute, and concurrent
// in-flight requests. Each rate dimension is a refill-on-access token
// bucket and concurrency is a counting semaphore. Waiters are not queued:
// each blocked call re-checks its bucket on its own timer, so the order in
// which concurrent waiters on one source are admitted is not defined, and
// there is no ordering across sources either.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNoCapacity is not returned by this package: Acquire and Charge wait for
// capacity and return ctx.Err() if ctx is done first.
var ErrNoCapacity = errors.New("ratelimit: no capacity available")

// bucket is a token bucket refilled continuously based on elapsed time.
type bucket struct {
	tokens     float64
	capacity   float64
	ratePerSec float64
	lastRefill time.Time
}

func newBucket(capacity, ratePerSec float64) *bucket {
	return &bucket{tokens: capacity, capacity: capacity, ratePerSec: ratePerSec, lastRefill: time.Now()}
}

func (b *bucket) refill(now time.Time) {
	if b.ratePerSec <= 0 {
		return
	}
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.ratePerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

// take attempts to remove n tokens, refilling first. It reports whether the
// bucket had enough tokens and, if not, the duration until it would.
func (b *bucket) take(now time.Time, n float64) (bool, time.Duration) {
	if b.ratePerSec <= 0 {
		// unlimited dimension
		return true, 0
	}
	b.refill(now)
	if b.tokens >= n {
		b.tokens -= n
		return true, 0
	}
	need := n - b.tokens
	secs := need / b.ratePerSec
	if secs < 0 {
		secs = 0
	}
	return false, time.Duration(secs * float64(time.Second))
}

// Limits configures the three dimensions for one source. Zero means unlimited
// for that dimension.
type Limits struct {
	RequestsPerMin int
	BytesPerMin    int
	Concurrency    int
}

// Limiter enforces Limits for a single source. Requests and bytes are token
// buckets; concurrency is a counting semaphore so held slots are released by
// Release regardless of how acquisition was waited on.
type Limiter struct {
	mu    sync.Mutex
	reqs  *bucket
	bytes *bucket
	sem   chan struct{}
}

// NewLimiter builds a Limiter from Limits. A zero-valued dimension behaves as
// unlimited rather than blocking forever.
func NewLimiter(l Limits) *Limiter {
	lim := &Limiter{
		reqs:  newBucket(burstFor(l.RequestsPerMin), perSecond(l.RequestsPerMin)),
		bytes: newBucket(burstFor(l.BytesPerMin), perSecond(l.BytesPerMin)),
	}
	if l.Concurrency > 0 {
		lim.sem = make(chan struct{}, l.Concurrency)
	}
	return lim
}

func perSecond(perMin int) float64 {
	if perMin <= 0 {
		return 0
	}
	return float64(perMin) / 60.0
}

// burstFor sizes the bucket capacity equal to one minute's worth of tokens,
// so a source that has been idle can burst up to its per-minute allotment.
func burstFor(perMin int) float64 {
	if perMin <= 0 {
		return 0
	}
	return float64(perMin)
}

// Acquire blocks (cooperatively, via timer-based backoff) until one request
// token and a concurrency slot are available, or ctx is done first. The
// returned release func must be called exactly once, however the caller's
// fetch finishes, to free the concurrency slot; acquiring the bytes
// dimension happens separately via Charge once the response size is known.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.waitRequestToken(ctx); err != nil {
		return nil, err
	}
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	released := false
	return func() {
		if released {
			return
		}
		released = true
		if l.sem != nil {
			<-l.sem
		}
	}, nil
}

func (l *Limiter) waitRequestToken(ctx context.Context) error {
	for {
		l.mu.Lock()
		ok, retry := l.reqs.take(time.Now(), 1.0)
		l.mu.Unlock()
		if ok {
			return nil
		}
		t := time.NewTimer(retry)
		select {
		case <-t.C:
			continue
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// Charge consumes n bytes from the bytes/minute bucket, blocking until
// capacity is available or ctx is done. Call it once the response body size
// is known, after Acquire has already admitted the request.
func (l *Limiter) Charge(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	for {
		l.mu.Lock()
		ok, retry := l.bytes.take(time.Now(), float64(n))
		l.mu.Unlock()
		if ok {
			return nil
		}
		t := time.NewTimer(retry)
		select {
		case <-t.C:
			continue
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}

// Manager holds one Limiter per source, created lazily from Limits supplied
// by the source registry.
type Manager struct {
	mu       sync.Mutex
	limiters map[string]*Limiter
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{limiters: make(map[string]*Limiter)}
}

// ForSource returns the Limiter for sourceID, creating it from limits the
// first time it is seen. Subsequent calls with different limits for the same
// source are ignored; the first registration wins for the process lifetime.
func (m *Manager) ForSource(sourceID string, limits Limits) *Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[sourceID]; ok {
		return lim
	}
	lim := NewLimiter(limits)
	m.limiters[sourceID] = lim
	return lim
}
