// Package guardrails protects the chat relay from abusive clients.
//
// The limiter is a fixed-window counter per client key. Windows live in a
// bounded ristretto cache with a TTL equal to the window length, so keys of
// clients that went quiet expire on their own instead of accumulating for the
// lifetime of the process. The limiter is single-process; multiple replicas
// each enforce their own budget.
package guardrails

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/dlmm-scout/core"
)

// DefaultMaxKeys bounds how many client windows are tracked at once.
const DefaultMaxKeys = 100_000

// window is the rate-limit record of one client.
type window struct {
	count int
	start time.Time
}

// Result describes the outcome of a Check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter is a fixed-window request counter keyed by client identifier.
type Limiter struct {
	maxRequests int
	window      time.Duration

	mu    sync.Mutex
	cache *ristretto.Cache
	now   func() time.Time
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) LimiterOption {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter allows maxRequests per key in every window.
func NewLimiter(maxRequests int, window time.Duration, opts ...LimiterOption) (*Limiter, error) {
	if maxRequests <= 0 {
		return nil, fmt.Errorf("max requests must be positive, got %d", maxRequests)
	}
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", window)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        DefaultMaxKeys * 10,
		MaxCost:            DefaultMaxKeys,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("create window cache: %w", err)
	}

	l := &Limiter{
		maxRequests: maxRequests,
		window:      window,
		cache:       cache,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close releases the cache's background goroutines.
func (l *Limiter) Close() {
	l.cache.Close()
}

// IsAllowed counts a request for key and reports whether it is within budget.
// A request arriving after the window expired starts a new window with count 1.
func (l *Limiter) IsAllowed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.lookup(key, now)
	if !ok {
		w = &window{start: now}
		l.cache.SetWithTTL(key, w, 1, l.window)
		l.cache.Wait()
	}
	w.count++
	return w.count <= l.maxRequests
}

// RemainingTime returns how long until key's current window resets, or 0 if
// key has no live window.
func (l *Limiter) RemainingTime(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.lookup(key, now)
	if !ok {
		return 0
	}
	return w.start.Add(l.window).Sub(now)
}

// Check counts a request for key. When the key is over budget it returns a
// *core.RateLimitError carrying the time until the window resets.
func (l *Limiter) Check(key string) (Result, error) {
	allowed := l.IsAllowed(key)
	res := Result{Allowed: allowed, Limit: l.maxRequests}

	l.mu.Lock()
	if w, ok := l.lookup(key, l.now()); ok {
		res.Remaining = max(l.maxRequests-w.count, 0)
	}
	l.mu.Unlock()

	if allowed {
		return res, nil
	}
	res.RetryAfter = l.RemainingTime(key)
	return res, &core.RateLimitError{Limit: l.maxRequests, RetryAfter: res.RetryAfter}
}

// Limit returns the per-window request budget.
func (l *Limiter) Limit() int {
	return l.maxRequests
}

// lookup returns key's window if it has not expired. Must be called with mu held.
func (l *Limiter) lookup(key string, now time.Time) (*window, bool) {
	v, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}
	w := v.(*window)
	if now.Sub(w.start) >= l.window {
		return nil, false
	}
	return w, true
}

// ClientKey identifies the caller of r: the first X-Forwarded-For entry,
// then X-Real-IP, then the connection's remote host.
func ClientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
