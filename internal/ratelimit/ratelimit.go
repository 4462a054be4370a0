// Package ratelimit implements process-local fixed-window request counters.
//
// Counters live in memory only: they reset on restart and are not shared between
// instances, so running N replicas multiplies the effective limits by N.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limits applied to public submissions.
var (
	SubmissionIPLimit   = Config{Window: time.Hour, MaxRequests: 10}
	SubmissionLinkLimit = Config{Window: time.Hour, MaxRequests: 50}
)

// Key prefixes separating the limiter scopes.
const (
	scopeSubmissionIP   = "submission:ip:"
	scopeSubmissionLink = "submission:link:"
)

// Config describes one fixed window.
type Config struct {
	Window      time.Duration
	MaxRequests int
}

// Result is the outcome of a limit check.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter int // seconds, only set when denied
}

type window struct {
	count   int
	resetAt time.Time
}

// Limiter holds fixed-window counters keyed by scope and identifier.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
	log     *zap.Logger
}

// New creates an empty limiter.
func New(log *zap.Logger) *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
		log:     log.Named("ratelimit"),
	}
}

// SetClock replaces the time source. Intended for tests.
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Check counts a request against key and reports whether it is within cfg.
func (l *Limiter) Check(key string, cfg Config) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, exists := l.windows[key]

	if !exists || !now.Before(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(cfg.Window)}
		l.windows[key] = w
		return Result{Allowed: true, Remaining: cfg.MaxRequests - 1, ResetAt: w.resetAt}
	}

	w.count++
	if w.count > cfg.MaxRequests {
		return Result{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    w.resetAt,
			RetryAfter: int(math.Ceil(w.resetAt.Sub(now).Seconds())),
		}
	}

	return Result{Allowed: true, Remaining: cfg.MaxRequests - w.count, ResetAt: w.resetAt}
}

// CheckSubmissionIP applies the per-IP submission limit.
func (l *Limiter) CheckSubmissionIP(ip string) Result {
	return l.Check(scopeSubmissionIP+ip, SubmissionIPLimit)
}

// CheckSubmissionLink applies the per-link submission limit.
func (l *Limiter) CheckSubmissionLink(token string) Result {
	return l.Check(scopeSubmissionLink+token, SubmissionLinkLimit)
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Sweep evicts windows whose reset time has passed and returns how many were removed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Run sweeps expired windows every interval until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				l.log.Debug("swept expired windows", zap.Int("removed", removed), zap.Int("tracked", l.Len()))
			}
		}
	}
}
