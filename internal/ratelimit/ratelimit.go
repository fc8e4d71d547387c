// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ratelimit paces requests to one source. A Limiter enforces two
// bounds: at most N grants in any sliding window, and a minimum interval
// between grants. Rate-limit responses from the source double the minimum
// interval (capped); a run of successes steps it back down linearly.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/citecheck/pkg/types"
)

// Limiter is safe for concurrent use by multiple workers.
type Limiter struct {
	pacer *rate.Limiter

	mu        sync.Mutex
	limit     int
	window    time.Duration
	grants    []time.Time // grant times inside the window, oldest first
	base      time.Duration
	interval  time.Duration
	maxIvl    time.Duration
	recover   int
	successes int

	// observe, when set, is called with each grant time under mu.
	observe func(time.Time)
}

// New builds a limiter from a source config. Missing values default to one
// request per second.
func New(cfg types.SourceConfig) *Limiter {
	limit := cfg.Requests
	if limit <= 0 {
		limit = 1
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Second
	}
	base := cfg.MinInterval
	if base <= 0 {
		base = window / time.Duration(limit)
	}
	maxIvl := cfg.MaxInterval
	if maxIvl < base {
		maxIvl = base * 32
	}
	recoverAfter := cfg.RecoverAfter
	if recoverAfter <= 0 {
		recoverAfter = 5
	}
	return &Limiter{
		pacer:    rate.NewLimiter(rate.Every(base), 1),
		limit:    limit,
		window:   window,
		base:     base,
		interval: base,
		maxIvl:   maxIvl,
		recover:  recoverAfter,
	}
}

// Wait blocks until a request may be sent or ctx is done. It never drops a
// request: callers either get a slot or ctx.Err().
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.pacer.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// The pacer refuses waits that would outlive the deadline.
		return context.DeadlineExceeded
	}
	for {
		l.mu.Lock()
		now := time.Now()
		l.expire(now)
		if len(l.grants) < l.limit {
			l.grants = append(l.grants, now)
			if l.observe != nil {
				l.observe(now)
			}
			l.mu.Unlock()
			return nil
		}
		wait := l.grants[0].Add(l.window).Sub(now)
		l.mu.Unlock()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// expire drops grants that left the window. Callers hold mu.
func (l *Limiter) expire(now time.Time) {
	i := 0
	for i < len(l.grants) && now.Sub(l.grants[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.grants = append(l.grants[:0], l.grants[i:]...)
	}
}

// Backoff doubles the minimum interval after the source reported rate
// limiting, up to the configured cap.
func (l *Limiter) Backoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successes = 0
	next := l.interval * 2
	if next > l.maxIvl {
		next = l.maxIvl
	}
	l.setInterval(next)
	return l.interval
}

// Success records a successful call. After RecoverAfter consecutive
// successes the interval steps down by the base interval.
func (l *Limiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.interval == l.base {
		l.successes = 0
		return
	}
	l.successes++
	if l.successes < l.recover {
		return
	}
	l.successes = 0
	next := l.interval - l.base
	if next < l.base {
		next = l.base
	}
	l.setInterval(next)
}

// Interval returns the current minimum interval between grants.
func (l *Limiter) Interval() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval
}

// setInterval updates the pacer. Callers hold mu.
func (l *Limiter) setInterval(d time.Duration) {
	l.interval = d
	l.pacer.SetLimit(rate.Every(d))
}
