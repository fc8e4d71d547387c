// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/citecheck/pkg/types"
)

func TestWait_SlidingWindowCap(t *testing.T) {
	const (
		limit  = 5
		window = 200 * time.Millisecond
		calls  = 17
	)
	l := New(types.SourceConfig{Requests: limit, Window: window, MinInterval: time.Millisecond})

	var grants []time.Time
	l.observe = func(t time.Time) { grants = append(grants, t) }

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				l.mu.Lock()
				done := len(grants) >= calls
				l.mu.Unlock()
				if done {
					return
				}
				if err := l.Wait(context.Background()); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	require.GreaterOrEqual(t, len(grants), calls)
	for i := 0; i+limit < len(grants); i++ {
		gap := grants[i+limit].Sub(grants[i])
		assert.GreaterOrEqual(t, gap, window, "grants %d..%d fit %d calls in %v", i, i+limit, limit+1, gap)
	}
}

func TestWait_MinInterval(t *testing.T) {
	l := New(types.SourceConfig{Requests: 100, Window: time.Second, MinInterval: 20 * time.Millisecond})

	start := time.Now()
	for i := 0; i < 4; i++ {
		require.NoError(t, l.Wait(context.Background()))
	}
	// First grant is immediate; three more need three intervals.
	assert.GreaterOrEqual(t, time.Since(start), 55*time.Millisecond)
}

func TestWait_ContextCancelled(t *testing.T) {
	l := New(types.SourceConfig{Requests: 1, Window: time.Hour, MinInterval: time.Millisecond})
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffAndRecovery(t *testing.T) {
	base := 10 * time.Millisecond
	l := New(types.SourceConfig{
		Requests:     1,
		Window:       base,
		MaxInterval:  80 * time.Millisecond,
		RecoverAfter: 2,
	})
	assert.Equal(t, base, l.Interval())

	assert.Equal(t, 20*time.Millisecond, l.Backoff())
	assert.Equal(t, 40*time.Millisecond, l.Backoff())
	assert.Equal(t, 80*time.Millisecond, l.Backoff())
	assert.Equal(t, 80*time.Millisecond, l.Backoff(), "capped")

	l.Success()
	assert.Equal(t, 80*time.Millisecond, l.Interval(), "one success is not a run")
	l.Success()
	assert.Equal(t, 70*time.Millisecond, l.Interval(), "linear step down")

	for i := 0; i < 20; i++ {
		l.Success()
	}
	assert.Equal(t, base, l.Interval(), "never below base")
}

func TestBackoffResetsSuccessRun(t *testing.T) {
	base := 10 * time.Millisecond
	l := New(types.SourceConfig{Requests: 1, Window: base, MaxInterval: time.Second, RecoverAfter: 2})
	l.Backoff()
	l.Success()
	l.Backoff()
	l.Success()
	assert.Equal(t, 40*time.Millisecond, l.Interval())
}
