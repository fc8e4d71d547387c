// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across source adapters:
// request execution with failure classification and backoff timing.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"time"

	"github.com/pdiddy/citecheck/pkg/types"
)

// RetryBaseDelay is the default base duration for exponential backoff.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = 2 * time.Second

// maxBodyDrain bounds how much of an error body is read before closing.
const maxBodyDrain = 64 << 10

// Do executes req and classifies the outcome. It returns the response only
// for HTTP 200; every other outcome is a *types.SourceError whose kind is
// timeout, rate_limited, unreachable, not_found, or malformed. The body of
// a non-200 response is drained and closed.
func Do(ctx context.Context, client *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req.Clone(ctx))
	if err != nil {
		return nil, classifyTransport(ctx, err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyDrain))
	resp.Body.Close()

	return nil, ClassifyStatus(resp.StatusCode)
}

// ClassifyStatus maps a non-200 HTTP status to a classified error.
func ClassifyStatus(code int) error {
	err := fmt.Errorf("HTTP %d", code)
	switch {
	case code == http.StatusTooManyRequests:
		return types.NewSourceError("", types.KindRateLimited, err)
	case code == http.StatusNotFound || code == http.StatusGone:
		return types.NewSourceError("", types.KindNotFound, err)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return types.NewSourceError("", types.KindTimeout, err)
	case code >= 500:
		return types.NewSourceError("", types.KindUnreachable, err)
	default:
		return types.NewSourceError("", types.KindMalformed, err)
	}
}

// classifyTransport maps a client.Do error to timeout or unreachable.
func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.NewSourceError("", types.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.NewSourceError("", types.KindTimeout, err)
	}
	return types.NewSourceError("", types.KindUnreachable, err)
}

// Malformed wraps a decode failure.
func Malformed(err error) error {
	return types.NewSourceError("", types.KindMalformed, err)
}

// Backoff returns base * 2^attempt. A zero base uses RetryBaseDelay.
func Backoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = RetryBaseDelay
	}
	return time.Duration(math.Pow(2, float64(attempt))) * base
}

// Sleep waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
