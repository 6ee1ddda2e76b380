// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package ratelimit provides a sliding-window attempt throttle keyed by
// an arbitrary string, independent of the account lockout guard.
//
// Two implementations share the same observable semantics: a window
// holds at most maxAttempts entries, the next request inside the window
// is rejected, and entries older than the window are pruned lazily on
// each check.
package ratelimit

import (
	"context"
	"time"
)

// Limiter is the throttle strategy injected into the login flow.
type Limiter interface {
	// Check records an attempt for key unless the window is already
	// full. It returns whether the request is limited and how many
	// attempts remain.
	Check(ctx context.Context, key string, maxAttempts int, window time.Duration) (limited bool, remaining int, err error)

	// Reset clears the window for key, typically after a verified success.
	Reset(ctx context.Context, key string) error
}
