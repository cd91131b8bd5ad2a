package port

import (
	"context"
	"time"
)

// RateLimitStore tracks request attempts inside a sliding window.
type RateLimitStore interface {
	// Allow records an attempt for the identifier when the window still has
	// room. When the limit is already reached it reports how long the caller
	// should wait before the oldest attempt leaves the window.
	Allow(ctx context.Context, identifier string, limit int, window time.Duration, at time.Time) (bool, time.Duration, error)
}
