// Package ratelimit guards the public intake endpoint with a per-IP
// sliding-window limit. The limiter fails open: a broken store must never
// take the contact form down with it.
package ratelimit

import (
	"context"
	"time"
)

// Result describes one limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// BucketStore counts requests per key inside a sliding window.
type BucketStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
