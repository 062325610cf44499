// Package kv is the key-value port used for derived, TTL-scoped state:
// cached scores, promotion markers, notification dedup entries and job
// leases. Nothing stored here is a system of record.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure. Callers treat it as a miss.
var ErrUnavailable = errors.New("kv store unavailable")

type Store interface {
	// Get returns the value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set writes value with a TTL; ttl <= 0 keeps the key until deleted.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX writes value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only while it still holds value.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// Keys lists keys matching a glob pattern. Maintenance sweeps only.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
