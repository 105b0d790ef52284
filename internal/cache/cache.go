// Package cache provides the best-effort TTL key-value store shared by the
// bot classifier and the search/document fetchers. Callers treat every Get
// and Set as fallible: a cache outage degrades to always-miss behavior.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrMiss indicates the key is absent or expired.
var ErrMiss = errors.New("cache: miss")

// Store is the TTL cache contract. Implementations must treat a zero ttl
// as "use their own default" and must never return partially-written
// values.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key joins cache key segments with the "/" separator used throughout.
func Key(parts ...string) string {
	return strings.Join(parts, "/")
}
