// Package cache defines the tile cache contract. Stores hold
// canonically encoded tile bytes keyed by source, coordinate, and
// query hash; per-request encoding negotiation happens after retrieval
// so client Accept-Encoding variance never multiplies entries.
package cache

import (
	"context"
	"time"
)

type Interface interface {
	// Get returns the cached value and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	// DelPrefix drops every entry whose key starts with prefix; used
	// by invalidation to purge one source wholesale.
	DelPrefix(ctx context.Context, prefix string) error
	Close() error
}

// Nop is the disabled-cache store.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool, error)        { return nil, false, nil }
func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Nop) DelPrefix(context.Context, string) error                  { return nil }
func (Nop) Close() error                                             { return nil }
