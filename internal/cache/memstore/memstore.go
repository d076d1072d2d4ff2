// Package memstore is the in-process tile cache, an expiring LRU.
package memstore

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/atlasgrid/pgtiles/internal/core/observability"
)

type Store struct {
	lru *expirable.LRU[string, []byte]
}

// New builds a store holding at most size tiles; entries expire after
// ttl regardless of use. A non-positive size falls back to 1024.
func New(size int, ttl time.Duration) *Store {
	if size <= 0 {
		size = 1024
	}
	return &Store{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	start := time.Now()
	v, ok := s.lru.Get(key)
	observability.ObserveCacheOp("get", nil, time.Since(start).Seconds())
	if ok {
		observability.IncCacheHit()
	} else {
		observability.IncCacheMiss()
	}
	return v, ok, nil
}

// Set stores a copy of val. The store-wide TTL applies; the per-call
// ttl is accepted for interface compatibility but cannot shorten it.
func (s *Store) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	start := time.Now()
	cp := make([]byte, len(val))
	copy(cp, val)
	s.lru.Add(key, cp)
	observability.ObserveCacheOp("set", nil, time.Since(start).Seconds())
	return nil
}

func (s *Store) DelPrefix(_ context.Context, prefix string) error {
	start := time.Now()
	for _, k := range s.lru.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.lru.Remove(k)
		}
	}
	observability.ObserveCacheOp("del_prefix", nil, time.Since(start).Seconds())
	return nil
}

func (s *Store) Close() error {
	s.lru.Purge()
	return nil
}
