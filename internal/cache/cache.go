// Package cache holds the byte stores behind the catalog listing cache.
package cache

import (
	"context"
	"time"
)

// Interface is satisfied by the memory, redis and nop drivers. MGet omits
// missing keys from its result.
type Interface interface {
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Nop stores nothing; every read misses.
type Nop struct{}

func (Nop) MGet(context.Context, []string) (map[string][]byte, error) {
	return map[string][]byte{}, nil
}

func (Nop) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (Nop) Del(context.Context, ...string) error { return nil }
