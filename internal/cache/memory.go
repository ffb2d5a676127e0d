package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemorySize = 256

// Memory is an in-process expirable LRU. The TTL is fixed at construction;
// the per-call ttl passed to Set is ignored.
type Memory struct {
	lru *expirable.LRU[string, []byte]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = defaultMemorySize
	}
	return &Memory{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (m *Memory) MGet(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.lru.Get(k); ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	m.lru.Add(key, append([]byte(nil), val...))
	return nil
}

func (m *Memory) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		m.lru.Remove(k)
	}
	return nil
}

func (m *Memory) Len() int { return m.lru.Len() }
