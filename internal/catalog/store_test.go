package catalog

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/rmkenv/OS-ST-GIS/internal/cache"
	"github.com/rmkenv/OS-ST-GIS/internal/cache/redisstore"
	"github.com/rmkenv/OS-ST-GIS/internal/core/config"
)

func TestOpenStore_Drivers(t *testing.T) {
	ctx := context.Background()

	s, closeFn, err := OpenStore(ctx, config.Config{CacheDriver: "none"})
	if err != nil {
		t.Fatalf("none: %v", err)
	}
	if _, ok := s.(cache.Nop); !ok {
		t.Fatalf("none: got %T", s)
	}
	_ = closeFn()

	s, _, err = OpenStore(ctx, config.Config{CacheDriver: "memory", CatalogTTL: time.Minute})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*cache.Memory); !ok {
		t.Fatalf("memory: got %T", s)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	s, closeFn, err = OpenStore(ctx, config.Config{CacheDriver: "redis", RedisAddr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	if _, ok := s.(*redisstore.Client); !ok {
		t.Fatalf("redis: got %T", s)
	}
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenStore_RedisUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, closeFn, err := OpenStore(ctx, config.Config{CacheDriver: "redis", RedisAddr: addr})
	if err == nil {
		t.Fatalf("expected error for unreachable redis")
	}
	if closeFn == nil {
		t.Fatalf("close func must not be nil")
	}
}
