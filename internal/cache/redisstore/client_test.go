package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"github.com/rmkenv/OS-ST-GIS/internal/cache"
)

var _ cache.Interface = (*Client)(nil)

func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetMGetDel(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "catalog:1", []byte(`[{"name":"a.csv"}]`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := rc.MGet(ctx, []string{"catalog:1", "missing"})
	if err != nil {
		t.Fatalf("MGet: %v", err)
	}
	if len(got) != 1 || string(got["catalog:1"]) != `[{"name":"a.csv"}]` {
		t.Fatalf("unexpected values: %v", got)
	}

	if err := rc.Del(ctx, "catalog:1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	got, _ = rc.MGet(ctx, []string{"catalog:1"})
	if len(got) != 0 {
		t.Fatalf("expected empty after Del; got=%v", got)
	}
}

func TestMGet_EmptyKeys(t *testing.T) {
	rc, _ := newMini(t)
	got, err := rc.MGet(context.Background(), nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("got=%v err=%v", got, err)
	}
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty address")
	}
}

func TestNew_PingFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := New(ctx, addr, WithDialTimeout(100*time.Millisecond)); err == nil {
		t.Fatalf("expected ping error for closed server")
	}
}
