package catalog

import (
	"context"
	"fmt"

	"github.com/rmkenv/OS-ST-GIS/internal/cache"
	"github.com/rmkenv/OS-ST-GIS/internal/cache/redisstore"
	"github.com/rmkenv/OS-ST-GIS/internal/core/config"
)

// OpenStore builds the listing cache named by cfg.CacheDriver. The returned
// close func is never nil.
func OpenStore(ctx context.Context, cfg config.Config) (cache.Interface, func() error, error) {
	noop := func() error { return nil }
	switch cfg.CacheDriver {
	case "none":
		return cache.Nop{}, noop, nil
	case "redis":
		rc, err := redisstore.New(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, noop, fmt.Errorf("catalog store: %w", err)
		}
		return rc, rc.Close, nil
	default:
		return cache.NewMemory(0, cfg.CatalogTTL), noop, nil
	}
}
