package invalidation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

type versionDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, uint64]
}

func newVersionDedupe(size int) *versionDedupe {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, uint64](size)
	return &versionDedupe{lru: c}
}

// stale reports whether v is not newer than the last applied version.
func (d *versionDedupe) stale(key string, v uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && v <= last
}

// applied records v once its purge succeeded. Older versions never lower it.
func (d *versionDedupe) applied(key string, v uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && v <= last {
		return
	}
	d.lru.Add(key, v)
}
