// Package catalog lists the datasets published in a remote repository
// folder and caches the filtered listing.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rmkenv/OS-ST-GIS/internal/cache"
	"github.com/rmkenv/OS-ST-GIS/internal/cache/keys"
	"github.com/rmkenv/OS-ST-GIS/internal/core/fetch"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
)

// Listed suffixes are matched case-sensitively against the entry name.
var listedSuffixes = []string{".csv", ".geojson", ".xlsx", ".zip"}

type Entry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// contentItem is one element of the repository contents response.
type contentItem struct {
	Name        string  `json:"name"`
	DownloadURL *string `json:"download_url"`
}

type Catalog struct {
	fetcher  fetch.Fetcher
	endpoint string
	key      string
	store    cache.Interface
	ttl      time.Duration
	logger   *slog.Logger
}

type Option func(*Catalog)

func WithStore(s cache.Interface) Option {
	return func(c *Catalog) {
		if s != nil {
			c.store = s
		}
	}
}

func WithTTL(d time.Duration) Option {
	return func(c *Catalog) { c.ttl = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

func New(f fetch.Fetcher, endpoint string, opts ...Option) *Catalog {
	c := &Catalog{
		fetcher:  f,
		endpoint: endpoint,
		key:      keys.Catalog(endpoint),
		store:    cache.Nop{},
		ttl:      5 * time.Minute,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Catalog) Endpoint() string { return c.endpoint }

// Key is the cache key the listing is stored under.
func (c *Catalog) Key() string { return c.key }

// List returns the filtered listing in response order. Cache failures are
// logged and fall through to the endpoint.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	if entries, ok := c.cached(ctx); ok {
		return entries, nil
	}

	body, err := c.fetcher.Fetch(ctx, c.endpoint)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(body)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(entries); err == nil {
		if err := c.store.Set(ctx, c.key, b, c.ttl); err != nil {
			observability.IncCacheError()
			c.logger.WarnContext(ctx, "catalog cache set failed", "key", c.key, "err", err)
		}
	}
	c.logger.DebugContext(ctx, "catalog fetched", "entries", len(entries))
	return entries, nil
}

func (c *Catalog) cached(ctx context.Context) ([]Entry, bool) {
	got, err := c.store.MGet(ctx, []string{c.key})
	if err != nil {
		observability.IncCacheError()
		c.logger.WarnContext(ctx, "catalog cache get failed", "key", c.key, "err", err)
		return nil, false
	}
	b, ok := got[c.key]
	if !ok {
		observability.IncCacheMiss()
		return nil, false
	}
	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		observability.IncCacheError()
		c.logger.WarnContext(ctx, "catalog cache entry corrupt", "key", c.key, "err", err)
		return nil, false
	}
	observability.IncCacheHit()
	return entries, true
}

// Map returns the listing as name → download URL.
func (c *Catalog) Map(ctx context.Context) (map[string]string, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		out[e.Name] = e.URL
	}
	return out, nil
}

// Lookup resolves a display name to its entry.
func (c *Catalog) Lookup(ctx context.Context, name string) (Entry, bool, error) {
	entries, err := c.List(ctx)
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Resolve returns the download URL of dataset. Index failures and unknown
// names are *model.FetchError so they fail only the source being loaded.
func (c *Catalog) Resolve(ctx context.Context, dataset string) (string, error) {
	e, ok, err := c.Lookup(ctx, dataset)
	if err != nil {
		var fe *model.FetchError
		if errors.As(err, &fe) {
			return "", err
		}
		return "", &model.FetchError{URL: c.endpoint, Err: fmt.Errorf("catalog index: %w", err)}
	}
	if !ok {
		return "", &model.FetchError{
			URL:    dataset,
			Status: http.StatusNotFound,
			Err:    fmt.Errorf("dataset %q is not in the catalog", dataset),
		}
	}
	return e.URL, nil
}

// Invalidate drops the cached listing for endpoint; an empty endpoint means
// this catalog's own.
func (c *Catalog) Invalidate(ctx context.Context, endpoint string) error {
	key := c.key
	if strings.TrimSpace(endpoint) != "" {
		key = keys.Catalog(endpoint)
	}
	if err := c.store.Del(ctx, key); err != nil {
		observability.IncCacheError()
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	c.logger.InfoContext(ctx, "catalog cache invalidated", "key", key)
	return nil
}

// Parse decodes a repository contents response and keeps the loadable
// entries. A later duplicate name replaces the earlier URL in place.
func Parse(body []byte) ([]Entry, error) {
	var items []contentItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &model.ParseError{Format: "catalog", Err: err}
	}

	entries := make([]Entry, 0, len(items))
	pos := make(map[string]int, len(items))
	for _, it := range items {
		if it.DownloadURL == nil || *it.DownloadURL == "" || !listed(it.Name) {
			continue
		}
		if i, ok := pos[it.Name]; ok {
			entries[i].URL = *it.DownloadURL
			continue
		}
		pos[it.Name] = len(entries)
		entries = append(entries, Entry{Name: it.Name, URL: *it.DownloadURL})
	}
	return entries, nil
}

func listed(name string) bool {
	for _, s := range listedSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}
