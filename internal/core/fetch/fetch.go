// Package fetch isolates the network transport used by loaders and the
// catalog so both can be exercised offline with canned responses.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
)

// Fetcher performs a blocking GET. Failures are *model.FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

type HTTPFetcher struct {
	logger   *slog.Logger
	client   *http.Client
	upstream string
	startNow func() time.Time // for tests
}

// New returns an HTTP fetcher. upstream labels latency metrics.
func New(logger *slog.Logger, client *http.Client, upstream string) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	if upstream == "" {
		upstream = "source"
	}
	return &HTTPFetcher{
		logger:   logger,
		client:   client,
		upstream: upstream,
		startNow: time.Now,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &model.FetchError{URL: rawURL, Err: fmt.Errorf("parse url: %w", err)}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &model.FetchError{URL: rawURL, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &model.FetchError{URL: rawURL, Err: fmt.Errorf("build request: %w", err)}
	}

	start := f.startNow()
	resp, err := f.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency(f.upstream, err, time.Since(start).Seconds())
		return nil, &model.FetchError{URL: rawURL, Err: fmt.Errorf("do request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		statusErr := fmt.Errorf("upstream status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
		observability.ObserveUpstreamLatency(f.upstream, statusErr, time.Since(start).Seconds())
		return nil, &model.FetchError{URL: rawURL, Status: resp.StatusCode, Err: statusErr}
	}

	b, err := io.ReadAll(resp.Body)
	dur := time.Since(start)
	observability.ObserveUpstreamLatency(f.upstream, err, dur.Seconds())
	if err != nil {
		return nil, &model.FetchError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	f.logger.DebugContext(ctx, "fetch done",
		"url", u.Redacted(),
		"status", resp.StatusCode,
		"bytes", len(b),
		"duration", dur.String())
	return b, nil
}

// Canned serves fixed bodies by URL; unknown URLs fail with 404.
type Canned struct {
	mu     sync.Mutex
	bodies map[string][]byte
	errs   map[string]error
	calls  map[string]int
}

func NewCanned() *Canned {
	return &Canned{
		bodies: map[string][]byte{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (c *Canned) Set(rawURL string, body []byte) *Canned {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bodies[rawURL] = body
	return c
}

// Fail makes rawURL fail; a *model.FetchError is passed through unchanged.
func (c *Canned) Fail(rawURL string, err error) *Canned {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[rawURL] = err
	return c
}

func (c *Canned) Calls(rawURL string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[rawURL]
}

func (c *Canned) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[rawURL]++
	if err, ok := c.errs[rawURL]; ok {
		var fe *model.FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &model.FetchError{URL: rawURL, Err: err}
	}
	if b, ok := c.bodies[rawURL]; ok {
		return append([]byte(nil), b...), nil
	}
	return nil, &model.FetchError{URL: rawURL, Status: http.StatusNotFound, Err: errors.New("not found")}
}
