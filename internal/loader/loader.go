// Package loader parses source bytes into provisional tables or geometry
// containers. Remote bytes come from an injected fetch.Fetcher.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rmkenv/OS-ST-GIS/internal/core/fetch"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
)

type parseFunc func(l *Loader, name string, data []byte) (model.Raw, error)

var parsers = map[string]parseFunc{
	"csv":     func(_ *Loader, name string, b []byte) (model.Raw, error) { return parseCSV(name, b) },
	"xlsx":    func(_ *Loader, name string, b []byte) (model.Raw, error) { return parseXLSX(name, b) },
	"geojson": func(_ *Loader, name string, b []byte) (model.Raw, error) { return parseGeoJSON(name, b) },
	"json":    func(_ *Loader, name string, b []byte) (model.Raw, error) { return parseGeoJSON(name, b) },
	"zip":     func(l *Loader, name string, b []byte) (model.Raw, error) { return parseShapefileZip(l.tmpDir, name, b) },
}

// Supported reports whether ext (lower-case, no dot) has a parser.
func Supported(ext string) bool {
	_, ok := parsers[ext]
	return ok
}

// Resolver maps a catalog dataset name to its download URL. Failures are
// *model.FetchError. *catalog.Catalog satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, dataset string) (string, error)
}

type Loader struct {
	fetcher fetch.Fetcher
	catalog Resolver
	logger  *slog.Logger
	tmpDir  string
}

type Option func(*Loader)

func WithLogger(l *slog.Logger) Option {
	return func(ld *Loader) {
		if l != nil {
			ld.logger = l
		}
	}
}

// WithTempDir sets where archives are spooled for parsing; "" uses os.TempDir.
func WithTempDir(dir string) Option {
	return func(ld *Loader) { ld.tmpDir = dir }
}

// WithCatalog enables model.CatalogDataset sources.
func WithCatalog(r Resolver) Option {
	return func(ld *Loader) { ld.catalog = r }
}

func New(f fetch.Fetcher, opts ...Option) *Loader {
	l := &Loader{fetcher: f, logger: slog.Default()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load parses src according to its extension. Unsupported extensions are
// rejected before any network I/O.
func (l *Loader) Load(ctx context.Context, src model.Source) (model.Raw, error) {
	ext := src.Ext()
	parse, ok := parsers[ext]
	if !ok {
		return nil, &model.UnsupportedFormatError{Source: sourceLabel(src), Ext: ext}
	}

	data, err := l.read(ctx, src)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := parse(l, src.Name(), data)
	observability.ObserveStage("load", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	l.logger.DebugContext(ctx, "source loaded",
		"source", src.Name(),
		"format", ext,
		"bytes", len(data))
	return raw, nil
}

func (l *Loader) read(ctx context.Context, src model.Source) ([]byte, error) {
	switch s := src.(type) {
	case model.LocalUpload:
		return s.Data, nil
	case model.LocalFile:
		b, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, &model.FetchError{URL: s.Path, Err: fmt.Errorf("read file: %w", err)}
		}
		return b, nil
	case model.RemoteURL:
		return l.fetch(ctx, s.URL)
	case model.CatalogDataset:
		if l.catalog == nil {
			return nil, &model.FetchError{URL: s.Dataset, Err: errors.New("no catalog configured")}
		}
		u, err := l.catalog.Resolve(ctx, s.Dataset)
		if err != nil {
			return nil, err
		}
		return l.fetch(ctx, u)
	default:
		return nil, fmt.Errorf("unknown source type %T", src)
	}
}

func (l *Loader) fetch(ctx context.Context, u string) ([]byte, error) {
	if l.fetcher == nil {
		return nil, &model.FetchError{URL: u, Err: errors.New("no fetcher configured")}
	}
	return l.fetcher.Fetch(ctx, u)
}

func sourceLabel(src model.Source) string {
	switch s := src.(type) {
	case model.LocalUpload:
		return s.Filename
	case model.LocalFile:
		return s.Path
	case model.RemoteURL:
		return s.URL
	case model.CatalogDataset:
		return "catalog:" + s.Dataset
	}
	return src.Name()
}
