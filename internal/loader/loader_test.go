package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmkenv/OS-ST-GIS/internal/core/fetch"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

func TestLoad_UnsupportedFormat(t *testing.T) {
	canned := fetch.NewCanned()
	l := New(canned)

	tests := []model.Source{
		model.LocalUpload{Filename: "notes.txt", Data: []byte("x")},
		model.LocalUpload{Filename: "README"},
		model.RemoteURL{URL: "https://example.com/data/layer.kml"},
	}
	for _, src := range tests {
		_, err := l.Load(context.Background(), src)
		var ue *model.UnsupportedFormatError
		if !errors.As(err, &ue) {
			t.Fatalf("%s: err=%v want UnsupportedFormatError", src.Name(), err)
		}
	}
	if canned.Calls("https://example.com/data/layer.kml") != 0 {
		t.Fatalf("unsupported remote source must not be fetched")
	}
}

func TestLoad_RemoteUsesFetcher(t *testing.T) {
	const u = "https://raw.example.com/data/stations.csv?token=abc"
	canned := fetch.NewCanned().Set(u, []byte("name,lat,lon\nA,39.2,-76.6\n"))

	raw, err := New(canned).Load(context.Background(), model.RemoteURL{URL: u})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	tbl, ok := raw.(*model.RawTable)
	if !ok {
		t.Fatalf("raw=%T want *model.RawTable", raw)
	}
	if tbl.Name != "stations" || len(tbl.Rows) != 1 {
		t.Fatalf("table name=%q rows=%d", tbl.Name, len(tbl.Rows))
	}
}

func TestLoad_RemoteFetchErrorPropagates(t *testing.T) {
	const u = "https://raw.example.com/data/gone.geojson"
	canned := fetch.NewCanned().Fail(u, &model.FetchError{URL: u, Status: 500, Err: errors.New("boom")})

	_, err := New(canned).Load(context.Background(), model.RemoteURL{URL: u})
	var fe *model.FetchError
	if !errors.As(err, &fe) || fe.Status != 500 {
		t.Fatalf("err=%v want FetchError status 500", err)
	}
}

func TestLoad_DeclaredFormatOverridesPath(t *testing.T) {
	const u = "https://gis.example.com/geoserver/ows?service=WFS&request=GetFeature&typeNames=md:counties"
	canned := fetch.NewCanned().Set(u, []byte(`{"type":"FeatureCollection","features":[]}`))

	raw, err := New(canned).Load(context.Background(), model.RemoteURL{URL: u, Format: "geojson"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := raw.(*model.RawGeometry); !ok {
		t.Fatalf("raw=%T want *model.RawGeometry", raw)
	}
}

func TestSupported(t *testing.T) {
	for _, ext := range []string{"csv", "xlsx", "geojson", "json", "zip"} {
		if !Supported(ext) {
			t.Fatalf("%s should be supported", ext)
		}
	}
	if Supported("kml") || Supported("") {
		t.Fatalf("kml and empty must be unsupported")
	}
}

type resolverFunc func(ctx context.Context, dataset string) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, dataset string) (string, error) {
	return f(ctx, dataset)
}

func TestLoad_CatalogDatasetResolvedLazily(t *testing.T) {
	const u = "https://raw.example.com/data/stations.csv"
	canned := fetch.NewCanned().Set(u, []byte("name,lat,lon\nA,39.2,-76.6\n"))
	resolved := 0
	r := resolverFunc(func(_ context.Context, dataset string) (string, error) {
		resolved++
		if dataset != "stations.csv" {
			return "", &model.FetchError{URL: dataset, Status: 404, Err: errors.New("not listed")}
		}
		return u, nil
	})
	l := New(canned, WithCatalog(r))

	raw, err := l.Load(context.Background(), model.CatalogDataset{Dataset: "stations.csv"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl := raw.(*model.RawTable); tbl.Name != "stations" {
		t.Fatalf("name=%q", tbl.Name)
	}

	_, err = l.Load(context.Background(), model.CatalogDataset{Dataset: "gone.csv"})
	var fe *model.FetchError
	if !errors.As(err, &fe) || fe.Status != 404 {
		t.Fatalf("err=%v want 404 FetchError", err)
	}

	// unsupported names never reach the resolver
	if _, err := l.Load(context.Background(), model.CatalogDataset{Dataset: "README.md"}); err == nil {
		t.Fatalf("expected UnsupportedFormatError")
	}
	if resolved != 2 {
		t.Fatalf("resolved=%d want 2", resolved)
	}
}

func TestLoad_CatalogDatasetWithoutCatalog(t *testing.T) {
	_, err := New(fetch.NewCanned()).Load(context.Background(), model.CatalogDataset{Dataset: "a.csv"})
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err=%v want FetchError", err)
	}
}

func TestLoad_LocalFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "stations.csv")
	if err := os.WriteFile(p, []byte("name,lat,lon\nA,39.2,-76.6\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	l := New(nil)
	if _, err := l.Load(context.Background(), model.LocalFile{Path: p}); err != nil {
		t.Fatalf("Load: %v", err)
	}

	_, err := l.Load(context.Background(), model.LocalFile{Path: filepath.Join(dir, "missing.csv")})
	var fe *model.FetchError
	if !errors.As(err, &fe) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v want FetchError wrapping ErrNotExist", err)
	}
}
