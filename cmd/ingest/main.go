// Command ingest runs a batch of local files, URLs and catalog datasets
// through the pipeline and writes the combined CSV.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rmkenv/OS-ST-GIS/internal/catalog"
	"github.com/rmkenv/OS-ST-GIS/internal/core/config"
	"github.com/rmkenv/OS-ST-GIS/internal/core/fetch"
	"github.com/rmkenv/OS-ST-GIS/internal/core/httpclient"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/filter"
	"github.com/rmkenv/OS-ST-GIS/internal/loader"
	"github.com/rmkenv/OS-ST-GIS/internal/logger"
	"github.com/rmkenv/OS-ST-GIS/internal/normalize"
	"github.com/rmkenv/OS-ST-GIS/internal/pipeline"
)

const (
	exitOK        = 0
	exitSetup     = 1
	exitAllFailed = 2
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	out          string
	gzip         bool
	envFile      string
	filterColumn string
	filterValues listFlag
	filterLow    string
	filterHigh   string
	lat, lon     string
	catalogNames listFlag
	args         []string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var o options
	fs.StringVar(&o.out, "o", "combined_data.csv", "output path, - for stdout")
	fs.BoolVar(&o.gzip, "gzip", false, "gzip the output")
	fs.StringVar(&o.envFile, "env", ".env", "optional KEY=VALUE file")
	fs.StringVar(&o.filterColumn, "filter-column", "", "column to filter on")
	fs.Var(&o.filterValues, "filter-value", "accepted value (repeatable)")
	fs.StringVar(&o.filterLow, "filter-low", "", "inclusive lower bound")
	fs.StringVar(&o.filterHigh, "filter-high", "", "inclusive upper bound")
	fs.StringVar(&o.lat, "lat", "", "latitude column")
	fs.StringVar(&o.lon, "lon", "", "longitude column")
	fs.Var(&o.catalogNames, "catalog", "catalog dataset name (repeatable)")
	if err := fs.Parse(argv); err != nil {
		return exitSetup
	}
	o.args = fs.Args()

	if err := config.LoadDotEnv(o.envFile); err != nil {
		fmt.Fprintln(stderr, err)
		return exitSetup
	}
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   true,
		Service:   "geoingest",
		Component: "cli",
	}, stderr)
	log := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pred, err := o.predicate()
	if err != nil {
		log.Error("invalid filter", "err", err)
		return exitSetup
	}

	client := httpclient.NewOutbound(cfg.HTTPTimeout)
	f := fetch.New(log, client, "source")

	sources := o.sources()
	if len(sources) == 0 {
		fmt.Fprintln(stderr, "usage: ingest [flags] FILE|URL...")
		fs.PrintDefaults()
		return exitSetup
	}

	req := pipeline.Request{Sources: sources, Filter: pred}
	if o.lat != "" || o.lon != "" {
		req.Hint = &normalize.Hint{Lat: o.lat, Lon: o.lon}
	}

	cat := catalog.New(fetch.New(log, client, "catalog"), cfg.CatalogURL, catalog.WithLogger(log))
	p := pipeline.New(loader.New(f, loader.WithLogger(log), loader.WithTempDir(cfg.ExportDir), loader.WithCatalog(cat)),
		pipeline.WithLogger(log),
		pipeline.WithExportDir(cfg.ExportDir))

	batch, err := p.Run(ctx, req)
	if err != nil {
		var crs *model.CrsMismatchError
		if errors.As(err, &crs) {
			log.Error("sources disagree on crs; bounds not merged", "err", err)
		} else {
			log.Error("run batch", "err", err)
			return exitSetup
		}
	}
	for _, r := range batch.Results {
		if r.Status == pipeline.StatusFailed {
			log.Warn("source failed", "source", r.Name, "kind", r.Kind, "err", r.Err)
			continue
		}
		log.Info("source loaded",
			"source", r.Name,
			"records", r.RecordSet.Len(),
			"dropped", r.RecordSet.Dropped,
			"crs", r.RecordSet.CRS)
	}
	if len(batch.Succeeded()) == 0 {
		log.Error("all sources failed", "sources", len(batch.Results))
		return exitAllFailed
	}

	n, err := o.export(ctx, p, batch, stdout)
	if err != nil {
		log.Error("export", "err", err)
		return exitSetup
	}
	log.Info("export written", "path", o.out, "bytes", n, "run_id", batch.RunID)
	return exitOK
}

func (o options) predicate() (filter.Predicate, error) {
	ranged := o.filterLow != "" || o.filterHigh != ""
	switch {
	case len(o.filterValues) > 0 && ranged:
		return nil, errors.New("filter-value and filter-low/high are exclusive")
	case (len(o.filterValues) > 0 || ranged) && o.filterColumn == "":
		return nil, errors.New("filter-column is required")
	case len(o.filterValues) > 0:
		return filter.Categorical{Column: o.filterColumn, Values: []string(o.filterValues)}, nil
	case ranged:
		if o.filterLow == "" || o.filterHigh == "" {
			return nil, errors.New("filter-low and filter-high go together")
		}
		lo, err := strconv.ParseFloat(o.filterLow, 64)
		if err != nil {
			return nil, fmt.Errorf("filter-low: %w", err)
		}
		hi, err := strconv.ParseFloat(o.filterHigh, 64)
		if err != nil {
			return nil, fmt.Errorf("filter-high: %w", err)
		}
		if lo > hi {
			return nil, fmt.Errorf("filter range [%g, %g] is inverted", lo, hi)
		}
		return filter.Numeric{Column: o.filterColumn, Low: lo, High: hi}, nil
	}
	return filter.None{}, nil
}

// sources keeps argument order, then appends catalog datasets. Files and
// catalog names are resolved when the batch runs, so each fails on its own.
func (o options) sources() []model.Source {
	var out []model.Source
	for _, a := range o.args {
		if strings.HasPrefix(a, "http://") || strings.HasPrefix(a, "https://") {
			out = append(out, model.RemoteURL{URL: a})
			continue
		}
		out = append(out, model.LocalFile{Path: a})
	}
	for _, name := range o.catalogNames {
		out = append(out, model.CatalogDataset{Dataset: name})
	}
	return out
}

func (o options) export(ctx context.Context, p *pipeline.Pipeline, b pipeline.Batch, stdout io.Writer) (int64, error) {
	if o.out == "-" {
		return p.Export(ctx, b, stdout, o.gzip)
	}
	f, err := os.Create(o.out)
	if err != nil {
		return 0, fmt.Errorf("create output: %w", err)
	}
	n, err := p.Export(ctx, b, f, o.gzip)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	return n, err
}
