package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmkenv/OS-ST-GIS/internal/catalog"
	"github.com/rmkenv/OS-ST-GIS/internal/core/config"
	"github.com/rmkenv/OS-ST-GIS/internal/core/fetch"
	"github.com/rmkenv/OS-ST-GIS/internal/core/health"
	"github.com/rmkenv/OS-ST-GIS/internal/core/httpclient"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
	"github.com/rmkenv/OS-ST-GIS/internal/core/router"
	"github.com/rmkenv/OS-ST-GIS/internal/core/server"
	"github.com/rmkenv/OS-ST-GIS/internal/ingestevents"
	"github.com/rmkenv/OS-ST-GIS/internal/invalidation"
	"github.com/rmkenv/OS-ST-GIS/internal/loader"
	"github.com/rmkenv/OS-ST-GIS/internal/logger"
	"github.com/rmkenv/OS-ST-GIS/internal/metrics"
	"github.com/rmkenv/OS-ST-GIS/internal/pipeline"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func run() int {
	envFile := flag.String("env", ".env", "optional KEY=VALUE file")
	addr := flag.String("addr", "", "listen address (overrides ADDR)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		return 1
	}
	cfg := config.FromEnv()
	if *addr != "" {
		cfg.Addr = strings.TrimSpace(*addr)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   envInt("LOG_SAMPLE_N", 0),
		Service:   "geoingest",
		Component: "server",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting geoingest",
		"addr", cfg.Addr,
		"version", Version,
		"catalog", cfg.CatalogURL,
		"catalog_cache", cfg.CacheDriver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var reg prometheus.Registerer
	if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
		provider := metrics.Init(metrics.Config{
			Enabled: true,
			Addr:    cfg.Metrics.Addr,
			Path:    cfg.Metrics.Path,
			Build: metrics.BuildInfo{
				Version:   Version,
				Revision:  os.Getenv("BUILD_REVISION"),
				Branch:    os.Getenv("BUILD_BRANCH"),
				BuildDate: os.Getenv("BUILD_DATE"),
			},
		})
		provider.Register(observability.Collectors()...)
		reg = provider.Registerer()
		go func() {
			if err := provider.Serve(ctx, appLog); err != nil {
				appLog.Error("metrics server exited", "err", err)
			}
		}()
	}

	client := httpclient.NewOutbound(cfg.HTTPTimeout)
	sourceFetcher := fetch.New(appLog, client, "source")

	store, closeStore, err := catalog.OpenStore(ctx, cfg)
	if err != nil {
		appLog.Error("catalog cache setup failed", "err", err)
		return 1
	}
	defer func() { _ = closeStore() }()
	cat := catalog.New(fetch.New(appLog, client, "catalog"), cfg.CatalogURL,
		catalog.WithStore(store),
		catalog.WithTTL(cfg.CatalogTTL),
		catalog.WithLogger(appLog))

	opts := []pipeline.Option{
		pipeline.WithLogger(appLog),
		pipeline.WithExportDir(cfg.ExportDir),
	}

	var ready health.ReadinessReporter
	if cfg.Kafka.Enabled {
		pub, err := ingestevents.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, 256, appLog)
		if err != nil {
			appLog.Error("ingest events publisher", "err", err)
			return 1
		}
		defer func() { _ = pub.Close() }()
		opts = append(opts, pipeline.WithEvents(pub))

		inv := invalidation.New(invalidation.ConfigFrom(cfg.Kafka), cat, invalidation.Options{Logger: appLog, Register: reg})
		if err := inv.Start(ctx); err != nil {
			appLog.Error("catalog invalidation runner", "err", err)
			return 1
		}
		defer inv.Stop()
		ready = inv
	}

	pl := pipeline.New(loader.New(sourceFetcher, loader.WithLogger(appLog), loader.WithTempDir(cfg.ExportDir), loader.WithCatalog(cat)), opts...)
	deps := router.Deps{Ingest: pl, Catalog: cat, MaxUploadBytes: cfg.MaxUploadBytes, ClusterRes: cfg.ClusterRes}

	if err := server.Run(ctx, cfg, appLog, server.NewHandler(cfg, appLog, deps, ready)); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
