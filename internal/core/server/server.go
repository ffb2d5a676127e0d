// Package server wires the ingest API onto a chi router and serves it.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rmkenv/OS-ST-GIS/internal/core/config"
	"github.com/rmkenv/OS-ST-GIS/internal/core/health"
	middleware "github.com/rmkenv/OS-ST-GIS/internal/core/middleware"
	"github.com/rmkenv/OS-ST-GIS/internal/core/router"
)

// NewHandler builds the route table. ready may be nil.
func NewHandler(cfg config.Config, logger *slog.Logger, d router.Deps, ready health.ReadinessReporter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	if cfg.Metrics.Enabled {
		path := cfg.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Get(path, promhttp.Handler().ServeHTTP)
	}
	r.Get("/catalog", router.HandleCatalog(logger, d))
	r.Post("/ingest", router.HandleIngest(logger, d))
	r.Post("/export", router.HandleExport(logger, d))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
