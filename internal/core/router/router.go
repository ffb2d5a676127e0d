// Package router implements the HTTP handlers of the ingest API.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/rmkenv/OS-ST-GIS/internal/catalog"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
	"github.com/rmkenv/OS-ST-GIS/internal/export"
	"github.com/rmkenv/OS-ST-GIS/internal/pipeline"
)

// Ingester runs a batch and exports its successes.
type Ingester interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Batch, error)
	Export(ctx context.Context, b pipeline.Batch, w io.Writer, gzipped bool) (int64, error)
}

type Catalog interface {
	List(ctx context.Context) ([]catalog.Entry, error)
}

type Deps struct {
	Ingest         Ingester
	Catalog        Catalog
	MaxUploadBytes int64
	// ClusterRes is the H3 resolution used when a request names none;
	// negative disables clustering by default.
	ClusterRes int
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func observed(route string, h func(w http.ResponseWriter, r *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

// HandleCatalog lists the remote file index as name → URL entries.
func HandleCatalog(logger *slog.Logger, d Deps) http.HandlerFunc {
	return observed("/catalog", func(w http.ResponseWriter, r *http.Request) {
		if d.Catalog == nil {
			writeError(w, http.StatusNotFound, errors.New("catalog is not configured"))
			return
		}
		entries, err := d.Catalog.List(r.Context())
		if err != nil {
			logger.WarnContext(r.Context(), "catalog list failed", "err", err)
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
	})
}

// HandleIngest runs one batch and answers with its JSON summary.
func HandleIngest(logger *slog.Logger, d Deps) http.HandlerFunc {
	return observed("/ingest", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		form, err := parseIngestForm(w, r, d)
		if err != nil {
			writeFormError(ctx, logger, w, err)
			return
		}

		batch, err := d.Ingest.Run(ctx, form.req)
		if err != nil {
			var crs *model.CrsMismatchError
			if errors.As(err, &crs) {
				writeError(w, http.StatusUnprocessableEntity, err)
				return
			}
			logger.ErrorContext(ctx, "ingest failed", "err", err)
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, summarize(ctx, logger, batch, form))
	})
}

// HandleExport runs one batch and streams combined_data.csv, gzip-encoded
// with ?gzip=1. A CRS disagreement between sources does not block export.
func HandleExport(logger *slog.Logger, d Deps) http.HandlerFunc {
	return observed("/export", func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		gz, _ := strconv.ParseBool(r.URL.Query().Get("gzip"))

		form, err := parseIngestForm(w, r, d)
		if err != nil {
			writeFormError(ctx, logger, w, err)
			return
		}

		batch, err := d.Ingest.Run(ctx, form.req)
		if err != nil {
			var crs *model.CrsMismatchError
			if !errors.As(err, &crs) {
				logger.ErrorContext(ctx, "export run failed", "err", err)
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			logger.WarnContext(ctx, "exporting despite crs mismatch", "err", err)
		}

		name := export.CombinedFileName
		w.Header().Set("X-Run-ID", batch.RunID)
		if gz {
			name += ".gz"
			w.Header().Set("Content-Type", "application/gzip")
		} else {
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		}
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)

		n, err := d.Ingest.Export(ctx, batch, w, gz)
		if err != nil {
			if n == 0 {
				w.Header().Del("Content-Disposition")
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			logger.ErrorContext(ctx, "export stream aborted", "bytes", n, "err", err)
		}
	})
}

func writeFormError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	var he *httpError
	if errors.As(err, &he) {
		status = he.status
	}
	if status >= http.StatusInternalServerError {
		logger.WarnContext(ctx, "ingest request rejected", "status", status, "err", err)
	}
	writeError(w, status, err)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
