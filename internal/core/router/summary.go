package router

import (
	"context"
	"log/slog"

	"github.com/rmkenv/OS-ST-GIS/internal/bounds"
	"github.com/rmkenv/OS-ST-GIS/internal/cluster"
	"github.com/rmkenv/OS-ST-GIS/internal/columns"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/filter"
	"github.com/rmkenv/OS-ST-GIS/internal/pipeline"
)

type bboxJSON struct {
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
	SRID string  `json:"srid"`
}

func boxOf(e bounds.Extent) *bboxJSON {
	if !e.OK {
		return nil
	}
	b := e.Box
	return &bboxJSON{X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2, SRID: b.SRID}
}

type sourceSummary struct {
	Name         string              `json:"name"`
	Format       string              `json:"format"`
	Status       string              `json:"status"`
	Error        string              `json:"error,omitempty"`
	Kind         string              `json:"kind,omitempty"`
	Records      int                 `json:"records"`
	Dropped      int                 `json:"dropped"`
	CRS          string              `json:"crs,omitempty"`
	Columns      []string            `json:"columns,omitempty"`
	Bounds       *bboxJSON           `json:"bounds,omitempty"`
	Suggestion   *columns.Suggestion `json:"suggestion,omitempty"`
	Choices      *filter.Choices     `json:"filter_choices,omitempty"`
	InViewport   *int                `json:"in_viewport,omitempty"`
	Clusters     *cluster.Result     `json:"clusters,omitempty"`
	Rollup       *cluster.Result     `json:"cluster_rollup,omitempty"`
	ClusterError string              `json:"cluster_error,omitempty"`
}

type batchSummary struct {
	RunID     string          `json:"run_id"`
	Bounds    *bboxJSON       `json:"bounds"`
	Succeeded int             `json:"succeeded"`
	Failed    int             `json:"failed"`
	Sources   []sourceSummary `json:"sources"`
}

func summarize(ctx context.Context, logger *slog.Logger, b pipeline.Batch, f ingestForm) batchSummary {
	out := batchSummary{
		RunID:   b.RunID,
		Bounds:  boxOf(b.Bounds),
		Sources: make([]sourceSummary, 0, len(b.Results)),
	}
	for _, r := range b.Results {
		s := sourceSummary{
			Name:       r.Name,
			Format:     r.Format,
			Status:     string(r.Status),
			Kind:       r.Kind,
			Suggestion: r.Suggestion,
		}
		if r.Err != nil {
			s.Error = r.Err.Error()
		}
		if r.Status != pipeline.StatusSucceeded || r.RecordSet == nil {
			out.Failed++
			out.Sources = append(out.Sources, s)
			continue
		}
		out.Succeeded++

		rs := r.RecordSet
		s.Records, s.Dropped = rs.Len(), rs.Dropped
		s.CRS, s.Columns = rs.CRS, rs.Columns
		s.Bounds = boxOf(r.Extent)

		if f.filterColumn != "" {
			full := r.Normalized
			if full == nil {
				full = rs
			}
			if c, ok := filter.Describe(full, f.filterColumn); ok {
				s.Choices = &c
			}
		}
		if f.viewport != nil {
			if n, ok := inViewport(ctx, logger, rs, *f.viewport); ok {
				s.InViewport = &n
			}
		}
		if f.clusterRes != nil {
			res, err := cluster.Build(rs, *f.clusterRes)
			if err != nil {
				s.ClusterError = err.Error()
			} else {
				s.Clusters = &res
			}
			if err == nil && f.parentRes != nil {
				up, err := cluster.Rollup(res, *f.parentRes)
				if err != nil {
					s.ClusterError = err.Error()
				} else {
					s.Rollup = &up
				}
			}
		}
		out.Sources = append(out.Sources, s)
	}
	return out
}

func inViewport(ctx context.Context, logger *slog.Logger, rs *model.RecordSet, vp model.BBox) (int, bool) {
	ix, err := bounds.NewIndex(rs)
	if err != nil {
		logger.DebugContext(ctx, "viewport index skipped", "source", rs.Name, "err", err)
		return 0, false
	}
	hits, err := ix.Search(vp)
	if err != nil {
		logger.DebugContext(ctx, "viewport search skipped", "source", rs.Name, "err", err)
		return 0, false
	}
	return len(hits), true
}
