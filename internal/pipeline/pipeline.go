// Package pipeline runs a batch of sources through load, normalize, filter
// and bounds, one source at a time, and exports the survivors.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/rmkenv/OS-ST-GIS/internal/bounds"
	"github.com/rmkenv/OS-ST-GIS/internal/columns"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/core/observability"
	"github.com/rmkenv/OS-ST-GIS/internal/export"
	"github.com/rmkenv/OS-ST-GIS/internal/filter"
	"github.com/rmkenv/OS-ST-GIS/internal/ingestevents"
	"github.com/rmkenv/OS-ST-GIS/internal/logger"
	"github.com/rmkenv/OS-ST-GIS/internal/normalize"
)

type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Loader is satisfied by *loader.Loader.
type Loader interface {
	Load(ctx context.Context, src model.Source) (model.Raw, error)
}

// EventPublisher is satisfied by *ingestevents.Publisher.
type EventPublisher interface {
	Publish(ev ingestevents.Event)
}

// Request is one batch. Filter and Hint apply to every source; a filter on
// a column a source lacks leaves that source unfiltered.
type Request struct {
	Sources []model.Source
	Filter  filter.Predicate
	Hint    *normalize.Hint
}

type SourceResult struct {
	Name   string
	Format string
	Status Status
	Err    error
	// Kind labels Err, see model.ErrorKind.
	Kind      string
	RecordSet *model.RecordSet
	// Normalized is RecordSet before the filter was applied.
	Normalized *model.RecordSet
	Extent     bounds.Extent
	Suggestion *columns.Suggestion
}

type Batch struct {
	RunID   string
	Results []SourceResult
	Bounds  bounds.Extent
}

// Succeeded returns the record sets of successful sources in input order.
func (b Batch) Succeeded() []*model.RecordSet {
	var out []*model.RecordSet
	for _, r := range b.Results {
		if r.Status == StatusSucceeded {
			out = append(out, r.RecordSet)
		}
	}
	return out
}

func (b Batch) Failed() []SourceResult {
	var out []SourceResult
	for _, r := range b.Results {
		if r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

type Pipeline struct {
	loader    Loader
	logger    *slog.Logger
	exportDir string
	events    EventPublisher
	newID     func() string
	now       func() time.Time
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithExportDir sets the parent of per-run export workspaces.
func WithExportDir(dir string) Option { return func(p *Pipeline) { p.exportDir = dir } }

func WithEvents(ev EventPublisher) Option { return func(p *Pipeline) { p.events = ev } }

func New(l Loader, opts ...Option) *Pipeline {
	p := &Pipeline{
		loader: l,
		logger: slog.Default(),
		newID:  logger.NewID,
		now:    time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run processes every source in order. A failing source is recorded and the
// batch continues. The returned error is non-nil only when the successful
// extents disagree on CRS; the batch is still complete in that case.
func (p *Pipeline) Run(ctx context.Context, req Request) (Batch, error) {
	batch := Batch{RunID: p.newID()}
	ctx = logger.WithRunID(ctx, batch.RunID)

	extents := make([]bounds.Extent, 0, len(req.Sources))
	for _, src := range req.Sources {
		res := p.runSource(logger.WithSource(ctx, src.Name()), src, req)
		batch.Results = append(batch.Results, res)
		if res.Status == StatusSucceeded {
			extents = append(extents, res.Extent)
		}
	}

	merged, ok, err := bounds.MergeExtents(extents)
	if err != nil {
		p.logger.ErrorContext(ctx, "merge extents", "err", err)
	} else {
		batch.Bounds = bounds.Extent{Box: merged, OK: ok}
	}

	p.publish(batch)
	p.logger.InfoContext(ctx, "batch done",
		"sources", len(req.Sources),
		"failed", len(batch.Failed()))
	return batch, err
}

func (p *Pipeline) runSource(ctx context.Context, src model.Source, req Request) SourceResult {
	res := SourceResult{Name: src.Name(), Format: src.Ext()}
	fail := func(err error) SourceResult {
		res.Status, res.Err, res.Kind = StatusFailed, err, model.ErrorKind(err)
		observability.ObserveSource(res.Format, string(res.Status), res.Kind)
		p.logger.WarnContext(ctx, "source failed", "kind", res.Kind, "err", err)
		return res
	}

	raw, err := p.loader.Load(ctx, src)
	if err != nil {
		return fail(err)
	}
	if t, ok := raw.(*model.RawTable); ok {
		s := normalize.ResolveColumns(t, req.Hint)
		res.Suggestion = &s
	}

	start := time.Now()
	rs, err := normalize.Normalize(raw, req.Hint)
	observability.ObserveStage("normalize", time.Since(start).Seconds())
	if err != nil {
		return fail(err)
	}

	res.Normalized = rs
	start = time.Now()
	rs = filter.Apply(rs, req.Filter)
	observability.ObserveStage("filter", time.Since(start).Seconds())

	res.Status = StatusSucceeded
	res.RecordSet = rs
	res.Extent = bounds.Of(rs)
	observability.ObserveSource(res.Format, string(res.Status), "")
	observability.AddDroppedRows(res.Format, rs.Dropped)
	p.logger.InfoContext(ctx, "source done",
		"format", res.Format,
		"crs", rs.CRS,
		"records", rs.Len(),
		"dropped", rs.Dropped)
	return res
}

func (p *Pipeline) publish(b Batch) {
	if p.events == nil {
		return
	}
	ev := ingestevents.Event{RunID: b.RunID, TS: p.now().UTC()}
	if b.Bounds.OK {
		box := b.Bounds.Box
		ev.Bounds = &box
	}
	for _, r := range b.Results {
		se := ingestevents.SourceEvent{Name: r.Name, Format: r.Format, Status: string(r.Status), Kind: r.Kind}
		if r.RecordSet != nil {
			se.Records, se.Dropped = r.RecordSet.Len(), r.RecordSet.Dropped
		}
		if r.Status == StatusSucceeded {
			ev.Succeeded++
		} else {
			ev.Failed++
		}
		ev.Sources = append(ev.Sources, se)
	}
	p.events.Publish(ev)
}

// Export combines the successful record sets of b into combined_data.csv
// inside a fresh workspace, streams it to w (gzip-encoded when asked) and
// removes the workspace before returning, on success or failure.
func (p *Pipeline) Export(ctx context.Context, b Batch, w io.Writer, gzipped bool) (int64, error) {
	ws, err := export.NewWorkspace(p.exportDir)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			p.logger.WarnContext(ctx, "release workspace", "dir", ws.Dir(), "err", cerr)
		}
	}()

	start := time.Now()
	path, _, err := ws.WriteCombined(export.Combine(b.Succeeded()))
	observability.ObserveStage("export", time.Since(start).Seconds())
	if err != nil {
		return 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open export: %w", err)
	}
	defer func() { _ = f.Close() }()
	return export.Stream(w, f, gzipped)
}
