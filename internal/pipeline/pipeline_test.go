package pipeline

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmkenv/OS-ST-GIS/internal/core/fetch"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/filter"
	"github.com/rmkenv/OS-ST-GIS/internal/ingestevents"
	"github.com/rmkenv/OS-ST-GIS/internal/loader"
)

const (
	stationsCSV = "name,state,lat,lng\nA,MD,39.2,-76.6\nB,VA,38.8,-77.1\nC,MD,bad,-76.0\n"
	parksJSON   = `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"park":"Sandy Point","state":"MD"},"geometry":{"type":"Point","coordinates":[-76.40,39.01]}},
	  {"type":"Feature","properties":{"park":"Patapsco","state":"MD"},"geometry":{"type":"Point","coordinates":[-76.77,39.29]}}]}`
	goneURL = "https://raw.example.com/data/gone.csv"
)

type captured struct{ events []ingestevents.Event }

func (c *captured) Publish(ev ingestevents.Event) { c.events = append(c.events, ev) }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func threeSources() []model.Source {
	return []model.Source{
		model.LocalUpload{Filename: "stations.csv", Data: []byte(stationsCSV)},
		model.RemoteURL{URL: goneURL},
		model.LocalUpload{Filename: "parks.geojson", Data: []byte(parksJSON)},
	}
}

func newPipeline(t *testing.T, opts ...Option) (*Pipeline, string) {
	t.Helper()
	canned := fetch.NewCanned().Fail(goneURL, &model.FetchError{URL: goneURL, Status: 404, Err: errors.New("not found")})
	dir := t.TempDir()
	opts = append([]Option{WithLogger(quietLogger()), WithExportDir(dir)}, opts...)
	return New(loader.New(canned), opts...), dir
}

func TestRun_PartialFailure(t *testing.T) {
	events := &captured{}
	p, dir := newPipeline(t, WithEvents(events))

	batch, err := p.Run(context.Background(), Request{Sources: threeSources()})
	require.NoError(t, err)
	require.Len(t, batch.Results, 3)

	assert.Equal(t, StatusSucceeded, batch.Results[0].Status)
	assert.Equal(t, StatusFailed, batch.Results[1].Status)
	assert.Equal(t, "fetch", batch.Results[1].Kind)
	var fe *model.FetchError
	assert.True(t, errors.As(batch.Results[1].Err, &fe))
	assert.Equal(t, StatusSucceeded, batch.Results[2].Status)

	succ := batch.Succeeded()
	require.Len(t, succ, 2)
	assert.Equal(t, "stations", succ[0].Name)
	assert.Equal(t, 1, succ[0].Dropped)
	assert.Equal(t, "parks", succ[1].Name)

	require.NotNil(t, batch.Results[0].Suggestion)
	assert.Equal(t, "lat", batch.Results[0].Suggestion.Lat)
	assert.Nil(t, batch.Results[2].Suggestion)

	require.True(t, batch.Bounds.OK)
	assert.Equal(t, model.BBox{X1: -77.1, Y1: 38.8, X2: -76.4, Y2: 39.29, SRID: model.CRSWGS84}, batch.Bounds.Box)

	var buf bytes.Buffer
	_, err = p.Export(context.Background(), batch, &buf, false)
	require.NoError(t, err)
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "state", "lat", "lng", "park"}, rows[0])
	assert.Len(t, rows, 1+2+2, "header plus rows of the two successful sources")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace must be released after export")

	require.Len(t, events.events, 1)
	ev := events.events[0]
	assert.Equal(t, batch.RunID, ev.RunID)
	assert.Equal(t, 2, ev.Succeeded)
	assert.Equal(t, 1, ev.Failed)
	assert.Equal(t, "fetch", ev.Sources[1].Kind)
}

func TestRun_FilterAppliesPerSource(t *testing.T) {
	p, _ := newPipeline(t)
	sources := threeSources()
	sources = append(sources, model.LocalUpload{Filename: "other.csv", Data: []byte("lat,lng\n1,2\n")})

	batch, err := p.Run(context.Background(), Request{
		Sources: sources,
		Filter:  filter.Categorical{Column: "state", Values: []string{"MD"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, batch.Results[0].RecordSet.Len(), "stations keeps only MD rows with coordinates")
	assert.Equal(t, 2, batch.Results[0].Normalized.Len(), "pre-filter set keeps VA")
	assert.Equal(t, 2, batch.Results[2].RecordSet.Len())
	assert.Equal(t, 1, batch.Results[3].RecordSet.Len(), "sources without the column pass through")
}

func TestRun_CrsMismatchReturnsBatch(t *testing.T) {
	projected := `{"type":"FeatureCollection","crs":{"type":"name","properties":{"name":"EPSG:3857"}},
	  "features":[{"type":"Feature","properties":{},"geometry":{"type":"Point","coordinates":[-8529000,4750000]}}]}`
	p, _ := newPipeline(t)

	batch, err := p.Run(context.Background(), Request{Sources: []model.Source{
		model.LocalUpload{Filename: "parks.geojson", Data: []byte(parksJSON)},
		model.LocalUpload{Filename: "web.geojson", Data: []byte(projected)},
	}})
	var ce *model.CrsMismatchError
	require.True(t, errors.As(err, &ce), "err=%v", err)
	assert.Len(t, batch.Succeeded(), 2)
	assert.False(t, batch.Bounds.OK)
}

func TestRun_EmptyBatch(t *testing.T) {
	p, _ := newPipeline(t)
	batch, err := p.Run(context.Background(), Request{})
	require.NoError(t, err)
	assert.Empty(t, batch.Results)
	assert.False(t, batch.Bounds.OK)
	assert.NotEmpty(t, batch.RunID)
}

func TestExport_Gzip(t *testing.T) {
	p, _ := newPipeline(t)
	batch, err := p.Run(context.Background(), Request{Sources: threeSources()[:1]})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := p.Export(context.Background(), batch, &buf, true)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	zr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "name,state,lat,lng\nA,MD,39.2,-76.6\nB,VA,38.8,-77.1\n", string(plain))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("client went away") }

func TestExport_ReleasesWorkspaceOnError(t *testing.T) {
	p, dir := newPipeline(t)
	batch, err := p.Run(context.Background(), Request{Sources: threeSources()[:1]})
	require.NoError(t, err)

	_, err = p.Export(context.Background(), batch, failingWriter{}, false)
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
