// Package normalize turns loader output into geometry-bearing record sets.
package normalize

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/rmkenv/OS-ST-GIS/internal/columns"
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// Hint overrides inferred coordinate columns. Empty fields are inferred.
type Hint struct {
	Lat string
	Lon string
}

// Normalize converts a raw table or geometry container into a record set.
// Tabular rows with a missing or non-numeric coordinate are dropped and
// counted; geometry features keep their decoded shape and declared CRS.
func Normalize(raw model.Raw, hint *Hint) (*model.RecordSet, error) {
	switch r := raw.(type) {
	case *model.RawTable:
		return fromTable(r, hint)
	case *model.RawGeometry:
		return fromGeometry(r)
	case nil:
		return nil, fmt.Errorf("normalize: nil input")
	default:
		return nil, fmt.Errorf("normalize: unsupported input %T", raw)
	}
}

// ResolveColumns applies hint over the inferred coordinate columns of t.
// Overridden slots count as matched.
func ResolveColumns(t *model.RawTable, hint *Hint) columns.Suggestion {
	s := columns.InferLatLong(t.Columns)
	if hint == nil {
		return s
	}
	if h := strings.TrimSpace(hint.Lat); h != "" {
		s.Lat, s.LatMatched = h, true
	}
	if h := strings.TrimSpace(hint.Lon); h != "" {
		s.Lon, s.LonMatched = h, true
	}
	return s
}

func fromTable(t *model.RawTable, hint *Hint) (*model.RecordSet, error) {
	out := &model.RecordSet{
		Name:    t.Name,
		CRS:     model.CRSWGS84,
		Columns: append([]string(nil), t.Columns...),
	}
	if len(t.Columns) == 0 {
		out.Dropped = len(t.Rows)
		return out, nil
	}

	s := ResolveColumns(t, hint)
	latIdx, lonIdx := indexOf(t.Columns, s.Lat), indexOf(t.Columns, s.Lon)
	if latIdx < 0 {
		return nil, fmt.Errorf("latitude %q: %w", s.Lat, model.ErrUnknownColumn)
	}
	if lonIdx < 0 {
		return nil, fmt.Errorf("longitude %q: %w", s.Lon, model.ErrUnknownColumn)
	}

	out.Records = make([]model.Record, 0, len(t.Rows))
	for _, row := range t.Rows {
		lat, okLat := coordinate(cell(row, latIdx))
		lon, okLon := coordinate(cell(row, lonIdx))
		if !okLat || !okLon {
			out.Dropped++
			continue
		}
		attrs := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			attrs[c] = cell(row, i)
		}
		out.Records = append(out.Records, model.Record{
			Attrs:    attrs,
			Geometry: orb.Point{lon, lat},
		})
	}
	return out, nil
}

func fromGeometry(g *model.RawGeometry) (*model.RecordSet, error) {
	out := &model.RecordSet{
		Name:    g.Name,
		CRS:     g.CRS,
		Columns: append([]string(nil), g.Columns...),
		Records: make([]model.Record, 0, len(g.Features)),
	}
	for i, f := range g.Features {
		var geom orb.Geometry
		if f.Geometry != nil {
			var err error
			if geom, err = f.Geometry.Decode(); err != nil {
				return nil, &model.GeometryDecodeError{Feature: i, Err: err}
			}
		}
		if geom == nil {
			out.Dropped++
			continue
		}
		if isEmpty(geom) {
			return nil, &model.GeometryDecodeError{Feature: i, Err: fmt.Errorf("empty %s", geom.GeoJSONType())}
		}

		attrs := make(map[string]any, len(out.Columns))
		for _, c := range out.Columns {
			attrs[c] = nil
		}
		var extra []string
		for k, v := range f.Properties {
			if _, known := attrs[k]; !known {
				extra = append(extra, k)
			}
			attrs[k] = v
		}
		sort.Strings(extra)
		out.Columns = append(out.Columns, extra...)
		out.Records = append(out.Records, model.Record{Attrs: attrs, Geometry: geom})
	}
	// columns discovered late are missing on earlier records
	for _, r := range out.Records {
		for _, c := range out.Columns {
			if _, ok := r.Attrs[c]; !ok {
				r.Attrs[c] = nil
			}
		}
	}
	return out, nil
}

func cell(row []any, i int) any {
	if i < 0 || i >= len(row) {
		return nil
	}
	return row[i]
}

// coordinate coerces a cell to a finite float; text cells are parsed since a
// single bad value leaves the whole column typed as text.
func coordinate(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int64:
		f = float64(t)
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}

func isEmpty(g orb.Geometry) bool {
	switch v := g.(type) {
	case orb.Point, orb.Bound:
		return false
	case orb.MultiPoint:
		return len(v) == 0
	case orb.LineString:
		return len(v) == 0
	case orb.Ring:
		return len(v) == 0
	case orb.MultiLineString:
		for _, ls := range v {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Polygon:
		for _, r := range v {
			if len(r) > 0 {
				return false
			}
		}
		return true
	case orb.MultiPolygon:
		for _, p := range v {
			if !isEmpty(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range v {
			if !isEmpty(c) {
				return false
			}
		}
		return true
	}
	return true
}
