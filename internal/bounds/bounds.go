// Package bounds computes record-set extents and merges them across sources.
package bounds

import (
	"github.com/paulmach/orb"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// Extent is a possibly-absent box. The zero value is the empty extent.
type Extent struct {
	Box model.BBox
	OK  bool
}

// Of wraps ExtentOf.
func Of(rs *model.RecordSet) Extent {
	b, ok := ExtentOf(rs)
	return Extent{Box: b, OK: ok}
}

// ExtentOf returns the minimal box enclosing every geometry in rs, tagged
// with its CRS. ok is false iff rs has no records.
func ExtentOf(rs *model.RecordSet) (model.BBox, bool) {
	var (
		acc   orb.Bound
		found bool
	)
	for _, r := range rs.Records {
		if r.Geometry == nil {
			continue
		}
		b := r.Geometry.Bound()
		if !found {
			acc, found = b, true
			continue
		}
		acc = acc.Union(b)
	}
	if !found {
		return model.BBox{}, false
	}
	return fromBound(acc, rs.CRS), true
}

// MergeExtents folds list left to right with coordinate-wise min/max. Empty
// members are skipped; an empty or all-empty list yields ok=false. Non-empty
// members must share one CRS.
func MergeExtents(list []Extent) (model.BBox, bool, error) {
	var (
		acc model.BBox
		ok  bool
	)
	for _, e := range list {
		if !e.OK {
			continue
		}
		if !ok {
			acc, ok = e.Box, true
			continue
		}
		if e.Box.SRID != acc.SRID {
			return model.BBox{}, false, &model.CrsMismatchError{Want: acc.SRID, Got: e.Box.SRID}
		}
		acc = union(acc, e.Box)
	}
	return acc, ok, nil
}

func union(a, b model.BBox) model.BBox {
	return model.BBox{
		X1:   min(a.X1, b.X1),
		Y1:   min(a.Y1, b.Y1),
		X2:   max(a.X2, b.X2),
		Y2:   max(a.Y2, b.Y2),
		SRID: a.SRID,
	}
}

func fromBound(b orb.Bound, crs string) model.BBox {
	return model.BBox{X1: b.Min.X(), Y1: b.Min.Y(), X2: b.Max.X(), Y2: b.Max.Y(), SRID: crs}
}
