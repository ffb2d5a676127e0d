package bounds

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

func set(crs string, geoms ...orb.Geometry) *model.RecordSet {
	rs := &model.RecordSet{Name: "t", CRS: crs}
	for _, g := range geoms {
		rs.Records = append(rs.Records, model.Record{Attrs: map[string]any{}, Geometry: g})
	}
	return rs
}

func box(x1, y1, x2, y2 float64) Extent {
	return Extent{Box: model.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2, SRID: model.CRSWGS84}, OK: true}
}

func TestExtentOf(t *testing.T) {
	if _, ok := ExtentOf(set(model.CRSWGS84)); ok {
		t.Fatalf("empty set must have no extent")
	}

	rs := set(model.CRSWGS84,
		orb.Point{-76.6, 39.2},
		orb.LineString{{-77.1, 38.9}, {-76.9, 39.0}},
		orb.Polygon{{{-76.0, 38.0}, {-75.5, 38.0}, {-75.5, 38.5}, {-76.0, 38.0}}},
	)
	b, ok := ExtentOf(rs)
	if !ok {
		t.Fatalf("expected extent")
	}
	want := model.BBox{X1: -77.1, Y1: 38.0, X2: -75.5, Y2: 39.2, SRID: model.CRSWGS84}
	if b != want {
		t.Fatalf("extent=%+v want %+v", b, want)
	}
	if b.X1 > b.X2 || b.Y1 > b.Y2 {
		t.Fatalf("min > max: %+v", b)
	}

	single, ok := ExtentOf(set("EPSG:3857", orb.Point{5, 6}))
	if !ok || single.X1 != 5 || single.X2 != 5 || single.SRID != "EPSG:3857" {
		t.Fatalf("single point extent=%+v", single)
	}
}

func TestMergeExtents_EmptyCases(t *testing.T) {
	if _, ok, err := MergeExtents(nil); ok || err != nil {
		t.Fatalf("empty list: ok=%v err=%v", ok, err)
	}
	if _, ok, err := MergeExtents([]Extent{{}, {}}); ok || err != nil {
		t.Fatalf("all empty: ok=%v err=%v", ok, err)
	}
	b := box(0, 0, 1, 1)
	got, ok, err := MergeExtents([]Extent{b, {}})
	if err != nil || !ok || got != b.Box {
		t.Fatalf("identity: got=%+v ok=%v err=%v", got, ok, err)
	}
	got, ok, err = MergeExtents([]Extent{{}, b})
	if err != nil || !ok || got != b.Box {
		t.Fatalf("left identity: got=%+v ok=%v err=%v", got, ok, err)
	}
}

func TestMergeExtents_AssociativeCommutative(t *testing.T) {
	a, b, c := box(0, 0, 1, 1), box(-2, 0.5, 0.5, 3), box(4, -1, 5, 0)

	merge := func(list ...Extent) Extent {
		t.Helper()
		m, ok, err := MergeExtents(list)
		if err != nil {
			t.Fatalf("merge: %v", err)
		}
		return Extent{Box: m, OK: ok}
	}

	abc := merge(a, b, c)
	if left := merge(merge(a, b), c); left != abc {
		t.Fatalf("(ab)c=%+v want %+v", left, abc)
	}
	if right := merge(a, merge(b, c)); right != abc {
		t.Fatalf("a(bc)=%+v want %+v", right, abc)
	}
	for _, perm := range [][]Extent{{c, b, a}, {b, a, c}, {c, a, b}} {
		if got := merge(perm...); got != abc {
			t.Fatalf("permutation=%+v want %+v", got, abc)
		}
	}
	want := model.BBox{X1: -2, Y1: -1, X2: 5, Y2: 3, SRID: model.CRSWGS84}
	if abc.Box != want {
		t.Fatalf("merged=%+v want %+v", abc.Box, want)
	}
}

func TestMergeExtents_CrsMismatch(t *testing.T) {
	other := Extent{Box: model.BBox{X1: 1, Y1: 1, X2: 2, Y2: 2, SRID: "EPSG:3857"}, OK: true}
	_, _, err := MergeExtents([]Extent{box(0, 0, 1, 1), other})
	var ce *model.CrsMismatchError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v want CrsMismatchError", err)
	}
	if ce.Want != model.CRSWGS84 || ce.Got != "EPSG:3857" {
		t.Fatalf("mismatch=%+v", ce)
	}
}
