package cluster

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

func pointSet(pts ...orb.Point) *model.RecordSet {
	rs := &model.RecordSet{Name: "pts", CRS: model.CRSWGS84}
	for _, p := range pts {
		rs.Records = append(rs.Records, model.Record{Attrs: map[string]any{}, Geometry: p})
	}
	return rs
}

func TestBuild_PreservesTotalCount(t *testing.T) {
	rs := pointSet(
		orb.Point{-76.61, 39.29}, orb.Point{-76.611, 39.291}, // Baltimore
		orb.Point{-77.03, 38.90}, // Washington
		orb.Point{-75.16, 39.95}, // Philadelphia
		orb.Point{-76.612, 39.289},
	)
	for _, res := range []int{0, 4, 7, 12, 15} {
		got, err := Build(rs, res)
		if err != nil {
			t.Fatalf("res %d: %v", res, err)
		}
		if got.Total() != rs.Len() {
			t.Fatalf("res %d: total=%d want %d", res, got.Total(), rs.Len())
		}
	}
}

func TestBuild_GroupsNearbyPointsAndAverages(t *testing.T) {
	rs := pointSet(orb.Point{-76.61, 39.29}, orb.Point{-76.6102, 39.2902}, orb.Point{-77.03, 38.90})
	got, err := Build(rs, 5)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got.Clusters) != 2 {
		t.Fatalf("clusters=%d want 2: %+v", len(got.Clusters), got.Clusters)
	}
	var balt Cluster
	for _, c := range got.Clusters {
		if c.Count == 2 {
			balt = c
		}
	}
	if balt.Count != 2 || len(balt.Members) != 2 {
		t.Fatalf("expected a 2-member cluster; got %+v", got.Clusters)
	}
	if math.Abs(balt.Lat-39.2901) > 1e-9 || math.Abs(balt.Lng-(-76.6101)) > 1e-9 {
		t.Fatalf("mean=(%v,%v)", balt.Lat, balt.Lng)
	}
	for i := 1; i < len(got.Clusters); i++ {
		if got.Clusters[i-1].Cell >= got.Clusters[i].Cell {
			t.Fatalf("clusters must be sorted by cell")
		}
	}
}

func TestBuild_PolygonUsesBoundCenter(t *testing.T) {
	rs := &model.RecordSet{CRS: "EPSG:4326", Records: []model.Record{{
		Geometry: orb.Polygon{{{-77, 39}, {-76, 39}, {-76, 40}, {-77, 40}, {-77, 39}}},
	}}}
	got, err := Build(rs, 3)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(got.Clusters) != 1 || got.Clusters[0].Lat != 39.5 || got.Clusters[0].Lng != -76.5 {
		t.Fatalf("clusters=%+v", got.Clusters)
	}
}

func TestBuild_RejectsNonWGS84(t *testing.T) {
	rs := pointSet(orb.Point{400000, 4300000})
	rs.CRS = "EPSG:26918"
	_, err := Build(rs, 7)
	var ce *model.CrsMismatchError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v want CrsMismatchError", err)
	}
}

func TestBuild_InvalidRes(t *testing.T) {
	for _, res := range []int{-1, 16} {
		if _, err := Build(pointSet(), res); err == nil {
			t.Fatalf("res %d: expected error", res)
		}
	}
}

func TestBuild_SkipsOutOfRange(t *testing.T) {
	rs := pointSet(orb.Point{-76.61, 39.29}, orb.Point{200, 95}, orb.Point{math.NaN(), 1})
	got, err := Build(rs, 6)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got.Total() != 1 || got.Skipped != 2 {
		t.Fatalf("total=%d skipped=%d", got.Total(), got.Skipped)
	}
}

func TestRollup_MergesIntoParents(t *testing.T) {
	rs := pointSet(orb.Point{-76.61, 39.29}, orb.Point{-76.70, 39.35}, orb.Point{-76.62, 39.30})
	fine, err := Build(rs, 9)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	coarse, err := Rollup(fine, 2)
	if err != nil {
		t.Fatalf("Rollup: %v", err)
	}
	if coarse.Res != 2 || coarse.Total() != 3 {
		t.Fatalf("res=%d total=%d", coarse.Res, coarse.Total())
	}
	var wantLat, gotLat float64
	for _, r := range rs.Records {
		wantLat += r.Geometry.(orb.Point).Lat()
	}
	members := 0
	for _, c := range coarse.Clusters {
		gotLat += c.Lat * float64(c.Count)
		members += len(c.Members)
	}
	if math.Abs(gotLat-wantLat) > 1e-9 || members != 3 {
		t.Fatalf("weighted sum=%v want %v members=%d", gotLat, wantLat, members)
	}

	if _, err := Rollup(coarse, 5); err == nil {
		t.Fatalf("expected error rolling up to a finer resolution")
	}
}
