// Package cluster groups WGS84 records into H3 cells for marker-cluster
// rendering.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	h3 "github.com/uber/h3-go/v4"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

type Cluster struct {
	Cell  string  `json:"cell"`
	Count int     `json:"count"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	// Members are record positions in the source set.
	Members []int `json:"-"`
}

type Result struct {
	Res      int       `json:"res"`
	Clusters []Cluster `json:"clusters"`
	// Skipped counts records whose anchor point could not be indexed.
	Skipped int `json:"skipped,omitempty"`
}

// Total is the number of records across all clusters.
func (r Result) Total() int {
	n := 0
	for _, c := range r.Clusters {
		n += c.Count
	}
	return n
}

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// Build assigns each record to the cell holding its anchor: the point
// itself, or the center of the geometry's bound otherwise. Clusters are
// sorted by cell.
func Build(rs *model.RecordSet, res int) (Result, error) {
	if err := validateRes(res); err != nil {
		return Result{}, err
	}
	if rs == nil {
		return Result{Res: res}, nil
	}
	if model.CanonicalCRS(rs.CRS) != model.CRSWGS84 {
		return Result{}, &model.CrsMismatchError{Want: model.CRSWGS84, Got: rs.CRS}
	}

	acc := map[h3.Cell]*Cluster{}
	out := Result{Res: res}
	for i, r := range rs.Records {
		p, ok := anchor(r.Geometry)
		if !ok {
			out.Skipped++
			continue
		}
		cell, err := h3.LatLngToCell(h3.LatLng{Lat: p.Lat(), Lng: p.Lon()}, res)
		if err != nil {
			out.Skipped++
			continue
		}
		c, ok := acc[cell]
		if !ok {
			c = &Cluster{Cell: cell.String()}
			acc[cell] = c
		}
		c.Count++
		// running mean
		c.Lat += (p.Lat() - c.Lat) / float64(c.Count)
		c.Lng += (p.Lon() - c.Lng) / float64(c.Count)
		c.Members = append(c.Members, i)
	}

	out.Clusters = sorted(acc)
	return out, nil
}

// Rollup merges clusters into their parents at a coarser resolution,
// weighting positions by count.
func Rollup(r Result, parentRes int) (Result, error) {
	if err := validateRes(parentRes); err != nil {
		return Result{}, err
	}
	if parentRes > r.Res {
		return Result{}, fmt.Errorf("parentRes %d must be <= cluster resolution %d", parentRes, r.Res)
	}
	if parentRes == r.Res {
		return r, nil
	}

	acc := map[h3.Cell]*Cluster{}
	for _, c := range r.Clusters {
		var cell h3.Cell
		if err := cell.UnmarshalText([]byte(c.Cell)); err != nil {
			return Result{}, fmt.Errorf("parse cell: %w", err)
		}
		parent, err := cell.Parent(parentRes)
		if err != nil {
			return Result{}, fmt.Errorf("h3 parent: %w", err)
		}
		pc, ok := acc[parent]
		if !ok {
			pc = &Cluster{Cell: parent.String()}
			acc[parent] = pc
		}
		total := float64(pc.Count + c.Count)
		pc.Lat = (pc.Lat*float64(pc.Count) + c.Lat*float64(c.Count)) / total
		pc.Lng = (pc.Lng*float64(pc.Count) + c.Lng*float64(c.Count)) / total
		pc.Count += c.Count
		pc.Members = append(pc.Members, c.Members...)
	}
	for _, pc := range acc {
		sort.Ints(pc.Members)
	}
	return Result{Res: parentRes, Clusters: sorted(acc), Skipped: r.Skipped}, nil
}

func anchor(g orb.Geometry) (orb.Point, bool) {
	if g == nil {
		return orb.Point{}, false
	}
	var p orb.Point
	if pt, ok := g.(orb.Point); ok {
		p = pt
	} else {
		p = g.Bound().Center()
	}
	if !finite(p.Lon()) || !finite(p.Lat()) || math.Abs(p.Lat()) > 90 || math.Abs(p.Lon()) > 180 {
		return orb.Point{}, false
	}
	return p, true
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func sorted(acc map[h3.Cell]*Cluster) []Cluster {
	out := make([]Cluster, 0, len(acc))
	for _, c := range acc {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out
}
