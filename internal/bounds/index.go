package bounds

import (
	"fmt"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// pointEpsilon pads zero-width boxes; the tree rejects degenerate rects.
const pointEpsilon = 0.0001

// Index answers viewport queries over one record set.
type Index struct {
	tree *rtreego.Rtree
	crs  string
	size int
}

type entry struct {
	pos  int
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

func NewIndex(rs *model.RecordSet) (*Index, error) {
	objs := make([]rtreego.Spatial, 0, rs.Len())
	for i, r := range rs.Records {
		if r.Geometry == nil {
			continue
		}
		rect, err := toRect(r.Geometry.Bound())
		if err != nil {
			return nil, fmt.Errorf("index record %d: %w", i, err)
		}
		objs = append(objs, &entry{pos: i, rect: rect})
	}
	return &Index{
		tree: rtreego.NewTree(2, 25, 50, objs...),
		crs:  rs.CRS,
		size: len(objs),
	}, nil
}

func (ix *Index) Len() int { return ix.size }

// Search returns the positions, ascending, of records whose bounds
// intersect box. box must be in the indexed set's CRS.
func (ix *Index) Search(box model.BBox) ([]int, error) {
	if box.SRID != "" && box.SRID != ix.crs {
		return nil, &model.CrsMismatchError{Want: ix.crs, Got: box.SRID}
	}
	q, err := toRect(box.Bound())
	if err != nil {
		return nil, fmt.Errorf("query box: %w", err)
	}
	hits := ix.tree.SearchIntersect(q)
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*entry).pos)
	}
	sort.Ints(out)
	return out, nil
}

func toRect(b orb.Bound) (rtreego.Rect, error) {
	w := b.Max.X() - b.Min.X()
	h := b.Max.Y() - b.Min.Y()
	if w < pointEpsilon {
		w = pointEpsilon
	}
	if h < pointEpsilon {
		h = pointEpsilon
	}
	return rtreego.NewRect(rtreego.Point{b.Min.X(), b.Min.Y()}, []float64{w, h})
}
