// Package model defines core domain types shared across the service.
package model

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// CRS tags. Tabular point data is always tagged WGS84.
const (
	CRSWGS84   = "EPSG:4326"
	CRSUnknown = ""
)

type BBox struct {
	X1, Y1 float64
	X2, Y2 float64
	SRID   string
}

// String representation matching wfs/wms bbox format
func (b BBox) String() string {
	return fmt.Sprintf("%.6f,%.6f,%.6f,%.6f,%s", b.X1, b.Y1, b.X2, b.Y2, b.SRID)
}

// Bound converts the box to an orb bound, dropping the CRS tag.
func (b BBox) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.X1, b.Y1}, Max: orb.Point{b.X2, b.Y2}}
}

// Source is a LocalUpload, LocalFile, RemoteURL or CatalogDataset.
type Source interface {
	// Name is the display/layer name of the source.
	Name() string
	// Ext is the declared or inferred lower-case extension without the dot.
	Ext() string

	isSource()
}

type LocalUpload struct {
	Filename string
	Data     []byte
}

func (u LocalUpload) Name() string { return baseName(u.Filename) }
func (u LocalUpload) Ext() string  { return extOf(u.Filename) }
func (LocalUpload) isSource()      {}

// LocalFile is read from disk when loaded, so an unreadable path fails only
// its own source.
type LocalFile struct {
	Path string
}

func (f LocalFile) Name() string { return baseName(f.Path) }
func (f LocalFile) Ext() string  { return extOf(f.Path) }
func (LocalFile) isSource()      {}

// RemoteURL is fetched over HTTP GET. Format, when set, overrides the
// extension taken from the URL path (WFS and ArcREST endpoints carry none).
// Label, when set, overrides the name taken from the URL path.
type RemoteURL struct {
	URL    string
	Format string
	Label  string
}

func (r RemoteURL) Name() string {
	if l := strings.TrimSpace(r.Label); l != "" {
		return l
	}
	return baseName(urlPath(r.URL))
}

func (r RemoteURL) Ext() string {
	if f := strings.TrimSpace(r.Format); f != "" {
		return strings.ToLower(strings.TrimPrefix(f, "."))
	}
	return extOf(urlPath(r.URL))
}

func (RemoteURL) isSource() {}

// CatalogDataset names an entry of the remote file index. It is resolved to
// a download URL when loaded, so an index failure fails only this source.
type CatalogDataset struct {
	Dataset string
}

func (c CatalogDataset) Name() string { return baseName(c.Dataset) }
func (c CatalogDataset) Ext() string  { return extOf(c.Dataset) }
func (CatalogDataset) isSource()      {}

func urlPath(raw string) string {
	s := raw
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
		if j := strings.Index(s, "/"); j >= 0 {
			s = s[j:]
		} else {
			s = ""
		}
	}
	return s
}

func extOf(name string) string {
	e := path.Ext(path.Base(strings.ReplaceAll(name, "\\", "/")))
	return strings.ToLower(strings.TrimPrefix(e, "."))
}

func baseName(name string) string {
	b := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if b == "." || b == "/" {
		return ""
	}
	if i := strings.Index(b, "."); i > 0 {
		b = b[:i]
	}
	return b
}

// Record is one row: scalar attributes plus, once normalized, a geometry.
// Attribute values are string, float64, int64, bool or nil (missing).
type Record struct {
	Attrs    map[string]any
	Geometry orb.Geometry
}

// RecordSet is the normalized, schema-consistent output of one source.
// It is never mutated after construction.
type RecordSet struct {
	Name    string
	CRS     string
	Columns []string
	Records []Record
	// Dropped counts rows/features excluded during normalization.
	Dropped int
}

func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

func (rs *RecordSet) HasColumn(name string) bool {
	if rs == nil {
		return false
	}
	for _, c := range rs.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// WithRecords returns a copy of the set carrying recs in place of its records.
func (rs *RecordSet) WithRecords(recs []Record) *RecordSet {
	cp := *rs
	cp.Columns = append([]string(nil), rs.Columns...)
	cp.Records = recs
	return &cp
}

// Kind is the inferred scalar kind of a tabular column.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	default:
		return "string"
	}
}

func (k Kind) Numeric() bool { return k == KindInt || k == KindFloat }

// Raw is the provisional output of a loader: *RawTable or *RawGeometry.
type Raw interface {
	SourceName() string
	isRaw()
}

// RawTable is a row-oriented table with inferred column kinds.
type RawTable struct {
	Name    string
	Columns []string
	Kinds   []Kind
	Rows    [][]any
}

func (t *RawTable) SourceName() string { return t.Name }
func (*RawTable) isRaw()               {}

// GeometryPayload is a not-yet-decoded feature geometry.
// Decode returns (nil, nil) for an explicit null geometry.
type GeometryPayload interface {
	Decode() (orb.Geometry, error)
}

type RawFeature struct {
	Properties map[string]any
	Geometry   GeometryPayload
}

// RawGeometry is a geometry-bearing container as declared by its source.
type RawGeometry struct {
	Name     string
	CRS      string
	Columns  []string
	Features []RawFeature
}

func (g *RawGeometry) SourceName() string { return g.Name }
func (*RawGeometry) isRaw()               {}

// FormatValue renders an attribute scalar as text. Missing is "".
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
