package loader

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// parseShapefileZip reads a zipped ESRI shapefile. go-shp only reads from
// disk, so the resolved members are extracted into a scratch dir under
// canonical names first.
func parseShapefileZip(tmpDir, name string, data []byte) (out *model.RawGeometry, err error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &model.ParseError{Format: "zip", Err: fmt.Errorf("open archive: %w", err)}
	}
	m, err := inspectArchive(zr)
	if err != nil {
		return nil, &model.ParseError{Format: "zip", Err: err}
	}

	dir, err := os.MkdirTemp(tmpDir, "shape-*")
	if err != nil {
		return nil, fmt.Errorf("spool archive: %w", err)
	}
	defer func() { _ = os.RemoveAll(dir) }()

	base := filepath.Join(dir, "layer")
	if err := extractMember(m.shp, base+".shp"); err != nil {
		return nil, &model.ParseError{Format: "zip", Err: err}
	}
	if err := extractMember(m.dbf, base+".dbf"); err != nil {
		return nil, &model.ParseError{Format: "zip", Err: err}
	}

	// go-shp panics on truncated headers and records
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &model.ParseError{Format: "zip", Err: fmt.Errorf("read %s: %v", m.shp.Name, r)}
		}
	}()

	reader, err := shp.Open(base + ".shp")
	if err != nil {
		return nil, &model.ParseError{Format: "zip", Err: fmt.Errorf("open %s: %w", m.shp.Name, err)}
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	out = &model.RawGeometry{
		Name:    name,
		CRS:     model.CRSFromWKT(m.prj),
		Columns: make([]string, len(fields)),
	}
	for i, f := range fields {
		out.Columns[i] = f.String()
	}

	for reader.Next() {
		_, shape := reader.Shape()
		props := make(map[string]any, len(fields))
		for i, f := range fields {
			props[out.Columns[i]] = dbfValue(f, reader.Attribute(i))
		}
		out.Features = append(out.Features, model.RawFeature{
			Properties: props,
			Geometry:   shapePayload{shape: shape},
		})
	}
	if err := reader.Err(); err != nil {
		return nil, &model.ParseError{Format: "zip", Err: fmt.Errorf("read %s: %w", m.shp.Name, err)}
	}
	return out, nil
}

type archiveMembers struct {
	shp, dbf *zip.File
	prj      string
}

// inspectArchive resolves exactly one .shp and its .dbf, matching
// extensions case-insensitively and ignoring macOS resource forks. The .prj
// contents are returned when present.
func inspectArchive(zr *zip.Reader) (archiveMembers, error) {
	var m archiveMembers
	byName := map[string]*zip.File{}
	var shps []*zip.File
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasPrefix(path.Base(f.Name), "._") ||
			strings.HasPrefix(f.Name, "__MACOSX/") {
			continue
		}
		lower := strings.ToLower(f.Name)
		byName[lower] = f
		if strings.HasSuffix(lower, ".shp") {
			shps = append(shps, f)
		}
	}
	switch len(shps) {
	case 0:
		return m, errors.New("archive contains no .shp file")
	case 1:
	default:
		return m, fmt.Errorf("archive contains %d .shp files, want 1", len(shps))
	}
	m.shp = shps[0]
	stem := strings.TrimSuffix(strings.ToLower(m.shp.Name), ".shp")
	dbf, ok := byName[stem+".dbf"]
	if !ok {
		return m, fmt.Errorf("%s has no matching .dbf", m.shp.Name)
	}
	m.dbf = dbf

	prjFile, ok := byName[stem+".prj"]
	if !ok {
		return m, nil
	}
	rc, err := prjFile.Open()
	if err != nil {
		return m, fmt.Errorf("open %s: %w", prjFile.Name, err)
	}
	defer func() { _ = rc.Close() }()
	b, err := io.ReadAll(io.LimitReader(rc, 64<<10))
	if err != nil {
		return m, fmt.Errorf("read %s: %w", prjFile.Name, err)
	}
	m.prj = string(b)
	return m, nil
}

func extractMember(f *zip.File, dst string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()
	w, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Close()
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("extract %s: %w", f.Name, err)
	}
	return nil
}

// dbfValue converts a dBASE cell by field type: N/F numeric, L logical,
// anything else text. Blank cells are missing.
func dbfValue(f shp.Field, raw string) any {
	v := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if v == "" {
		return nil
	}
	switch f.Fieldtype {
	case 'N', 'F':
		if f.Precision == 0 {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				return n
			}
		}
		if x, err := strconv.ParseFloat(v, 64); err == nil {
			return x
		}
		// overflow markers such as "*****"
		return nil
	case 'L':
		switch strings.ToUpper(v) {
		case "T", "Y":
			return true
		case "F", "N":
			return false
		}
		return nil
	}
	return v
}

type shapePayload struct {
	shape shp.Shape
}

func (p shapePayload) Decode() (orb.Geometry, error) {
	switch s := p.shape.(type) {
	case nil, *shp.Null:
		return nil, nil
	case *shp.Point:
		return orb.Point{s.X, s.Y}, nil
	case *shp.PointZ:
		return orb.Point{s.X, s.Y}, nil
	case *shp.MultiPoint:
		mp := make(orb.MultiPoint, len(s.Points))
		for i, pt := range s.Points {
			mp[i] = orb.Point{pt.X, pt.Y}
		}
		return mp, nil
	case *shp.PolyLine:
		return lineParts(s.Parts, s.Points)
	case *shp.PolyLineZ:
		return lineParts(s.Parts, s.Points)
	case *shp.Polygon:
		return polygonParts(s.Parts, s.Points)
	case *shp.PolygonZ:
		return polygonParts(s.Parts, s.Points)
	default:
		return nil, fmt.Errorf("unsupported shape type %T", p.shape)
	}
}

func splitParts(parts []int32, points []shp.Point) ([][]orb.Point, error) {
	out := make([][]orb.Point, 0, len(parts))
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || start > end {
			return nil, fmt.Errorf("part %d has invalid range [%d,%d)", i, start, end)
		}
		seg := make([]orb.Point, 0, end-start)
		for _, pt := range points[start:end] {
			seg = append(seg, orb.Point{pt.X, pt.Y})
		}
		out = append(out, seg)
	}
	return out, nil
}

func lineParts(parts []int32, points []shp.Point) (orb.Geometry, error) {
	segs, err := splitParts(parts, points)
	if err != nil {
		return nil, err
	}
	if len(segs) == 1 {
		return orb.LineString(segs[0]), nil
	}
	mls := make(orb.MultiLineString, len(segs))
	for i, s := range segs {
		mls[i] = orb.LineString(s)
	}
	return mls, nil
}

// polygonParts groups rings: a clockwise ring starts a polygon and the
// counter-clockwise rings after it are its holes.
func polygonParts(parts []int32, points []shp.Point) (orb.Geometry, error) {
	segs, err := splitParts(parts, points)
	if err != nil {
		return nil, err
	}
	var mp orb.MultiPolygon
	for _, s := range segs {
		ring := orb.Ring(s)
		if ring.Orientation() == orb.CW || len(mp) == 0 {
			mp = append(mp, orb.Polygon{ring})
			continue
		}
		mp[len(mp)-1] = append(mp[len(mp)-1], ring)
	}
	if len(mp) == 1 {
		return mp[0], nil
	}
	return mp, nil
}
