package router

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
	"github.com/rmkenv/OS-ST-GIS/internal/core/ogc"
	"github.com/rmkenv/OS-ST-GIS/internal/filter"
	"github.com/rmkenv/OS-ST-GIS/internal/normalize"
	"github.com/rmkenv/OS-ST-GIS/internal/pipeline"
)

// ingestForm is the parsed form shared by /ingest and /export.
type ingestForm struct {
	req          pipeline.Request
	filterColumn string
	clusterRes   *int
	parentRes    *int
	viewport     *model.BBox
}

type httpError struct {
	status int
	err    error
}

func (e *httpError) Error() string { return e.err.Error() }
func (e *httpError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, err: fmt.Errorf(format, args...)}
}

// parseIngestForm reads sources in a fixed order: uploaded files, urls,
// catalog names, then the WFS and ArcGIS service fields. Catalog names are
// resolved while loading, so an index failure fails only those sources.
func parseIngestForm(w http.ResponseWriter, r *http.Request, d Deps) (ingestForm, error) {
	var f ingestForm

	if d.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, d.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		if !errors.Is(err, http.ErrNotMultipart) {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return f, &httpError{status: http.StatusRequestEntityTooLarge, err: fmt.Errorf("upload exceeds %d bytes", mbe.Limit)}
			}
			return f, badRequest("invalid multipart form: %v", err)
		}
		if err := r.ParseForm(); err != nil {
			return f, badRequest("invalid form: %v", err)
		}
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
		for _, fh := range r.MultipartForm.File["file"] {
			src, err := readUpload(fh)
			if err != nil {
				return f, badRequest("read upload %q: %v", fh.Filename, err)
			}
			f.req.Sources = append(f.req.Sources, src)
		}
	}

	for _, u := range formValues(r, "url") {
		f.req.Sources = append(f.req.Sources, model.RemoteURL{URL: u})
	}

	for _, n := range formValues(r, "catalog") {
		f.req.Sources = append(f.req.Sources, model.CatalogDataset{Dataset: n})
	}

	svc, err := serviceSources(r)
	if err != nil {
		return f, err
	}
	f.req.Sources = append(f.req.Sources, svc...)
	if len(f.req.Sources) == 0 {
		return f, badRequest("no sources: supply file, url, catalog, wfs or arcgis")
	}

	if f.req.Filter, err = parseFilter(r); err != nil {
		return f, err
	}
	f.filterColumn = strings.TrimSpace(r.FormValue("filter_column"))

	lat, lon := strings.TrimSpace(r.FormValue("lat_column")), strings.TrimSpace(r.FormValue("lon_column"))
	if lat != "" || lon != "" {
		f.req.Hint = &normalize.Hint{Lat: lat, Lon: lon}
	}

	if d.ClusterRes >= 0 && d.ClusterRes <= 15 {
		res := d.ClusterRes
		f.clusterRes = &res
	}
	if v := strings.TrimSpace(r.FormValue("cluster_res")); v != "" {
		res, err := strconv.Atoi(v)
		if err != nil || res < -1 || res > 15 {
			return f, badRequest("cluster_res must be an integer in 0..15, or -1 to disable")
		}
		f.clusterRes = &res
		if res < 0 {
			f.clusterRes = nil
		}
	}
	if v := strings.TrimSpace(r.FormValue("cluster_parent_res")); v != "" {
		res, err := strconv.Atoi(v)
		if err != nil || res < 0 || res > 15 {
			return f, badRequest("cluster_parent_res must be an integer in 0..15")
		}
		if f.clusterRes == nil || res > *f.clusterRes {
			return f, badRequest("cluster_parent_res must not exceed cluster_res")
		}
		f.parentRes = &res
	}

	if v := strings.TrimSpace(r.FormValue("viewport")); v != "" {
		bb, err := parseBBOX(v)
		if err != nil {
			return f, badRequest("invalid viewport: %v", err)
		}
		f.viewport = &bb
	}
	return f, nil
}

func readUpload(fh *multipart.FileHeader) (model.LocalUpload, error) {
	f, err := fh.Open()
	if err != nil {
		return model.LocalUpload{}, err
	}
	defer func() { _ = f.Close() }()
	b, err := io.ReadAll(f)
	if err != nil {
		return model.LocalUpload{}, err
	}
	return model.LocalUpload{Filename: fh.Filename, Data: b}, nil
}

// formValues returns the non-blank values of key, trimmed.
func formValues(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.Form[key] {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func serviceSources(r *http.Request) ([]model.Source, error) {
	wfs := strings.TrimSpace(r.FormValue("wfs"))
	arc := strings.TrimSpace(r.FormValue("arcgis"))
	if wfs == "" && arc == "" {
		return nil, nil
	}

	q := ogc.Query{Layer: strings.TrimSpace(r.FormValue("layer"))}
	if v := strings.TrimSpace(r.FormValue("bbox")); v != "" {
		bb, err := parseBBOX(v)
		if err != nil {
			return nil, badRequest("invalid bbox: %v", err)
		}
		q.BBox = &bb
	}
	if v := strings.TrimSpace(r.FormValue("polygon")); v != "" {
		p, err := parsePolygon(v)
		if err != nil {
			return nil, badRequest("invalid polygon: %v", err)
		}
		q.Polygon = p
	}
	if v := strings.TrimSpace(r.FormValue("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, badRequest("limit must be a non-negative integer")
		}
		q.Limit = n
	}

	var out []model.Source
	if wfs != "" {
		wq := q
		wq.Filter = strings.TrimSpace(r.FormValue("cql_filter"))
		if wq.Filter != "" && !isSafeFilter(wq.Filter) {
			return nil, badRequest("invalid or disallowed cql_filter")
		}
		src, err := ogc.WFSGetFeature(wfs, wq)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		out = append(out, src)
	}
	if arc != "" {
		aq := q
		aq.Filter = strings.TrimSpace(r.FormValue("where"))
		if aq.Filter != "" && !isSafeFilter(aq.Filter) {
			return nil, badRequest("invalid or disallowed where clause")
		}
		src, err := ogc.ArcRESTQuery(arc, aq)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		out = append(out, src)
	}
	return out, nil
}

// parseFilter builds the single column predicate. filter_value (repeatable)
// selects categorical membership; filter_low/filter_high an inclusive range.
func parseFilter(r *http.Request) (filter.Predicate, error) {
	col := strings.TrimSpace(r.FormValue("filter_column"))
	_, hasValues := r.Form["filter_value"]
	low := strings.TrimSpace(r.FormValue("filter_low"))
	high := strings.TrimSpace(r.FormValue("filter_high"))
	hasRange := low != "" || high != ""

	if col == "" {
		if hasValues || hasRange {
			return nil, badRequest("filter_column is required with filter_value or filter_low/filter_high")
		}
		return filter.None{}, nil
	}
	switch {
	case hasValues && hasRange:
		return nil, badRequest("use either filter_value or filter_low/filter_high, not both")
	case hasRange:
		if low == "" || high == "" {
			return nil, badRequest("filter_low and filter_high are both required")
		}
		lo, err := parseFloat(low)
		if err != nil {
			return nil, badRequest("filter_low: %v", err)
		}
		hi, err := parseFloat(high)
		if err != nil {
			return nil, badRequest("filter_high: %v", err)
		}
		if lo > hi {
			return nil, badRequest("filter_low must be <= filter_high")
		}
		return filter.Numeric{Column: col, Low: lo, High: hi}, nil
	case hasValues:
		// values are matched verbatim, blanks included
		return filter.Categorical{Column: col, Values: append([]string(nil), r.Form["filter_value"]...)}, nil
	default:
		// column alone only selects which choices to describe
		return filter.None{}, nil
	}
}

// parseBBOX accepts x1,y1,x2,y2 with an optional trailing EPSG:4326.
func parseBBOX(raw string) (model.BBox, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 && len(parts) != 5 {
		return model.BBox{}, errors.New("expected x1,y1,x2,y2[,EPSG:4326]")
	}
	var v [4]float64
	for i := range v {
		f, err := parseFloat(parts[i])
		if err != nil {
			return model.BBox{}, fmt.Errorf("coordinate %d: %w", i+1, err)
		}
		v[i] = f
	}
	srid := model.CRSWGS84
	if len(parts) == 5 {
		srid = model.CanonicalCRS(strings.TrimSpace(parts[4]))
		if srid != model.CRSWGS84 {
			return model.BBox{}, fmt.Errorf("only EPSG:4326 is supported (got %q)", parts[4])
		}
	}
	xMin, yMin, xMax, yMax := v[0], v[1], v[2], v[3]
	if !(xMin >= -180 && xMin <= 180 && xMax >= -180 && xMax <= 180) {
		return model.BBox{}, errors.New("longitude must be in [-180,180]")
	}
	if !(yMin >= -90 && yMin <= 90 && yMax >= -90 && yMax <= 90) {
		return model.BBox{}, errors.New("latitude must be in [-90,90]")
	}
	if xMax <= xMin || yMax <= yMin {
		return model.BBox{}, errors.New("coordinates must satisfy x2>x1 and y2>y1")
	}
	return model.BBox{X1: xMin, Y1: yMin, X2: xMax, Y2: yMax, SRID: srid}, nil
}

func parseFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse float: %w", err)
	}
	return f, nil
}

var safeFilterPattern = regexp.MustCompile(`^[\w\s\=\>\<\!\(\)\.\,\'\"\-\%]+$`)

func isSafeFilter(s string) bool {
	if len(s) > 500 {
		return false
	}
	return safeFilterPattern.MatchString(s)
}

func parsePolygon(raw string) (orb.Polygon, error) {
	g, err := geojson.UnmarshalGeometry([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	p, ok := g.Geometry().(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("unsupported GeoJSON type %q (must be Polygon)", g.Type)
	}
	if len(p) == 0 || len(p[0]) < 4 {
		return nil, errors.New("outer ring has < 4 vertices")
	}
	return p, nil
}
