package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

type geoJSONDocument struct {
	Type       string            `json:"type"`
	Features   []json.RawMessage `json:"features"`
	Geometry   json.RawMessage   `json:"geometry"`
	Properties json.RawMessage   `json:"properties"`
	CRS        json.RawMessage   `json:"crs"`
}

// crsMember is the pre-RFC 7946 "crs" object, still emitted by many tools.
type crsMember struct {
	Type       string `json:"type"`
	Properties struct {
		Name string      `json:"name"`
		Code json.Number `json:"code"`
	} `json:"properties"`
}

func parseGeoJSON(name string, data []byte) (*model.RawGeometry, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var doc geoJSONDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &model.ParseError{Format: "geojson", Err: err}
	}

	out := &model.RawGeometry{Name: name, CRS: declaredCRS(doc.CRS)}
	switch doc.Type {
	case "FeatureCollection":
		out.Features = make([]model.RawFeature, 0, len(doc.Features))
		for i, raw := range doc.Features {
			var f geoJSONDocument
			if err := json.Unmarshal(raw, &f); err != nil {
				return nil, &model.ParseError{Format: "geojson", Err: fmt.Errorf("feature %d: %w", i, err)}
			}
			if f.Type != "Feature" {
				return nil, &model.ParseError{Format: "geojson", Err: fmt.Errorf("feature %d: unexpected type %q", i, f.Type)}
			}
			if err := appendFeature(out, f.Properties, f.Geometry); err != nil {
				return nil, &model.ParseError{Format: "geojson", Err: fmt.Errorf("feature %d: %w", i, err)}
			}
		}
	case "Feature":
		if err := appendFeature(out, doc.Properties, doc.Geometry); err != nil {
			return nil, &model.ParseError{Format: "geojson", Err: err}
		}
	case "Point", "MultiPoint", "LineString", "MultiLineString", "Polygon", "MultiPolygon", "GeometryCollection":
		if err := appendFeature(out, nil, json.RawMessage(data)); err != nil {
			return nil, &model.ParseError{Format: "geojson", Err: err}
		}
	case "":
		return nil, &model.ParseError{Format: "geojson", Err: errors.New(`missing "type" member`)}
	default:
		return nil, &model.ParseError{Format: "geojson", Err: fmt.Errorf("unsupported type %q", doc.Type)}
	}
	return out, nil
}

func appendFeature(g *model.RawGeometry, props, geom json.RawMessage) error {
	keys, values, err := decodeProperties(props)
	if err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	for _, k := range keys {
		if !contains(g.Columns, k) {
			g.Columns = append(g.Columns, k)
		}
	}
	g.Features = append(g.Features, model.RawFeature{
		Properties: values,
		Geometry:   geoJSONGeometry(geom),
	})
	return nil
}

func declaredCRS(raw json.RawMessage) string {
	if isJSONNull(raw) {
		return model.CRSWGS84
	}
	var m crsMember
	if err := json.Unmarshal(raw, &m); err != nil {
		return model.CRSUnknown
	}
	switch {
	case m.Properties.Name != "":
		return model.CanonicalCRS(m.Properties.Name)
	case m.Properties.Code != "":
		return model.CanonicalCRS("EPSG:" + m.Properties.Code.String())
	}
	return model.CRSUnknown
}

// decodeProperties keeps key order so the schema is first-seen ordered.
func decodeProperties(raw json.RawMessage) ([]string, map[string]any, error) {
	if isJSONNull(raw) {
		return nil, map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, fmt.Errorf("expected object, got %v", tok)
	}
	var keys []string
	values := map[string]any{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, nil, fmt.Errorf("%q: %w", key, err)
		}
		if _, dup := values[key]; !dup {
			keys = append(keys, key)
		}
		values[key] = scalarize(v)
	}
	return keys, values, nil
}

// scalarize maps JSON values onto record scalars; nested values are kept
// as their compact JSON text.
func scalarize(v any) any {
	switch t := v.(type) {
	case nil, string, bool:
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		f, err := t.Float64()
		if err != nil {
			return t.String()
		}
		return f
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

type geoJSONGeometry json.RawMessage

func (g geoJSONGeometry) Decode() (orb.Geometry, error) {
	if isJSONNull(json.RawMessage(g)) {
		return nil, nil
	}
	geom, err := geojson.UnmarshalGeometry(g)
	if err != nil {
		return nil, err
	}
	out := geom.Geometry()
	if out == nil {
		return nil, fmt.Errorf("geometry %q has no coordinates", geom.Type)
	}
	return out, nil
}

func isJSONNull(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null"
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
