package loader

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

const parks = `{
  "type": "FeatureCollection",
  "features": [
    {"type":"Feature","properties":{"name":"Sandy Point","acres":786,"tags":["beach"]},
     "geometry":{"type":"Point","coordinates":[-76.40,39.01]}},
    {"type":"Feature","properties":{"name":"Patapsco","county":"Howard","acres":16043.5},
     "geometry":{"type":"Polygon","coordinates":[[[-76.8,39.2],[-76.7,39.2],[-76.7,39.3],[-76.8,39.2]]]}},
    {"type":"Feature","properties":null,"geometry":null}
  ]
}`

func TestParseGeoJSON_FeatureCollection(t *testing.T) {
	g, err := parseGeoJSON("parks", []byte(parks))
	require.NoError(t, err)

	assert.Equal(t, model.CRSWGS84, g.CRS)
	assert.Equal(t, []string{"name", "acres", "tags", "county"}, g.Columns)
	require.Len(t, g.Features, 3)

	p0 := g.Features[0].Properties
	assert.Equal(t, int64(786), p0["acres"])
	assert.Equal(t, `["beach"]`, p0["tags"])
	assert.Equal(t, 16043.5, g.Features[1].Properties["acres"])

	geom, err := g.Features[0].Geometry.Decode()
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-76.40, 39.01}, geom)

	geom, err = g.Features[2].Geometry.Decode()
	require.NoError(t, err)
	assert.Nil(t, geom)
}

func TestParseGeoJSON_DeclaredCRS(t *testing.T) {
	doc := `{"type":"FeatureCollection",
	  "crs":{"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::26985"}},
	  "features":[{"type":"Feature","properties":{"id":1},"geometry":{"type":"Point","coordinates":[433000,140000]}}]}`
	g, err := parseGeoJSON("sp", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "EPSG:26985", g.CRS)
}

func TestParseGeoJSON_SingleFeatureAndBareGeometry(t *testing.T) {
	g, err := parseGeoJSON("one", []byte(`{"type":"Feature","properties":{"a":"x"},"geometry":{"type":"LineString","coordinates":[[0,0],[1,1]]}}`))
	require.NoError(t, err)
	require.Len(t, g.Features, 1)
	assert.Equal(t, []string{"a"}, g.Columns)

	g, err = parseGeoJSON("bare", []byte(`{"type":"MultiPoint","coordinates":[[0,0],[2,3]]}`))
	require.NoError(t, err)
	require.Len(t, g.Features, 1)
	geom, err := g.Features[0].Geometry.Decode()
	require.NoError(t, err)
	assert.Equal(t, orb.MultiPoint{{0, 0}, {2, 3}}, geom)
}

func TestParseGeoJSON_Malformed(t *testing.T) {
	for name, in := range map[string]string{
		"invalid json": `{"type":`,
		"no type":      `{"features":[]}`,
		"topojson":     `{"type":"Topology","objects":{}}`,
		"bad feature":  `{"type":"FeatureCollection","features":[{"type":"Point"}]}`,
		"bad props":    `{"type":"Feature","properties":[1,2],"geometry":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := parseGeoJSON("x", []byte(in))
			var pe *model.ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("err=%v want ParseError", err)
			}
		})
	}
}

func TestGeoJSONGeometry_DecodeErrors(t *testing.T) {
	for _, in := range []string{
		`{"type":"Circle","coordinates":[0,0]}`,
		`{"type":"Point","coordinates":"x"}`,
	} {
		if _, err := geoJSONGeometry(in).Decode(); err == nil {
			t.Fatalf("Decode(%s) expected error", in)
		}
	}
}
