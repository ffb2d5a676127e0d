// Package ogc builds the URLs of service-backed sources (OGC WFS and ArcGIS
// REST feature layers) so they can be loaded like any other remote GeoJSON.
package ogc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// Query narrows a service request. The zero value requests the whole layer.
type Query struct {
	Layer   string
	BBox    *model.BBox
	Polygon orb.Polygon
	Filter  string
	Limit   int
}

func OWSEndpoint(geoServerBase string) string {
	return strings.TrimRight(geoServerBase, "/") + "/ows"
}

// WFSGetFeature returns a GeoJSON GetFeature source for base, which may be a
// GeoServer root or an explicit /ows or /wfs endpoint.
func WFSGetFeature(base string, q Query) (model.RemoteURL, error) {
	endpoint := strings.TrimRight(strings.TrimSpace(base), "/")
	if endpoint == "" {
		return model.RemoteURL{}, fmt.Errorf("wfs: empty endpoint")
	}
	if q.Layer == "" {
		return model.RemoteURL{}, fmt.Errorf("wfs: layer is required")
	}
	if !strings.HasSuffix(endpoint, "/ows") && !strings.HasSuffix(endpoint, "/wfs") {
		endpoint = OWSEndpoint(endpoint)
	}
	return model.RemoteURL{
		URL:    endpoint + "?" + BuildGetFeatureParams(q).Encode(),
		Format: "geojson",
		Label:  q.Layer,
	}, nil
}

func BuildGetFeatureParams(q Query) url.Values {
	params := url.Values{}
	params.Set("service", "WFS")
	params.Set("version", "2.0.0")
	params.Set("request", "GetFeature")
	params.Set("typeNames", q.Layer)
	params.Set("outputFormat", "application/json")
	if q.Limit > 0 {
		params.Set("count", strconv.Itoa(q.Limit))
	}

	// polygon wins over bbox; WFS rejects bbox combined with cql_filter
	cql := strings.TrimSpace(q.Filter)
	if len(q.Polygon) > 0 {
		spatial := fmt.Sprintf("INTERSECTS(geom, %s)", wkt.MarshalString(q.Polygon))
		if cql != "" {
			cql = fmt.Sprintf("(%s) AND (%s)", cql, spatial)
		} else {
			cql = spatial
		}
	} else if q.BBox != nil {
		if cql == "" {
			params.Set("bbox", q.BBox.String())
		} else {
			cql = fmt.Sprintf("(%s) AND (BBOX(geom, %s))", cql, bboxCoords(*q.BBox))
		}
	}
	if cql != "" {
		params.Set("cql_filter", cql)
	}
	return params
}

func bboxCoords(b model.BBox) string {
	return fmt.Sprintf("%s,%s,%s,%s", ftoa(b.X1), ftoa(b.Y1), ftoa(b.X2), ftoa(b.Y2))
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
