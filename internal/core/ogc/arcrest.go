package ogc

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// ArcRESTQuery returns a GeoJSON query source for an ArcGIS REST feature
// layer URL such as .../FeatureServer/0. Layer, when set, names the source;
// otherwise the service and layer id do, as in Parks_0.
func ArcRESTQuery(layerURL string, q Query) (model.RemoteURL, error) {
	base := strings.TrimRight(strings.TrimSpace(layerURL), "/")
	if base == "" {
		return model.RemoteURL{}, fmt.Errorf("arcrest: empty layer url")
	}
	base = strings.TrimSuffix(base, "/query")
	u, err := url.Parse(base)
	if err != nil {
		return model.RemoteURL{}, fmt.Errorf("arcrest: parse layer url: %w", err)
	}
	label := strings.TrimSpace(q.Layer)
	if label == "" {
		label = layerLabel(u.Path)
	}
	return model.RemoteURL{
		URL:    base + "/query?" + BuildQueryParams(q).Encode(),
		Format: "geojson",
		Label:  label,
	}, nil
}

func layerLabel(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		if (s == "FeatureServer" || s == "MapServer") && i > 0 {
			if i+1 < len(segs) {
				return segs[i-1] + "_" + segs[i+1]
			}
			return segs[i-1]
		}
	}
	return segs[len(segs)-1]
}

func BuildQueryParams(q Query) url.Values {
	params := url.Values{}
	where := strings.TrimSpace(q.Filter)
	if where == "" {
		where = "1=1"
	}
	params.Set("where", where)
	params.Set("outFields", "*")
	params.Set("f", "geojson")
	params.Set("outSR", "4326")
	if q.Limit > 0 {
		params.Set("resultRecordCount", strconv.Itoa(q.Limit))
	}
	if q.BBox != nil {
		params.Set("geometry", bboxCoords(*q.BBox))
		params.Set("geometryType", "esriGeometryEnvelope")
		params.Set("spatialRel", "esriSpatialRelIntersects")
		if sr := epsgCode(q.BBox.SRID); sr != "" {
			params.Set("inSR", sr)
		}
	}
	return params
}

func epsgCode(srid string) string {
	s := strings.TrimSpace(srid)
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if _, err := strconv.Atoi(s); err != nil {
		return ""
	}
	return s
}
