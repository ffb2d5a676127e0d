package model

import (
	"regexp"
	"strings"
)

var (
	epsgPattern      = regexp.MustCompile(`(?i)EPSG:{1,2}(?:[\d.]*:)?(\d+)$`)
	authorityPattern = regexp.MustCompile(`AUTHORITY\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]`)
	wktNamePattern   = regexp.MustCompile(`^\s*(?:PROJCS|GEOGCS)\[\s*"([^"]+)"`)
)

// wktNames maps well-known .prj coordinate system names without an EPSG
// authority to their codes.
var wktNames = map[string]string{
	"GCS_WGS_1984":                                CRSWGS84,
	"WGS 84":                                      CRSWGS84,
	"WGS_1984_Web_Mercator_Auxiliary_Sphere":      "EPSG:3857",
	"GCS_North_American_1983":                     "EPSG:4269",
	"NAD_1983_StatePlane_Maryland_FIPS_1900":      "EPSG:26985",
	"NAD_1983_StatePlane_Maryland_FIPS_1900_Feet": "EPSG:2248",
	"NAD_1983_UTM_Zone_18N":                       "EPSG:26918",
}

// CanonicalCRS normalizes a declared CRS identifier: WGS84 and CRS84 aliases
// become EPSG:4326, URN and URL forms become EPSG:<code>. Unknown names are
// returned trimmed.
func CanonicalCRS(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return CRSUnknown
	case strings.EqualFold(s, "wgs84"), strings.EqualFold(s, "wgs 84"),
		strings.HasSuffix(strings.ToUpper(s), "CRS84"):
		return CRSWGS84
	}
	tail := s
	if i := strings.LastIndex(tail, "/"); i >= 0 && strings.Contains(strings.ToLower(tail), "/epsg/") {
		// http://www.opengis.net/def/crs/EPSG/0/3857
		return "EPSG:" + tail[i+1:]
	}
	if m := epsgPattern.FindStringSubmatch(tail); m != nil {
		return "EPSG:" + m[1]
	}
	return s
}

// CRSFromWKT derives a CRS tag from the contents of an ESRI .prj file.
func CRSFromWKT(wkt string) string {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return CRSUnknown
	}
	if strings.HasPrefix(wkt, "PROJCS") || strings.HasPrefix(wkt, "GEOGCS") {
		// only an authority closing the outermost node names the whole CRS
		if idx := authorityPattern.FindAllStringSubmatchIndex(wkt, -1); len(idx) > 0 {
			last := idx[len(idx)-1]
			if strings.TrimSpace(wkt[last[1]:]) == "]" {
				return "EPSG:" + wkt[last[2]:last[3]]
			}
		}
	}
	m := wktNamePattern.FindStringSubmatch(wkt)
	if m == nil {
		return CanonicalCRS(wkt)
	}
	if code, ok := wktNames[m[1]]; ok {
		return code
	}
	return m[1]
}
