// Package columns guesses which tabular columns hold coordinates.
package columns

import "strings"

var (
	latPatterns = []string{"lat", "latitude"}
	lonPatterns = []string{"lng", "long", "longitude"}
)

// Suggestion is a latitude/longitude column pair subject to user override.
// When a slot had no name match it holds the first column and the matching
// flag is false.
type Suggestion struct {
	Lat        string `json:"lat"`
	Lon        string `json:"lon"`
	LatMatched bool   `json:"lat_matched"`
	LonMatched bool   `json:"lon_matched"`
}

// Confident reports whether both slots were matched by name.
func (s Suggestion) Confident() bool { return s.LatMatched && s.LonMatched }

// InferLatLong scans column names left to right, case-insensitively, and
// returns the first match per slot. It falls back to columns[0] and never
// fails; an empty column list yields the zero Suggestion.
func InferLatLong(columns []string) Suggestion {
	var s Suggestion
	if len(columns) == 0 {
		return s
	}
	s.Lat, s.LatMatched = firstMatch(columns, latPatterns)
	s.Lon, s.LonMatched = firstMatch(columns, lonPatterns)
	return s
}

func firstMatch(columns, patterns []string) (string, bool) {
	for _, c := range columns {
		lc := strings.ToLower(c)
		for _, p := range patterns {
			if strings.Contains(lc, p) {
				return c, true
			}
		}
	}
	return columns[0], false
}
