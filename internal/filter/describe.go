package filter

import (
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// Choices are the filter options a column offers: a value range for numeric
// columns, otherwise its distinct values in first-seen order.
type Choices struct {
	Column  string   `json:"column"`
	Numeric bool     `json:"numeric"`
	Values  []string `json:"values,omitempty"`
	Min     float64  `json:"min,omitempty"`
	Max     float64  `json:"max,omitempty"`
}

// Describe reports the choices for column, or false when rs lacks it.
// A column is numeric when every present value is a number.
func Describe(rs *model.RecordSet, column string) (Choices, bool) {
	if !rs.HasColumn(column) {
		return Choices{}, false
	}
	c := Choices{Column: column, Numeric: true}
	seenNumber := false
	for _, r := range rs.Records {
		v := r.Attrs[column]
		if v == nil {
			continue
		}
		f, ok := number(v)
		if !ok {
			c.Numeric = false
			break
		}
		if !seenNumber {
			c.Min, c.Max, seenNumber = f, f, true
			continue
		}
		c.Min, c.Max = min(c.Min, f), max(c.Max, f)
	}
	if c.Numeric && seenNumber {
		return c, true
	}

	c = Choices{Column: column}
	seen := map[string]struct{}{}
	for _, r := range rs.Records {
		v := r.Attrs[column]
		if v == nil {
			continue
		}
		s := model.FormatValue(v)
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		c.Values = append(c.Values, s)
	}
	return c, true
}
