// Package filter applies one attribute predicate to a record set.
package filter

import (
	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// Predicate is None, Categorical or Numeric.
type Predicate interface {
	column() string
	match(v any) bool
}

// None selects no column and keeps every record.
type None struct{}

func (None) column() string { return "" }
func (None) match(any) bool { return true }

// Categorical keeps records whose value, rendered as text, is exactly one of
// Values. Case and whitespace are significant.
type Categorical struct {
	Column string
	Values []string
}

func (c Categorical) column() string { return c.Column }

func (c Categorical) match(v any) bool {
	if v == nil {
		return false
	}
	s := model.FormatValue(v)
	for _, want := range c.Values {
		if s == want {
			return true
		}
	}
	return false
}

// Numeric keeps records whose numeric value lies in [Low, High].
type Numeric struct {
	Column string
	Low    float64
	High   float64
}

func (n Numeric) column() string { return n.Column }

func (n Numeric) match(v any) bool {
	f, ok := number(v)
	return ok && f >= n.Low && f <= n.High
}

// Apply returns the records of rs that satisfy p, in order. rs is never
// modified. A nil or None predicate, or one naming a column rs does not
// have, returns rs itself.
func Apply(rs *model.RecordSet, p Predicate) *model.RecordSet {
	if p == nil || p.column() == "" || !rs.HasColumn(p.column()) {
		return rs
	}
	col := p.column()
	kept := make([]model.Record, 0, len(rs.Records))
	for _, r := range rs.Records {
		if p.match(r.Attrs[col]) {
			kept = append(kept, r)
		}
	}
	return rs.WithRecords(kept)
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	}
	return 0, false
}
