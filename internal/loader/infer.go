package loader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// headerNames fills blank or repeated header cells the way dataframe readers
// do ("Unnamed: 3", "name.1") so every column stays addressable.
func headerNames(cells []string) []string {
	out := make([]string, len(cells))
	seen := make(map[string]int, len(cells))
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			base := name
			for {
				n++
				name = fmt.Sprintf("%s.%d", base, n)
				if _, taken := seen[name]; !taken {
					break
				}
			}
			seen[base] = n
		}
		if _, ok := seen[name]; !ok {
			seen[name] = 0
		}
		out[i] = name
	}
	return out
}

// buildTable infers one kind per column from its non-empty cells, trying
// int, float, then bool, and converts the cells. Empty cells become nil.
func buildTable(name string, columns []string, cells [][]string) *model.RawTable {
	kinds := make([]model.Kind, len(columns))
	for c := range columns {
		kinds[c] = inferKind(cells, c)
	}
	rows := make([][]any, len(cells))
	for r, rec := range cells {
		row := make([]any, len(columns))
		for c := range columns {
			if c < len(rec) {
				row[c] = convertCell(rec[c], kinds[c])
			}
		}
		rows[r] = row
	}
	return &model.RawTable{Name: name, Columns: columns, Kinds: kinds, Rows: rows}
}

func inferKind(cells [][]string, col int) model.Kind {
	isInt, isFloat, isBool := true, true, true
	seen := false
	for _, rec := range cells {
		if col >= len(rec) {
			continue
		}
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		seen = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(v); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return model.KindString
		}
	}
	switch {
	case !seen:
		return model.KindString
	case isInt:
		return model.KindInt
	case isFloat:
		return model.KindFloat
	case isBool:
		return model.KindBool
	}
	return model.KindString
}

func convertCell(raw string, k model.Kind) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	switch k {
	case model.KindInt:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case model.KindFloat:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case model.KindBool:
		b, _ := parseBool(v)
		return b
	}
	return raw
}

// parseBool accepts only the spellings spreadsheets emit; "1"/"0" stay numeric.
func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
