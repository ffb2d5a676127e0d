// Package export flattens record sets into one attribute table and writes
// it as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

// CombinedFileName is the export artifact written into a Workspace.
const CombinedFileName = "combined_data.csv"

// Table is a geometry-free attribute table. Rows hold scalars or nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// Combine concatenates the attributes of sets in order. Columns are the
// union of the sets' schemas in first-seen order; absent values are nil.
func Combine(sets []*model.RecordSet) Table {
	var t Table
	pos := map[string]int{}
	total := 0
	for _, rs := range sets {
		if rs == nil {
			continue
		}
		total += rs.Len()
		for _, c := range rs.Columns {
			if _, ok := pos[c]; !ok {
				pos[c] = len(t.Columns)
				t.Columns = append(t.Columns, c)
			}
		}
	}

	t.Rows = make([][]any, 0, total)
	for _, rs := range sets {
		if rs == nil {
			continue
		}
		for _, r := range rs.Records {
			row := make([]any, len(t.Columns))
			for k, v := range r.Attrs {
				if i, ok := pos[k]; ok {
					row[i] = v
				}
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return t
}

// Serialize writes t as UTF-8 comma-separated text with a header row.
// Missing values are empty fields.
func Serialize(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	rec := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j := range rec {
			rec[j] = ""
			if j < len(row) {
				rec[j] = model.FormatValue(row[j])
			}
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Stream copies an export artifact to w, gzip-encoded when asked, and
// returns the bytes written to w.
func Stream(w io.Writer, r io.Reader, gzipped bool) (int64, error) {
	if !gzipped {
		n, err := io.Copy(w, r)
		if err != nil {
			return n, fmt.Errorf("stream export: %w", err)
		}
		return n, nil
	}
	cw := &countingWriter{w: w}
	zw := gzip.NewWriter(cw)
	if _, err := io.Copy(zw, r); err != nil {
		_ = zw.Close()
		return cw.n, fmt.Errorf("stream export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("close gzip: %w", err)
	}
	return cw.n, nil
}
