package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rmkenv/OS-ST-GIS/internal/core/model"
)

func parseCSV(name string, data []byte) (*model.RawTable, error) {
	// BOMOverride strips a UTF-8 BOM and decodes UTF-16 exports by their BOM.
	dec := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	r := csv.NewReader(transform.NewReader(bytes.NewReader(data), dec))

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &model.ParseError{Format: "csv", Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, &model.ParseError{Format: "csv", Err: fmt.Errorf("read header: %w", err)}
	}

	var cells [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// wrong field counts surface here as csv.ErrFieldCount
			return nil, &model.ParseError{Format: "csv", Err: err}
		}
		cells = append(cells, rec)
	}
	return buildTable(name, headerNames(header), cells), nil
}

func parseXLSX(name string, data []byte) (*model.RawTable, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &model.ParseError{Format: "xlsx", Err: fmt.Errorf("open workbook: %w", err)}
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &model.ParseError{Format: "xlsx", Err: errors.New("workbook has no sheets")}
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &model.ParseError{Format: "xlsx", Err: fmt.Errorf("read sheet %q: %w", sheets[0], err)}
	}

	// leading blank rows are skipped, the first non-blank row is the header
	for len(rows) > 0 && blankRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, &model.ParseError{Format: "xlsx", Err: fmt.Errorf("sheet %q is empty", sheets[0])}
	}
	columns := headerNames(rows[0])

	cells := make([][]string, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		if blankRow(rec) {
			continue
		}
		// GetRows trims trailing empty cells, so only longer rows are malformed
		if len(rec) > len(columns) {
			return nil, &model.ParseError{
				Format: "xlsx",
				Err:    fmt.Errorf("row %d has %d cells, header has %d", i+2, len(rec), len(columns)),
			}
		}
		cells = append(cells, rec)
	}
	return buildTable(name, columns, cells), nil
}

func blankRow(rec []string) bool {
	for _, c := range rec {
		if c != "" {
			return false
		}
	}
	return true
}
