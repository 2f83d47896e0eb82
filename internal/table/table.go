// Package table models the decoded lead list: an ordered set of column
// headers plus data rows keyed by header. Decoders for CSV and Excel
// sources produce it; the import pipeline consumes it.
package table

import (
	"strconv"
	"strings"
)

// Row holds one data row's raw cell values keyed by header name.
type Row map[string]string

// Table is an immutable decoded lead list.
type Table struct {
	// Headers preserves the source column order.
	Headers []string

	// Rows holds the data rows in source order. Cells are raw strings;
	// no cleaning has been applied yet.
	Rows []Row
}

// Limits bounds what a decoder will accept. Zero values disable a bound.
type Limits struct {
	MaxFileSize int64 // bytes
	MaxRows     int   // data rows, excluding the header
}

// build assembles a Table from a header record and data records.
// Headers are trimmed; blank headers get a positional placeholder so the
// cell is still addressable. Fully empty data rows are dropped.
func build(header []string, records [][]string) *Table {
	headers := make([]string, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			h = "Column " + strconv.Itoa(i+1)
		}
		headers[i] = h
	}

	t := &Table{Headers: headers}
	for _, rec := range records {
		if isEmptyRecord(rec) {
			continue
		}
		row := make(Row, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// isEmptyRecord reports whether every cell is blank.
func isEmptyRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
