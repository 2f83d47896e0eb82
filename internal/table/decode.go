package table

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrEmptyFile is returned when the source contains no rows at all.
	ErrEmptyFile = errors.New("file is empty")

	// ErrNoDataRows is returned when the source has a header but no data.
	ErrNoDataRows = errors.New("no data rows after header")

	// ErrFileTooLarge is returned when the source exceeds Limits.MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds size limit")

	// ErrTooManyRows is returned when the source exceeds Limits.MaxRows.
	ErrTooManyRows = errors.New("file exceeds row limit")
)

// Decode parses a lead list from raw bytes, choosing the decoder from the
// file extension: .xlsx/.xls go through Excel parsing, everything else is
// treated as CSV. The first row is the header.
func Decode(filename string, data []byte, limits Limits) (*Table, error) {
	if limits.MaxFileSize > 0 && int64(len(data)) > limits.MaxFileSize {
		return nil, fmt.Errorf("%w (%d bytes, limit %d)", ErrFileTooLarge, len(data), limits.MaxFileSize)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xls":
		return DecodeExcel(bytes.NewReader(data), limits)
	default:
		return DecodeCSV(data, limits)
	}
}

// DecodeCSV parses CSV bytes into a Table. A UTF-8 BOM is stripped and
// invalid UTF-8 sequences are replaced so downstream string handling is
// always safe. Quoting is lenient and rows may have ragged widths.
func DecodeCSV(data []byte, limits Limits) (*Table, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	data = sanitizeUTF8(data)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	return fromRecords(records, limits)
}

// DecodeExcel parses the first sheet of an Excel workbook into a Table.
func DecodeExcel(r io.Reader, limits Limits) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRecords(rows, limits)
}

// fromRecords applies the header/data split and row limits.
func fromRecords(records [][]string, limits Limits) (*Table, error) {
	// Drop leading fully-empty records before the header
	for len(records) > 0 && isEmptyRecord(records[0]) {
		records = records[1:]
	}
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	header := records[0]
	data := records[1:]

	t := build(header, data)
	if len(t.Rows) == 0 {
		return nil, ErrNoDataRows
	}
	if limits.MaxRows > 0 && len(t.Rows) > limits.MaxRows {
		return nil, fmt.Errorf("%w (%d rows, limit %d)", ErrTooManyRows, len(t.Rows), limits.MaxRows)
	}
	return t, nil
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the replacement
// character. Windows exports frequently carry Latin-1 bytes that would
// otherwise corrupt JSON responses downstream.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.Write(data[:size])
			data = data[size:]
		}
	}

	return buf.Bytes()
}
