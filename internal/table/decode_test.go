package table

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeCSV(t *testing.T) {
	data := []byte("Name,Phone,Email\nAlice,555-123-4567,alice@example.com\nBob,555-987-6543,bob@example.com\n")

	tbl, err := DecodeCSV(data, Limits{})
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}

	wantHeaders := []string{"Name", "Phone", "Email"}
	if len(tbl.Headers) != len(wantHeaders) {
		t.Fatalf("Headers = %v, want %v", tbl.Headers, wantHeaders)
	}
	for i, h := range wantHeaders {
		if tbl.Headers[i] != h {
			t.Errorf("Headers[%d] = %q, want %q", i, tbl.Headers[i], h)
		}
	}

	if len(tbl.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(tbl.Rows))
	}
	if got := tbl.Rows[0]["Phone"]; got != "555-123-4567" {
		t.Errorf("Rows[0][Phone] = %q, want %q", got, "555-123-4567")
	}
	if got := tbl.Rows[1]["Name"]; got != "Bob" {
		t.Errorf("Rows[1][Name] = %q, want %q", got, "Bob")
	}
}

func TestDecodeCSV_BOMAndInvalidUTF8(t *testing.T) {
	data := []byte("\xEF\xBB\xBFName,Phone\ncaf\xe9,555-123-4567\n")

	tbl, err := DecodeCSV(data, Limits{})
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}

	if tbl.Headers[0] != "Name" {
		t.Errorf("Headers[0] = %q, want %q (BOM not stripped?)", tbl.Headers[0], "Name")
	}
	if got := tbl.Rows[0]["Name"]; got != "caf�" {
		t.Errorf("Rows[0][Name] = %q, want %q", got, "caf�")
	}
}

func TestDecodeCSV_RaggedRows(t *testing.T) {
	data := []byte("Name,Phone,Email\nAlice,555-123-4567\nBob,555-987-6543,bob@example.com,extra\n")

	tbl, err := DecodeCSV(data, Limits{})
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}

	// Short row: missing cells are empty, not errors
	if got := tbl.Rows[0]["Email"]; got != "" {
		t.Errorf("Rows[0][Email] = %q, want empty", got)
	}
	// Long row: surplus cells are dropped
	if got := tbl.Rows[1]["Email"]; got != "bob@example.com" {
		t.Errorf("Rows[1][Email] = %q, want %q", got, "bob@example.com")
	}
}

func TestDecodeCSV_SkipsEmptyRows(t *testing.T) {
	data := []byte("Name,Phone\n\n,\nAlice,555-123-4567\n , \n")

	tbl, err := DecodeCSV(data, Limits{})
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("len(Rows) = %d, want 1", len(tbl.Rows))
	}
}

func TestDecodeCSV_BlankHeaderGetsPlaceholder(t *testing.T) {
	data := []byte("Name,,Phone\nAlice,x,555-123-4567\n")

	tbl, err := DecodeCSV(data, Limits{})
	if err != nil {
		t.Fatalf("DecodeCSV() error = %v", err)
	}
	if tbl.Headers[1] != "Column 2" {
		t.Errorf("Headers[1] = %q, want %q", tbl.Headers[1], "Column 2")
	}
	if got := tbl.Rows[0]["Column 2"]; got != "x" {
		t.Errorf("Rows[0][Column 2] = %q, want %q", got, "x")
	}
}

func TestDecodeCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		limits  Limits
		wantErr error
	}{
		{
			name:    "empty file",
			data:    "",
			wantErr: ErrEmptyFile,
		},
		{
			name:    "header only",
			data:    "Name,Phone\n",
			wantErr: ErrNoDataRows,
		},
		{
			name:    "row limit",
			data:    "Phone\n111\n222\n333\n",
			limits:  Limits{MaxRows: 2},
			wantErr: ErrTooManyRows,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCSV([]byte(tt.data), tt.limits)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("DecodeCSV() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecode_SizeLimit(t *testing.T) {
	data := []byte("Phone\n" + strings.Repeat("5551234567\n", 100))

	_, err := Decode("leads.csv", data, Limits{MaxFileSize: 10})
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("Decode() error = %v, want %v", err, ErrFileTooLarge)
	}
}

func TestDecode_ExtensionRouting(t *testing.T) {
	// A .xlsx extension must go through the Excel decoder, which rejects
	// CSV bytes as an invalid workbook.
	_, err := Decode("leads.xlsx", []byte("Phone\n5551234567\n"), Limits{})
	if err == nil {
		t.Fatal("Decode() expected error for CSV bytes with .xlsx extension")
	}
}
