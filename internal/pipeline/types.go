// Package pipeline turns a decoded lead table into a validated,
// deduplicated lead set and drives the campaign upload, reporting
// progress along the way. It has no HTTP dependencies and can be used
// by any frontend.
package pipeline

import (
	"fmt"
	"time"

	"github.com/mhollis/leadpipe/internal/campaign"
	"github.com/mhollis/leadpipe/internal/table"
)

// Mapping selects which table headers feed each semantic field. Phone
// is mandatory; name and email are optional.
type Mapping struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Validate checks that the mapping can drive an import.
func (m Mapping) Validate() error {
	if m.Phone == "" {
		return fmt.Errorf("phone column is required")
	}
	return nil
}

// ExtractedRow is one input row reduced to its semantic fields. Index
// is 1-based. Raw keeps the original row for error reporting.
type ExtractedRow struct {
	Index int
	Phone string
	Name  string
	Email string
	Raw   table.Row
}

// Lead is a row that survived validation. Phone is canonical E.164 and
// doubles as the deduplication key.
type Lead struct {
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// InvalidRow records a rejected row with every reason that applied.
type InvalidRow struct {
	Index  int       `json:"row"`
	Raw    table.Row `json:"data,omitempty"`
	Errors []string  `json:"errors"`
}

// Summary aggregates validation counts for one run.
type Summary struct {
	Total      int `json:"total"`
	Valid      int `json:"valid"`
	Invalid    int `json:"invalid"`
	Duplicates int `json:"duplicates"`
}

// Phase indicates where an import run currently is.
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhaseValidating Phase = "validating"
	PhaseUploading  Phase = "uploading"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
	PhaseCancelled  Phase = "cancelled"
)

// Progress is the externally observable state of a run.
type Progress struct {
	RunID         string `json:"runId"`
	Phase         Phase  `json:"phase"`
	FileName      string `json:"fileName,omitempty"`
	RowsProcessed int    `json:"rowsProcessed"`
	TotalRows     int    `json:"totalRows"`
	BatchesSent   int    `json:"batchesSent"`
	TotalBatches  int    `json:"totalBatches"`
	Error         string `json:"error,omitempty"`
}

// Percent returns overall progress as 0-100, weighting validation and
// upload equally when both apply.
func (p Progress) Percent() int {
	validation := 0
	if p.TotalRows > 0 {
		validation = (p.RowsProcessed * 100) / p.TotalRows
	}
	if p.TotalBatches == 0 {
		return validation
	}
	upload := (p.BatchesSent * 100) / p.TotalBatches
	return validation/2 + upload/2
}

// ImportResult is the final accounting of one run.
type ImportResult struct {
	RunID        string           `json:"runId"`
	FileName     string           `json:"fileName,omitempty"`
	CampaignName string           `json:"campaignName,omitempty"`
	Headers      []string         `json:"headers,omitempty"`
	Summary      Summary          `json:"summary"`
	InvalidRows  []InvalidRow     `json:"invalidRows,omitempty"`
	Campaign     *campaign.Result `json:"campaign,omitempty"`
	StartedAt    time.Time        `json:"startedAt"`
	Duration     time.Duration    `json:"duration"`
	Error        string           `json:"error,omitempty"`
}

// Extract applies a confirmed mapping to a table, producing one
// ExtractedRow per input row in order. Unmapped fields come back as
// empty strings.
func Extract(t table.Table, m Mapping) []ExtractedRow {
	rows := make([]ExtractedRow, len(t.Rows))
	for i, raw := range t.Rows {
		rows[i] = ExtractedRow{
			Index: i + 1,
			Phone: raw[m.Phone],
			Name:  raw[m.Name],
			Email: raw[m.Email],
			Raw:   raw,
		}
	}
	return rows
}
