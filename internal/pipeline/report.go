package pipeline

// report.go flattens a finished run into a downloadable report: one
// JSON document and a CSV of the rejected rows for operator review.

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mhollis/leadpipe/internal/campaign"
)

// Report is the flat, serializable accounting of one import run.
type Report struct {
	RunID        string                 `json:"runId"`
	FileName     string                 `json:"fileName,omitempty"`
	CampaignName string                 `json:"campaignName,omitempty"`
	CampaignID   string                 `json:"campaignId,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	Summary      Summary                `json:"summary"`
	InvalidRows  []InvalidRow           `json:"invalidRows,omitempty"`
	Batches      []campaign.BatchResult `json:"batches,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// BuildReport flattens an ImportResult into a Report.
func BuildReport(res *ImportResult) *Report {
	r := &Report{
		RunID:        res.RunID,
		FileName:     res.FileName,
		CampaignName: res.CampaignName,
		CreatedAt:    res.StartedAt,
		Summary:      res.Summary,
		InvalidRows:  res.InvalidRows,
		Error:        res.Error,
	}
	if res.Campaign != nil {
		r.CampaignID = res.Campaign.CampaignID
		r.Batches = res.Campaign.Batches
		if r.Error == "" && res.Campaign.Error != "" {
			r.Error = res.Campaign.Error
		}
	}
	return r
}

// WriteInvalidRowsCSV writes the rejected rows as CSV: row number, the
// accumulated reasons, then the original cell values in header order.
func (r *Report) WriteInvalidRowsCSV(w io.Writer, headers []string) error {
	cw := csv.NewWriter(w)

	record := append([]string{"Row", "Errors"}, headers...)
	if err := cw.Write(record); err != nil {
		return err
	}

	for _, row := range r.InvalidRows {
		record = record[:0]
		record = append(record, strconv.Itoa(row.Index), strings.Join(row.Errors, "; "))
		for _, h := range headers {
			record = append(record, row.Raw[h])
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
