// Package history persists finished import run reports in Postgres so
// operators can audit what was uploaded after the in-memory run
// expires. The store is optional: when no database is configured the
// server simply runs without history.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mhollis/leadpipe/internal/campaign"
	"github.com/mhollis/leadpipe/internal/pipeline"
)

// Store writes and reads run reports.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps a connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the history tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS import_runs (
	id            UUID PRIMARY KEY,
	file_name     TEXT NOT NULL DEFAULT '',
	campaign_name TEXT NOT NULL DEFAULT '',
	campaign_id   TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	total_rows    INT NOT NULL DEFAULT 0,
	valid_rows    INT NOT NULL DEFAULT 0,
	invalid_rows  INT NOT NULL DEFAULT 0,
	duplicates    INT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS import_batches (
	run_id     UUID NOT NULL REFERENCES import_runs(id) ON DELETE CASCADE,
	batch      INT NOT NULL,
	success    BOOLEAN NOT NULL,
	lead_count INT NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, batch)
);

CREATE TABLE IF NOT EXISTS import_invalid_rows (
	run_id     UUID NOT NULL REFERENCES import_runs(id) ON DELETE CASCADE,
	row_number INT NOT NULL,
	reasons    TEXT[] NOT NULL,
	row_data   JSONB,
	PRIMARY KEY (run_id, row_number)
);`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// RecordRun stores a finished run report atomically.
func (s *Store) RecordRun(ctx context.Context, report *pipeline.Report) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO import_runs
			(id, file_name, campaign_name, campaign_id, error,
			 total_rows, valid_rows, invalid_rows, duplicates, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		report.RunID, report.FileName, report.CampaignName, report.CampaignID,
		report.Error, report.Summary.Total, report.Summary.Valid,
		report.Summary.Invalid, report.Summary.Duplicates, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, batch := range report.Batches {
		_, err = tx.Exec(ctx, `
			INSERT INTO import_batches (run_id, batch, success, lead_count, error)
			VALUES ($1, $2, $3, $4, $5)`,
			report.RunID, batch.Batch, batch.Success, batch.Count, batch.Error,
		)
		if err != nil {
			return fmt.Errorf("insert batch %d: %w", batch.Batch, err)
		}
	}

	for _, row := range report.InvalidRows {
		var rowData []byte
		if row.Raw != nil {
			if rowData, err = json.Marshal(row.Raw); err != nil {
				return fmt.Errorf("marshal row %d: %w", row.Index, err)
			}
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO import_invalid_rows (run_id, row_number, reasons, row_data)
			VALUES ($1, $2, $3, $4)`,
			report.RunID, row.Index, row.Errors, rowData,
		)
		if err != nil {
			return fmt.Errorf("insert invalid row %d: %w", row.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	RunID        string           `json:"runId"`
	FileName     string           `json:"fileName,omitempty"`
	CampaignName string           `json:"campaignName,omitempty"`
	CampaignID   string           `json:"campaignId,omitempty"`
	Error        string           `json:"error,omitempty"`
	Summary      pipeline.Summary `json:"summary"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, file_name, campaign_name, campaign_id, error,
		       total_rows, valid_rows, invalid_rows, duplicates, created_at
		FROM import_runs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		err := rows.Scan(&r.RunID, &r.FileName, &r.CampaignName, &r.CampaignID,
			&r.Error, &r.Summary.Total, &r.Summary.Valid, &r.Summary.Invalid,
			&r.Summary.Duplicates, &r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return runs, nil
}

// GetReport reassembles the full report for one run.
func (s *Store) GetReport(ctx context.Context, runID string) (*pipeline.Report, error) {
	report := &pipeline.Report{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, file_name, campaign_name, campaign_id, error,
		       total_rows, valid_rows, invalid_rows, duplicates, created_at
		FROM import_runs
		WHERE id = $1`, runID).Scan(
		&report.RunID, &report.FileName, &report.CampaignName, &report.CampaignID,
		&report.Error, &report.Summary.Total, &report.Summary.Valid,
		&report.Summary.Invalid, &report.Summary.Duplicates, &report.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("run not found: %w", err)
	}

	batchRows, err := s.pool.Query(ctx, `
		SELECT batch, success, lead_count, error
		FROM import_batches
		WHERE run_id = $1
		ORDER BY batch`, runID)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer batchRows.Close()

	for batchRows.Next() {
		var b struct {
			Batch   int
			Success bool
			Count   int
			Error   string
		}
		if err := batchRows.Scan(&b.Batch, &b.Success, &b.Count, &b.Error); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		report.Batches = append(report.Batches, campaign.BatchResult{
			Batch:   b.Batch,
			Success: b.Success,
			Count:   b.Count,
			Error:   b.Error,
		})
	}
	if err := batchRows.Err(); err != nil {
		return nil, fmt.Errorf("batch rows error: %w", err)
	}

	invalidRows, err := s.pool.Query(ctx, `
		SELECT row_number, reasons, row_data
		FROM import_invalid_rows
		WHERE run_id = $1
		ORDER BY row_number`, runID)
	if err != nil {
		return nil, fmt.Errorf("query invalid rows: %w", err)
	}
	defer invalidRows.Close()

	for invalidRows.Next() {
		var row pipeline.InvalidRow
		var rowData []byte
		if err := invalidRows.Scan(&row.Index, &row.Errors, &rowData); err != nil {
			return nil, fmt.Errorf("scan invalid row: %w", err)
		}
		if len(rowData) > 0 {
			if err := json.Unmarshal(rowData, &row.Raw); err != nil {
				return nil, fmt.Errorf("unmarshal row %d: %w", row.Index, err)
			}
		}
		report.InvalidRows = append(report.InvalidRows, row)
	}
	if err := invalidRows.Err(); err != nil {
		return nil, fmt.Errorf("invalid rows error: %w", err)
	}

	return report, nil
}
