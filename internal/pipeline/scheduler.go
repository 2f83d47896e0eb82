package pipeline

// scheduler.go runs the validator over the full row set in fixed-size
// chunks. Small inputs are processed inline with a bounded pause after
// each chunk; inputs over the worker threshold are offloaded to a
// single background goroutine that streams per-chunk results back over
// a channel. Both paths feed the same validator in the same order, so
// their output is identical; the offload exists purely to keep the
// caller responsive.

import (
	"context"
	"fmt"
	"time"
)

// DefaultChunkSize is the number of rows validated per chunk.
const DefaultChunkSize = 1000

// DefaultWorkerThreshold is the row count above which validation moves
// to a background goroutine.
const DefaultWorkerThreshold = 10000

// DefaultYieldInterval is the pause between chunks on the inline path.
const DefaultYieldInterval = 50 * time.Millisecond

// ValidationProgressFunc receives cumulative (processed, total) counts
// after every chunk.
type ValidationProgressFunc func(processed, total int)

// Outcome is the complete result of validating one row set.
type Outcome struct {
	Leads   []Lead
	Invalid []InvalidRow
	Summary Summary
}

// Scheduler chunks row sets and drives a Validator over them.
type Scheduler struct {
	chunkSize       int
	workerThreshold int
	yieldInterval   time.Duration
}

// NewScheduler builds a Scheduler; non-positive arguments fall back to
// the defaults.
func NewScheduler(chunkSize, workerThreshold int, yieldInterval time.Duration) *Scheduler {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if workerThreshold <= 0 {
		workerThreshold = DefaultWorkerThreshold
	}
	if yieldInterval <= 0 {
		yieldInterval = DefaultYieldInterval
	}
	return &Scheduler{
		chunkSize:       chunkSize,
		workerThreshold: workerThreshold,
		yieldInterval:   yieldInterval,
	}
}

// Run validates rows in order and returns the aggregate outcome. A
// row-level problem never fails the run; only cancellation or a
// background worker failure does.
func (s *Scheduler) Run(ctx context.Context, rows []ExtractedRow, v *Validator, onProgress ValidationProgressFunc) (*Outcome, error) {
	if len(rows) > s.workerThreshold {
		return s.runOffloaded(ctx, rows, v, onProgress)
	}
	return s.runInline(ctx, rows, v, onProgress)
}

// chunkResult carries one chunk's output from the worker goroutine.
type chunkResult struct {
	leads     []Lead
	invalid   []InvalidRow
	processed int
	err       error
}

// runInline processes chunks on the caller's goroutine, pausing between
// chunks so the host stays responsive.
func (s *Scheduler) runInline(ctx context.Context, rows []ExtractedRow, v *Validator, onProgress ValidationProgressFunc) (*Outcome, error) {
	outcome := &Outcome{Summary: Summary{Total: len(rows)}}
	processed := 0

	for start := 0; start < len(rows); start += s.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res := processChunk(rows[start:chunkEnd(start, s.chunkSize, len(rows))], v)
		outcome.Leads = append(outcome.Leads, res.leads...)
		outcome.Invalid = append(outcome.Invalid, res.invalid...)
		processed += res.processed

		if onProgress != nil {
			onProgress(processed, len(rows))
		}

		if start+s.chunkSize < len(rows) {
			if err := s.yield(ctx); err != nil {
				return nil, err
			}
		}
	}

	outcome.Summary.Valid = len(outcome.Leads)
	outcome.Summary.Invalid = len(outcome.Invalid)
	outcome.Summary.Duplicates = v.Duplicates()
	return outcome, nil
}

// runOffloaded processes chunks on one background goroutine, streaming
// results back. A worker failure is fatal to the whole run.
func (s *Scheduler) runOffloaded(ctx context.Context, rows []ExtractedRow, v *Validator, onProgress ValidationProgressFunc) (*Outcome, error) {
	results := make(chan chunkResult, 1)

	go func() {
		defer close(results)
		defer func() {
			if r := recover(); r != nil {
				results <- chunkResult{err: fmt.Errorf("validation worker panic: %v", r)}
			}
		}()

		for start := 0; start < len(rows); start += s.chunkSize {
			if err := ctx.Err(); err != nil {
				results <- chunkResult{err: err}
				return
			}
			select {
			case results <- processChunk(rows[start:chunkEnd(start, s.chunkSize, len(rows))], v):
			case <-ctx.Done():
				results <- chunkResult{err: ctx.Err()}
				return
			}
		}
	}()

	outcome := &Outcome{Summary: Summary{Total: len(rows)}}
	processed := 0

	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		outcome.Leads = append(outcome.Leads, res.leads...)
		outcome.Invalid = append(outcome.Invalid, res.invalid...)
		processed += res.processed

		if onProgress != nil {
			onProgress(processed, len(rows))
		}
	}

	outcome.Summary.Valid = len(outcome.Leads)
	outcome.Summary.Invalid = len(outcome.Invalid)
	outcome.Summary.Duplicates = v.Duplicates()
	return outcome, nil
}

// processChunk validates one chunk. Row order within the chunk is
// preserved and the validator's seen-set carries across chunks.
func processChunk(chunk []ExtractedRow, v *Validator) chunkResult {
	res := chunkResult{processed: len(chunk)}
	for _, row := range chunk {
		lead, invalid := v.ValidateRow(row)
		if invalid != nil {
			res.invalid = append(res.invalid, *invalid)
			continue
		}
		res.leads = append(res.leads, lead)
	}
	return res
}

// yield pauses between chunks, honoring cancellation.
func (s *Scheduler) yield(ctx context.Context) error {
	timer := time.NewTimer(s.yieldInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func chunkEnd(start, size, n int) int {
	end := start + size
	if end > n {
		return n
	}
	return end
}
