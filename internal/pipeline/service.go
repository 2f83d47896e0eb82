package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mhollis/leadpipe/internal/campaign"
	"github.com/mhollis/leadpipe/internal/phone"
	"github.com/mhollis/leadpipe/internal/table"
)

// DefaultRunTimeout is the maximum duration for one import run.
const DefaultRunTimeout = 30 * time.Minute

// runRetention is how long a finished run stays queryable.
const runRetention = 5 * time.Minute

// Uploader submits a validated lead set to the campaign API.
// *campaign.Uploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, req campaign.UploadRequest, onProgress campaign.ProgressFunc) campaign.Result
}

// HistoryStore persists finished run reports. Implementations must be
// safe for concurrent use; recording is best-effort and never fails a
// run.
type HistoryStore interface {
	RecordRun(ctx context.Context, report *Report) error
}

// Options configures a Service.
type Options struct {
	DefaultRegion   string
	ChunkSize       int
	WorkerThreshold int
	YieldInterval   time.Duration
	MaxConcurrent   int
	MaxWaitTime     time.Duration
	RunTimeout      time.Duration
}

// Service owns the lifecycle of import runs: validation, upload,
// progress fan-out and result retention.
type Service struct {
	scheduler  *Scheduler
	uploader   Uploader
	history    HistoryStore
	region     string
	runTimeout time.Duration
	limiter    *RunLimiter

	mu   sync.RWMutex
	runs map[string]*importRun
}

type importRun struct {
	ID       string
	FileName string
	Cancel   context.CancelFunc
	Result   *ImportResult
	Done     chan struct{}

	// ListenerMu guards Progress, Listeners and finished. The run
	// goroutine mutates Progress while pollers read it concurrently, so
	// every access goes through setProgress/snapshot.
	ListenerMu sync.Mutex
	Progress   Progress
	Listeners  []chan Progress
	finished   bool
}

// NewService builds a Service. uploader may be nil for validate-only
// deployments; history may be nil when run persistence is disabled.
func NewService(opts Options, uploader Uploader, history HistoryStore) *Service {
	region := opts.DefaultRegion
	if region == "" {
		region = "US"
	}
	runTimeout := opts.RunTimeout
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}

	return &Service{
		scheduler:  NewScheduler(opts.ChunkSize, opts.WorkerThreshold, opts.YieldInterval),
		uploader:   uploader,
		history:    history,
		region:     region,
		runTimeout: runTimeout,
		limiter:    NewRunLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		runs:       make(map[string]*importRun),
	}
}

// Limiter exposes the run limiter for shutdown draining.
func (s *Service) Limiter() *RunLimiter {
	return s.limiter
}

// ImportRequest describes one import run. An empty CampaignName makes
// the run validate-only: the lead set is built and reported but nothing
// is uploaded.
type ImportRequest struct {
	Table         table.Table
	Mapping       Mapping
	FileName      string
	CampaignName  string
	Selector      campaign.Selector
	PhoneNumberID string
	APIKey        string
}

// StartImport begins an asynchronous import run and returns its ID
// immediately. Use SubscribeProgress or GetProgress for updates and
// GetResult for the final accounting.
//
// Returns ErrTooManyImports when the concurrent run limit is reached
// and no slot frees up within the wait window.
func (s *Service) StartImport(ctx context.Context, req ImportRequest) (string, error) {
	if err := req.Mapping.Validate(); err != nil {
		return "", err
	}
	if req.CampaignName != "" {
		if !req.Selector.Valid() {
			return "", fmt.Errorf("exactly one of assistant or workflow must be selected")
		}
		if req.APIKey == "" {
			return "", fmt.Errorf("API key is required to create a campaign")
		}
		if s.uploader == nil {
			return "", fmt.Errorf("campaign upload is not configured")
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	runID := uuid.New().String()
	runCtx, cancel := context.WithTimeout(context.Background(), s.runTimeout)

	run := &importRun{
		ID:       runID,
		FileName: req.FileName,
		Cancel:   cancel,
		Progress: Progress{
			RunID:    runID,
			Phase:    PhaseStarting,
			FileName: req.FileName,
		},
		Done:      make(chan struct{}),
		Listeners: make([]chan Progress, 0),
	}

	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	// Process in background with panic recovery so the limiter slot is
	// always released.
	go func() {
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in import run",
					"run_id", runID,
					"file", req.FileName,
					"panic", r,
				)
				run.setProgress(func(p *Progress) {
					p.Phase = PhaseFailed
					p.Error = fmt.Sprintf("internal error: %v", r)
				})
				run.closeListeners()
				close(run.Done)
				s.cleanup(runID, runRetention)
			}
		}()
		s.processImport(runCtx, run, req)
	}()

	return runID, nil
}

// processImport runs validation and, when a campaign is requested, the
// batched upload. It always finishes the run: listeners closed, result
// set, run scheduled for cleanup, context released.
func (s *Service) processImport(ctx context.Context, run *importRun, req ImportRequest) {
	startTime := time.Now()

	defer run.Cancel()
	defer func() {
		run.closeListeners()
		close(run.Done)
		s.cleanup(run.ID, runRetention)
	}()

	result := &ImportResult{
		RunID:        run.ID,
		FileName:     req.FileName,
		CampaignName: req.CampaignName,
		Headers:      req.Table.Headers,
		StartedAt:    startTime,
	}

	rows := Extract(req.Table, req.Mapping)

	run.setProgress(func(p *Progress) {
		p.Phase = PhaseValidating
		p.TotalRows = len(rows)
	})

	validator := NewValidator(phone.NewNormalizer(s.region))
	outcome, err := s.scheduler.Run(ctx, rows, validator, func(processed, total int) {
		run.setProgress(func(p *Progress) {
			p.RowsProcessed = processed
		})
	})
	if err != nil {
		s.failRun(run, result, err, startTime)
		return
	}

	result.Summary = outcome.Summary
	result.InvalidRows = outcome.Invalid

	if req.CampaignName != "" {
		if len(outcome.Leads) == 0 {
			s.failRun(run, result, fmt.Errorf("no valid leads to upload"), startTime)
			return
		}

		run.setProgress(func(p *Progress) {
			p.Phase = PhaseUploading
		})

		upRes := s.uploader.Upload(ctx, campaign.UploadRequest{
			Token:         req.APIKey,
			Name:          req.CampaignName,
			Selector:      req.Selector,
			PhoneNumberID: req.PhoneNumberID,
			Customers:     toCustomers(outcome.Leads),
		}, func(batch, total int) {
			run.setProgress(func(p *Progress) {
				p.BatchesSent = batch - 1
				p.TotalBatches = total
			})
		})

		result.Campaign = &upRes
		if !upRes.Success {
			s.failRun(run, result, fmt.Errorf("%s", upRes.Error), startTime)
			return
		}

		run.setProgress(func(p *Progress) {
			p.TotalBatches = len(upRes.Batches) + 1
			p.BatchesSent = p.TotalBatches
		})
	}

	result.Duration = time.Since(startTime)
	run.Result = result

	run.setProgress(func(p *Progress) {
		p.Phase = PhaseComplete
	})

	s.recordHistory(result)
}

// failRun finalizes a run that could not complete. Cancellation gets
// its own phase so the caller can tell it apart from a failure.
func (s *Service) failRun(run *importRun, result *ImportResult, err error, startTime time.Time) {
	phase := PhaseFailed
	if errors.Is(err, context.Canceled) {
		phase = PhaseCancelled
	}

	result.Error = err.Error()
	result.Duration = time.Since(startTime)
	run.Result = result

	run.setProgress(func(p *Progress) {
		p.Phase = phase
		p.Error = err.Error()
	})

	s.recordHistory(result)
}

// recordHistory persists the run report, best-effort. A store error is
// logged and swallowed: the import itself already finished.
func (s *Service) recordHistory(result *ImportResult) {
	if s.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.history.RecordRun(ctx, BuildReport(result)); err != nil {
		slog.Warn("record run history", "run_id", result.RunID, "error", err)
	}
}

// SubscribeProgress returns a channel receiving progress updates. The
// channel closes when the run completes.
func (s *Service) SubscribeProgress(runID string) (<-chan Progress, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 10)

	run.ListenerMu.Lock()
	if run.finished {
		// Run already completed: hand back the final progress and a
		// closed channel so the caller's loop terminates.
		final := run.Progress
		run.ListenerMu.Unlock()
		ch <- final
		close(ch)
		return ch, nil
	}
	run.Listeners = append(run.Listeners, ch)
	select {
	case ch <- run.Progress:
	default:
	}
	run.ListenerMu.Unlock()

	return ch, nil
}

// GetProgress returns the current progress without blocking.
func (s *Service) GetProgress(runID string) (Progress, error) {
	run, err := s.get(runID)
	if err != nil {
		return Progress{}, err
	}
	return run.snapshot(), nil
}

// GetResult blocks until the run completes and returns its result.
func (s *Service) GetResult(runID string) (*ImportResult, error) {
	run, err := s.get(runID)
	if err != nil {
		return nil, err
	}

	<-run.Done
	return run.Result, nil
}

// Cancel aborts an in-progress run.
func (s *Service) Cancel(runID string) error {
	run, err := s.get(runID)
	if err != nil {
		return err
	}

	run.Cancel()
	return nil
}

func (s *Service) get(runID string) (*importRun, error) {
	s.mu.RLock()
	run, ok := s.runs[runID]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	return run, nil
}

// cleanup drops the run from tracking after a delay.
func (s *Service) cleanup(runID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.runs, runID)
		s.mu.Unlock()
	})
}

// setProgress applies a mutation to the run's progress under the
// listener lock and fans the new value out to all listeners, skipping
// any that are slow. All progress writes go through here so concurrent
// pollers always see a consistent struct.
func (run *importRun) setProgress(mutate func(p *Progress)) {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	mutate(&run.Progress)
	for _, ch := range run.Listeners {
		select {
		case ch <- run.Progress:
		default:
		}
	}
}

// snapshot returns a copy of the current progress.
func (run *importRun) snapshot() Progress {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()
	return run.Progress
}

// closeListeners closes all listener channels and marks the run
// finished so late subscribers get a closed channel too.
func (run *importRun) closeListeners() {
	run.ListenerMu.Lock()
	defer run.ListenerMu.Unlock()

	run.finished = true
	for _, ch := range run.Listeners {
		close(ch)
	}
	run.Listeners = nil
}

// toCustomers converts leads to the API's customer shape.
func toCustomers(leads []Lead) []campaign.Customer {
	customers := make([]campaign.Customer, len(leads))
	for i, lead := range leads {
		customers[i] = campaign.Customer{
			Number: lead.Phone,
			Name:   lead.Name,
			Email:  lead.Email,
		}
	}
	return customers
}
