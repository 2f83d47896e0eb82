package pipeline

// limiter.go bounds how many import runs process at once. A semaphore
// caps parallel runs; when every slot is taken, new starts wait up to
// maxWait before failing with ErrTooManyImports. WaitForDrain supports
// graceful shutdown.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when all run slots are occupied and the
// wait timeout expires. Clients should retry shortly.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// DefaultMaxConcurrentRuns caps parallel import runs.
const DefaultMaxConcurrentRuns = 5

// DefaultMaxWaitTime is how long Acquire waits for a slot.
const DefaultMaxWaitTime = 30 * time.Second

// RunLimiter restricts concurrent import processing.
type RunLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewRunLimiter allows at most maxConcurrent simultaneous runs.
func NewRunLimiter(maxConcurrent int, maxWait time.Duration) *RunLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentRuns
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &RunLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire claims a run slot, waiting up to the configured timeout. The
// caller must Release exactly once per successful Acquire.
func (l *RunLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

// Release frees a previously acquired slot.
func (l *RunLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()

	<-l.semaphore
}

// ActiveCount returns the number of runs currently holding a slot.
func (l *RunLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until every active run finishes or ctx expires.
func (l *RunLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.ActiveCount() == 0 {
				return nil
			}
		}
	}
}
