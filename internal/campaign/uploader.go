package campaign

// uploader.go submits a validated lead list to the campaign API in
// bounded batches. The first batch rides along with campaign creation;
// remaining batches are appended sequentially with a fixed pacing delay
// so the downstream rate limit is respected. A failed append is
// recorded but never stops later batches: the caller reconciles what
// landed from the per-batch results.

import (
	"context"
	"time"
)

// DefaultBatchSize is the number of leads submitted per request.
const DefaultBatchSize = 1000

// DefaultBatchDelay is the pause between consecutive batch requests.
const DefaultBatchDelay = 2000 * time.Millisecond

// ProgressFunc receives (batchNumber, totalBatches) before each append.
type ProgressFunc func(batch, total int)

// UploadRequest describes one campaign upload.
type UploadRequest struct {
	Token         string
	Name          string
	Selector      Selector
	PhoneNumberID string
	Customers     []Customer
}

// BatchResult records the outcome of one appended batch.
type BatchResult struct {
	Batch   int    `json:"batch"`
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
}

// Result is the aggregate outcome of an upload.
type Result struct {
	Success    bool          `json:"success"`
	CampaignID string        `json:"campaignId,omitempty"`
	Error      string        `json:"error,omitempty"`
	TotalLeads int           `json:"totalLeads"`
	Batches    []BatchResult `json:"batches"`
}

// Uploader partitions leads into batches and drives the campaign API.
type Uploader struct {
	client     *Client
	batchSize  int
	batchDelay time.Duration
}

// NewUploader builds an Uploader over client. Non-positive batchSize or
// batchDelay fall back to the defaults.
func NewUploader(client *Client, batchSize int, batchDelay time.Duration) *Uploader {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if batchDelay <= 0 {
		batchDelay = DefaultBatchDelay
	}
	return &Uploader{
		client:     client,
		batchSize:  batchSize,
		batchDelay: batchDelay,
	}
}

// Upload creates the campaign with the first batch of customers, then
// appends the remaining batches in order. Creation failure is fatal and
// leaves nothing behind; append failures are recorded per batch and do
// not abort the rest.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest, onProgress ProgressFunc) Result {
	result := Result{TotalLeads: len(req.Customers)}

	batches := partition(req.Customers, u.batchSize)
	if len(batches) == 0 {
		result.Error = "no leads to upload"
		return result
	}
	total := len(batches)

	campaignID, err := u.client.CreateCampaign(ctx, req.Token, CreateCampaignRequest{
		Name:          req.Name,
		Selector:      req.Selector,
		PhoneNumberID: req.PhoneNumberID,
		Customers:     batches[0],
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.Success = true
	result.CampaignID = campaignID

	for i, batch := range batches[1:] {
		batchNum := i + 2 // batch 1 went with creation

		if err := u.pace(ctx); err != nil {
			result.Batches = append(result.Batches, BatchResult{
				Batch: batchNum,
				Count: len(batch),
				Error: err.Error(),
			})
			continue
		}

		if onProgress != nil {
			onProgress(batchNum, total)
		}

		br := BatchResult{Batch: batchNum, Count: len(batch)}
		if err := u.client.AppendCustomers(ctx, req.Token, campaignID, batch); err != nil {
			br.Error = err.Error()
		} else {
			br.Success = true
		}
		result.Batches = append(result.Batches, br)
	}

	return result
}

// pace waits the inter-batch delay, honoring cancellation.
func (u *Uploader) pace(ctx context.Context) error {
	timer := time.NewTimer(u.batchDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// partition splits customers into contiguous slices of at most size.
func partition(customers []Customer, size int) [][]Customer {
	var batches [][]Customer
	for start := 0; start < len(customers); start += size {
		end := start + size
		if end > len(customers) {
			end = len(customers)
		}
		batches = append(batches, customers[start:end])
	}
	return batches
}
