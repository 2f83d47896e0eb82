package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeAPI records campaign create/append traffic for uploader tests.
type fakeAPI struct {
	mu       sync.Mutex
	created  []createCampaignBody
	appended [][]Customer

	failCreate  bool
	failBatches map[int]bool // 0-based append index -> fail
}

func (f *fakeAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		body, _ := io.ReadAll(r.Body)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/campaign":
			if f.failCreate {
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{"message": "assistant not found"})
				return
			}
			var req createCampaignBody
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("bad create body: %v", err)
			}
			f.created = append(f.created, req)
			json.NewEncoder(w).Encode(map[string]string{"id": "camp-1"})

		case r.Method == http.MethodPatch && strings.HasPrefix(r.URL.Path, "/campaign/"):
			var req appendCustomersBody
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("bad append body: %v", err)
			}
			idx := len(f.appended)
			f.appended = append(f.appended, req.Customers)
			if f.failBatches[idx] {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{"message": "batch rejected"})
				return
			}
			w.Write([]byte(`{}`))

		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func testUploader(t *testing.T, api *fakeAPI, batchSize int) *Uploader {
	t.Helper()
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	c := NewClient(srv.URL, 5*time.Second, 0)
	c.SetHTTPClient(srv.Client())
	return NewUploader(c, batchSize, time.Millisecond)
}

func makeCustomers(n int) []Customer {
	customers := make([]Customer, n)
	for i := range customers {
		customers[i] = Customer{Number: fmt.Sprintf("+1212555%04d", i)}
	}
	return customers
}

func TestUpload_SplitsIntoBatches(t *testing.T) {
	api := &fakeAPI{}
	u := testUploader(t, api, 1000)

	var progress [][2]int
	result := u.Upload(context.Background(), UploadRequest{
		Token:     "t",
		Name:      "big list",
		Selector:  Selector{AssistantID: "a"},
		Customers: makeCustomers(2500),
	}, func(batch, total int) {
		progress = append(progress, [2]int{batch, total})
	})

	if !result.Success {
		t.Fatalf("Upload failed: %s", result.Error)
	}
	if result.CampaignID != "camp-1" {
		t.Errorf("campaign id = %q", result.CampaignID)
	}
	if result.TotalLeads != 2500 {
		t.Errorf("total leads = %d, want 2500", result.TotalLeads)
	}
	if len(result.Batches) != 2 {
		t.Fatalf("batch results = %d, want 2", len(result.Batches))
	}
	for _, br := range result.Batches {
		if !br.Success {
			t.Errorf("batch %d failed: %s", br.Batch, br.Error)
		}
	}

	if len(api.created) != 1 || len(api.created[0].Customers) != 1000 {
		t.Fatalf("create carried %d customers, want 1000", len(api.created[0].Customers))
	}
	if len(api.appended) != 2 {
		t.Fatalf("appends = %d, want 2", len(api.appended))
	}

	// Concatenating first batch + appends must reproduce the input
	// exactly, no row duplicated or dropped.
	var all []Customer
	all = append(all, api.created[0].Customers...)
	for _, batch := range api.appended {
		all = append(all, batch...)
	}
	want := makeCustomers(2500)
	if len(all) != len(want) {
		t.Fatalf("reassembled %d leads, want %d", len(all), len(want))
	}
	for i := range all {
		if all[i].Number != want[i].Number {
			t.Fatalf("lead %d = %q, want %q", i, all[i].Number, want[i].Number)
		}
	}

	wantProgress := [][2]int{{2, 3}, {3, 3}}
	if len(progress) != len(wantProgress) {
		t.Fatalf("progress calls = %v, want %v", progress, wantProgress)
	}
	for i := range progress {
		if progress[i] != wantProgress[i] {
			t.Errorf("progress[%d] = %v, want %v", i, progress[i], wantProgress[i])
		}
	}
}

func TestUpload_CreateFailureIsFatal(t *testing.T) {
	api := &fakeAPI{failCreate: true}
	u := testUploader(t, api, 1000)

	result := u.Upload(context.Background(), UploadRequest{
		Token:     "t",
		Name:      "list",
		Selector:  Selector{AssistantID: "a"},
		Customers: makeCustomers(2500),
	}, nil)

	if result.Success {
		t.Error("expected success=false")
	}
	if result.CampaignID != "" {
		t.Errorf("campaign id = %q, want empty", result.CampaignID)
	}
	if len(result.Batches) != 0 {
		t.Errorf("batch results = %d, want 0", len(result.Batches))
	}
	if !strings.Contains(result.Error, "assistant not found") {
		t.Errorf("error %q missing server message", result.Error)
	}
	if len(api.appended) != 0 {
		t.Errorf("appends = %d after failed create", len(api.appended))
	}
}

func TestUpload_FailedBatchDoesNotAbort(t *testing.T) {
	api := &fakeAPI{failBatches: map[int]bool{0: true}}
	u := testUploader(t, api, 10)

	result := u.Upload(context.Background(), UploadRequest{
		Token:     "t",
		Name:      "list",
		Selector:  Selector{WorkflowID: "w"},
		Customers: makeCustomers(30),
	}, nil)

	if !result.Success {
		t.Fatalf("Upload failed: %s", result.Error)
	}
	if len(result.Batches) != 2 {
		t.Fatalf("batch results = %d, want 2", len(result.Batches))
	}

	first, second := result.Batches[0], result.Batches[1]
	if first.Success || !strings.Contains(first.Error, "batch rejected") {
		t.Errorf("first append = %+v, want recorded failure", first)
	}
	if !second.Success {
		t.Errorf("second append = %+v, want success", second)
	}
	if len(api.appended) != 2 {
		t.Errorf("appends = %d, want 2 (failure must not stop later batches)", len(api.appended))
	}
}

func TestUpload_SingleBatch(t *testing.T) {
	api := &fakeAPI{}
	u := testUploader(t, api, 1000)

	called := false
	result := u.Upload(context.Background(), UploadRequest{
		Token:     "t",
		Name:      "small",
		Selector:  Selector{AssistantID: "a"},
		Customers: makeCustomers(5),
	}, func(batch, total int) { called = true })

	if !result.Success {
		t.Fatalf("Upload failed: %s", result.Error)
	}
	if len(result.Batches) != 0 {
		t.Errorf("batch results = %d, want 0 (only batch folds into create)", len(result.Batches))
	}
	if called {
		t.Error("progress callback fired with no appends")
	}
}

func TestUpload_NoLeads(t *testing.T) {
	u := NewUploader(NewClient("http://unused", time.Second, 0), 1000, time.Millisecond)

	result := u.Upload(context.Background(), UploadRequest{
		Token:    "t",
		Name:     "empty",
		Selector: Selector{AssistantID: "a"},
	}, nil)

	if result.Success {
		t.Error("expected success=false for empty lead list")
	}
}
