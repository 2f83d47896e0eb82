package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mhollis/leadpipe/internal/campaign"
	"github.com/mhollis/leadpipe/internal/config"
	"github.com/mhollis/leadpipe/internal/pipeline"
)

func newTestServer(t *testing.T, campaigns *campaign.Client) *Server {
	t.Helper()

	cfg := &config.Config{
		Import: config.ImportConfig{
			MaxFileSize:     1 << 20,
			MaxRows:         1000,
			ChunkSize:       100,
			WorkerThreshold: 10000,
			YieldInterval:   time.Millisecond,
			DefaultRegion:   "US",
			MaxConcurrent:   2,
			MaxWaitTime:     time.Second,
			Timeout:         time.Minute,
		},
	}
	cfg.Server.AllowedOrigins = []string{"*"}

	svc := pipeline.NewService(pipeline.Options{
		DefaultRegion:   cfg.Import.DefaultRegion,
		ChunkSize:       cfg.Import.ChunkSize,
		WorkerThreshold: cfg.Import.WorkerThreshold,
		YieldInterval:   cfg.Import.YieldInterval,
		MaxConcurrent:   cfg.Import.MaxConcurrent,
		MaxWaitTime:     cfg.Import.MaxWaitTime,
		RunTimeout:      cfg.Import.Timeout,
	}, nil, nil)

	return NewServer(cfg, svc, campaigns, nil)
}

func multipartCSV(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func uploadCSV(t *testing.T, s *Server, content string) uploadFileResponse {
	t.Helper()

	body, contentType := multipartCSV(t, "leads.csv", content)
	req := httptest.NewRequest(http.MethodPost, "/api/files", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp uploadFileResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestUploadFile(t *testing.T) {
	s := newTestServer(t, nil)

	resp := uploadCSV(t, s, strings.Join([]string{
		"Customer Name,Mobile Number,Email Address",
		"Jane Doe,(212) 555-0123,jane@example.com",
		"Bob Ray,212-555-0188,bob@example.com",
	}, "\n"))

	if resp.FileID == "" {
		t.Fatal("expected a file ID")
	}
	if resp.RowCount != 2 {
		t.Fatalf("RowCount = %d, want 2", resp.RowCount)
	}
	if got := resp.Detected["phone"].Header; got != "Mobile Number" {
		t.Errorf("detected phone = %q, want Mobile Number", got)
	}
	if len(resp.Preview) != 2 {
		t.Errorf("preview rows = %d, want 2", len(resp.Preview))
	}
}

func TestUploadFile_NoFile(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func startImport(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func waitForFinish(t *testing.T, s *Server, runID string) pipeline.Progress {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/api/imports/"+runID+"/progress", nil)
		rec := httptest.NewRecorder()
		s.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("progress status = %d", rec.Code)
		}

		var progress pipeline.Progress
		if err := json.Unmarshal(rec.Body.Bytes(), &progress); err != nil {
			t.Fatal(err)
		}
		if terminal(progress.Phase) {
			return progress
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return pipeline.Progress{}
}

func TestImportFlow_ValidateOnly(t *testing.T) {
	s := newTestServer(t, nil)

	file := uploadCSV(t, s, strings.Join([]string{
		"Name,Phone,Email",
		"Jane Doe,(212) 555-0123,jane@example.com",
		"Bob Ray,not a number,bob@example.com",
	}, "\n"))

	rec := startImport(t, s, `{
		"fileId": "`+file.FileID+`",
		"mapping": {"phone": "Phone", "name": "Name", "email": "Email"}
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d, body %s", rec.Code, rec.Body.String())
	}

	var started map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatal(err)
	}
	runID := started["runId"]
	if runID == "" {
		t.Fatal("expected a run ID")
	}

	progress := waitForFinish(t, s, runID)
	if progress.Phase != pipeline.PhaseComplete {
		t.Fatalf("phase = %s, want complete (error: %s)", progress.Phase, progress.Error)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/imports/"+runID+"/result", nil)
	resultRec := httptest.NewRecorder()
	s.Router().ServeHTTP(resultRec, req)
	if resultRec.Code != http.StatusOK {
		t.Fatalf("result status = %d", resultRec.Code)
	}

	var result pipeline.ImportResult
	if err := json.Unmarshal(resultRec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Summary.Total != 2 || result.Summary.Valid != 1 || result.Summary.Invalid != 1 {
		t.Errorf("summary = %+v, want total 2 valid 1 invalid 1", result.Summary)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/imports/"+runID+"/invalid-rows", nil)
	csvRec := httptest.NewRecorder()
	s.Router().ServeHTTP(csvRec, req)
	if csvRec.Code != http.StatusOK {
		t.Fatalf("csv status = %d", csvRec.Code)
	}
	if ct := csvRec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("csv content type = %q", ct)
	}
	if !strings.Contains(csvRec.Body.String(), "not a number") {
		t.Errorf("csv missing original cell value:\n%s", csvRec.Body.String())
	}
}

func TestStartImport_UnknownColumn(t *testing.T) {
	s := newTestServer(t, nil)

	file := uploadCSV(t, s, "Name,Phone\nJane,(212) 555-0123")

	rec := startImport(t, s, `{
		"fileId": "`+file.FileID+`",
		"mapping": {"phone": "Telephone"}
	}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStartImport_FileNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	rec := startImport(t, s, `{"fileId": "nope", "mapping": {"phone": "Phone"}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestProgress_RunNotFound(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/imports/nope/progress", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestResult_StillRunning(t *testing.T) {
	s := newTestServer(t, nil)

	// 500 rows with a generous yield keeps the run busy long enough to
	// observe the conflict.
	var sb strings.Builder
	sb.WriteString("Phone\n")
	for i := 0; i < 500; i++ {
		sb.WriteString("(212) 555-0123\n")
	}
	file := uploadCSV(t, s, sb.String())

	svcOpts := pipeline.Options{
		DefaultRegion: "US",
		ChunkSize:     10,
		YieldInterval: 20 * time.Millisecond,
		MaxConcurrent: 2,
		MaxWaitTime:   time.Second,
		RunTimeout:    time.Minute,
	}
	s.imports = pipeline.NewService(svcOpts, nil, nil)

	rec := startImport(t, s, `{"fileId": "`+file.FileID+`", "mapping": {"phone": "Phone"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}
	var started map[string]string
	json.Unmarshal(rec.Body.Bytes(), &started)

	req := httptest.NewRequest(http.MethodGet, "/api/imports/"+started["runId"]+"/result", nil)
	resultRec := httptest.NewRecorder()
	s.Router().ServeHTTP(resultRec, req)
	if resultRec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resultRec.Code)
	}
}

func TestListResources(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assistant" {
			t.Errorf("path = %q, want /assistant", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("auth = %q", got)
		}
		w.Write([]byte(`[{"id":"asst-1","name":"Callbot"}]`))
	}))
	defer api.Close()

	client := campaign.NewClient(api.URL, time.Second, 1)
	s := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodGet, "/api/resources/assistants", nil)
	req.Header.Set("X-Api-Key", "secret")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "asst-1") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestListResources_MissingKey(t *testing.T) {
	client := campaign.NewClient("http://example.invalid", time.Second, 1)
	s := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodGet, "/api/resources/assistants", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHistory_NotConfigured(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.Close()

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("1.2.3.4") {
		t.Fatal("third request should be limited")
	}
	if !rl.allow("5.6.7.8") {
		t.Fatal("other IPs should be unaffected")
	}
}

func TestRateLimiter_Close(t *testing.T) {
	rl := newRateLimiter(1, time.Minute)

	rl.Close()
	rl.Close() // idempotent

	select {
	case <-rl.stop:
	default:
		t.Fatal("cleanup goroutine was not signalled to stop")
	}

	// Closing only stops the background pruner; allow keeps working.
	if !rl.allow("1.2.3.4") {
		t.Fatal("first request should pass after Close")
	}
}

func TestServerShutdown_StopsRateLimiter(t *testing.T) {
	s := newTestServer(t, nil)
	s.cfg.Rate.Enabled = true
	s.cfg.Rate.RequestsPerMinute = 10
	s.limiter = newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case <-s.limiter.stop:
	default:
		t.Fatal("shutdown should stop the rate limiter")
	}
}

func TestFileStore_Expiry(t *testing.T) {
	fs := newFileStore(10 * time.Millisecond)
	f := fs.Put("leads.csv", nil, nil)

	if _, err := fs.Get(f.ID); err != nil {
		t.Fatalf("expected file to be present: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := fs.Get(f.ID); err != nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("file never expired")
}
