package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mhollis/leadpipe/internal/campaign"
	"github.com/mhollis/leadpipe/internal/detect"
	"github.com/mhollis/leadpipe/internal/logging"
	"github.com/mhollis/leadpipe/internal/pipeline"
	"github.com/mhollis/leadpipe/internal/table"
)

// previewRows is how many data rows the upload response includes for
// the mapping confirmation screen.
const previewRows = 5

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type uploadFileResponse struct {
	FileID   string        `json:"fileId"`
	FileName string        `json:"fileName"`
	Headers  []string      `json:"headers"`
	RowCount int           `json:"rowCount"`
	Detected detect.Result `json:"detected"`
	Preview  []table.Row   `json:"preview,omitempty"`
}

// handleUploadFile parses an uploaded lead list, detects the likely
// column mapping, and stashes the table for a subsequent import.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, r, http.StatusBadRequest, table.ErrFileTooLarge)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("no file provided"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}

	t, err := table.Decode(header.Filename, data, table.Limits{
		MaxFileSize: maxSize,
		MaxRows:     s.cfg.Import.MaxRows,
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	f := s.files.Put(header.Filename, t, detect.Detect(t.Headers))

	preview := t.Rows
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	writeJSON(w, uploadFileResponse{
		FileID:   f.ID,
		FileName: f.Name,
		Headers:  t.Headers,
		RowCount: len(t.Rows),
		Detected: f.Detection,
		Preview:  preview,
	})
}

type startImportRequest struct {
	FileID  string `json:"fileId"`
	Mapping struct {
		Phone string `json:"phone"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"mapping"`
	CampaignName  string `json:"campaignName"`
	AssistantID   string `json:"assistantId"`
	WorkflowID    string `json:"workflowId"`
	PhoneNumberID string `json:"phoneNumberId"`
}

// handleStartImport kicks off an asynchronous import run against a
// previously uploaded file. The campaign API key travels in the
// X-Api-Key header, never in the body.
func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	var req startImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	f, err := s.files.Get(req.FileID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}

	mapping := pipeline.Mapping{
		Phone: req.Mapping.Phone,
		Name:  req.Mapping.Name,
		Email: req.Mapping.Email,
	}
	if err := checkColumns(f.Table.Headers, mapping); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	runID, err := s.imports.StartImport(r.Context(), pipeline.ImportRequest{
		Table:        *f.Table,
		Mapping:      mapping,
		FileName:     f.Name,
		CampaignName: req.CampaignName,
		Selector: campaign.Selector{
			AssistantID: req.AssistantID,
			WorkflowID:  req.WorkflowID,
		},
		PhoneNumberID: req.PhoneNumberID,
		APIKey:        r.Header.Get("X-Api-Key"),
	})
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, pipeline.ErrTooManyImports) {
			status = http.StatusTooManyRequests
		}
		writeError(w, r, status, err)
		return
	}

	logging.WithFields(r.Context(),
		"run_id", runID,
		"file", f.Name,
		"rows", len(f.Table.Rows),
	).Info("import started")

	writeJSON(w, map[string]string{"runId": runID})
}

// checkColumns verifies that every mapped column exists in the file.
func checkColumns(headers []string, m pipeline.Mapping) error {
	known := make(map[string]bool, len(headers))
	for _, h := range headers {
		known[h] = true
	}
	for _, col := range []string{m.Phone, m.Name, m.Email} {
		if col != "" && !known[col] {
			return fmt.Errorf("unknown column %q", col)
		}
	}
	return nil
}

// handleProgress returns the current run progress for polling clients.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := s.imports.GetProgress(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeJSON(w, progress)
}

// handleProgressEvents streams run progress via Server-Sent Events.
// Supports resumption via the lastEventId query parameter: the event ID
// is the overall percentage, so reconnecting clients skip updates they
// already have.
func (s *Server) handleProgressEvents(w http.ResponseWriter, r *http.Request) {
	progressCh, err := s.imports.SubscribeProgress(chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}

	lastEventIDStr := r.URL.Query().Get("lastEventId")
	var lastEventID int
	if lastEventIDStr != "" {
		lastEventID, _ = strconv.Atoi(lastEventIDStr)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, fmt.Errorf("streaming not supported"))
		return
	}

	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}

			percent := progress.Percent()
			if lastEventIDStr != "" && percent <= lastEventID {
				continue
			}

			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// terminal reports whether a phase is final.
func terminal(p pipeline.Phase) bool {
	switch p {
	case pipeline.PhaseComplete, pipeline.PhaseFailed, pipeline.PhaseCancelled:
		return true
	}
	return false
}

// handleResult returns the final result of a finished run.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.imports.GetProgress(runID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	if !terminal(progress.Phase) {
		writeError(w, r, http.StatusConflict, fmt.Errorf("run still in progress"))
		return
	}

	result, err := s.imports.GetResult(runID)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeJSON(w, result)
}

// handleCancel aborts an in-progress run.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.imports.Cancel(chi.URLParam(r, "runID")); err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelled"})
}

// handleReport returns the flattened run report as JSON.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	result, err := s.finishedResult(r)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeJSON(w, pipeline.BuildReport(result))
}

// handleInvalidRowsCSV downloads the rejected rows of a finished run as
// CSV, original columns included.
func (s *Server) handleInvalidRowsCSV(w http.ResponseWriter, r *http.Request) {
	result, err := s.finishedResult(r)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}

	filename := fmt.Sprintf("invalid_rows_%s.csv", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))

	report := pipeline.BuildReport(result)
	if err := report.WriteInvalidRowsCSV(w, result.Headers); err != nil {
		// headers already sent, nothing useful to return
		slog.Warn("write invalid rows csv", "error", err)
	}
}

// finishedResult fetches the result of a run that has already finished.
func (s *Server) finishedResult(r *http.Request) (*pipeline.ImportResult, error) {
	runID := chi.URLParam(r, "runID")

	progress, err := s.imports.GetProgress(runID)
	if err != nil {
		return nil, err
	}
	if !terminal(progress.Phase) {
		return nil, fmt.Errorf("run not found: %s has not finished", runID)
	}
	return s.imports.GetResult(runID)
}

// handleListResources proxies the campaign API's resource listings so
// the browser never talks to it directly. The caller's API key is
// forwarded from the X-Api-Key header.
func (s *Server) handleListResources(w http.ResponseWriter, r *http.Request) {
	if s.campaigns == nil {
		writeError(w, r, http.StatusServiceUnavailable, fmt.Errorf("campaign API is not configured"))
		return
	}

	token := r.Header.Get("X-Api-Key")
	if token == "" {
		writeError(w, r, http.StatusUnauthorized, fmt.Errorf("missing API key"))
		return
	}

	kind := campaign.ResourceKind(chi.URLParam(r, "kind"))
	raw, err := s.campaigns.ListResources(r.Context(), token, kind)
	if err != nil {
		writeError(w, r, http.StatusBadGateway, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

// handleListHistory lists past runs from the history store.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("run history is not configured"))
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, runs)
}

// handleHistoryReport returns one archived run report.
func (s *Server) handleHistoryReport(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusNotFound, fmt.Errorf("run history is not configured"))
		return
	}

	report, err := s.history.GetReport(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeJSON(w, report)
}
