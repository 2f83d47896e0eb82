package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mhollis/leadpipe/internal/logging"
	"github.com/mhollis/leadpipe/internal/pipeline"
)

// errorResponse is the JSON shape of every error the API returns.
type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Action string `json:"action,omitempty"`
}

// writeError writes a JSON error response. The raw error is logged
// server-side with the request ID; the client gets the mapped
// user-facing message.
func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logging.FromContext(r.Context()).Warn("request failed",
		"status", status,
		"path", r.URL.Path,
		"error", err,
	)

	msg := pipeline.MapError(err)
	if !pipeline.IsUserFacing(err) && status < http.StatusInternalServerError {
		// Client errors carry messages we wrote ourselves; pass them
		// through instead of the generic fallback.
		msg = pipeline.UserMessage{Message: err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{
		Error:  msg.Message,
		Code:   msg.Code,
		Action: msg.Action,
	})
}

// writeJSON encodes v as JSON. Encoding errors are logged since the
// headers are already sent.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode", "error", err)
	}
}
