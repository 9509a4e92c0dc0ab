package web

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"inventory-admin/internal/app"
	"inventory-admin/internal/core"
	"inventory-admin/internal/entity"
	"inventory-admin/internal/integrity"
	"inventory-admin/internal/report"
	"inventory-admin/internal/store"
)

type errorResponse struct {
	Message   string              `json:"message"`
	Errors    map[string]string   `json:"errors,omitempty"`
	Blockers  []integrity.Blocker `json:"blockers,omitempty"`
	Code      string              `json:"code"`
	RequestID string              `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorResponse(w, r, status, errorResponse{Message: message, Code: code})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, resp errorResponse) {
	resp.RequestID = requestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeServiceError maps an error from the application layer onto a status
// code. Anything unrecognised is a 500 and is logged.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	var perr *entity.ValidationError
	switch {
	case errors.As(err, &verr):
		writeErrorResponse(w, r, http.StatusBadRequest, errorResponse{
			Message: "validation failed",
			Errors:  verr.Fields,
			Code:    "VALIDATION_FAILED",
		})
	case errors.As(err, &perr):
		writeError(w, r, perr.Error(), "BAD_REQUEST", http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, "not found", "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, store.ErrUnknownCollection), errors.Is(err, report.ErrUnknownType):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, app.ErrUploadNotConfigured):
		writeError(w, r, err.Error(), "UPLOAD_NOT_CONFIGURED", http.StatusServiceUnavailable)
	default:
		log.Printf("web: %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, r, err.Error(), "INTERNAL", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
