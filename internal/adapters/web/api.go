package web

import (
	"fmt"
	"net/http"
	"strconv"

	"inventory-admin/internal/app"

	"github.com/go-chi/chi/v5"
)

// apiNextNumber handles GET /api/numbers/{entity}/next.
func (h *Handler) apiNextNumber(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.NextNumber(r.Context(), chi.URLParam(r, "entity"))
	if err != nil {
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return
	}
	writeJSON(w, res)
}

// apiReport handles GET /api/reports/{type}.
func (h *Handler) apiReport(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Report(r.Context(), chi.URLParam(r, "type"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, res)
}

// apiExportReport handles GET /api/reports/{type}/export. With ?upload=true
// the artifact is stored in S3 and its URL returned; otherwise it is sent as
// a download.
func (h *Handler) apiExportReport(w http.ResponseWriter, r *http.Request) {
	upload, _ := strconv.ParseBool(r.URL.Query().Get("upload"))
	res, err := h.svc.ExportReport(r.Context(), app.ExportReportRequest{
		Type:   chi.URLParam(r, "type"),
		Upload: upload,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if upload {
		writeJSON(w, map[string]string{"url": res.URL, "fileName": res.Artifact.FileName()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Artifact.FileName()))
	_, _ = res.Artifact.WriteTo(w)
}

// apiConvertCurrency handles POST /api/currencies/convert.
func (h *Handler) apiConvertCurrency(w http.ResponseWriter, r *http.Request) {
	var req app.ConvertRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.From == "" || req.To == "" {
		writeErrorResponse(w, r, http.StatusBadRequest, errorResponse{
			Message: "validation failed",
			Errors:  missing(map[string]string{"from": req.From, "to": req.To}),
			Code:    "VALIDATION_FAILED",
		})
		return
	}
	res, err := h.svc.ConvertCurrency(r.Context(), req)
	if err != nil {
		writeError(w, r, err.Error(), "CONVERSION_FAILED", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, res)
}

func missing(fields map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range fields {
		if v == "" {
			out[k] = "is required"
		}
	}
	return out
}
