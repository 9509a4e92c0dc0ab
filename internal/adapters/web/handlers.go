package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"inventory-admin/internal/app"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const maxBodyBytes = 1 << 20 // 1 MB

// Handler holds the ApplicationService, the chi router and the change-feed hub.
type Handler struct {
	svc      app.ApplicationService
	router   chi.Router
	hub      *Hub
	upgrader *websocket.Upgrader
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(svc app.ApplicationService, allowedOrigins string) *Handler {
	h := &Handler{
		svc:      svc,
		hub:      NewHub(),
		upgrader: newUpgrader(splitOrigins(allowedOrigins)),
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)

	r.Route("/api/items", collectionRoutes(h, svc.Items()))
	r.Route("/api/suppliers", collectionRoutes(h, svc.Suppliers()))
	r.Route("/api/invoices", collectionRoutes(h, svc.Invoices()))
	r.Route("/api/locations", collectionRoutes(h, svc.Locations()))
	r.Route("/api/shipments", collectionRoutes(h, svc.Shipments()))
	r.Route("/api/currencies", func(r chi.Router) {
		collectionRoutes(h, svc.Currencies())(r)
		r.With(RequestBodyLimit(maxBodyBytes)).Post("/convert", h.apiConvertCurrency)
	})

	r.Get("/api/numbers/{entity}/next", h.apiNextNumber)
	r.Get("/api/reports/{type}", h.apiReport)
	r.Get("/api/reports/{type}/export", h.apiExportReport)

	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Shutdown closes every open change feed.
func (h *Handler) Shutdown() {
	h.hub.CloseAll()
}

// health reports which backend is active.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Health(r.Context())
	if err != nil {
		writeError(w, r, err.Error(), "UNAVAILABLE", http.StatusServiceUnavailable)
		return
	}

	type response struct {
		Status string `json:"status"`
		*app.HealthResult
	}
	writeJSON(w, response{Status: "ok", HealthResult: res})
}

// decodeJSON decodes the request body into v and returns false + writes an appropriate
// error response on failure. Returns HTTP 413 when the body exceeds the size limit set
// by RequestBodyLimit middleware; HTTP 400 for all other decode errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, "request body too large", "REQUEST_TOO_LARGE", http.StatusRequestEntityTooLarge)
			return false
		}
		writeError(w, r, "invalid JSON body: "+err.Error(), "BAD_REQUEST", http.StatusBadRequest)
		return false
	}
	return true
}
