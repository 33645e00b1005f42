package session

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"slidecast/internal/platform/logger"
	"slidecast/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// StatusSource exposes the current state of a session.
type StatusSource interface {
	Snapshot() Snapshot
}

// Handler exposes session status endpoints using go-chi.
type Handler struct {
	src     StatusSource
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler reading from src. Metrics may be nil to
// disable the /metrics endpoint (e.g. in tests).
func NewHandler(src StatusSource, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{src: src, log: log, metrics: m}
}

// Router mounts the status endpoints with request logging and metrics.
func (h *Handler) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(h.log))
	if h.metrics != nil {
		r.Use(metrics.RequestMiddleware(h.metrics))
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	r.Get("/healthz", h.Healthz)
	r.Get("/session", h.GetSession)
	return r
}

// GetSession handles GET /session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	snap := h.src.Snapshot()

	w.Header().Set("Content-Type", "application/json")
	if snap.Phase == PhaseFailed {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Error("encode session snapshot failed", slog.String("error", err.Error()))
	}
}

// Healthz handles GET /healthz.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}
