// Package httpapi serves the finished report over HTTP when the CLI runs in
// serve mode. It is a read-only surface: the run itself happens before the
// server starts, so handlers only render what the engine already produced.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dpqc/internal/report"
)

// Handler is the thin HTTP layer over a finished report.
type Handler struct {
	report        *report.Report
	totalSubjects int
}

func NewHandler(rep *report.Report, totalSubjects int) *Handler {
	return &Handler{report: rep, totalSubjects: totalSubjects}
}

// NewRouter wires the public endpoints: the HTML and JSON report views,
// Prometheus metrics, and a liveness probe.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", h.handleHTML)
	r.Get("/report", h.handleHTML)
	r.Get("/report.json", h.handleJSON)
	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (h *Handler) handleHTML(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderHTML(w, h.report, h.totalSubjects); err != nil {
		http.Error(w, "render failed", http.StatusInternalServerError)
	}
}

func (h *Handler) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(h.report); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
