// Package api exposes the document workflow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/docweaver/docweaver/internal/genai"
	"github.com/docweaver/docweaver/internal/middleware"
	"github.com/docweaver/docweaver/internal/observe"
	"github.com/docweaver/docweaver/internal/pipeline"
	"github.com/docweaver/docweaver/internal/ratelimit"
)

// Config wires the handler's collaborators.
type Config struct {
	Workflow   *pipeline.Workflow
	Controller *ratelimit.Controller
	Counter    *genai.Counter
	Client     *genai.Client        // optional, reports breaker state in /v1/stats
	Limiter    *ratelimit.PerClient // optional, inbound per-client protection
	Logger     *slog.Logger

	// MetricsHandler serves /metrics. Defaults to the process-wide
	// Prometheus handler.
	MetricsHandler http.Handler
}

// Handler is the workflow HTTP API.
type Handler struct {
	cfg    Config
	logger *slog.Logger
}

// New builds the full handler with its middleware stack applied.
func New(cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MetricsHandler == nil {
		cfg.MetricsHandler = observe.Handler()
	}
	h := &Handler{cfg: cfg, logger: cfg.Logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/documents/process", h.processDocuments)
	mux.HandleFunc("POST /v1/notes/generate", h.generateNote)
	mux.HandleFunc("POST /v1/workflow/run", h.runWorkflow)
	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.Handle("GET /metrics", cfg.MetricsHandler)

	chain := []middleware.Middleware{
		middleware.Tracing(),
		middleware.Logging(cfg.Logger),
		middleware.Recover(cfg.Logger),
	}
	if cfg.Limiter != nil {
		// Rate limit inside tracing/logging so rejections still log.
		chain = append(chain, middleware.RateLimit(cfg.Limiter, nil))
	}
	return middleware.Chain(chain...)(mux)
}

type processRequest struct {
	Documents []pipeline.Document `json:"documents"`
}

type processResponse struct {
	Documents []pipeline.ProcessedDocument `json:"documents"`
	APICalls  int64                        `json:"api_calls"`
}

func (h *Handler) processDocuments(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "documents cannot be empty")
		return
	}

	before := h.cfg.Counter.Count()
	docs, err := h.cfg.Workflow.Processor().ProcessAll(r.Context(), req.Documents)
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, processResponse{
		Documents: docs,
		APICalls:  h.cfg.Counter.Count() - before,
	})
}

type noteRequest struct {
	BriefNote string                   `json:"brief_note"`
	Patient   *pipeline.PatientContext `json:"patient,omitempty"`
	Vitals    pipeline.VitalSigns      `json:"vital_signs,omitempty"`
	TimeSpent int                      `json:"time_spent_minutes,omitempty"`
}

func (h *Handler) generateNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.BriefNote == "" {
		h.writeError(w, r, http.StatusBadRequest, "brief_note cannot be empty")
		return
	}

	note, err := h.cfg.Workflow.Notes().GenerateNote(r.Context(), req.BriefNote, req.Patient, req.Vitals, req.TimeSpent)
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, note)
}

type workflowRequest struct {
	Documents     []pipeline.Document     `json:"documents"`
	BriefNote     string                  `json:"brief_note"`
	LastVisitDate string                  `json:"last_visit_date,omitempty"`
	Patient       pipeline.PatientContext `json:"patient,omitempty"`
	Vitals        pipeline.VitalSigns     `json:"vital_signs,omitempty"`
	TimeSpent     int                     `json:"time_spent_minutes,omitempty"`
}

func (h *Handler) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var req workflowRequest
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(w, r, http.StatusBadRequest, "documents cannot be empty")
		return
	}

	result, err := h.cfg.Workflow.Run(r.Context(), pipeline.Request{
		Documents:     req.Documents,
		BriefNote:     req.BriefNote,
		LastVisitDate: req.LastVisitDate,
		Patient:       req.Patient,
		Vitals:        req.Vitals,
		TimeSpent:     req.TimeSpent,
	})
	if err != nil {
		h.writeWorkflowError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

type quotaStats struct {
	MaxCalls      int     `json:"max_calls"`
	WindowSeconds float64 `json:"window_seconds"`
	InWindow      int     `json:"in_window"`
	Waits         int     `json:"waits"`
	WaitSeconds   float64 `json:"wait_seconds"`
}

type statsResponse struct {
	Quota        quotaStats `json:"quota"`
	SessionCalls int64      `json:"session_calls"`
	Breaker      string     `json:"breaker,omitempty"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	s := h.cfg.Controller.Stats()
	cfg := h.cfg.Controller.Config()

	resp := statsResponse{
		Quota: quotaStats{
			MaxCalls:      cfg.MaxCalls,
			WindowSeconds: cfg.Window.Seconds(),
			InWindow:      s.InWindow,
			Waits:         s.Waits,
			WaitSeconds:   s.WaitTime.Seconds(),
		},
		SessionCalls: h.cfg.Counter.Count(),
	}
	if h.cfg.Client != nil {
		resp.Breaker = h.cfg.Client.BreakerState().String()
	}

	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// writeWorkflowError maps pipeline failures to statuses. Stages absorb
// upstream failures as degraded results, so errors surfacing here are
// cancellation, an open circuit, or a genuine bug.
func (h *Handler) writeWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.writeError(w, r, http.StatusGatewayTimeout, "workflow timed out")
	case errors.Is(err, context.Canceled):
		// Client went away; the status is for the access log only.
		h.writeError(w, r, http.StatusServiceUnavailable, "workflow cancelled")
	case errors.Is(err, genai.ErrUpstreamUnavailable):
		h.writeError(w, r, http.StatusServiceUnavailable, "upstream model unavailable")
	default:
		h.logger.Error("workflow failed",
			"error", err, "trace_id", observe.TraceIDFrom(r.Context()))
		h.writeError(w, r, http.StatusInternalServerError, "workflow failed")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, status, map[string]any{
		"error":    msg,
		"trace_id": observe.TraceIDFrom(r.Context()),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response encoding failed", "error", err)
	}
}
