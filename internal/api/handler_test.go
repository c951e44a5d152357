package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docweaver/docweaver/internal/genai"
	"github.com/docweaver/docweaver/internal/observe"
	"github.com/docweaver/docweaver/internal/pipeline"
	"github.com/docweaver/docweaver/internal/ratelimit"
)

// scriptedGen answers prompts by substring marker.
type scriptedGen map[string]string

func (g scriptedGen) Generate(_ context.Context, prompt string) (string, error) {
	for marker, answer := range g {
		if strings.Contains(prompt, marker) {
			return answer, nil
		}
	}
	return "unscripted", nil
}

var fullRunScript = scriptedGen{
	"classify it into ONE category":        "visit_note",
	"clinical visit note":                  `{"visit_date":"2026-01-10","chief_complaint":"follow-up"}`,
	"identify NEW events":                  `{"new_events":[]}`,
	"CAUSAL RELATIONSHIPS":                 `{"causal_links":[],"summary":"stable"}`,
	"prioritize them for physician review": `{"critical":[],"urgent":[],"routine":[]}`,
	"History of Present Illness":           "HPI",
	"OBJECTIVE section":                    "OBJ",
	"ASSESSMENT section":                   "ASSESS",
	"PLAN section":                         "PLAN",
	"ICD-10 diagnosis codes":               `[]`,
	"CPT code for this office":             `{"cpt_code":"99213"}`,
	"care coordination actions":            `{"referrals":[],"follow_ups":[],"orders":[],"patient_communication_needed":false}`,
}

func newTestHandler(t *testing.T, gen genai.Generator, opts ...func(*Config)) http.Handler {
	t.Helper()

	ctrl, err := ratelimit.New(ratelimit.Config{MaxCalls: 100, Window: time.Minute})
	require.NoError(t, err)

	counter := &genai.Counter{}
	wf := pipeline.NewWorkflow(pipeline.Deps{
		Gate:    ctrl,
		Gen:     gen,
		Counter: counter,
		Logger:  slog.New(slog.DiscardHandler),
	})

	reg := prometheus.NewRegistry()
	cfg := Config{
		Workflow:       wf,
		Controller:     ctrl,
		Counter:        counter,
		Logger:         slog.New(slog.DiscardHandler),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(cfg)
}

func TestHealthz(t *testing.T) {
	h := newTestHandler(t, scriptedGen{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatsReportsQuotaWindow(t *testing.T) {
	h := newTestHandler(t, scriptedGen{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Quota struct {
			MaxCalls      int     `json:"max_calls"`
			WindowSeconds float64 `json:"window_seconds"`
			InWindow      int     `json:"in_window"`
		} `json:"quota"`
		SessionCalls int64 `json:"session_calls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 100, resp.Quota.MaxCalls)
	assert.Equal(t, 60.0, resp.Quota.WindowSeconds)
	assert.Equal(t, 0, resp.Quota.InWindow)
	assert.EqualValues(t, 0, resp.SessionCalls)
}

func TestProcessDocuments(t *testing.T) {
	h := newTestHandler(t, fullRunScript)

	body := `{"documents":[{"name":"note.txt","content":"follow-up visit"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Documents []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"documents"`
		APICalls int64 `json:"api_calls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, "note.txt", resp.Documents[0].Name)
	assert.Equal(t, "visit_note", resp.Documents[0].Type)
	assert.EqualValues(t, 2, resp.APICalls)
}

func TestProcessRejectsEmptyDocuments(t *testing.T) {
	h := newTestHandler(t, scriptedGen{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/process", strings.NewReader(`{"documents":[]}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(t, scriptedGen{})

	req := httptest.NewRequest(http.MethodPost, "/v1/workflow/run", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid request body")
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestHandler(t, scriptedGen{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/workflow/run", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGenerateNote(t *testing.T) {
	h := newTestHandler(t, fullRunScript)

	body := `{"brief_note":"f/u DM2","time_spent_minutes":25}`
	req := httptest.NewRequest(http.MethodPost, "/v1/notes/generate", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var note struct {
		SOAP struct {
			Subjective string `json:"subjective"`
			FullNote   string `json:"full_note"`
		} `json:"soap"`
		CPT struct {
			Code struct {
				Code string `json:"cpt_code"`
			} `json:"cpt"`
		} `json:"cpt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "HPI", note.SOAP.Subjective)
	assert.Contains(t, note.SOAP.FullNote, "SUBJECTIVE:\nHPI")
}

func TestGenerateNoteRequiresBrief(t *testing.T) {
	h := newTestHandler(t, scriptedGen{})

	req := httptest.NewRequest(http.MethodPost, "/v1/notes/generate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowRun(t *testing.T) {
	h := newTestHandler(t, fullRunScript)

	body := `{
		"documents": [{"name":"note.txt","content":"follow-up visit"}],
		"brief_note": "f/u visit",
		"patient": {"name":"Sarah Chen","mrn":"12345678"}
	}`
	req := httptest.NewRequest(http.MethodPost, "/v1/workflow/run", strings.NewReader(body))
	req.Header.Set(observe.TraceHeader, "run-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "run-42", rec.Header().Get(observe.TraceHeader))

	var resp struct {
		Summary struct {
			APICalls           int64 `json:"api_calls"`
			DocumentsProcessed int   `json:"documents_processed"`
			DegradedStages     int   `json:"degraded_stages"`
		} `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 12, resp.Summary.APICalls)
	assert.Equal(t, 1, resp.Summary.DocumentsProcessed)
	assert.Equal(t, 0, resp.Summary.DegradedStages)
}

func TestMetricsEndpointServes(t *testing.T) {
	h := newTestHandler(t, scriptedGen{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInboundRateLimit(t *testing.T) {
	pc := ratelimit.NewPerClient(1, 0, 10*time.Minute)
	defer pc.Close()

	h := newTestHandler(t, scriptedGen{}, func(cfg *Config) { cfg.Limiter = pc })

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.1.1.1:5000"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestStatsCountsAdmissionsInWindow(t *testing.T) {
	h := newTestHandler(t, fullRunScript)

	body := `{"documents":[{"name":"note.txt","content":"visit"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/documents/process", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	var resp struct {
		Quota struct {
			InWindow int `json:"in_window"`
		} `json:"quota"`
		SessionCalls int64 `json:"session_calls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Quota.InWindow)
	assert.EqualValues(t, 2, resp.SessionCalls)
}
