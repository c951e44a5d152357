package pipeline

import (
	"context"
	"time"

	"github.com/docweaver/docweaver/internal/ratelimit"
)

// Workflow runs the complete documentation pass as an explicit
// state-passing chain: each phase returns its output and the next
// phase receives it as input, so the data dependencies between phases
// stay visible and each phase is testable on its own.
type Workflow struct {
	deps      Deps
	processor *Processor
	analyzer  *Analyzer
	notes     *NoteGenerator
	coord     *Coordinator
	stats     func() ratelimit.Stats // optional controller snapshot
}

// NewWorkflow wires the four pipeline components over one shared Deps.
func NewWorkflow(deps Deps) *Workflow {
	w := &Workflow{
		deps:      deps,
		processor: NewProcessor(deps),
		analyzer:  NewAnalyzer(deps),
		notes:     NewNoteGenerator(deps),
		coord:     NewCoordinator(deps),
	}
	if ctrl, ok := deps.Gate.(*ratelimit.Controller); ok {
		w.stats = ctrl.Stats
	}
	return w
}

// Processor exposes the document-processing phase for standalone use.
func (w *Workflow) Processor() *Processor { return w.processor }

// Analyzer exposes the temporal-analysis phase for standalone use.
func (w *Workflow) Analyzer() *Analyzer { return w.analyzer }

// Notes exposes the note-generation phase for standalone use.
func (w *Workflow) Notes() *NoteGenerator { return w.notes }

// Coordinator exposes the coordination phase for standalone use.
func (w *Workflow) Coordinator() *Coordinator { return w.coord }

// Request is one complete workflow submission.
type Request struct {
	Documents     []Document
	BriefNote     string
	LastVisitDate string
	Patient       PatientContext
	Vitals        VitalSigns
	TimeSpent     int
}

// Summary reports workflow-level accounting.
type Summary struct {
	APICalls           int64         `json:"api_calls"`
	DegradedStages     int           `json:"degraded_stages"`
	Duration           time.Duration `json:"duration_ns"`
	QuotaWaits         int           `json:"quota_waits"`
	QuotaWaitTime      time.Duration `json:"quota_wait_ns"`
	DocumentsProcessed int           `json:"documents_processed"`
	ActionsAutomated   int           `json:"actions_automated"`
	StartedAt          time.Time     `json:"started_at"`
	FinishedAt         time.Time     `json:"finished_at"`
}

// Result is the complete workflow output.
type Result struct {
	Documents    []ProcessedDocument `json:"documents"`
	Analysis     TemporalAnalysis    `json:"analysis"`
	Note         ClinicalNote        `json:"note"`
	Coordination CoordinationResult  `json:"coordination"`
	Summary      Summary             `json:"summary"`
}

// Run executes the full chain. The session counter is reset at start
// so per-run accounting never leaks across sessions. The only error
// returned is cancellation of ctx; everything else degrades.
func (w *Workflow) Run(ctx context.Context, req Request) (Result, error) {
	w.deps.Counter.Reset()
	started := nowFunc()

	var result Result
	var err error

	if result.Documents, err = w.processor.ProcessAll(ctx, req.Documents); err != nil {
		return result, err
	}
	if result.Analysis, err = w.analyzer.AnalyzeAll(ctx, result.Documents, req.LastVisitDate); err != nil {
		return result, err
	}
	if result.Note, err = w.notes.GenerateNote(ctx, req.BriefNote, &req.Patient, req.Vitals, req.TimeSpent); err != nil {
		return result, err
	}
	if result.Coordination, err = w.coord.CoordinateAll(ctx, result.Analysis, &result.Note, req.Patient); err != nil {
		return result, err
	}

	finished := nowFunc()
	result.Summary = Summary{
		APICalls:           w.deps.Counter.Count(),
		DegradedStages:     result.countDegraded(),
		Duration:           finished.Sub(started),
		DocumentsProcessed: len(result.Documents),
		ActionsAutomated:   result.Coordination.ActionsCount,
		StartedAt:          started,
		FinishedAt:         finished,
	}
	if w.stats != nil {
		s := w.stats()
		result.Summary.QuotaWaits = s.Waits
		result.Summary.QuotaWaitTime = s.WaitTime
		if w.deps.Metrics != nil {
			w.deps.Metrics.ObserveQuota(s)
		}
	}

	w.deps.logger().Info("workflow complete",
		"api_calls", result.Summary.APICalls,
		"documents", result.Summary.DocumentsProcessed,
		"degraded_stages", result.Summary.DegradedStages,
		"actions", result.Summary.ActionsAutomated,
		"duration_ms", result.Summary.Duration.Milliseconds(),
		"quota_waits", result.Summary.QuotaWaits,
	)
	return result, nil
}

// countDegraded tallies every stage that fell back to a degraded
// result anywhere in the run.
func (r *Result) countDegraded() int {
	n := 0
	for _, doc := range r.Documents {
		if doc.Degraded != nil {
			n++
		}
	}
	for _, deg := range []*Degradation{
		r.Analysis.NewEvents.Degraded,
		r.Analysis.Trends.Degraded,
		r.Analysis.Causal.Degraded,
		r.Analysis.Priorities.Degraded,
		r.Note.ICD10.Degraded,
		r.Note.CPT.Degraded,
		r.Coordination.Needs.Degraded,
		r.Coordination.SummaryDegraded,
	} {
		if deg != nil {
			n++
		}
	}
	n += len(r.Note.SOAP.Degradations)
	for _, letter := range r.Coordination.Letters {
		if letter.Degraded != nil {
			n++
		}
	}
	return n
}
