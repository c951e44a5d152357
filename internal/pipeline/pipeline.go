// Package pipeline chains admitted calls to a hosted text model into a
// clinical documentation workflow: classify and extract documents,
// analyze temporal trends, draft notes, coordinate care.
//
// Every stage acquires the shared admission controller before issuing
// exactly one upstream call, and converts upstream or parse failures
// into degraded results rather than aborting the workflow.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/docweaver/docweaver/internal/genai"
	"github.com/docweaver/docweaver/internal/observe"
	"github.com/docweaver/docweaver/internal/payload"
)

// nowFunc is swapped out by tests that need stable timestamps.
var nowFunc = time.Now

// Gate admits one upstream call within the shared quota. Satisfied by
// *ratelimit.Controller; stages never dispatch concurrently, so the
// gate sees strictly sequential acquisitions from one workflow.
type Gate interface {
	Acquire(ctx context.Context) error
}

// Deps bundles the collaborators every pipeline component shares. One
// Gate and one Counter per upstream credential and session.
type Deps struct {
	Gate    Gate
	Gen     genai.Generator
	Counter *genai.Counter
	Logger  *slog.Logger
	Metrics *observe.Metrics // optional
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// call acquires the gate, issues one generation, and records
// observability for the stage. The returned error is either a context
// cancellation (abort the workflow) or a generation failure (degrade
// the stage); callers separate the two with aborted().
//
// A generator with a tripped circuit is checked before the gate:
// failing fast must not spend a slot of the shared quota window.
func (d *Deps) call(ctx context.Context, stage, prompt string) (string, error) {
	if rd, ok := d.Gen.(interface{ Ready() bool }); ok && !rd.Ready() {
		if d.Metrics != nil {
			d.Metrics.GenerationsTotal.WithLabelValues(stage, "rejected").Inc()
		}
		d.logger().Warn("upstream unavailable, skipping admission", "stage", stage)
		return "", &genai.GenerationError{Err: genai.ErrUpstreamUnavailable}
	}
	if err := d.Gate.Acquire(ctx); err != nil {
		return "", err
	}
	d.Counter.Inc()

	start := time.Now()
	text, err := d.Gen.Generate(ctx, prompt)
	elapsed := time.Since(start)

	if d.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		d.Metrics.GenerationsTotal.WithLabelValues(stage, outcome).Inc()
		d.Metrics.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
	if err != nil {
		d.logger().Warn("generation failed",
			"stage", stage, "error", err, "elapsed_ms", elapsed.Milliseconds())
		return "", err
	}
	d.logger().Debug("stage call complete",
		"stage", stage, "elapsed_ms", elapsed.Milliseconds(), "calls", d.Counter.Count())
	return text, nil
}

// callJSON runs call and decodes the response into v. A nil Degradation
// with nil error means v holds the expected shape.
func (d *Deps) callJSON(ctx context.Context, stage, prompt string, v any) (*Degradation, error) {
	text, err := d.call(ctx, stage, prompt)
	if err != nil {
		if aborted(ctx) {
			return nil, err
		}
		return &Degradation{Stage: stage, Err: err}, nil
	}

	if err := payload.Extract(text, v); err != nil {
		if d.Metrics != nil {
			d.Metrics.ParseFailures.WithLabelValues(stage).Inc()
		}
		d.logger().Warn("malformed structured output", "stage", stage, "error", err)
		var perr *payload.ParseError
		raw := text
		if errors.As(err, &perr) {
			raw = perr.Raw
		}
		return &Degradation{Stage: stage, Raw: raw, Err: err}, nil
	}
	return nil, nil
}

// callText runs call for stages whose output is free text.
func (d *Deps) callText(ctx context.Context, stage, prompt string) (string, *Degradation, error) {
	text, err := d.call(ctx, stage, prompt)
	if err != nil {
		if aborted(ctx) {
			return "", nil, err
		}
		return "", &Degradation{Stage: stage, Err: err}, nil
	}
	return text, nil, nil
}

// aborted reports whether the surrounding run was cancelled, as
// opposed to an upstream failure the stage should absorb.
func aborted(ctx context.Context) bool {
	return ctx.Err() != nil
}
