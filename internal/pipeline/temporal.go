package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// unknownDateKey sorts undated events after every dated one.
const unknownDateKey = "9999-12-31"

// Analyzer performs temporal reasoning over processed documents: new
// events, lab trends, causal links, and priority triage.
type Analyzer struct {
	deps Deps
}

func NewAnalyzer(deps Deps) *Analyzer {
	return &Analyzer{deps: deps}
}

// IdentifyNewEvents finds clinically relevant events newer than the
// last visit date.
func (a *Analyzer) IdentifyNewEvents(ctx context.Context, docs []ProcessedDocument, lastVisit string) (NewEventsResult, error) {
	if lastVisit == "" {
		lastVisit = "3 months ago"
	}

	prompt := fmt.Sprintf(`Analyze these medical documents and identify NEW events since the last visit.

Last Visit Date: %s

Documents:
%s

Identify:
1. New diagnoses or conditions
2. New abnormal test results
3. ER visits or hospitalizations
4. New medications started or stopped
5. New specialist consultations

Return a JSON object:
{
    "new_events": [
        {
            "event": "description",
            "date": "YYYY-MM-DD",
            "severity": "critical/urgent/routine",
            "source_document": "document name"
        }
    ]
}

Return ONLY valid JSON, no other text.`, lastVisit, summarizeDocuments(docs))

	var res NewEventsResult
	deg, err := a.deps.callJSON(ctx, "new_events", prompt, &res)
	res.Degraded = deg
	return res, err
}

// DetectLabTrends analyzes lab values over time. Skips the upstream
// call entirely, spending no quota, when no lab data is available.
func (a *Analyzer) DetectLabTrends(ctx context.Context, docs []ProcessedDocument) (TrendsResult, error) {
	type datedLabs struct {
		Date  string    `json:"date"`
		Tests []LabTest `json:"tests"`
	}
	var labs []datedLabs
	for _, doc := range docs {
		if doc.Labs != nil && doc.Degraded == nil {
			labs = append(labs, datedLabs{Date: doc.Labs.TestDate, Tests: doc.Labs.Tests})
		}
	}
	if len(labs) == 0 {
		return TrendsResult{}, nil
	}

	encoded, _ := json.MarshalIndent(labs, "", "  ")
	prompt := fmt.Sprintf(`Analyze these lab results over time and identify important trends.

Lab Results (chronological):
%s

For each test showing a trend:
1. Identify the test name
2. Describe the trend (improving/worsening/stable)
3. Assess clinical significance
4. Note if values are moving out of normal range

Return a JSON object:
{
    "trends": [
        {
            "test_name": "name",
            "direction": "improving/worsening/stable",
            "values_over_time": ["oldest", "recent"],
            "clinical_significance": "high/medium/low",
            "interpretation": "what this means clinically"
        }
    ]
}

Return ONLY valid JSON, no other text.`, encoded)

	var res TrendsResult
	deg, err := a.deps.callJSON(ctx, "lab_trends", prompt, &res)
	res.Degraded = deg
	return res, err
}

// EstablishCausalLinks looks for cause-effect relationships between
// chronologically ordered events. Skips the call when no events could
// be distilled from the documents.
func (a *Analyzer) EstablishCausalLinks(ctx context.Context, docs []ProcessedDocument) (CausalResult, error) {
	events := CollectEvents(docs)
	if len(events) == 0 {
		return CausalResult{Summary: "insufficient data to establish causal relationships"}, nil
	}

	encoded, _ := json.MarshalIndent(events, "", "  ")
	prompt := fmt.Sprintf(`Analyze these chronological medical events and identify CAUSAL RELATIONSHIPS.

Events (chronological order):
%s

Look for:
1. Drug-drug interactions
2. Treatment effects (medication -> lab value changes)
3. Disease progression
4. Side effects from medications
5. Complications from procedures

For each causal relationship identify the cause event, the effect
event, the mechanism, a confidence level, and clinical importance.

Return a JSON object:
{
    "causal_links": [
        {
            "cause_event": "Event A description and date",
            "effect_event": "Event B description and date",
            "mechanism": "how A led to B",
            "confidence": "high/medium/low",
            "clinical_importance": "critical/important/notable",
            "recommendation": "what action should be taken"
        }
    ],
    "summary": "overall narrative of the patient's clinical course"
}

Return ONLY valid JSON, no other text.`, encoded)

	var res CausalResult
	deg, err := a.deps.callJSON(ctx, "causal_links", prompt, &res)
	res.Degraded = deg
	return res, err
}

// PrioritizeChanges triages all findings into critical, urgent, and
// routine buckets for physician review.
func (a *Analyzer) PrioritizeChanges(ctx context.Context, events NewEventsResult, trends TrendsResult, causal CausalResult) (PrioritiesResult, error) {
	combined := map[string]any{
		"new_events":   events.Events,
		"trends":       trends.Trends,
		"causal_links": causal.Links,
	}
	encoded, _ := json.MarshalIndent(combined, "", "  ")

	prompt := fmt.Sprintf(`Review all clinical changes and prioritize them for physician review.

Data:
%s

Categorize each finding:
- CRITICAL: requires immediate attention
- URGENT: needs attention soon
- ROUTINE: monitor at next visit

Return a JSON object:
{
    "critical": [{"finding": "...", "rationale": "...", "suggested_action": "..."}],
    "urgent": [{"finding": "...", "rationale": "...", "suggested_action": "..."}],
    "routine": [{"finding": "...", "rationale": "..."}]
}

Return ONLY valid JSON, no other text.`, encoded)

	var res PrioritiesResult
	deg, err := a.deps.callJSON(ctx, "prioritize", prompt, &res)
	res.Degraded = deg
	return res, err
}

// BuildTimeline orders document events chronologically. Pure data
// organization, no upstream call.
func (a *Analyzer) BuildTimeline(docs []ProcessedDocument) []TimelineEntry {
	var timeline []TimelineEntry
	for _, doc := range docs {
		if doc.Degraded != nil {
			continue
		}

		var event string
		switch doc.Type {
		case TypeLabReport:
			event = fmt.Sprintf("Lab Tests: %d tests performed", len(doc.Labs.Tests))
		case TypeVisitNote:
			event = "Office Visit: " + orDefault(doc.Visit.ChiefComplaint, "Follow-up")
		case TypeImaging:
			event = strings.TrimSpace(fmt.Sprintf("Imaging: %s %s", doc.Imaging.Modality, doc.Imaging.BodyPart))
		case TypeSpecialistNote:
			event = fmt.Sprintf("Specialist: %s consultation", doc.Specialist.Specialty)
		case TypeDischargeSummary:
			event = "Emergency Department Visit"
		}

		date := doc.Date()
		if date == "" || event == "" {
			continue
		}
		timeline = append(timeline, TimelineEntry{
			Date:         date,
			Event:        event,
			DocumentType: doc.Type,
			DocumentName: doc.Name,
		})
	}

	sort.SliceStable(timeline, func(i, j int) bool {
		return timeline[i].Date < timeline[j].Date
	})
	return timeline
}

// AnalyzeAll runs the complete temporal pass: four admitted calls at
// most, fewer when data is missing.
func (a *Analyzer) AnalyzeAll(ctx context.Context, docs []ProcessedDocument, lastVisit string) (TemporalAnalysis, error) {
	var analysis TemporalAnalysis
	var err error

	if analysis.NewEvents, err = a.IdentifyNewEvents(ctx, docs, lastVisit); err != nil {
		return analysis, err
	}
	if analysis.Trends, err = a.DetectLabTrends(ctx, docs); err != nil {
		return analysis, err
	}
	if analysis.Causal, err = a.EstablishCausalLinks(ctx, docs); err != nil {
		return analysis, err
	}
	if analysis.Priorities, err = a.PrioritizeChanges(ctx, analysis.NewEvents, analysis.Trends, analysis.Causal); err != nil {
		return analysis, err
	}
	analysis.Timeline = a.BuildTimeline(docs)

	a.deps.logger().Info("temporal analysis complete",
		"new_events", len(analysis.NewEvents.Events),
		"trends", len(analysis.Trends.Trends),
		"causal_links", len(analysis.Causal.Links),
		"timeline_entries", len(analysis.Timeline),
	)
	return analysis, nil
}

// CollectEvents distills dated events from processed documents,
// chronologically sorted with undated events last. Local computation,
// no quota spend.
func CollectEvents(docs []ProcessedDocument) []Event {
	var events []Event
	add := func(date, typ, desc string) {
		if date == "" {
			date = "Unknown"
		}
		events = append(events, Event{Date: date, Type: typ, Description: desc})
	}

	for _, doc := range docs {
		if doc.Degraded != nil {
			continue
		}
		switch doc.Type {
		case TypeLabReport:
			for _, test := range doc.Labs.Tests {
				add(doc.Labs.TestDate, "lab_result", strings.TrimSpace(fmt.Sprintf(
					"%s: %s %s (%s)", test.Name, test.Value, test.Unit, orDefault(test.Flag, "NORMAL"))))
			}
		case TypeVisitNote:
			add(doc.Visit.VisitDate, "office_visit",
				"Visit: "+orDefault(doc.Visit.ChiefComplaint, "Follow-up"))
			for _, med := range doc.Visit.Medications {
				if med != "" {
					add(doc.Visit.VisitDate, "medication", "Medication prescribed: "+med)
				}
			}
		case TypeDischargeSummary:
			add(doc.Visit.VisitDate, "emergency_visit",
				"ER visit: "+orDefault(doc.Visit.ChiefComplaint, "Emergency"))
		case TypeSpecialistNote:
			add(doc.Specialist.ConsultationDate, "specialist_consult", fmt.Sprintf(
				"%s consultation: %s",
				orDefault(doc.Specialist.Specialty, "Specialist"),
				orDefault(doc.Specialist.ReasonForConsult, "Consultation")))
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		return sortKey(events[i].Date) < sortKey(events[j].Date)
	})
	return events
}

// summarizeDocuments renders a one-line-per-document digest for
// prompts, skipping degraded documents.
func summarizeDocuments(docs []ProcessedDocument) string {
	var lines []string
	for _, doc := range docs {
		if doc.Degraded != nil {
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s, %s)",
			doc.Name, doc.Type, orDefault(doc.Date(), "Unknown date")))
	}
	if len(lines) == 0 {
		return "No valid documents found"
	}
	return strings.Join(lines, "\n")
}

func sortKey(date string) string {
	if date == "" || date == "Unknown" {
		return unknownDateKey
	}
	return date
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
