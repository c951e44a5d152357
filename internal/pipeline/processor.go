package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// classifyExcerptLen bounds how much document text the classifier sees.
const classifyExcerptLen = 1000

// Processor classifies medical documents and routes each one to the
// matching structured extractor.
type Processor struct {
	deps Deps
}

func NewProcessor(deps Deps) *Processor {
	return &Processor{deps: deps}
}

// Classify determines the document type. Unknown answers and upstream
// failures fall back to visit_note so the document is still extracted
// rather than dropped.
func (p *Processor) Classify(ctx context.Context, doc Document) (DocumentType, error) {
	excerpt := doc.Content
	if len(excerpt) > classifyExcerptLen {
		// back off to a rune boundary so the cut never leaves a
		// partial UTF-8 sequence in the prompt
		cut := classifyExcerptLen
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut]
	}

	prompt := fmt.Sprintf(`Analyze this medical document and classify it into ONE category:
- lab_report
- visit_note
- imaging
- specialist_note
- discharge_summary

Document content (excerpt):
%s

Return ONLY the category name, nothing else.`, excerpt)

	text, err := p.deps.call(ctx, "classify", prompt)
	if err != nil {
		if aborted(ctx) {
			return "", err
		}
		p.deps.logger().Warn("classification failed, using fallback",
			"document", doc.Name, "error", err)
		return TypeVisitNote, nil
	}

	if dt, ok := ParseDocumentType(strings.ToLower(strings.TrimSpace(text))); ok {
		return dt, nil
	}
	return TypeVisitNote, nil
}

// ExtractLabReport pulls structured lab data out of a lab report.
func (p *Processor) ExtractLabReport(ctx context.Context, doc Document) (*LabReport, *Degradation, error) {
	prompt := fmt.Sprintf(`Extract structured lab test data from this lab report.

Document:
%s

Return a JSON object with this structure:
{
    "test_date": "YYYY-MM-DD",
    "tests": [
        {
            "name": "test name",
            "value": "numeric value",
            "unit": "unit",
            "reference_range": "normal range",
            "flag": "HIGH/LOW/NORMAL"
        }
    ],
    "ordering_provider": "doctor name"
}

Return ONLY valid JSON, no other text.`, doc.Content)

	var report LabReport
	deg, err := p.deps.callJSON(ctx, "extract_lab", prompt, &report)
	if err != nil || deg != nil {
		return nil, deg, err
	}
	return &report, nil, nil
}

// ExtractVisitNote pulls structured data out of a visit note. Also
// used for discharge summaries, which share the same shape.
func (p *Processor) ExtractVisitNote(ctx context.Context, doc Document) (*VisitNote, *Degradation, error) {
	prompt := fmt.Sprintf(`Extract structured data from this clinical visit note.

Document:
%s

Return a JSON object:
{
    "visit_date": "YYYY-MM-DD",
    "chief_complaint": "reason for visit",
    "diagnoses": ["diagnosis 1"],
    "medications": ["medication 1"],
    "orders": ["order 1"],
    "vital_signs": {"bp": "120/80", "hr": "72", "temp": "98.6"},
    "provider": "doctor name"
}

Return ONLY valid JSON, no other text.`, doc.Content)

	var note VisitNote
	deg, err := p.deps.callJSON(ctx, "extract_visit", prompt, &note)
	if err != nil || deg != nil {
		return nil, deg, err
	}
	return &note, nil, nil
}

// ExtractImagingReport pulls structured data out of an imaging report.
func (p *Processor) ExtractImagingReport(ctx context.Context, doc Document) (*ImagingReport, *Degradation, error) {
	prompt := fmt.Sprintf(`Extract structured data from this imaging report.

Document:
%s

Return a JSON object:
{
    "exam_date": "YYYY-MM-DD",
    "modality": "CT/MRI/X-ray/etc",
    "body_part": "anatomical location",
    "findings": ["finding 1"],
    "impression": "radiologist's conclusion",
    "recommendations": ["recommendation 1"]
}

Return ONLY valid JSON, no other text.`, doc.Content)

	var report ImagingReport
	deg, err := p.deps.callJSON(ctx, "extract_imaging", prompt, &report)
	if err != nil || deg != nil {
		return nil, deg, err
	}
	return &report, nil, nil
}

// ExtractSpecialistNote pulls structured data out of a consultation note.
func (p *Processor) ExtractSpecialistNote(ctx context.Context, doc Document) (*SpecialistNote, *Degradation, error) {
	prompt := fmt.Sprintf(`Extract structured data from this specialist consultation note.

Document:
%s

Return a JSON object:
{
    "consultation_date": "YYYY-MM-DD",
    "specialty": "specialty type",
    "reason_for_consult": "reason",
    "specialist_name": "doctor name",
    "assessment": "specialist's assessment",
    "recommendations": ["recommendation 1"],
    "follow_up": "follow-up plan"
}

Return ONLY valid JSON, no other text.`, doc.Content)

	var note SpecialistNote
	deg, err := p.deps.callJSON(ctx, "extract_specialist", prompt, &note)
	if err != nil || deg != nil {
		return nil, deg, err
	}
	return &note, nil, nil
}

// Process classifies one document and extracts its structured data:
// two admitted calls per document.
func (p *Processor) Process(ctx context.Context, doc Document) (ProcessedDocument, error) {
	docType, err := p.Classify(ctx, doc)
	if err != nil {
		return ProcessedDocument{}, err
	}

	out := ProcessedDocument{Name: doc.Name, Type: docType}

	switch docType {
	case TypeLabReport:
		out.Labs, out.Degraded, err = p.ExtractLabReport(ctx, doc)
	case TypeImaging:
		out.Imaging, out.Degraded, err = p.ExtractImagingReport(ctx, doc)
	case TypeSpecialistNote:
		out.Specialist, out.Degraded, err = p.ExtractSpecialistNote(ctx, doc)
	default: // visit_note, discharge_summary
		out.Visit, out.Degraded, err = p.ExtractVisitNote(ctx, doc)
	}
	if err != nil {
		return ProcessedDocument{}, err
	}

	out.ProcessedAt = nowFunc()
	p.deps.logger().Info("document processed",
		"document", doc.Name, "type", docType, "degraded", out.Degraded != nil)
	return out, nil
}

// ProcessAll handles documents strictly sequentially: later stages
// consume earlier outputs and the shared quota gives parallel dispatch
// no benefit.
func (p *Processor) ProcessAll(ctx context.Context, docs []Document) ([]ProcessedDocument, error) {
	results := make([]ProcessedDocument, 0, len(docs))
	for _, doc := range docs {
		res, err := p.Process(ctx, doc)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}
