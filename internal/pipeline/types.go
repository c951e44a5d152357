package pipeline

import (
	"fmt"
	"time"
)

// DocumentType classifies a source document for extractor routing.
type DocumentType string

const (
	TypeLabReport        DocumentType = "lab_report"
	TypeVisitNote        DocumentType = "visit_note"
	TypeImaging          DocumentType = "imaging"
	TypeSpecialistNote   DocumentType = "specialist_note"
	TypeDischargeSummary DocumentType = "discharge_summary"
)

// DocumentTypes lists every type the classifier may return.
var DocumentTypes = []DocumentType{
	TypeLabReport,
	TypeVisitNote,
	TypeImaging,
	TypeSpecialistNote,
	TypeDischargeSummary,
}

// ParseDocumentType reports whether s names a known document type.
func ParseDocumentType(s string) (DocumentType, bool) {
	for _, dt := range DocumentTypes {
		if string(dt) == s {
			return dt, true
		}
	}
	return "", false
}

// Degradation marks a stage output carrying raw content plus an error
// instead of the expected structured shape. Downstream stages tolerate
// it and proceed with partial data.
type Degradation struct {
	Stage string `json:"stage"`
	Raw   string `json:"raw,omitempty"` // original model text, empty when the call itself failed
	Err   error  `json:"-"`
}

func (d *Degradation) Error() string {
	return fmt.Sprintf("stage %s degraded: %v", d.Stage, d.Err)
}

// Document is one input document, already reduced to text. File-format
// extraction happens upstream of this package.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// LabTest is a single result line in a lab report.
type LabTest struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"reference_range"`
	Flag           string `json:"flag"` // HIGH/LOW/NORMAL
}

type LabReport struct {
	TestDate         string    `json:"test_date"`
	Tests            []LabTest `json:"tests"`
	OrderingProvider string    `json:"ordering_provider"`
}

type VisitNote struct {
	VisitDate      string            `json:"visit_date"`
	ChiefComplaint string            `json:"chief_complaint"`
	Diagnoses      []string          `json:"diagnoses"`
	Medications    []string          `json:"medications"`
	Orders         []string          `json:"orders"`
	VitalSigns     map[string]string `json:"vital_signs"`
	Provider       string            `json:"provider"`
}

type ImagingReport struct {
	ExamDate        string   `json:"exam_date"`
	Modality        string   `json:"modality"`
	BodyPart        string   `json:"body_part"`
	Findings        []string `json:"findings"`
	Impression      string   `json:"impression"`
	Recommendations []string `json:"recommendations"`
}

type SpecialistNote struct {
	ConsultationDate string   `json:"consultation_date"`
	Specialty        string   `json:"specialty"`
	ReasonForConsult string   `json:"reason_for_consult"`
	SpecialistName   string   `json:"specialist_name"`
	Assessment       string   `json:"assessment"`
	Recommendations  []string `json:"recommendations"`
	FollowUp         string   `json:"follow_up"`
}

// ProcessedDocument is the classify+extract result for one document.
// Exactly one of the typed fields is set on success; Degraded is set
// when extraction (or classification routing) fell back to raw text.
type ProcessedDocument struct {
	Name        string          `json:"name"`
	Type        DocumentType    `json:"type"`
	Labs        *LabReport      `json:"labs,omitempty"`
	Visit       *VisitNote      `json:"visit,omitempty"`
	Imaging     *ImagingReport  `json:"imaging,omitempty"`
	Specialist  *SpecialistNote `json:"specialist,omitempty"`
	Degraded    *Degradation    `json:"degraded,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}

// Date returns the document's clinical date, whichever typed field
// carries one. Empty when unknown or degraded.
func (d *ProcessedDocument) Date() string {
	switch {
	case d.Labs != nil:
		return d.Labs.TestDate
	case d.Visit != nil:
		return d.Visit.VisitDate
	case d.Imaging != nil:
		return d.Imaging.ExamDate
	case d.Specialist != nil:
		return d.Specialist.ConsultationDate
	}
	return ""
}

// --- temporal analysis ---

type NewEvent struct {
	Event          string `json:"event"`
	Date           string `json:"date"`
	Severity       string `json:"severity"` // critical/urgent/routine
	SourceDocument string `json:"source_document"`
}

type NewEventsResult struct {
	Events   []NewEvent   `json:"new_events"`
	Degraded *Degradation `json:"-"`
}

type Trend struct {
	TestName             string   `json:"test_name"`
	Direction            string   `json:"direction"` // improving/worsening/stable
	ValuesOverTime       []string `json:"values_over_time"`
	ClinicalSignificance string   `json:"clinical_significance"`
	Interpretation       string   `json:"interpretation"`
}

type TrendsResult struct {
	Trends   []Trend      `json:"trends"`
	Degraded *Degradation `json:"-"`
}

type CausalLink struct {
	CauseEvent         string `json:"cause_event"`
	EffectEvent        string `json:"effect_event"`
	Mechanism          string `json:"mechanism"`
	Confidence         string `json:"confidence"`
	ClinicalImportance string `json:"clinical_importance"`
	Recommendation     string `json:"recommendation"`
}

type CausalResult struct {
	Links    []CausalLink `json:"causal_links"`
	Summary  string       `json:"summary"`
	Degraded *Degradation `json:"-"`
}

type Finding struct {
	Finding         string `json:"finding"`
	Rationale       string `json:"rationale"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

type PrioritiesResult struct {
	Critical []Finding    `json:"critical"`
	Urgent   []Finding    `json:"urgent"`
	Routine  []Finding    `json:"routine"`
	Degraded *Degradation `json:"-"`
}

// Event is a dated clinical occurrence distilled from processed
// documents, used as causal-analysis input. Assembled locally, no
// quota spend.
type Event struct {
	Date        string `json:"date"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

type TimelineEntry struct {
	Date         string       `json:"date"`
	Event        string       `json:"event"`
	DocumentType DocumentType `json:"document_type"`
	DocumentName string       `json:"document_name"`
}

// TemporalAnalysis aggregates every temporal stage's output.
type TemporalAnalysis struct {
	NewEvents  NewEventsResult  `json:"new_events"`
	Trends     TrendsResult     `json:"trends"`
	Causal     CausalResult     `json:"causal"`
	Priorities PrioritiesResult `json:"priorities"`
	Timeline   []TimelineEntry  `json:"timeline"`
}

// --- note generation ---

// PatientContext is pass-through demographic and history context
// embedded into drafting prompts.
type PatientContext struct {
	Name             string   `json:"name"`
	DOB              string   `json:"dob"`
	MRN              string   `json:"mrn"`
	PrimaryDiagnoses []string `json:"primary_diagnoses,omitempty"`
}

type VitalSigns map[string]string

// SOAPNote holds the four drafted sections plus the assembled note.
// A section that failed to generate is empty and listed in Degradations.
type SOAPNote struct {
	Subjective   string        `json:"subjective"`
	Objective    string        `json:"objective"`
	Assessment   string        `json:"assessment"`
	Plan         string        `json:"plan"`
	FullNote     string        `json:"full_note"`
	Degradations []Degradation `json:"degradations,omitempty"`
}

type ICD10Code struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	Type        string `json:"type"` // primary/secondary
}

type ICD10Result struct {
	Codes    []ICD10Code  `json:"codes"`
	Degraded *Degradation `json:"-"`
}

type CPTCode struct {
	Code          string `json:"cpt_code"`
	Description   string `json:"description"`
	Justification string `json:"justification"`
}

type CPTResult struct {
	Code     CPTCode      `json:"cpt"`
	Degraded *Degradation `json:"-"`
}

// ClinicalNote is the complete documentation output for one encounter.
type ClinicalNote struct {
	SOAP        SOAPNote    `json:"soap"`
	ICD10       ICD10Result `json:"icd10"`
	CPT         CPTResult   `json:"cpt"`
	BriefNote   string      `json:"brief_note"`
	TimeSpent   int         `json:"time_spent_minutes"` // minutes with the patient, used for CPT leveling
	GeneratedAt time.Time   `json:"generated_at"`
}

// --- care coordination ---

type Referral struct {
	Specialty string `json:"specialty"`
	Reason    string `json:"reason"`
	Urgency   string `json:"urgency"`
	Notes     string `json:"notes"`
}

type FollowUp struct {
	Timeframe    string `json:"timeframe"`
	Reason       string `json:"reason"`
	RequiredPrep string `json:"required_prep"`
}

type Order struct {
	Type        string `json:"type"` // lab/imaging/test
	Description string `json:"description"`
	Timing      string `json:"timing"`
}

type CoordinationNeeds struct {
	Referrals                  []Referral   `json:"referrals"`
	FollowUps                  []FollowUp   `json:"follow_ups"`
	Orders                     []Order      `json:"orders"`
	PatientCommunicationNeeded bool         `json:"patient_communication_needed"`
	Degraded                   *Degradation `json:"-"`
}

// ReferralLetter pairs a referral with its drafted letter text.
type ReferralLetter struct {
	Referral Referral     `json:"referral"`
	Letter   string       `json:"letter"`
	Degraded *Degradation `json:"degraded,omitempty"`
}

// CoordinationResult is the full coordination output.
type CoordinationResult struct {
	Needs           CoordinationNeeds `json:"needs"`
	Letters         []ReferralLetter  `json:"letters,omitempty"`
	PatientSummary  string            `json:"patient_summary,omitempty"`
	SummaryDegraded *Degradation      `json:"summary_degraded,omitempty"`
	ActionsCount    int               `json:"actions_count"`
}
