package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// NoteGenerator drafts complete clinical documentation from a brief
// encounter note: four SOAP sections, then billing codes. Six admitted
// calls per note.
type NoteGenerator struct {
	deps Deps
}

func NewNoteGenerator(deps Deps) *NoteGenerator {
	return &NoteGenerator{deps: deps}
}

// ExpandHPI turns the brief note into a complete history of present
// illness narrative.
func (g *NoteGenerator) ExpandHPI(ctx context.Context, brief string, patient *PatientContext) (string, *Degradation, error) {
	var patientStr string
	if patient != nil {
		encoded, _ := json.MarshalIndent(patient, "", "  ")
		patientStr = fmt.Sprintf("\n\nPatient Context:\n%s", encoded)
	}

	prompt := fmt.Sprintf(`You are a medical scribe. Expand this brief clinical note into a complete, professional History of Present Illness (HPI).

Brief Note:
%s%s

Create a detailed HPI that includes:
- Complete chronological narrative
- Relevant positives and negatives
- Associated symptoms
- Pertinent past medical history
- Professional medical language

Write 2-3 well-structured paragraphs. Be thorough but concise.`, brief, patientStr)

	return g.deps.callText(ctx, "draft_hpi", prompt)
}

// DraftObjective generates the objective findings section.
func (g *NoteGenerator) DraftObjective(ctx context.Context, brief string, vitals VitalSigns) (string, *Degradation, error) {
	var vitalsStr string
	if len(vitals) > 0 {
		encoded, _ := json.MarshalIndent(vitals, "", "  ")
		vitalsStr = fmt.Sprintf("\n\nVital Signs:\n%s", encoded)
	}

	prompt := fmt.Sprintf(`Generate the OBJECTIVE section of a SOAP note for this clinical encounter.

Brief Note:
%s%s

Include appropriate subsections:
- Vital Signs
- Physical Examination findings
- Relevant lab/test results mentioned
- Current medications
- Allergies (if known or state NKDA)

Format as a professional medical note with clear subsections.`, brief, vitalsStr)

	return g.deps.callText(ctx, "draft_objective", prompt)
}

// DraftAssessment creates the assessment with clinical reasoning,
// consuming the already-drafted HPI and objective sections.
func (g *NoteGenerator) DraftAssessment(ctx context.Context, brief, hpi, objective string) (string, *Degradation, error) {
	prompt := fmt.Sprintf(`Generate the ASSESSMENT section of a SOAP note with clinical reasoning.

Brief Note:
%s

HPI:
%s

Objective:
%s

Create an assessment that:
1. Lists all active problems/diagnoses
2. Provides clinical reasoning for each
3. Notes stability/changes from baseline
4. Addresses differential diagnoses if relevant

Format as numbered problems with supporting rationale.`, brief, hpi, objective)

	return g.deps.callText(ctx, "draft_assessment", prompt)
}

// DraftPlan generates the plan section from the assessment.
func (g *NoteGenerator) DraftPlan(ctx context.Context, brief, assessment string) (string, *Degradation, error) {
	prompt := fmt.Sprintf(`Generate the PLAN section of a SOAP note.

Brief Note:
%s

Assessment:
%s

Create a detailed plan organized by problem that includes:
1. Medication changes with specific doses/frequencies
2. Diagnostic tests ordered
3. Referrals needed (specify specialty)
4. Patient education provided
5. Follow-up schedule (specific timeframe)
6. Return precautions

Be specific with dosages, frequencies, and instructions.`, brief, assessment)

	return g.deps.callText(ctx, "draft_plan", prompt)
}

// ExtractICD10 pulls diagnosis codes out of the assembled note.
func (g *NoteGenerator) ExtractICD10(ctx context.Context, fullNote string) (ICD10Result, error) {
	prompt := fmt.Sprintf(`Extract all appropriate ICD-10 diagnosis codes from this clinical note.

SOAP Note:
%s

For each diagnosis:
1. Identify the specific ICD-10 code (e.g., E11.9, I10)
2. Provide the full description
3. Indicate if primary or secondary diagnosis

Return a JSON array:
[
    {
        "code": "ICD-10 code",
        "description": "full description",
        "type": "primary/secondary"
    }
]

Return ONLY valid JSON array, no other text.`, fullNote)

	var res ICD10Result
	deg, err := g.deps.callJSON(ctx, "icd10_codes", prompt, &res.Codes)
	res.Degraded = deg
	return res, err
}

// DetermineCPT picks the office-visit billing level from the note and
// optional face time.
func (g *NoteGenerator) DetermineCPT(ctx context.Context, fullNote string, timeSpent int) (CPTResult, error) {
	var timeStr string
	if timeSpent > 0 {
		timeStr = fmt.Sprintf("\nTime spent with patient: %d minutes", timeSpent)
	}

	prompt := fmt.Sprintf(`Determine the most appropriate CPT code for this office visit.

SOAP Note:
%s%s

Consider:
- Complexity of medical decision making (MDM)
- Number of problems addressed
- Amount of data reviewed
- Risk of complications/morbidity

CPT Codes (Office/Outpatient Established Patient):
- 99211: Minimal MDM
- 99212: Straightforward MDM
- 99213: Low MDM
- 99214: Moderate MDM
- 99215: High MDM

Return a JSON object:
{
    "cpt_code": "99213",
    "description": "Office visit, moderate complexity",
    "justification": "reasoning for this level including MDM analysis"
}

Return ONLY valid JSON, no other text.`, fullNote, timeStr)

	var res CPTResult
	deg, err := g.deps.callJSON(ctx, "cpt_code", prompt, &res.Code)
	res.Degraded = deg
	return res, err
}

// GenerateNote drafts the complete note: sections sequentially (each
// consumes the previous), then billing codes from the assembled whole.
func (g *NoteGenerator) GenerateNote(ctx context.Context, brief string, patient *PatientContext, vitals VitalSigns, timeSpent int) (ClinicalNote, error) {
	note := ClinicalNote{BriefNote: brief, TimeSpent: timeSpent}
	record := func(deg *Degradation) {
		if deg != nil {
			note.SOAP.Degradations = append(note.SOAP.Degradations, *deg)
		}
	}

	var deg *Degradation
	var err error

	if note.SOAP.Subjective, deg, err = g.ExpandHPI(ctx, brief, patient); err != nil {
		return note, err
	}
	record(deg)

	if note.SOAP.Objective, deg, err = g.DraftObjective(ctx, brief, vitals); err != nil {
		return note, err
	}
	record(deg)

	if note.SOAP.Assessment, deg, err = g.DraftAssessment(ctx, brief, note.SOAP.Subjective, note.SOAP.Objective); err != nil {
		return note, err
	}
	record(deg)

	if note.SOAP.Plan, deg, err = g.DraftPlan(ctx, brief, note.SOAP.Assessment); err != nil {
		return note, err
	}
	record(deg)

	note.SOAP.FullNote = fmt.Sprintf(
		"SUBJECTIVE:\n%s\n\nOBJECTIVE:\n%s\n\nASSESSMENT:\n%s\n\nPLAN:\n%s",
		note.SOAP.Subjective, note.SOAP.Objective, note.SOAP.Assessment, note.SOAP.Plan)

	if note.ICD10, err = g.ExtractICD10(ctx, note.SOAP.FullNote); err != nil {
		return note, err
	}
	if note.CPT, err = g.DetermineCPT(ctx, note.SOAP.FullNote, timeSpent); err != nil {
		return note, err
	}

	note.GeneratedAt = nowFunc()
	g.deps.logger().Info("documentation generated",
		"icd10_codes", len(note.ICD10.Codes),
		"cpt", note.CPT.Code.Code,
		"degraded_sections", len(note.SOAP.Degradations),
	)
	return note, nil
}
