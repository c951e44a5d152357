package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
)

// Coordinator turns analysis and documentation output into concrete
// care actions: referrals, follow-ups, orders, and patient-facing
// communication.
type Coordinator struct {
	deps Deps
}

func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{deps: deps}
}

// IdentifyNeeds determines every coordination action the clinical data
// calls for.
func (c *Coordinator) IdentifyNeeds(ctx context.Context, analysis TemporalAnalysis, note *ClinicalNote) (CoordinationNeeds, error) {
	combined := map[string]any{
		"new_events":   analysis.NewEvents.Events,
		"trends":       analysis.Trends.Trends,
		"causal_links": analysis.Causal.Links,
		"priorities": map[string]any{
			"critical": analysis.Priorities.Critical,
			"urgent":   analysis.Priorities.Urgent,
			"routine":  analysis.Priorities.Routine,
		},
	}
	if note != nil {
		combined["soap_note"] = map[string]string{
			"assessment": note.SOAP.Assessment,
			"plan":       note.SOAP.Plan,
		}
	}
	encoded, _ := json.MarshalIndent(combined, "", "  ")

	prompt := fmt.Sprintf(`Analyze this clinical data and identify ALL care coordination actions needed.

Clinical Data:
%s

Identify:
1. REFERRALS: any specialist consultations mentioned or needed
2. FOLLOW-UPS: when the patient needs to return
3. ORDERS: labs, imaging, or tests that need scheduling
4. PATIENT COMMUNICATIONS: visit summaries, medication changes, instructions

Return a JSON object:
{
    "referrals": [{"specialty": "...", "reason": "...", "urgency": "urgent/routine", "notes": "..."}],
    "follow_ups": [{"timeframe": "e.g., 3 months", "reason": "...", "required_prep": "e.g., fasting labs"}],
    "orders": [{"type": "lab/imaging/test", "description": "...", "timing": "..."}],
    "patient_communication_needed": true
}

Return ONLY valid JSON, no other text.`, encoded)

	var needs CoordinationNeeds
	deg, err := c.deps.callJSON(ctx, "coordination_needs", prompt, &needs)
	needs.Degraded = deg
	return needs, err
}

// DraftReferralLetter writes a professional referral letter for one
// identified referral.
func (c *Coordinator) DraftReferralLetter(ctx context.Context, referral Referral, patient PatientContext) (ReferralLetter, error) {
	refJSON, _ := json.MarshalIndent(referral, "", "  ")
	patJSON, _ := json.MarshalIndent(patient, "", "  ")

	prompt := fmt.Sprintf(`Generate a professional specialist referral letter.

Referral Details:
%s

Patient Context:
%s

Create a referral letter that includes:
1. Patient demographics (name, DOB, MRN from context)
2. Reason for referral
3. Relevant medical history
4. Pertinent test results
5. Current medications
6. Specific questions for the specialist
7. Professional closing`, refJSON, patJSON)

	letter := ReferralLetter{Referral: referral}
	var err error
	letter.Letter, letter.Degraded, err = c.deps.callText(ctx, "referral_letter", prompt)
	return letter, err
}

// DraftPatientSummary writes a patient-friendly visit summary covering
// findings, medication changes, and next steps in plain language.
func (c *Coordinator) DraftPatientSummary(ctx context.Context, analysis TemporalAnalysis, note *ClinicalNote, patient PatientContext) (string, *Degradation, error) {
	summary := map[string]any{
		"patient":    patient,
		"priorities": analysis.Priorities,
	}
	if note != nil {
		summary["plan"] = note.SOAP.Plan
	}
	encoded, _ := json.MarshalIndent(summary, "", "  ")

	prompt := fmt.Sprintf(`Write a patient-friendly summary of this visit.

Clinical Data:
%s

Requirements:
- Plain language, no medical jargon
- Explain what was found and why it matters
- List medication changes and how to take them
- State clearly what the patient should do next and when to seek help
- Warm, reassuring tone without minimizing concerns`, encoded)

	return c.deps.callText(ctx, "patient_summary", prompt)
}

// CoordinateAll runs the full coordination pass: needs first, then a
// letter per referral, then the patient summary when flagged.
func (c *Coordinator) CoordinateAll(ctx context.Context, analysis TemporalAnalysis, note *ClinicalNote, patient PatientContext) (CoordinationResult, error) {
	var result CoordinationResult
	var err error

	if result.Needs, err = c.IdentifyNeeds(ctx, analysis, note); err != nil {
		return result, err
	}

	for _, ref := range result.Needs.Referrals {
		letter, err := c.DraftReferralLetter(ctx, ref, patient)
		if err != nil {
			return result, err
		}
		result.Letters = append(result.Letters, letter)
	}

	if result.Needs.PatientCommunicationNeeded {
		result.PatientSummary, result.SummaryDegraded, err = c.DraftPatientSummary(ctx, analysis, note, patient)
		if err != nil {
			return result, err
		}
	}

	result.ActionsCount = len(result.Needs.Referrals) +
		len(result.Needs.FollowUps) + len(result.Needs.Orders)
	if result.Needs.PatientCommunicationNeeded {
		result.ActionsCount++
	}

	c.deps.logger().Info("care coordination complete",
		"referrals", len(result.Needs.Referrals),
		"follow_ups", len(result.Needs.FollowUps),
		"orders", len(result.Needs.Orders),
		"actions", result.ActionsCount,
	)
	return result, nil
}
