package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/Arham21-pixel/MediTrack.AI/internal/domain/safety"
)

const interactionSystemPrompt = "You are a clinical drug-interaction checker. Always respond with valid JSON only."

const interactionPromptTemplate = `Check the newly prescribed medicines against the patient's current medications for drug-drug interactions.

Newly prescribed: %s
Currently taking: %s

Return a JSON object with this exact structure:
{
    "has_critical_interactions": false,
    "safety_level": "SAFE",
    "interactions": [
        {
            "drug_a": "Drug name",
            "drug_b": "Drug name",
            "severity": "CAUTION",
            "risk_description": "What can happen",
            "symptoms_to_watch": "Symptoms the patient should watch for",
            "required_action": "What the patient must do",
            "min_separation_hours": 12,
            "clinical_note": "Optional clinical detail"
        }
    ],
    "safe_medicines": ["Names confirmed safe to combine"],
    "recommendation": "Overall recommendation",
    "emergency_warning": "Present only when emergency care may be needed",
    "consult_doctor": false,
    "confidence_score": 0.95
}

For safety_level and severity use exactly one of: SAFE, CAUTION, DANGER, CRITICAL.

Return ONLY valid JSON, no other text.`

// Classify implements safety.Classifier: it asks the model for an
// interaction verdict over the two name lists and strictly decodes the
// reply. Any transport failure or shape mismatch is returned as an
// error; the safety engine owns the fail-safe conversion.
func (c *Client) Classify(ctx context.Context, newMeds, existingMeds []safety.MedicationRef) (*safety.Alert, error) {
	if !c.Configured() {
		return nil, safety.ErrClassifierUnavailable
	}

	raw, err := c.Complete(ctx, interactionSystemPrompt,
		fmt.Sprintf(interactionPromptTemplate, medicationList(newMeds), medicationList(existingMeds)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", safety.ErrClassifierUnavailable, err)
	}

	var alert safety.Alert
	if err := DecodeStrict(raw, &alert); err != nil {
		return nil, fmt.Errorf("%w: %v", safety.ErrMalformedVerdict, err)
	}
	if err := alert.Validate(); err != nil {
		return nil, err
	}
	return &alert, nil
}

// medicationList renders medication references for the prompt.
func medicationList(meds []safety.MedicationRef) string {
	if len(meds) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(meds))
	for _, m := range meds {
		if m.Dosage != "" {
			parts = append(parts, m.Name+" ("+m.Dosage+")")
			continue
		}
		parts = append(parts, m.Name)
	}
	return strings.Join(parts, ", ")
}
