package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ParsedMedicine is one medicine extracted from a prescription image.
type ParsedMedicine struct {
	Name         string   `json:"name"`
	Dosage       string   `json:"dosage,omitempty"`
	Frequency    string   `json:"frequency,omitempty"`
	Timing       []string `json:"timing,omitempty"`
	DurationDays *int     `json:"duration_days,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// ParsedPrescription is the structured result of parsing raw
// prescription text.
type ParsedPrescription struct {
	DoctorName   string           `json:"doctor_name,omitempty"`
	HospitalName string           `json:"hospital_name,omitempty"`
	PatientName  string           `json:"patient_name,omitempty"`
	Date         string           `json:"date,omitempty"`
	Diagnosis    string           `json:"diagnosis,omitempty"`
	Medicines    []ParsedMedicine `json:"medicines"`
	Notes        string           `json:"notes,omitempty"`
	FollowUpDate string           `json:"follow_up_date,omitempty"`
}

const prescriptionSystemPrompt = "You are a medical document parser. Always respond with valid JSON only."

const prescriptionPromptTemplate = `Extract structured information from the following prescription text.

Return a JSON object with this exact structure:
{
    "doctor_name": "Dr. Name if found",
    "hospital_name": "Hospital/Clinic name if found",
    "patient_name": "Patient name if found",
    "date": "Date in YYYY-MM-DD format if found",
    "diagnosis": "Diagnosis if mentioned",
    "medicines": [
        {
            "name": "Medicine name",
            "dosage": "Dosage (e.g., 500mg)",
            "frequency": "How often (e.g., twice daily)",
            "timing": ["morning", "night"],
            "duration_days": 7,
            "instructions": "Any special instructions"
        }
    ],
    "notes": "Any additional notes",
    "follow_up_date": "Follow-up date if mentioned"
}

For timing, use these standard values: "morning", "afternoon", "evening", "night", "before_breakfast", "after_breakfast", "before_lunch", "after_lunch", "before_dinner", "after_dinner"

Prescription text:
%s

Return ONLY valid JSON, no other text.`

// Parse modes reported by ParsePrescription.
const (
	ParseModeModel   = "model"
	ParseModeOffline = "offline"
)

// ParsePrescription turns raw OCR text into structured medicines and
// reports which mode produced the result. When the client is
// unconfigured or the model fails, it degrades to the keyword-based
// offline parse rather than erroring: prescription upload must not
// fail on a flaky model.
func (c *Client) ParsePrescription(ctx context.Context, ocrText string) (*ParsedPrescription, string) {
	if !c.Configured() {
		return offlinePrescriptionParse(ocrText), ParseModeOffline
	}

	raw, err := c.Complete(ctx, prescriptionSystemPrompt,
		fmt.Sprintf(prescriptionPromptTemplate, ocrText))
	if err != nil {
		c.logger.Warn("prescription parse degraded to offline mode", zap.Error(err))
		return offlinePrescriptionParse(ocrText), ParseModeOffline
	}

	var parsed ParsedPrescription
	if err := DecodeStrict(raw, &parsed); err != nil {
		c.logger.Warn("prescription parse returned malformed payload", zap.Error(err))
		return offlinePrescriptionParse(ocrText), ParseModeOffline
	}
	return &parsed, ParseModeModel
}

// offlinePrescriptionParse is the keyword-based extraction used when
// no model is available. Results are flagged for manual verification.
func offlinePrescriptionParse(ocrText string) *ParsedPrescription {
	keywords := []string{"tab", "tablet", "cap", "capsule", "syrup", "mg", "ml"}
	duration := 7

	var medicines []ParsedMedicine
	for _, line := range strings.Split(ocrText, "\n") {
		lower := strings.ToLower(line)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				name := strings.TrimSpace(line)
				if len(name) > 50 {
					name = name[:50]
				}
				d := duration
				medicines = append(medicines, ParsedMedicine{
					Name:         name,
					Dosage:       "As prescribed",
					Frequency:    "As directed",
					Timing:       []string{"morning", "night"},
					DurationDays: &d,
				})
				break
			}
		}
		if len(medicines) == 10 {
			break
		}
	}

	return &ParsedPrescription{
		Medicines: medicines,
		Notes:     "Parsed without AI - please verify",
	}
}

// StripFences removes a surrounding markdown code fence, including an
// optional json language tag, from model output.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "json")
	return strings.TrimSpace(s)
}

// DecodeStrict strips markdown fences and decodes the payload,
// rejecting fields the target type does not declare. Model output is
// untrusted; shape mismatches surface as errors, never as silently
// zeroed fields.
func DecodeStrict(raw string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(StripFences(raw))))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode model payload: %w", err)
	}
	return nil
}
