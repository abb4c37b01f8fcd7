// Package safety implements the drug-interaction safety engine. It
// cross-references newly prescribed medicines against a patient's
// active medications through an injected classifier and guarantees
// that every check resolves to an actionable verdict: classifier
// failure degrades to a conservative CAUTION verdict, never to SAFE.
package safety

import (
	"time"
)

// Level is the ordered severity classification of a drug-drug
// interaction verdict.
type Level string

const (
	LevelSafe     Level = "SAFE"
	LevelCaution  Level = "CAUTION"
	LevelDanger   Level = "DANGER"
	LevelCritical Level = "CRITICAL"
)

// levelRank orders severities for comparison: SAFE < CAUTION < DANGER
// < CRITICAL. Unknown levels rank below SAFE so malformed input never
// outranks a real verdict.
var levelRank = map[Level]int{
	LevelSafe:     1,
	LevelCaution:  2,
	LevelDanger:   3,
	LevelCritical: 4,
}

// Rank returns the ordinal position of the level, 0 for unknown.
func (l Level) Rank() int { return levelRank[l] }

// Valid reports whether the level is one of the four known severities.
func (l Level) Valid() bool { return levelRank[l] != 0 }

// AtLeast reports whether l is as severe as other or more.
func (l Level) AtLeast(other Level) bool { return l.Rank() >= other.Rank() }

// RequiresImmediateAction reports whether the severity demands
// immediate intervention. DANGER and CRITICAL both qualify.
func (l Level) RequiresImmediateAction() bool { return l.Rank() >= levelRank[LevelDanger] }

// MedicationRef identifies a medicine in a safety check request.
type MedicationRef struct {
	Name   string `json:"name"`
	Dosage string `json:"dosage,omitempty"`
}

// Interaction is one classified drug-pair interaction.
type Interaction struct {
	DrugA              string `json:"drug_a"`
	DrugB              string `json:"drug_b"`
	Severity           Level  `json:"severity"`
	RiskDescription    string `json:"risk_description"`
	SymptomsToWatch    string `json:"symptoms_to_watch,omitempty"`
	RequiredAction     string `json:"required_action"`
	MinSeparationHours *int   `json:"min_separation_hours,omitempty"`
	ClinicalNote       string `json:"clinical_note,omitempty"`
}

// Alert is the verdict of a safety check.
type Alert struct {
	HasCriticalInteractions  bool          `json:"has_critical_interactions"`
	SafetyLevel              Level         `json:"safety_level"`
	Interactions             []Interaction `json:"interactions"`
	SafeMedicines            []string      `json:"safe_medicines"`
	Recommendation           string        `json:"recommendation"`
	EmergencyWarning         string        `json:"emergency_warning,omitempty"`
	ConsultDoctor            bool          `json:"consult_doctor"`
	ConfidenceScore          float64       `json:"confidence_score"`
	TotalMedicationsChecked  int           `json:"total_medications_checked"`
	CheckedAt                time.Time     `json:"checked_at"`
}

// Validate reports whether the alert is a well-formed classifier
// verdict: a known severity, a confidence score within [0,1] and known
// severities on every interaction record.
func (a *Alert) Validate() error {
	if !a.SafetyLevel.Valid() {
		return ErrMalformedVerdict
	}
	if a.ConfidenceScore < 0 || a.ConfidenceScore > 1 {
		return ErrMalformedVerdict
	}
	for i := range a.Interactions {
		if !a.Interactions[i].Severity.Valid() {
			return ErrMalformedVerdict
		}
	}
	return nil
}
