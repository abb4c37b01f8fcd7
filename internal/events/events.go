// Package events defines the payloads published through the outbox to
// the streaming layer. Payloads are versioned by event type string and
// carry everything a consumer needs without a storage round trip.
package events

import "time"

// Event type identifiers used in outbox entries and Kafka records.
const (
	TypeDoseLogged         = "dose.logged"
	TypeReminderDue        = "reminder.due"
	TypeSafetyAlertRaised  = "safety.alert.raised"
	TypeMedicineRegistered = "medicine.registered"
	TypeReportAnalyzed     = "report.analyzed"
)

// DoseLogged is emitted whenever a dose log is recorded.
type DoseLogged struct {
	LogID         string    `json:"log_id"`
	MedicineID    string    `json:"medicine_id"`
	MedicineName  string    `json:"medicine_name"`
	Timing        string    `json:"timing"`
	Status        string    `json:"status"`
	ScheduledTime time.Time `json:"scheduled_time"`
	LoggedAt      time.Time `json:"logged_at"`
}

// ReminderDue is emitted for each schedule slot that needs a patient
// notification. The dispatcher renders and delivers it.
type ReminderDue struct {
	MedicineID    string    `json:"medicine_id"`
	MedicineName  string    `json:"medicine_name"`
	Dosage        string    `json:"dosage,omitempty"`
	Timing        string    `json:"timing"`
	ScheduledTime time.Time `json:"scheduled_time"`
	UserID        string    `json:"user_id"`
}

// SafetyAlertRaised is emitted when an interaction check produces a
// verdict at DANGER or above, or a fail-safe verdict.
type SafetyAlertRaised struct {
	UserID         string    `json:"user_id"`
	SafetyLevel    string    `json:"safety_level"`
	FailSafe       bool      `json:"fail_safe"`
	Recommendation string    `json:"recommendation"`
	CheckedAt      time.Time `json:"checked_at"`
}

// ReportAnalyzed is emitted when lab report analysis classifies the
// report at critical risk, so the patient can be alerted.
type ReportAnalyzed struct {
	ReportID       string    `json:"report_id"`
	UserID         string    `json:"user_id"`
	ReportType     string    `json:"report_type"`
	RiskLevel      string    `json:"risk_level"`
	Summary        string    `json:"summary,omitempty"`
	AbnormalValues []string  `json:"abnormal_values,omitempty"`
	AnalyzedAt     time.Time `json:"analyzed_at"`
}

// MedicineRegistered is emitted when prescription parsing creates a
// new medicine record.
type MedicineRegistered struct {
	MedicineID     string     `json:"medicine_id"`
	PrescriptionID string     `json:"prescription_id"`
	Name           string     `json:"name"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
}
