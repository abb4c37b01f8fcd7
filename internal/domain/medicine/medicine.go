// Package medicine implements the medicine adherence core: entities,
// dose timing resolution, frequency parsing, day scheduling and
// adherence aggregation. All operations are pure transforms over
// already-fetched data; callers supply the clock.
package medicine

import (
	"time"
)

// Status represents the recorded outcome of a scheduled dose.
type Status string

const (
	StatusTaken   Status = "taken"
	StatusMissed  Status = "missed"
	StatusSkipped Status = "skipped"
)

// Medicine represents a prescribed drug instance owned by a prescription.
type Medicine struct {
	ID             string     `json:"id"`
	PrescriptionID string     `json:"prescription_id"`
	Name           string     `json:"name"`
	Dosage         string     `json:"dosage,omitempty"`
	Frequency      string     `json:"frequency,omitempty"`
	Timing         []string   `json:"timing,omitempty"`
	DurationDays   *int       `json:"duration_days,omitempty"`
	StartDate      *time.Time `json:"start_date,omitempty"`
	EndDate        *time.Time `json:"end_date,omitempty"`
	Instructions   string     `json:"instructions,omitempty"`
}

// IsActiveOn reports whether the medicine is active on the given date.
// A nil end date means perpetually active; the end date itself is
// inclusive.
func (m *Medicine) IsActiveOn(date time.Time) bool {
	if m.EndDate == nil {
		return true
	}
	return !truncateToDay(date).After(truncateToDay(*m.EndDate))
}

// DaysRemaining returns the number of days left until the end date as
// of the given date, clamped at zero. It returns nil when the medicine
// has no end date.
func (m *Medicine) DaysRemaining(asOf time.Time) *int {
	if m.EndDate == nil {
		return nil
	}
	days := int(truncateToDay(*m.EndDate).Sub(truncateToDay(asOf)).Hours() / 24)
	if days < 0 {
		days = 0
	}
	return &days
}

// EndDateFromDuration derives the end date as start + duration days.
// It returns nil when either input is missing.
func EndDateFromDuration(start *time.Time, durationDays *int) *time.Time {
	if start == nil || durationDays == nil {
		return nil
	}
	end := truncateToDay(*start).AddDate(0, 0, *durationDays)
	return &end
}

// Log represents one recorded outcome for a scheduled dose. A dose
// with no log entry is neither taken nor missed; it is pending or,
// past its slot, overdue.
type Log struct {
	ID            string     `json:"id"`
	MedicineID    string     `json:"medicine_id"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Timing        string     `json:"timing,omitempty"`
	Status        Status     `json:"status"`
	TakenAt       *time.Time `json:"taken_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// truncateToDay drops the time-of-day component, preserving location.
func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether two instants fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
