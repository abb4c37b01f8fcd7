package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/Arham21-pixel/MediTrack.AI/internal/events"
)

func TestRenderReminder(t *testing.T) {
	msg := RenderReminder(&events.ReminderDue{
		UserID:        "u1",
		MedicineID:    "m1",
		MedicineName:  "Metformin",
		Dosage:        "500mg",
		Timing:        "after_dinner",
		ScheduledTime: time.Date(2026, 3, 5, 21, 0, 0, 0, time.UTC),
	})

	if msg.UserID != "u1" {
		t.Errorf("user = %q", msg.UserID)
	}
	if !strings.Contains(msg.Body, "after dinner") {
		t.Errorf("timing underscores should render as spaces: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "Metformin (500mg)") {
		t.Errorf("body missing medicine and dosage: %q", msg.Body)
	}
	if !strings.Contains(msg.Body, "21:00") {
		t.Errorf("body missing slot time: %q", msg.Body)
	}
}

func TestRenderReminderNoDosage(t *testing.T) {
	msg := RenderReminder(&events.ReminderDue{
		MedicineName:  "Aspirin",
		Timing:        "morning",
		ScheduledTime: time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
	})
	if strings.Contains(msg.Body, "(") {
		t.Errorf("empty dosage should not render parentheses: %q", msg.Body)
	}
}

func TestRenderSafetyAlert(t *testing.T) {
	msg := RenderSafetyAlert(&events.SafetyAlertRaised{
		UserID:         "u1",
		SafetyLevel:    "CRITICAL",
		Recommendation: "Contact your doctor immediately.",
		CheckedAt:      time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
	})

	if !strings.Contains(msg.Subject, "CRITICAL") {
		t.Errorf("subject missing level: %q", msg.Subject)
	}
	if strings.Contains(msg.Body, "could not verify") {
		t.Errorf("non-failsafe alert should not carry the verification preamble: %q", msg.Body)
	}
}

func TestRenderSafetyAlertFailSafe(t *testing.T) {
	msg := RenderSafetyAlert(&events.SafetyAlertRaised{
		UserID:         "u1",
		SafetyLevel:    "CAUTION",
		FailSafe:       true,
		Recommendation: "Please consult your doctor.",
		CheckedAt:      time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC),
	})
	if !strings.HasPrefix(msg.Body, "We could not verify") {
		t.Errorf("fail-safe alert should lead with the verification notice: %q", msg.Body)
	}
}
