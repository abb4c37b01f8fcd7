package medicine

import (
	"reflect"
	"testing"
	"time"
)

func TestBuildDayScheduleOrderingAndStatus(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)

	med := &Medicine{
		ID:     "m1",
		Name:   "Metformin",
		Dosage: "500mg",
		Timing: []string{"night", "morning"},
	}
	logs := map[string][]*Log{
		"m1": {{
			ID:            "l1",
			MedicineID:    "m1",
			ScheduledTime: time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
			Timing:        "morning",
			Status:        StatusTaken,
			CreatedAt:     now,
		}},
	}

	items := BuildDaySchedule([]*Medicine{med}, logs, now, now)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	// Sorted by scheduled time despite timing list order.
	if items[0].Timing != "morning" || items[1].Timing != "night" {
		t.Errorf("items out of order: %s, %s", items[0].Timing, items[1].Timing)
	}
	if items[0].ScheduledTime.Hour() != 8 || items[1].ScheduledTime.Hour() != 21 {
		t.Errorf("unexpected slot hours: %d, %d",
			items[0].ScheduledTime.Hour(), items[1].ScheduledTime.Hour())
	}

	// The logged slot adopts its status and cannot be overdue.
	if items[0].Status == nil || *items[0].Status != StatusTaken {
		t.Errorf("morning slot status = %v, want taken", items[0].Status)
	}
	if items[0].IsOverdue {
		t.Error("logged slot must not be overdue")
	}

	// The unlogged night slot is pending and, at noon, not yet overdue.
	if items[1].Status != nil {
		t.Errorf("night slot status = %v, want nil", items[1].Status)
	}
	if items[1].IsOverdue {
		t.Error("future slot must not be overdue")
	}
}

func TestBuildDayScheduleOverdue(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	med := &Medicine{ID: "m1", Name: "Aspirin", Timing: []string{"morning"}}

	items := BuildDaySchedule([]*Medicine{med}, nil, now, now)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !items[0].IsOverdue {
		t.Error("unlogged past slot should be overdue")
	}
}

func TestBuildDayScheduleDefaultTiming(t *testing.T) {
	now := time.Date(2026, 3, 5, 7, 0, 0, 0, time.UTC)
	med := &Medicine{ID: "m1", Name: "Aspirin"}

	items := BuildDaySchedule([]*Medicine{med}, nil, now, now)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].Timing != DefaultTiming {
		t.Errorf("timing = %q, want %q", items[0].Timing, DefaultTiming)
	}
	if items[0].ScheduledTime.Hour() != DefaultTimingHour {
		t.Errorf("hour = %d, want %d", items[0].ScheduledTime.Hour(), DefaultTimingHour)
	}
}

func TestBuildDayScheduleSkipsInactive(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	ended := date(2026, 3, 1)

	meds := []*Medicine{
		{ID: "m1", Name: "Expired", Timing: []string{"morning"}, EndDate: &ended},
		{ID: "m2", Name: "Current", Timing: []string{"morning"}},
	}

	items := BuildDaySchedule(meds, nil, now, now)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if items[0].MedicineID != "m2" {
		t.Errorf("scheduled %s, want m2", items[0].MedicineID)
	}
}

func TestBuildDayScheduleTokenlessLogMatchesByHour(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	med := &Medicine{ID: "m1", Name: "Aspirin", Timing: []string{"morning"}}
	logs := map[string][]*Log{
		"m1": {{
			ID:            "l1",
			MedicineID:    "m1",
			ScheduledTime: time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC),
			Status:        StatusMissed,
			CreatedAt:     now,
		}},
	}

	items := BuildDaySchedule([]*Medicine{med}, logs, now, now)
	if items[0].Status == nil || *items[0].Status != StatusMissed {
		t.Errorf("status = %v, want missed via hour fallback", items[0].Status)
	}
}

func TestBuildDayScheduleIgnoresOtherDaysLogs(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	med := &Medicine{ID: "m1", Name: "Aspirin", Timing: []string{"morning"}}
	logs := map[string][]*Log{
		"m1": {{
			ID:            "l1",
			MedicineID:    "m1",
			ScheduledTime: time.Date(2026, 3, 4, 8, 0, 0, 0, time.UTC),
			Timing:        "morning",
			Status:        StatusTaken,
			CreatedAt:     now.AddDate(0, 0, -1),
		}},
	}

	items := BuildDaySchedule([]*Medicine{med}, logs, now, now)
	if items[0].Status != nil {
		t.Errorf("yesterday's log must not satisfy today's slot, got %v", *items[0].Status)
	}
}

func TestBuildDayScheduleDeterministic(t *testing.T) {
	now := time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC)
	meds := []*Medicine{
		{ID: "m1", Name: "A", Timing: []string{"morning", "night"}},
		{ID: "m2", Name: "B", Timing: []string{"morning", "evening"}},
	}

	first := BuildDaySchedule(meds, nil, now, now)
	for i := 0; i < 10; i++ {
		again := BuildDaySchedule(meds, nil, now, now)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("schedule not deterministic on run %d", i)
		}
	}
}

func TestSummarize(t *testing.T) {
	taken := StatusTaken
	missed := StatusMissed

	items := []ScheduleItem{
		{Status: &taken},
		{Status: &missed},
		{Status: nil},
		{Status: &taken},
	}

	s := Summarize(items)
	if s.Total != 4 || s.Completed != 2 || s.Pending != 2 {
		t.Errorf("summary = %+v, want total 4 completed 2 pending 2", s)
	}
}
