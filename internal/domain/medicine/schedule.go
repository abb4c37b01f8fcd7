package medicine

import (
	"sort"
	"time"
)

// ScheduleItem is one agenda entry for a medicine, timing token and
// date. It is derived, never persisted.
type ScheduleItem struct {
	MedicineID    string    `json:"medicine_id"`
	MedicineName  string    `json:"medicine_name"`
	Dosage        string    `json:"dosage,omitempty"`
	Timing        string    `json:"timing"`
	ScheduledTime time.Time `json:"scheduled_time"`
	// Status is the outcome adopted from a matching log entry, or nil
	// when no log exists for the slot (pending).
	Status    *Status `json:"status"`
	IsOverdue bool    `json:"is_overdue"`
}

// ScheduleSummary holds the derived counts for a day schedule.
type ScheduleSummary struct {
	Total     int `json:"total_medicines"`
	Completed int `json:"completed"`
	Pending   int `json:"pending"`
}

// BuildDaySchedule produces the ordered dose agenda for targetDate.
// For each medicine active on the date, each timing token (defaulting
// to morning when the list is empty) yields one item scheduled at
// targetDate @ hour:00 in now's location. A log entry whose scheduled
// time falls on targetDate and matches the slot supplies the item's
// status; otherwise the item is pending and overdue once its slot time
// has passed. Items are sorted ascending by scheduled time; consumers
// rely on that ordering.
func BuildDaySchedule(medicines []*Medicine, logsByMedicine map[string][]*Log, targetDate time.Time, now time.Time) []ScheduleItem {
	var items []ScheduleItem

	for _, med := range medicines {
		if !med.IsActiveOn(targetDate) {
			continue
		}

		timings := med.Timing
		if len(timings) == 0 {
			timings = []string{DefaultTiming}
		}

		for _, timing := range timings {
			hour := HourFor(timing)
			scheduled := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(),
				hour, 0, 0, 0, now.Location())

			status := statusForSlot(logsByMedicine[med.ID], targetDate, timing, hour)

			items = append(items, ScheduleItem{
				MedicineID:    med.ID,
				MedicineName:  med.Name,
				Dosage:        med.Dosage,
				Timing:        timing,
				ScheduledTime: scheduled,
				Status:        status,
				IsOverdue:     scheduled.Before(now) && status == nil,
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ScheduledTime.Before(items[j].ScheduledTime)
	})

	return items
}

// statusForSlot finds the logged outcome for a single dose slot. Logs
// written with a timing token match on the token; token-less logs fall
// back to comparing the scheduled hour.
func statusForSlot(logs []*Log, targetDate time.Time, timing string, hour int) *Status {
	for _, log := range logs {
		if !SameDay(log.ScheduledTime, targetDate) {
			continue
		}
		if log.Timing != "" {
			if log.Timing == timing {
				s := log.Status
				return &s
			}
			continue
		}
		if log.ScheduledTime.Hour() == hour {
			s := log.Status
			return &s
		}
	}
	return nil
}

// Summarize derives the completion counts for a built schedule.
func Summarize(items []ScheduleItem) ScheduleSummary {
	summary := ScheduleSummary{Total: len(items)}
	for _, item := range items {
		if item.Status != nil && *item.Status == StatusTaken {
			summary.Completed++
		}
	}
	summary.Pending = summary.Total - summary.Completed
	return summary
}
