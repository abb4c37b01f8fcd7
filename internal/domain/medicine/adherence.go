package medicine

import (
	"math"
	"sort"
	"time"
)

// AdherenceStats is a window-scoped aggregate over dose logs.
type AdherenceStats struct {
	TotalDoses          int       `json:"total_doses"`
	TakenDoses          int       `json:"taken_doses"`
	MissedDoses         int       `json:"missed_doses"`
	SkippedDoses        int       `json:"skipped_doses"`
	AdherencePercentage float64   `json:"adherence_percentage"`
	CurrentStreak       int       `json:"current_streak"`
	BestStreak          int       `json:"best_streak"`
	PeriodStart         time.Time `json:"period_start"`
	PeriodEnd           time.Time `json:"period_end"`
}

// ComputeAdherence aggregates the logs whose creation date falls
// within [windowStart, windowEnd] inclusive. The percentage is taken
// over total, rounded to one decimal, and defined as 100.0 when no
// doses were logged: the absence of scheduled doses is not a failure.
//
// Streaks are log-sequence streaks, not calendar-day streaks: logs are
// walked in creation order, a counter grows on each taken entry and
// resets on anything else. The counter's final value is the current
// streak; the maximum seen is the best streak.
func ComputeAdherence(logs []*Log, windowStart, windowEnd time.Time) AdherenceStats {
	start := truncateToDay(windowStart)
	end := truncateToDay(windowEnd)

	var filtered []*Log
	for _, log := range logs {
		day := truncateToDay(log.CreatedAt)
		if day.Before(start) || day.After(end) {
			continue
		}
		filtered = append(filtered, log)
	}

	stats := AdherenceStats{
		TotalDoses:  len(filtered),
		PeriodStart: start,
		PeriodEnd:   end,
	}

	for _, log := range filtered {
		switch log.Status {
		case StatusTaken:
			stats.TakenDoses++
		case StatusMissed:
			stats.MissedDoses++
		case StatusSkipped:
			stats.SkippedDoses++
		}
	}

	stats.AdherencePercentage = AdherencePercentage(stats.TakenDoses, stats.TotalDoses)

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})

	streak := 0
	for _, log := range filtered {
		if log.Status == StatusTaken {
			streak++
			if streak > stats.BestStreak {
				stats.BestStreak = streak
			}
		} else {
			streak = 0
		}
	}
	stats.CurrentStreak = streak

	return stats
}

// AdherencePercentage returns taken/total as a percentage rounded to
// one decimal place, with 100.0 for an empty total.
func AdherencePercentage(taken, total int) float64 {
	if total == 0 {
		return 100.0
	}
	return math.Round(float64(taken)/float64(total)*1000) / 10
}
