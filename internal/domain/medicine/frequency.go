package medicine

import (
	"regexp"
	"strconv"
	"strings"
)

// Frequency is the structured form of a free-text dose frequency.
type Frequency struct {
	TimesPerDay   int `json:"times_per_day"`
	IntervalHours int `json:"interval_hours"`
}

// timesPattern matches "<N> times daily|a day|per day".
var timesPattern = regexp.MustCompile(`(\d+)\s*times?\s*(daily|a day|per day)`)

// frequencyPhrases is checked in order; earlier entries win so that
// e.g. "three times" is matched before a looser phrase could.
var frequencyPhrases = []struct {
	phrase string
	freq   Frequency
}{
	{"once daily", Frequency{TimesPerDay: 1, IntervalHours: 24}},
	{"twice daily", Frequency{TimesPerDay: 2, IntervalHours: 12}},
	{"thrice daily", Frequency{TimesPerDay: 3, IntervalHours: 8}},
	{"three times", Frequency{TimesPerDay: 3, IntervalHours: 8}},
	{"four times", Frequency{TimesPerDay: 4, IntervalHours: 6}},
	{"every 4 hours", Frequency{TimesPerDay: 6, IntervalHours: 4}},
	{"every 6 hours", Frequency{TimesPerDay: 4, IntervalHours: 6}},
	{"every 8 hours", Frequency{TimesPerDay: 3, IntervalHours: 8}},
	{"every 12 hours", Frequency{TimesPerDay: 2, IntervalHours: 12}},
}

// defaultFrequency is the best-effort fallback for unparseable text.
// Free-text frequency is inherently ambiguous; unrecognized input
// degrades to once daily rather than erroring.
var defaultFrequency = Frequency{TimesPerDay: 1, IntervalHours: 24}

// ParseFrequency maps a free-text frequency description to a
// structured pair. It never returns an error: numeric "<N> times
// daily" patterns win, then a fixed phrase table, then the once-daily
// default.
func ParseFrequency(frequency string) Frequency {
	lower := strings.ToLower(frequency)

	if m := timesPattern.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			return Frequency{TimesPerDay: n, IntervalHours: 24 / n}
		}
	}

	for _, p := range frequencyPhrases {
		if strings.Contains(lower, p.phrase) {
			return p.freq
		}
	}

	return defaultFrequency
}
