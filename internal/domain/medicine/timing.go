package medicine

import "strings"

// DefaultTimingHour is the clock hour used for unrecognized timing
// tokens and for medicines that carry no timing list at all.
const DefaultTimingHour = 8

// DefaultTiming is the timing token assumed when a medicine has an
// empty timing list.
const DefaultTiming = "morning"

// timingHours is the fixed symbolic-token-to-hour table. It is not
// user-configurable.
var timingHours = map[string]int{
	"morning":          8,
	"before_breakfast": 7,
	"after_breakfast":  9,
	"afternoon":        13,
	"before_lunch":     12,
	"after_lunch":      14,
	"evening":          18,
	"before_dinner":    19,
	"after_dinner":     21,
	"night":            21,
	"bedtime":          22,
}

// HourFor resolves a symbolic dose-timing token to a clock hour in
// [0,23]. Matching is case-insensitive; unrecognized tokens resolve to
// DefaultTimingHour. It never fails.
func HourFor(timing string) int {
	if hour, ok := timingHours[strings.ToLower(timing)]; ok {
		return hour
	}
	return DefaultTimingHour
}
