package recur

import (
	"time"

	"github.com/postline/postline-backend/internal/timeline"
)

// NextDate applies one step of the rule to t.
//
// Minute/hour/day/week units are plain additive arithmetic. Month stepping
// first resolves the target month, then picks the day:
//   - UseLastDay set: the last calendar day of the target month,
//   - FixedDayOfMonth set: min(fixed day, last day of the target month),
//   - neither: the source day, clamped back to the last day of the target
//     month when the naive add would roll into the following month
//     (Jan 31 + 1 month lands on Feb 28/29, not Mar 2).
func NextDate(t time.Time, rule timeline.RecurrenceRule) time.Time {
	n := rule.Interval
	switch rule.Unit {
	case timeline.UnitMinutes:
		return t.Add(time.Duration(n) * time.Minute)
	case timeline.UnitHours:
		return t.Add(time.Duration(n) * time.Hour)
	case timeline.UnitDays:
		return t.AddDate(0, 0, n)
	case timeline.UnitWeeks:
		return t.AddDate(0, 0, 7*n)
	case timeline.UnitMonths:
		return addMonthsClamped(t, n, rule)
	}
	return t
}

func addMonthsClamped(t time.Time, months int, rule timeline.RecurrenceRule) time.Time {
	year, month, day := t.Date()
	// Normalize the target month with a day-1 anchor so the month itself
	// never overflows.
	anchor := time.Date(year, month, 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	last := lastDayOfMonth(anchor.Year(), anchor.Month())

	switch {
	case rule.UseLastDay:
		day = last
	case rule.FixedDayOfMonth > 0:
		day = rule.FixedDayOfMonth
		if day > last {
			day = last
		}
	default:
		if day > last {
			day = last
		}
	}

	hour, min, sec := t.Clock()
	return time.Date(anchor.Year(), anchor.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the following month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// endOfDay returns the last instant of t's calendar day, used for
// end-by-date bounds which are end-of-day inclusive.
func endOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
