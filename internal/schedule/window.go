// Package schedule resolves named schedule keywords (today, tomorrow,
// weekend, custom, other) into concrete date ranges. All functions are
// pure: they derive everything from the reference instant passed in,
// using its location for midnight boundaries.
package schedule

import (
	"fmt"
	"time"
)

// Keyword is a named schedule bucket used by lead listing and the
// dispatch window computation.
type Keyword string

const (
	Today    Keyword = "today"
	Tomorrow Keyword = "tomorrow"
	Weekend  Keyword = "weekend"
	Custom   Keyword = "custom"
	Other    Keyword = "other"
)

// Valid reports whether kw is a recognized schedule keyword.
func (kw Keyword) Valid() bool {
	switch kw {
	case Today, Tomorrow, Weekend, Custom, Other:
		return true
	}
	return false
}

// Range is a closed [Start, End] window. End is the last representable
// millisecond of the final day (23:59:59.999) so the range can be fed
// directly into range-closed store queries.
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range (inclusive ends).
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Complement describes the "other" bucket: everything outside the
// today/tomorrow/upcoming-weekend windows.
type Complement struct {
	TodayStart  time.Time // leads strictly before this are "other"
	TomorrowEnd time.Time // leads strictly after this are "other"
	WeekendEnd  time.Time // leads strictly after this are "other"
}

// Contains reports whether t falls in the complement bucket.
func (c Complement) Contains(t time.Time) bool {
	return t.Before(c.TodayStart) || t.After(c.TomorrowEnd) || t.After(c.WeekendEnd)
}

// Resolve maps a keyword and reference instant to a concrete range.
// Custom and Other are not resolvable here: Custom needs a date
// (ResolveCustom) and Other is a complement (ResolveOther).
func Resolve(kw Keyword, now time.Time) (Range, error) {
	switch kw {
	case Today:
		return dayRange(now, 0, 1), nil
	case Tomorrow:
		return dayRange(now, 1, 1), nil
	case Weekend:
		return weekendRange(now), nil
	case Custom:
		return Range{}, fmt.Errorf("schedule %q requires a date, use ResolveCustom", kw)
	case Other:
		return Range{}, fmt.Errorf("schedule %q is a complement, use ResolveOther", kw)
	}
	return Range{}, fmt.Errorf("unknown schedule keyword %q", kw)
}

// ResolveCustom returns the full-day range for the given calendar date.
func ResolveCustom(date time.Time) Range {
	return dayRange(date, 0, 1)
}

// ResolveOther returns the bounds of the complement bucket relative to now.
func ResolveOther(now time.Time) Complement {
	today := dayRange(now, 0, 1)
	tomorrow := dayRange(now, 1, 1)
	weekend := weekendRange(now)
	return Complement{
		TodayStart:  today.Start,
		TomorrowEnd: tomorrow.End,
		WeekendEnd:  weekend.End,
	}
}

// weekendRange computes the upcoming Saturday-Sunday pair.
// On Saturday the weekend starts today; on Sunday it started yesterday;
// on any other day it starts 6-weekday days ahead (Sunday = 0).
func weekendRange(now time.Time) Range {
	switch now.Weekday() {
	case time.Saturday:
		return dayRange(now, 0, 2)
	case time.Sunday:
		return dayRange(now, -1, 2)
	default:
		return dayRange(now, 6-int(now.Weekday()), 2)
	}
}

// dayRange returns a range starting offset days from t's date at
// midnight, spanning the given number of whole days.
func dayRange(t time.Time, offset, days int) Range {
	start := time.Date(t.Year(), t.Month(), t.Day()+offset, 0, 0, 0, 0, t.Location())
	end := start.AddDate(0, 0, days).Add(-time.Millisecond)
	return Range{Start: start, End: end}
}
