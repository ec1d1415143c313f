// Package lead implements the temporal state machine and write-time
// normalization for leads. Every write path must run Normalize,
// Validate and Derive before persisting; the repositories enforce this
// so it cannot be skipped.
package lead

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leadpulse/leadpulse/internal/db"
)

// timeOfDayRe validates HH:MM, 24-hour. Accepts a single leading digit
// for hours (9:05 and 09:05 are both valid).
var timeOfDayRe = regexp.MustCompile(`^([01]?[0-9]|2[0-3]):[0-5][0-9]$`)

// FieldError is a write-time validation failure tied to one field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var validStatuses = map[string]bool{
	db.StatusOpen:               true,
	db.StatusInProgress:         true,
	db.StatusSiteVisitScheduled: true,
	db.StatusSiteVisited:        true,
	db.StatusClosed:             true,
	db.StatusRejected:           true,
}

var validSources = map[string]bool{
	db.SourceWalkin:       true,
	db.SourcePortals:      true,
	db.SourceMetaAds:      true,
	db.SourceGoogleAds:    true,
	db.SourceCP:           true,
	db.SourceNewspaperAds: true,
	db.SourceHoardings:    true,
	db.SourceReference:    true,
}

var validPotentials = map[string]bool{
	db.PotentialHot:  true,
	db.PotentialWarm: true,
	db.PotentialCold: true,
}

// NormalizePhone reduces a contact value to its canonical numeric form:
// digits only, parsed as int64. Uniqueness is enforced on this form.
func NormalizePhone(raw string) (int64, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	if digits.Len() == 0 {
		return 0, &FieldError{Field: "phone", Message: "must contain digits"}
	}
	n, err := strconv.ParseInt(digits.String(), 10, 64)
	if err != nil {
		return 0, &FieldError{Field: "phone", Message: "not a valid number"}
	}
	return n, nil
}

// Normalize converts blank optional text fields to absent (nil) and
// trims surrounding whitespace. This is the only silent coercion the
// write path performs.
func Normalize(l *db.Lead) {
	l.Name = strings.TrimSpace(l.Name)
	for _, f := range []**string{
		&l.Purpose, &l.Remarks, &l.Budget, &l.Source, &l.Requirement,
		&l.ReferenceName, &l.ReferenceContact, &l.ScheduledTime,
	} {
		normalizeOptional(f)
	}
}

func normalizeOptional(f **string) {
	if *f == nil {
		return
	}
	s := strings.TrimSpace(**f)
	if s == "" {
		*f = nil
		return
	}
	*f = &s
}

// Validate rejects malformed leads. Call after Normalize.
func Validate(l *db.Lead) error {
	if l.Name == "" {
		return &FieldError{Field: "name", Message: "required"}
	}
	if l.Phone <= 0 {
		return &FieldError{Field: "phone", Message: "required"}
	}
	if l.ScheduledDate.IsZero() {
		return &FieldError{Field: "scheduled_date", Message: "required"}
	}
	if l.ScheduledTime != nil && !timeOfDayRe.MatchString(*l.ScheduledTime) {
		return &FieldError{Field: "scheduled_time", Message: "must be in HH:MM 24-hour format"}
	}
	if l.Status != nil && !validStatuses[*l.Status] {
		return &FieldError{Field: "status", Message: fmt.Sprintf("invalid status %q", *l.Status)}
	}
	if l.Source != nil && !validSources[*l.Source] {
		return &FieldError{Field: "source", Message: fmt.Sprintf("invalid source %q", *l.Source)}
	}
	for _, p := range l.Potential {
		if !validPotentials[p] {
			return &FieldError{Field: "potential", Message: fmt.Sprintf("invalid potential %q", p)}
		}
	}
	return nil
}

// Derive recomputes the lead's autoStatus and composite dateTime from
// its scheduled date/time and the reference instant. It runs on every
// create and update, never spontaneously.
//
// The autoStatus comparison is date-only: a lead scheduled for later
// today is never "missed", even if its time-of-day has already passed.
func Derive(l *db.Lead, now time.Time) {
	today := dateOnly(now)
	scheduled := dateOnly(l.ScheduledDate)

	switch {
	case scheduled.Before(today):
		// Past date overrides everything, including a set status.
		missed := db.AutoStatusMissed
		l.AutoStatus = &missed
	case l.Status == nil:
		fresh := db.AutoStatusNew
		l.AutoStatus = &fresh
	default:
		// A human has actioned the lead; the urgency tag is suppressed.
		l.AutoStatus = nil
	}

	l.DateTime = combine(l.ScheduledDate, l.ScheduledTime)
}

// combine builds the composite instant from a date and an HH:MM time,
// seconds zeroed. A lead with only a date has no composite instant and
// is never eligible for minute-precision dispatch.
func combine(date time.Time, hhmm *string) *time.Time {
	if hhmm == nil {
		return nil
	}
	parts := strings.SplitN(*hhmm, ":", 2)
	if len(parts) != 2 {
		return nil
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil
	}
	dt := time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location())
	return &dt
}

// dateOnly truncates an instant to its calendar date. The comparison
// is by date components, so instants in different locations compare by
// their local dates.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
