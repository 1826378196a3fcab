// Package schedule decides when challenge windows open and close.
package schedule

import (
	"strings"
	"time"
)

// Cadence is how often a challenge window rolls over.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// CalendarWindows assigns each challenge a calendar window in UTC: daily
// windows close at the next midnight, weekly windows at the next Monday
// 00:00, monthly windows on the first of the next month. The cadence comes
// from the overrides map, then the built-in cadences, then the id prefix;
// anything else is weekly.
type CalendarWindows struct {
	overrides map[string]Cadence
}

// builtinCadences pins ids whose prefix does not match their window.
// daily_login counts seven logins, so its window spans a week.
var builtinCadences = map[string]Cadence{
	"daily_login": Weekly,
}

// NewCalendarWindows returns calendar windows with optional per-id cadences.
func NewCalendarWindows(overrides map[string]Cadence) *CalendarWindows {
	cp := make(map[string]Cadence, len(builtinCadences)+len(overrides))
	for k, v := range builtinCadences {
		cp[k] = v
	}
	for k, v := range overrides {
		cp[k] = v
	}
	return &CalendarWindows{overrides: cp}
}

// ActiveDeadline returns the deadline of the window open at now. Calendar
// windows are always open, so ok is always true.
func (w *CalendarWindows) ActiveDeadline(challengeID string, now time.Time) (time.Time, bool) {
	return NextBoundary(w.CadenceOf(challengeID), now), true
}

// CadenceOf returns the cadence a challenge id rolls over on.
func (w *CalendarWindows) CadenceOf(challengeID string) Cadence {
	if c, ok := w.overrides[challengeID]; ok {
		return c
	}
	switch {
	case strings.HasPrefix(challengeID, "daily_"):
		return Daily
	case strings.HasPrefix(challengeID, "monthly_"):
		return Monthly
	default:
		return Weekly
	}
}

// NextBoundary returns the first cadence boundary strictly after now.
func NextBoundary(c Cadence, now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch c {
	case Daily:
		return midnight.AddDate(0, 0, 1)
	case Monthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	default:
		// Days until next Monday; a Monday rolls a full week forward.
		days := (8 - int(now.Weekday())) % 7
		if days == 0 {
			days = 7
		}
		return midnight.AddDate(0, 0, days)
	}
}
