package calories

import (
	"strings"
	"time"
)

// Day returns the calendar day of t as midnight UTC.
// Meal times are wall clock values, so the zone of t is dropped rather than converted.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WallClock drops the zone of t and truncates it to the second.
func WallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// onDay moves the clock of at onto day.
func onDay(day, at time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), at.Hour(), at.Minute(), at.Second(), 0, time.UTC)
}

// resolveSchedule fills a missing date or time and keeps both on the same day.
func resolveSchedule(date, at, now time.Time) (time.Time, time.Time) {
	switch {
	case date.IsZero() && at.IsZero():
		date, at = now, now
	case at.IsZero():
		at = date
	case date.IsZero():
		date = at
	}
	day := Day(date)
	return day, onDay(day, WallClock(at))
}

// mergeSchedule resolves update values, falling back to the stored meal.
func mergeSchedule(date, at, oldDate, oldTime time.Time) (time.Time, time.Time) {
	switch {
	case date.IsZero() && at.IsZero():
		date, at = oldDate, oldTime
	case date.IsZero():
		date = at
	case at.IsZero():
		at = onDay(Day(date), WallClock(oldTime))
	}
	day := Day(date)
	return day, onDay(day, WallClock(at))
}

// normalizeDescription trims text and maps blank to nil.
func normalizeDescription(text *string) *string {
	if text == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*text)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
