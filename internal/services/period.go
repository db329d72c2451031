package services

import (
	"time"

	"github.com/rewardloop/backend/internal/config"
)

// LifetimeSentinel is the period key shared by every lifetime limit.
var LifetimeSentinel = time.Unix(0, 0).UTC()

// ResolvePeriod maps a limit type and an instant to the canonical start of its window.
// Daily and weekly windows use the location of now.
func ResolvePeriod(limitType config.LimitType, now time.Time) (time.Time, error) {
	rule, err := config.LookupLimitRule(limitType)
	if err != nil {
		return time.Time{}, err
	}
	return windowStart(limitType, rule.Window, now)
}

func windowStart(limitType config.LimitType, window config.WindowKind, now time.Time) (time.Time, error) {
	y, m, d := now.Date()
	switch window {
	case config.WindowDaily:
		return time.Date(y, m, d, 0, 0, 0, 0, now.Location()), nil
	case config.WindowWeekly:
		// Monday is day 0 of an ISO week
		offset := (int(now.Weekday()) + 6) % 7
		return time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location()), nil
	case config.WindowLifetime:
		return LifetimeSentinel, nil
	}
	return time.Time{}, &config.ConfigurationError{LimitType: limitType}
}

// MonthBounds returns the first and last instant of the calendar month containing t in loc.
func MonthBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, 0).Add(-time.Microsecond)
	return start, end
}

// PreviousMonthBounds returns the bounds of the last fully closed month before now.
func PreviousMonthBounds(now time.Time, loc *time.Location) (time.Time, time.Time) {
	start, _ := MonthBounds(now, loc)
	return MonthBounds(start.AddDate(0, -1, 0), loc)
}

// MonthIdentity returns the UTC first instant of the calendar month t falls in, read in
// t's own location. Rankings are stored under it so a month keeps one identity when the
// configured timezone changes.
func MonthIdentity(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthKey formats a month start as its period key, e.g. "2026-09".
func MonthKey(month time.Time) string {
	return month.Format("2006-01")
}
