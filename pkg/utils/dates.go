package utils

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar days.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar day as UTC midnight.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected %s", value, DateLayout)
	}
	return t, nil
}

// TruncateDay drops the clock part, keeping the calendar day in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NightsBetween is the whole-day difference between two calendar days.
func NightsBetween(checkIn, checkOut time.Time) int {
	return int(TruncateDay(checkOut).Sub(TruncateDay(checkIn)).Hours() / 24)
}

// NightsOf lists every night of [checkIn, checkOut), the check-out day excluded.
func NightsOf(checkIn, checkOut time.Time) []time.Time {
	start := TruncateDay(checkIn)
	end := TruncateDay(checkOut)

	var days []time.Time
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

// FormatDates renders days in DateLayout.
func FormatDates(days []time.Time) []string {
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = FormatDate(d)
	}
	return out
}

// FormatDate renders one day in DateLayout.
func FormatDate(day time.Time) string {
	return day.Format(DateLayout)
}
