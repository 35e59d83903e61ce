// Package timeutil provides campus-timezone utilities. All campus exports
// carry local timestamps (UTC+8, no DST), and day boundaries for daily
// statistics are campus days, not UTC days.
// No external dependencies - uses only standard library.
package timeutil

import (
	"time"
)

// CampusTZ is the campus timezone (UTC+8, no DST).
var CampusTZ = time.FixedZone("Asia/Shanghai", 8*60*60)

// Now returns the current time in campus timezone.
func Now() time.Time {
	return time.Now().In(CampusTZ)
}

// ToCampus converts a time to campus timezone.
func ToCampus(t time.Time) time.Time {
	return t.In(CampusTZ)
}

// Date creates a time in campus timezone with the given date.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, CampusTZ)
}

// DateTime creates a time in campus timezone with the given date and time.
func DateTime(year, month, day, hour, min, sec int) time.Time {
	return time.Date(year, time.Month(month), day, hour, min, sec, 0, CampusTZ)
}

// StartOfDay returns the start of the day (00:00:00) in campus timezone.
func StartOfDay(t time.Time) time.Time {
	local := ToCampus(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, CampusTZ)
}

// EndOfDay returns the end of the day (23:59:59.999999999) in campus timezone.
func EndOfDay(t time.Time) time.Time {
	local := ToCampus(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, 999999999, CampusTZ)
}

// StartOfMonth returns the start of the month in campus timezone.
func StartOfMonth(t time.Time) time.Time {
	local := ToCampus(t)
	return time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, CampusTZ)
}

// EndOfMonth returns the end of the month in campus timezone.
func EndOfMonth(t time.Time) time.Time {
	return EndOfDay(StartOfMonth(t).AddDate(0, 1, -1))
}

// MonthKey formats a time as the YYYY-MM key used by monthly records.
func MonthKey(t time.Time) string {
	return ToCampus(t).Format("2006-01")
}

// IsSameDay checks if two times are on the same campus day.
func IsSameDay(t1, t2 time.Time) bool {
	a, b := ToCampus(t1), ToCampus(t2)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween calculates the number of whole campus days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a := StartOfDay(t1)
	b := StartOfDay(t2)
	days := int(b.Sub(a).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Common date/time formats.
const (
	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"
	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04"
	// FormatDateTimeSeconds includes seconds.
	FormatDateTimeSeconds = "2006-01-02 15:04:05"
)

// FormatDateStr formats a time as a date string (YYYY-MM-DD) in campus timezone.
func FormatDateStr(t time.Time) string {
	return ToCampus(t).Format(FormatDate)
}

// ParseCampus parses a time string in campus timezone.
func ParseCampus(layout, value string) (time.Time, error) {
	return time.ParseInLocation(layout, value, CampusTZ)
}

// ParseDateCampus parses a date string (YYYY-MM-DD) in campus timezone.
func ParseDateCampus(value string) (time.Time, error) {
	return ParseCampus(FormatDate, value)
}

// ParseDateTimeCampus parses a datetime string in campus timezone. Both
// the seconds and minutes layouts occur in campus exports.
func ParseDateTimeCampus(value string) (time.Time, error) {
	if t, err := ParseCampus(FormatDateTimeSeconds, value); err == nil {
		return t, nil
	}
	return ParseCampus(FormatDateTime, value)
}
