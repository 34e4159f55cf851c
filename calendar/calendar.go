// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

// Package calendar holds the month and hour arithmetic shared by the
// accrual, penalty and heart schedules. All boundaries are computed in UTC.
package calendar

import "time"

// TruncateHour returns t rounded down to the start of its hour.
func TruncateHour(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// DayStart returns midnight at the start of t's day.
func DayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// MonthStart returns midnight on the first day of t's month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns midnight on the first day of the following month.
func NextMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}

// MonthEnd returns the last instant of t's month.
func MonthEnd(t time.Time) time.Time {
	return NextMonthStart(t).Add(-time.Millisecond)
}

// PrevMonthEnd returns the last instant of the month before t's.
func PrevMonthEnd(t time.Time) time.Time {
	return MonthStart(t).Add(-time.Millisecond)
}

// DaysInMonth returns the number of days in t's month.
func DaysInMonth(t time.Time) int {
	return NextMonthStart(t).AddDate(0, 0, -1).Day()
}

// HoursInMonth returns the number of hours in t's month.
func HoursInMonth(t time.Time) int {
	return int(NextMonthStart(t).Sub(MonthStart(t)) / time.Hour)
}
