// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package calendar

import (
	"testing"
	"time"
)

func TestMonthBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		at        time.Time
		start     time.Time
		prevEnd   time.Time
		days      int
		hours     int
		truncated time.Time
	}{
		{
			name:      "mid june",
			at:        time.Date(2024, 6, 16, 13, 45, 10, 0, time.UTC),
			start:     time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
			prevEnd:   time.Date(2024, 5, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC),
			days:      30,
			hours:     720,
			truncated: time.Date(2024, 6, 16, 13, 0, 0, 0, time.UTC),
		},
		{
			name:      "leap february",
			at:        time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC),
			start:     time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			prevEnd:   time.Date(2024, 1, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC),
			days:      29,
			hours:     696,
			truncated: time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC),
		},
		{
			name:      "new year",
			at:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			start:     time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			prevEnd:   time.Date(2024, 12, 31, 23, 59, 59, int(999*time.Millisecond), time.UTC),
			days:      31,
			hours:     744,
			truncated: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthStart(tt.at); !got.Equal(tt.start) {
				t.Errorf("MonthStart = %v, want %v", got, tt.start)
			}
			if got := PrevMonthEnd(tt.at); !got.Equal(tt.prevEnd) {
				t.Errorf("PrevMonthEnd = %v, want %v", got, tt.prevEnd)
			}
			if got := DaysInMonth(tt.at); got != tt.days {
				t.Errorf("DaysInMonth = %d, want %d", got, tt.days)
			}
			if got := HoursInMonth(tt.at); got != tt.hours {
				t.Errorf("HoursInMonth = %d, want %d", got, tt.hours)
			}
			if got := TruncateHour(tt.at); !got.Equal(tt.truncated) {
				t.Errorf("TruncateHour = %v, want %v", got, tt.truncated)
			}
			if got := MonthEnd(tt.at); !got.Before(NextMonthStart(tt.at)) || MonthStart(got) != tt.start {
				t.Errorf("MonthEnd = %v outside month starting %v", got, tt.start)
			}
		})
	}
}
