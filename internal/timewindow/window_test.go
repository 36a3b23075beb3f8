package timewindow

import (
	"testing"
	"time"
)

func TestDayWindowHalfOpen(t *testing.T) {
	r := NewResolver(time.UTC, time.Monday)
	now := time.Date(2024, 3, 14, 15, 30, 0, 0, time.UTC)
	w := r.Day(now)

	if !w.Start.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day start = %v", w.Start)
	}
	if !w.End.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day end = %v", w.End)
	}

	// A record stamped exactly at midnight belongs to the next day.
	if w.Contains(w.End) {
		t.Error("window must not contain its end")
	}
	if !w.Contains(w.Start) {
		t.Error("window must contain its start")
	}
	if !r.Day(w.End).Contains(w.End) {
		t.Error("end boundary must fall into the next day's window")
	}
}

func TestWeekWindow(t *testing.T) {
	tests := []struct {
		name      string
		weekStart time.Weekday
		anchor    time.Time
		wantStart time.Time
	}{
		{
			name:      "monday start, midweek anchor",
			weekStart: time.Monday,
			anchor:    time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC), // Thursday
			wantStart: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "monday start, anchor on monday",
			weekStart: time.Monday,
			anchor:    time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "sunday start",
			weekStart: time.Sunday,
			anchor:    time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "saturday start",
			weekStart: time.Saturday,
			anchor:    time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC),
			wantStart: time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(time.UTC, tt.weekStart)
			w := r.Week(tt.anchor)
			if !w.Start.Equal(tt.wantStart) {
				t.Errorf("week start = %v, want %v", w.Start, tt.wantStart)
			}
			if !w.End.Equal(tt.wantStart.AddDate(0, 0, 7)) {
				t.Errorf("week end = %v", w.End)
			}
		})
	}
}

func TestMonthWindow(t *testing.T) {
	r := NewResolver(time.UTC, time.Monday)

	w := r.Month(time.Date(2024, 1, 31, 23, 59, 0, 0, time.UTC))
	if !w.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("month start = %v", w.Start)
	}
	if !w.End.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("month end = %v", w.End)
	}

	// December rolls into the next year.
	w = r.Month(time.Date(2023, 12, 5, 0, 0, 0, 0, time.UTC))
	if !w.End.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("december end = %v", w.End)
	}
}

func TestLookback(t *testing.T) {
	r := NewResolver(time.UTC, time.Monday)
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	w := r.Lookback(now, 60)

	if !w.End.Equal(now) {
		t.Errorf("lookback end = %v, want now", w.End)
	}
	if !w.Start.Equal(now.AddDate(0, 0, -60)) {
		t.Errorf("lookback start = %v", w.Start)
	}
	if w.Contains(now) {
		t.Error("lookback must exclude now itself")
	}
}

func TestResolverDefaultsToUTC(t *testing.T) {
	r := NewResolver(nil, time.Monday)
	w := r.Day(time.Date(2024, 3, 14, 23, 30, 0, 0, time.UTC))
	if !w.Start.Equal(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("day start = %v", w.Start)
	}
}
