package timewindow

import "time"

// Window is a half-open time range [Start, End). A timestamp equal to End
// belongs to the next window, never this one.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Resolver computes calendar windows in a fixed location with a fixed
// first day of the week.
type Resolver struct {
	loc       *time.Location
	weekStart time.Weekday
}

// NewResolver creates a resolver. A nil location defaults to UTC.
func NewResolver(loc *time.Location, weekStart time.Weekday) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	return &Resolver{loc: loc, weekStart: weekStart}
}

// Day returns [start of day, start of next day) around now.
func (r *Resolver) Day(now time.Time) Window {
	t := now.In(r.loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1)}
}

// Week returns [start of week, +7d) for the week containing anchor.
func (r *Resolver) Week(anchor time.Time) Window {
	t := anchor.In(r.loc)
	back := (int(t.Weekday()) - int(r.weekStart) + 7) % 7
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, r.loc).AddDate(0, 0, -back)
	return Window{Start: start, End: start.AddDate(0, 0, 7)}
}

// Month returns [first of month, first of next month) for the month
// containing anchor.
func (r *Resolver) Month(anchor time.Time) Window {
	t := anchor.In(r.loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, r.loc)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

// Lookback returns [now - days, now).
func (r *Resolver) Lookback(now time.Time, days int) Window {
	t := now.In(r.loc)
	return Window{Start: t.AddDate(0, 0, -days), End: t}
}
