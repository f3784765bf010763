package domain

import (
	"fmt"
	"time"
)

// Interval is a closed time range. Start equal to End marks a single timestamp.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the interval, bounds included
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// Valid reports whether the interval is ordered
func (i Interval) Valid() bool {
	return !i.Start.After(i.End)
}

// TimeOfDay is an offset from local midnight with minute resolution
type TimeOfDay struct {
	Hour   int `json:"hour" validate:"min=0,max=23"`
	Minute int `json:"minute" validate:"min=0,max=59"`
}

// Minutes returns the offset from midnight in minutes
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses an HH:MM string
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", s)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return TimeOfDay{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// DailyMask removes the same window from every day.
// When Start is later than End the window wraps past midnight.
type DailyMask struct {
	Start TimeOfDay `json:"start"`
	End   TimeOfDay `json:"end"`
}

// Wraps reports whether the window crosses midnight
func (m DailyMask) Wraps() bool {
	return m.Start.Minutes() > m.End.Minutes()
}

// Contains reports whether the wall-clock time of t falls inside the window.
// t is read in its own location, so callers convert to the target zone first.
func (m DailyMask) Contains(t time.Time) bool {
	second := t.Hour()*3600 + t.Minute()*60 + t.Second()
	start, end := m.Start.Minutes()*60, m.End.Minutes()*60
	if start <= end {
		return second >= start && second <= end
	}
	return second >= start || second <= end
}
