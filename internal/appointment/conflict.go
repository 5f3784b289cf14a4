package appointment

import "time"

// Interval is a booked half-open time range [Start, Start+Duration) on a
// practitioner's calendar.
type Interval struct {
	Start           time.Time
	DurationMinutes int
}

func (iv Interval) End() time.Time {
	return iv.Start.Add(time.Duration(iv.DurationMinutes) * time.Minute)
}

// HasConflict reports whether the proposed interval overlaps any existing one.
// Intervals are half-open, so touching boundaries do not conflict: an
// appointment ending at 10:00 never collides with one starting at 10:00.
//
// Callers must pre-filter the candidates (same practitioner, not cancelled,
// reschedule target excluded); the duration precondition (> 0) is enforced
// upstream as well.
func HasConflict(proposedStart time.Time, durationMinutes int, existing []Interval) bool {
	proposedEnd := proposedStart.Add(time.Duration(durationMinutes) * time.Minute)

	for _, iv := range existing {
		if proposedStart.Before(iv.End()) && proposedEnd.After(iv.Start) {
			return true
		}
	}

	return false
}
