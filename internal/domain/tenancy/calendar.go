package tenancy

import "time"

// Date returns the calendar day of t as observed in loc, encoded as
// midnight UTC. A nil loc means UTC.
func Date(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth returns the first day of the month containing day.
func FirstOfMonth(day time.Time) time.Time {
	y, m, _ := day.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// FirstOfNextMonth returns the first day of the month following day.
// time.Date normalises month 13 to January of the next year.
func FirstOfNextMonth(day time.Time) time.Time {
	y, m, _ := day.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b denote the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
