package summary

import "time"

// Range is the half-open interval [Start, End).
type Range struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside r.
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Week returns the Monday-to-Sunday week containing now, in now's location.
func Week(now time.Time) Range {
	y, m, d := now.Date()
	// Go counts Sunday as 0; shift so Monday is 0.
	offset := (int(now.Weekday()) + 6) % 7
	start := time.Date(y, m, d-offset, 0, 0, 0, 0, now.Location())
	return Range{Start: start, End: start.AddDate(0, 0, 7)}
}

// Month returns the calendar month containing now.
func Month(now time.Time) Range {
	y, m, _ := now.Date()
	start := time.Date(y, m, 1, 0, 0, 0, 0, now.Location())
	return Range{Start: start, End: start.AddDate(0, 1, 0)}
}

// Year returns the calendar year containing now.
func Year(now time.Time) Range {
	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	return Range{Start: start, End: start.AddDate(1, 0, 0)}
}
