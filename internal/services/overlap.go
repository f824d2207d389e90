package services

import "time"

// Overlaps reports whether a candidate interval [start, end) collides with
// an existing block interval [blockStart, blockEnd). Intervals are half-open,
// so a block ending exactly when another starts does not overlap.
//
// The four clauses are checked explicitly rather than using the closed form
// (s1 < e2 && s2 < e1) so the edge handling matches the repository query
// clause for clause:
//
//	(a) the candidate start falls inside the existing block
//	(b) the candidate end falls inside the existing block
//	(c) the candidate fully contains the existing block
//	(d) the existing block fully contains the candidate
func Overlaps(start, end, blockStart, blockEnd time.Time) bool {
	// (a) blockStart <= start < blockEnd
	if !blockStart.After(start) && blockEnd.After(start) {
		return true
	}
	// (b) blockStart < end <= blockEnd
	if blockStart.Before(end) && !blockEnd.Before(end) {
		return true
	}
	// (c) start <= blockStart && blockEnd <= end
	if !start.After(blockStart) && !blockEnd.After(end) {
		return true
	}
	// (d) blockStart <= start && end <= blockEnd
	if !blockStart.After(start) && !end.After(blockEnd) {
		return true
	}
	return false
}
