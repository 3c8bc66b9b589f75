package timeline

import "time"

// RoundToInterval snaps t to the nearest multiple of granularityMinutes.
//
// Seconds and sub-second components are always cleared first. For a
// granularity of one minute or less that is the whole job; otherwise the
// Unix millisecond timestamp is rounded half-up to the granularity step.
// The result keeps t's location.
func RoundToInterval(t time.Time, granularityMinutes int) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	if granularityMinutes <= 1 {
		return t
	}

	step := int64(granularityMinutes) * int64(time.Minute/time.Millisecond)
	ms := t.UnixMilli()
	rounded := floorDiv(ms+step/2, step) * step
	return time.UnixMilli(rounded).In(t.Location())
}

// floorToInterval is RoundToInterval rounding down instead of half-up.
func floorToInterval(t time.Time, granularityMinutes int) time.Time {
	t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, t.Location())
	if granularityMinutes <= 1 {
		return t
	}

	step := int64(granularityMinutes) * int64(time.Minute/time.Millisecond)
	return time.UnixMilli(floorDiv(t.UnixMilli(), step) * step).In(t.Location())
}

// RoundSlice rounds both bounds of s. An open end stays open.
func RoundSlice(s Slice, granularityMinutes int) Slice {
	out := s.Clone()
	out.Start = RoundToInterval(s.Start, granularityMinutes)
	if s.End != nil {
		out.End = At(RoundToInterval(*s.End, granularityMinutes))
	}
	return out
}

// floorDiv is integer division rounding toward negative infinity, so that
// instants before the epoch round the same way as those after it.
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
