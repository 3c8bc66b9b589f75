package timeline

import (
	"sort"
	"time"
)

// =============================================================================
// INTERVAL ARITHMETIC - Pure, total functions over slices
// =============================================================================
// Callers guarantee Start <= End when End is present. Nothing here validates.

// EffectiveEnd returns the slice's end, or now when the slice is open. The
// substitution is for comparison only and is never persisted.
func EffectiveEnd(s Slice, now time.Time) time.Time {
	if s.End != nil {
		return *s.End
	}
	return now
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching at a boundary is not an overlap.
func Overlaps(a, b Slice, now time.Time) bool {
	return a.Start.Before(EffectiveEnd(b, now)) && b.Start.Before(EffectiveEnd(a, now))
}

// Contains reports whether point lies in [outer.Start, effective end).
func Contains(outer Slice, point, now time.Time) bool {
	return !point.Before(outer.Start) && point.Before(EffectiveEnd(outer, now))
}

// Duration is the slice length with an open end taken as now.
func Duration(s Slice, now time.Time) time.Duration {
	return EffectiveEnd(s, now).Sub(s.Start)
}

// Clamp bounds t to [lo, hi].
func Clamp(t, lo, hi time.Time) time.Time {
	if t.Before(lo) {
		return lo
	}
	if t.After(hi) {
		return hi
	}
	return t
}

// Validate rejects slices whose start is not strictly before their
// effective end.
func Validate(s Slice, now time.Time) error {
	if !s.Start.Before(EffectiveEnd(s, now)) {
		return &RangeError{
			SliceID: s.ID,
			Start:   s.Start,
			End:     EffectiveEnd(s, now),
			Reason:  "start must be before end",
		}
	}
	return nil
}

// SortByStart orders slices chronologically, breaking ties by ID so output
// is deterministic.
func SortByStart(slices []Slice) {
	sort.SliceStable(slices, func(i, j int) bool {
		if slices[i].Start.Equal(slices[j].Start) {
			return slices[i].ID < slices[j].ID
		}
		return slices[i].Start.Before(slices[j].Start)
	})
}

// FindOverlaps returns every pair of distinct overlapping slices. An empty
// result means the set satisfies the non-overlap invariant.
func FindOverlaps(slices []Slice, now time.Time) [][2]Slice {
	var pairs [][2]Slice
	for i := range slices {
		for j := i + 1; j < len(slices); j++ {
			if Overlaps(slices[i], slices[j], now) {
				pairs = append(pairs, [2]Slice{slices[i], slices[j]})
			}
		}
	}
	return pairs
}

// OpenSlices returns the slices without an end.
func OpenSlices(slices []Slice) []Slice {
	var open []Slice
	for _, s := range slices {
		if s.IsOpen() {
			open = append(open, s)
		}
	}
	return open
}
