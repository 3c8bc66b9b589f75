/*
Package timeline provides the timeline consistency and reconciliation engine.

PURPOSE:
  Work time is tracked as a sequence of labeled intervals ("slices") on a
  per-day timeline. This package keeps that timeline internally consistent
  when slices are created, moved, or resized into ranges that are already
  covered, and decides how an away (idle) period is folded back into it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Slice: a half-open interval [Start, End) attributed to one work item
  - Open slice: a slice with no End, i.e. currently tracking
  - WorkItem: what time is attributed to (opaque foreign key)
  - Day: the bounded [Start, End) window a timeline is resolved within

INVARIANTS (held by Service, never by the store):
  1. At most one open slice per timeline
  2. No two slices overlap (open slice's end taken as "now" for comparison)
  3. Start < effective end for every slice (no zero-length slices)

USAGE:
  svc := timeline.NewService(store.NewMemory(), timeline.Config{GranularityMinutes: 5})
  slices, err := svc.ProposeSlice(ctx, timeline.Slice{
      WorkItemID: "PROJ-12",
      Start:      nineAM,
      End:        timeline.At(tenAM),
  }, timeline.PreserveEnd)

SEE ALSO:
  - interval.go: Overlap/containment arithmetic
  - resolver.go: Conflict detection and splitting
  - away.go: Away reconciliation state machine
  - service.go: Orchestration over a Store
*/
package timeline

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SliceID string
type WorkItemID string

// SyncMetadata is opaque worklog synchronization state. The engine copies it
// through edits unchanged and never inspects it.
type SyncMetadata map[string]string

func (m SyncMetadata) clone() SyncMetadata {
	if m == nil {
		return nil
	}
	out := make(SyncMetadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// =============================================================================
// SLICE - A labeled interval on the timeline
// =============================================================================

// Slice is a half-open interval [Start, End). End == nil means the slice is
// open (currently running).
type Slice struct {
	ID         SliceID
	WorkItemID WorkItemID
	Start      time.Time
	End        *time.Time
	Note       string
	Sync       SyncMetadata
}

// IsOpen reports whether the slice is still running.
func (s Slice) IsOpen() bool { return s.End == nil }

// Clone returns a deep copy so plan builders never alias caller state.
func (s Slice) Clone() Slice {
	out := s
	if s.End != nil {
		end := *s.End
		out.End = &end
	}
	out.Sync = s.Sync.clone()
	return out
}

func (s Slice) String() string {
	end := "now"
	if s.End != nil {
		end = s.End.Format("15:04")
	}
	return fmt.Sprintf("%s[%s %s, %s)", s.ID, s.WorkItemID, s.Start.Format("15:04"), end)
}

// At returns a pointer to t, for building closed slices inline.
func At(t time.Time) *time.Time { return &t }

// =============================================================================
// WORK ITEM
// =============================================================================

// WorkItem identifies what time is attributed to. Slices reference it by ID
// only; the engine treats it as an opaque foreign key.
type WorkItem struct {
	ID      WorkItemID
	Key     string // e.g. an issue key such as "PROJ-12"
	Summary string
}

// =============================================================================
// DAY - The bounded window a timeline is resolved within
// =============================================================================

// Day is the half-open window [Start, End) of one calendar day.
type Day struct {
	Start time.Time
	End   time.Time
}

// DayOf returns the calendar day containing t in loc. A nil loc means t's own
// location.
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = t.Location()
	}
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return Day{Start: start, End: start.AddDate(0, 0, 1)}
}

// ParseDay parses a YYYY-MM-DD date into the day it names in loc.
func ParseDay(value string, loc *time.Location) (Day, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return Day{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return DayOf(t, loc), nil
}

// Contains reports whether t falls inside [Start, End).
func (d Day) Contains(t time.Time) bool {
	return !t.Before(d.Start) && t.Before(d.End)
}

// Clamp bounds t to [Start, End].
func (d Day) Clamp(t time.Time) time.Time { return Clamp(t, d.Start, d.End) }

// Next returns the following calendar day.
func (d Day) Next() Day {
	return Day{Start: d.End, End: d.End.AddDate(0, 0, 1)}
}

func (d Day) String() string { return d.Start.Format("2006-01-02") }
