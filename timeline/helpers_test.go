package timeline_test

import (
	"fmt"
	"time"

	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// All tests run on Tuesday 2026-03-10 in UTC unless they say otherwise.
var testDate = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return testDate.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func testDay() timeline.Day {
	return timeline.DayOf(testDate, time.UTC)
}

func closed(id, item string, sh, sm, eh, em int) timeline.Slice {
	return timeline.Slice{
		ID:         timeline.SliceID(id),
		WorkItemID: timeline.WorkItemID(item),
		Start:      at(sh, sm),
		End:        timeline.At(at(eh, em)),
	}
}

func open(id, item string, sh, sm int) timeline.Slice {
	return timeline.Slice{
		ID:         timeline.SliceID(id),
		WorkItemID: timeline.WorkItemID(item),
		Start:      at(sh, sm),
	}
}

// sequence returns an ID generator yielding prefix-1, prefix-2, ...
func sequence(prefix string) func() timeline.SliceID {
	n := 0
	return func() timeline.SliceID {
		n++
		return timeline.SliceID(fmt.Sprintf("%s-%d", prefix, n))
	}
}

func byID(slices []timeline.Slice) map[timeline.SliceID]timeline.Slice {
	out := make(map[timeline.SliceID]timeline.Slice, len(slices))
	for _, s := range slices {
		out[s.ID] = s
	}
	return out
}
