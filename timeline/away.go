package timeline

import (
	"fmt"
	"time"
)

// =============================================================================
// AWAY RECONCILIATION - Tracking -> Away -> Tracking
// =============================================================================
//
// States are plain values passed between calls; nothing here is global.
//
//   Tracking(open) --GoAway(t)--> Away(open, t) --Resolve(d, action)--> Tracking(open')
//
// Edits only ever touch the single open slice and create slices inside the
// away window or after it, so the Resolver is never consulted. Slices moved
// by hand in another window during the away period are not detected.

// AwayAction is the user's choice for an away period.
type AwayAction int

const (
	// AwayDiscard drops the away span: the open slice ends at the away start
	// and tracking resumes on the same item after it.
	AwayDiscard AwayAction = iota + 1
	// AwayKeep counts the away span as work on the open slice.
	AwayKeep
	// AwayReassign books the away span to another work item.
	AwayReassign
)

func (a AwayAction) String() string {
	switch a {
	case AwayDiscard:
		return "discard"
	case AwayKeep:
		return "keep"
	case AwayReassign:
		return "reassign"
	default:
		return fmt.Sprintf("AwayAction(%d)", int(a))
	}
}

func ParseAwayAction(s string) (AwayAction, error) {
	switch s {
	case "discard":
		return AwayDiscard, nil
	case "keep":
		return AwayKeep, nil
	case "reassign":
		return AwayReassign, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Tracking is the state with exactly one running slice.
type Tracking struct {
	Open Slice
}

// NewTracking enters the Tracking state. A missing or closed slice means the
// caller lost track of the active slice.
func NewTracking(open *Slice) (Tracking, error) {
	if open == nil || !open.IsOpen() {
		return Tracking{}, ErrNoOpenSlice
	}
	return Tracking{Open: open.Clone()}, nil
}

// GoAway records that the user went idle at since.
func (t Tracking) GoAway(since time.Time) Away {
	return Away{Open: t.Open, Since: since}
}

// Away is the state between idle detection and the user's decision.
type Away struct {
	Open  Slice
	Since time.Time
}

// Resolve folds the away window [Since, Since+duration) back into the
// timeline and returns the next Tracking state with the plan that gets there.
// target is only read for AwayReassign. newID names created slices.
func (a Away) Resolve(duration time.Duration, action AwayAction, target WorkItemID, newID func() SliceID) (Tracking, EditPlan, error) {
	var plan EditPlan
	if !a.Open.IsOpen() {
		return Tracking{}, plan, ErrNoOpenSlice
	}
	if duration < 0 {
		return Tracking{}, plan, &RangeError{
			SliceID: a.Open.ID,
			Start:   a.Since,
			End:     a.Since.Add(duration),
			Reason:  "away duration must not be negative",
		}
	}
	if duration == 0 {
		return Tracking{Open: a.Open}, plan, nil
	}

	switch action {
	case AwayKeep:
		return Tracking{Open: a.Open}, plan, nil
	case AwayDiscard, AwayReassign:
	default:
		return Tracking{}, plan, fmt.Errorf("%w: %v", ErrUnknownAction, action)
	}
	if action == AwayReassign && target == "" {
		return Tracking{}, plan, ErrMissingTarget
	}

	since := a.Since
	if since.Before(a.Open.Start) {
		since = a.Open.Start
	}
	awayEnd := a.Since.Add(duration)
	if !awayEnd.After(since) {
		// The whole window predates the open slice; nothing to reshape.
		return Tracking{Open: a.Open}, plan, nil
	}

	// Close the running slice at the away start. A zero-length prefix is
	// dropped rather than persisted.
	if since.After(a.Open.Start) {
		closed := a.Open.Clone()
		closed.End = At(since)
		plan.Update(closed)
	} else {
		plan.Delete(a.Open.ID)
	}

	if action == AwayReassign {
		plan.Create(Slice{
			ID:         newID(),
			WorkItemID: target,
			Start:      since,
			End:        At(awayEnd),
		})
	}

	resumed := Slice{
		ID:         newID(),
		WorkItemID: a.Open.WorkItemID,
		Start:      awayEnd,
		Note:       a.Open.Note,
	}
	plan.Create(resumed)

	return Tracking{Open: resumed}, plan, nil
}
