/*
resolver.go - Conflict detection and interval splitting

PURPOSE:
  When a slice is created, moved, or resized into a range already covered
  by another slice, the Resolver detects the overlap and produces a
  concrete EditPlan that restores the non-overlap invariant.

OVERLAP SHAPES (candidate C against existing E, half-open):
  Straddle  C covers E entirely              -> delete E
  Left      C covers E's leading portion     -> E starts at C's end
  Right     C covers E's trailing portion    -> E ends at C's start
  Middle    C sits strictly inside E         -> E split around C

SPLIT POLICIES:
  PreserveDuration  A left-overlapped E keeps its length and is pushed
                    later; slices it newly overlaps are pushed in turn.
  PreserveEnd       E keeps its end; its duration shrinks by the overlap.

  Right and middle overlaps resolve the same way under both policies: E's
  start is fixed and C occupies the consumed range, so the trimmed or split
  pieces are the only outcome that leaves C unchanged.

PLAN ORDER:
  1. Cascade pushes, farthest slice first
  2. Edits to E (delete, update, split)
  3. The candidate's own create/update, always last

SEE ALSO:
  - interval.go: Overlaps, EffectiveEnd
  - plan.go: EditPlan
  - service.go: Rounds input before calling Resolve
*/
package timeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SPLIT POLICY
// =============================================================================

// SplitPolicy selects how a partially covered slice is reshaped.
type SplitPolicy int

const (
	PreserveDuration SplitPolicy = iota + 1
	PreserveEnd
)

func (p SplitPolicy) String() string {
	switch p {
	case PreserveDuration:
		return "preserve-duration"
	case PreserveEnd:
		return "preserve-end"
	default:
		return fmt.Sprintf("SplitPolicy(%d)", int(p))
	}
}

// ParseSplitPolicy accepts the names produced by String.
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	switch s {
	case "preserve-duration", "duration":
		return PreserveDuration, nil
	case "preserve-end", "end":
		return PreserveEnd, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

func (p SplitPolicy) valid() bool {
	return p == PreserveDuration || p == PreserveEnd
}

// =============================================================================
// OVERLAP SHAPE
// =============================================================================

type OverlapShape int

const (
	ShapeNone OverlapShape = iota
	ShapeStraddle
	ShapeLeft
	ShapeRight
	ShapeMiddle
)

func (s OverlapShape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeStraddle:
		return "straddle"
	case ShapeLeft:
		return "left"
	case ShapeRight:
		return "right"
	case ShapeMiddle:
		return "middle"
	default:
		return fmt.Sprintf("OverlapShape(%d)", int(s))
	}
}

// Classify returns where candidate c sits relative to existing slice e.
// Equal boundaries count as outside the overlap.
func Classify(c, e Slice, now time.Time) OverlapShape {
	if !Overlaps(c, e, now) {
		return ShapeNone
	}
	cEnd, eEnd := EffectiveEnd(c, now), EffectiveEnd(e, now)
	if !c.Start.After(e.Start) {
		if !cEnd.Before(eEnd) {
			return ShapeStraddle
		}
		return ShapeLeft
	}
	if !cEnd.Before(eEnd) {
		return ShapeRight
	}
	return ShapeMiddle
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolution is the outcome of Resolve. Shape == ShapeNone means there was no
// conflict and Plan holds only the candidate's plain create or update.
type Resolution struct {
	Shape      OverlapShape
	ConflictID SliceID
	Plan       EditPlan
}

// NoConflict reports whether the candidate fit without touching other slices.
func (r Resolution) NoConflict() bool { return r.Shape == ShapeNone }

// Resolver turns a candidate and a day's slice set into an EditPlan.
// It performs no I/O; NewID supplies identifiers for split remainders and
// for candidates that don't have one yet.
type Resolver struct {
	NewID func() SliceID
}

// Resolve detects the slice candidate overlaps in existing and plans the
// edits that remove the overlap under policy. existing must already be
// free of overlaps; day bounds any cascading shift.
func (r *Resolver) Resolve(candidate Slice, existing []Slice, policy SplitPolicy, day Day, now time.Time) (Resolution, error) {
	if !policy.valid() {
		return Resolution{}, fmt.Errorf("%w: %v", ErrUnknownPolicy, policy)
	}
	if err := Validate(candidate, now); err != nil {
		return Resolution{}, err
	}
	candidate = candidate.Clone()
	if candidate.ID == "" {
		candidate.ID = r.newID()
	}

	var (
		others    []Slice
		conflicts []Slice
		isUpdate  bool
	)
	for _, e := range existing {
		if e.ID == candidate.ID {
			isUpdate = true
			continue
		}
		others = append(others, e)
		if Overlaps(candidate, e, now) {
			conflicts = append(conflicts, e)
		}
	}

	res := Resolution{}
	switch len(conflicts) {
	case 0:
		appendCandidate(&res.Plan, candidate, isUpdate)
		return res, nil
	case 1:
	default:
		ids := make([]SliceID, len(conflicts))
		for i, c := range conflicts {
			ids[i] = c.ID
		}
		return Resolution{}, &MultiConflictError{Candidate: candidate.ID, Conflicts: ids}
	}

	e := conflicts[0]
	res.ConflictID = e.ID
	res.Shape = Classify(candidate, e, now)
	cEnd := EffectiveEnd(candidate, now)

	switch res.Shape {
	case ShapeStraddle:
		res.Plan.Delete(e.ID)

	case ShapeLeft:
		shifted := e.Clone()
		shifted.Start = cEnd
		if policy == PreserveDuration && e.End != nil {
			shifted.End = At(cEnd.Add(e.End.Sub(e.Start)))
			if shifted.End.After(day.End) {
				return Resolution{}, &CascadeOverflowError{
					SliceID: e.ID, NewStart: shifted.Start, NewEnd: *shifted.End, Limit: day.End,
				}
			}
			pushes, err := cascade(shifted, *e.End, others, day, now)
			if err != nil {
				return Resolution{}, err
			}
			res.Plan.Ops = append(res.Plan.Ops, pushes...)
		}
		keepOrDelete(&res.Plan, shifted, now)

	case ShapeRight:
		trimmed := e.Clone()
		trimmed.End = At(candidate.Start)
		keepOrDelete(&res.Plan, trimmed, now)

	case ShapeMiddle:
		before := e.Clone()
		before.End = At(candidate.Start)
		keepOrDelete(&res.Plan, before, now)

		after := Slice{
			ID:         r.newID(),
			WorkItemID: e.WorkItemID,
			Start:      cEnd,
			Note:       e.Note,
		}
		if e.End != nil {
			after.End = At(*e.End)
		}
		if Duration(after, now) > 0 {
			res.Plan.Create(after)
		}
	}

	appendCandidate(&res.Plan, candidate, isUpdate)
	return res, nil
}

func (r *Resolver) newID() SliceID {
	if r == nil || r.NewID == nil {
		return SliceID(uuid.New().String())
	}
	return r.NewID()
}

// cascade pushes the slices that moved now overlaps, each to start where the
// previous one now ends, keeping their durations. Only slices that started at
// or after oldEnd can be hit. Updates are returned farthest-first so no
// prefix of the plan has two slices overlapping.
func cascade(moved Slice, oldEnd time.Time, others []Slice, day Day, now time.Time) ([]Op, error) {
	var following []Slice
	for _, s := range others {
		if !s.Start.Before(oldEnd) {
			following = append(following, s)
		}
	}
	SortByStart(following)

	var pushed []Slice
	prevEnd := EffectiveEnd(moved, now)
	for _, s := range following {
		if !s.Start.Before(prevEnd) {
			break
		}
		next := s.Clone()
		next.Start = prevEnd
		if s.End != nil {
			next.End = At(prevEnd.Add(s.End.Sub(s.Start)))
			if next.End.After(day.End) {
				return nil, &CascadeOverflowError{
					SliceID: s.ID, NewStart: next.Start, NewEnd: *next.End, Limit: day.End,
				}
			}
		} else if !prevEnd.Before(now) {
			return nil, &CascadeOverflowError{
				SliceID: s.ID, NewStart: next.Start, NewEnd: now, Limit: now,
			}
		}
		pushed = append(pushed, next)
		prevEnd = EffectiveEnd(next, now)
	}

	ops := make([]Op, 0, len(pushed))
	for i := len(pushed) - 1; i >= 0; i-- {
		ops = append(ops, Op{Kind: OpUpdate, Slice: pushed[i]})
	}
	return ops, nil
}

// keepOrDelete updates s, or deletes it when nothing of it survives.
func keepOrDelete(p *EditPlan, s Slice, now time.Time) {
	if Duration(s, now) <= 0 {
		p.Delete(s.ID)
		return
	}
	p.Update(s)
}

func appendCandidate(p *EditPlan, candidate Slice, isUpdate bool) {
	if isUpdate {
		p.Update(candidate)
		return
	}
	p.Create(candidate)
}
