/*
service.go - Orchestration of rounding, resolution, and persistence

PURPOSE:
  The Service is the only component that mutates the timeline. Every call
  follows the same pipeline:

    1. Round boundaries to the configured granularity
    2. Load the day's slice set from the Store
    3. Ask the Resolver or the away state machine for an EditPlan
    4. Apply the plan atomically through the Store
    5. Return the finalized day, or a typed error

CONCURRENCY:
  One Service owns one timeline. Mutating calls are serialized by a mutex:
  interleaving two plans could break the Resolver's precondition that the
  existing set has no overlaps.

OPEN SLICE:
  The running slice is cached on the Service. The cache only changes after
  a plan was applied successfully, so a failed Apply leaves it as it was.

SEE ALSO:
  - resolver.go: Conflict resolution
  - away.go: Away reconciliation
  - summary.go: Per-day totals
*/
package timeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config tunes a Service. Zero values fall back to the defaults noted.
type Config struct {
	// GranularityMinutes is the rounding step. <= 1 only clears seconds.
	GranularityMinutes int

	// DefaultPolicy is used by MoveSlice and StopTracking. Default PreserveEnd.
	DefaultPolicy SplitPolicy

	// Location defines day boundaries. Default UTC.
	Location *time.Location

	Now    func() time.Time
	NewID  func() SliceID
	Logger *log.Logger
}

func (c Config) withDefaults() Config {
	if c.DefaultPolicy == 0 {
		c.DefaultPolicy = PreserveEnd
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.NewID == nil {
		c.NewID = func() SliceID { return SliceID(uuid.New().String()) }
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// Service mediates all mutation of one timeline.
type Service struct {
	store    Store
	cfg      Config
	resolver *Resolver

	mu         sync.Mutex
	open       *Slice
	openLoaded bool
}

func NewService(store Store, cfg Config) *Service {
	cfg = cfg.withDefaults()
	return &Service{
		store:    store,
		cfg:      cfg,
		resolver: &Resolver{NewID: cfg.NewID},
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// =============================================================================
// CORE OPERATIONS
// =============================================================================

// ProposeSlice inserts draft, or re-places it if draft.ID already exists,
// resolving any overlap under policy. It returns the day draft starts in.
func (s *Service) ProposeSlice(ctx context.Context, draft Slice, policy SplitPolicy) ([]Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	day, err := s.propose(ctx, draft, policy)
	if err != nil {
		return nil, err
	}
	return s.store.LoadRange(ctx, day.Start, day.End)
}

// MoveSlice re-places an existing slice under the default policy. A nil
// newEnd keeps an open slice open; for a closed slice it keeps the duration.
func (s *Service) MoveSlice(ctx context.Context, id SliceID, newStart time.Time, newEnd *time.Time) ([]Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	moved := current.Clone()
	moved.Start = newStart
	switch {
	case newEnd != nil:
		moved.End = At(*newEnd)
	case current.End != nil:
		moved.End = At(newStart.Add(current.End.Sub(current.Start)))
	}

	day, err := s.propose(ctx, moved, s.cfg.DefaultPolicy)
	if err != nil {
		return nil, err
	}
	return s.store.LoadRange(ctx, day.Start, day.End)
}

// ReconcileAway folds the away window [awayStart, awayStart+awayDuration)
// back into the timeline according to action. target is required for
// AwayReassign and ignored otherwise.
func (s *Service) ReconcileAway(ctx context.Context, awayStart time.Time, awayDuration time.Duration, action AwayAction, target WorkItemID) ([]Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	if awayDuration < 0 {
		return nil, &RangeError{
			Start:  awayStart,
			End:    awayStart.Add(awayDuration),
			Reason: "away duration must not be negative",
		}
	}
	if awayStart.Add(awayDuration).After(now) {
		return nil, &RangeError{
			Start:  awayStart,
			End:    awayStart.Add(awayDuration),
			Reason: "away period ends in the future",
		}
	}

	start := RoundToInterval(awayStart, s.cfg.GranularityMinutes)
	end := RoundToInterval(awayStart.Add(awayDuration), s.cfg.GranularityMinutes)
	if end.After(now) {
		// Tracking resumes at end, which must not be in the future.
		end = floorToInterval(now, s.cfg.GranularityMinutes)
	}
	if start.After(end) {
		start = end
	}

	open, err := s.currentOpen(ctx)
	if err != nil {
		return nil, err
	}
	tracking, err := NewTracking(open)
	if err != nil {
		return nil, err
	}

	next, plan, err := tracking.GoAway(start).Resolve(end.Sub(start), action, target, s.cfg.NewID)
	if err != nil {
		return nil, err
	}

	day := DayOf(start, s.cfg.Location)
	if !plan.IsEmpty() {
		if err := s.apply(ctx, plan); err != nil {
			return nil, err
		}
		s.cfg.Logger.Printf("[Service] away %s..%s %s: tracking resumes as %s",
			start.Format("15:04"), end.Format("15:04"), action, next.Open.ID)
	}
	return s.store.LoadRange(ctx, day.Start, day.End)
}

// =============================================================================
// TRACKING CONTROLS
// =============================================================================

// StartTracking opens a new slice at now on workItem. A slice that is
// already running is closed where the new one starts.
func (s *Service) StartTracking(ctx context.Context, workItem WorkItemID, note string) (Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := Slice{
		ID:         s.cfg.NewID(),
		WorkItemID: workItem,
		Start:      s.cfg.Now(),
		Note:       note,
	}
	if _, err := s.propose(ctx, draft, PreserveEnd); err != nil {
		return Slice{}, err
	}
	return s.store.Load(ctx, draft.ID)
}

// StopTracking closes the running slice at now. A slice that would round
// to zero length is removed instead. A slice still running from an earlier
// day is split at midnight in the same write.
func (s *Service) StopTracking(ctx context.Context) (Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	open, err := s.currentOpen(ctx)
	if err != nil {
		return Slice{}, err
	}
	if open == nil {
		return Slice{}, ErrNoOpenSlice
	}

	now := s.cfg.Now()
	if today := DayOf(now, s.cfg.Location); open.Start.Before(today.Start) {
		return s.stopAcrossMidnight(ctx, *open, today, now)
	}

	closed := open.Clone()
	closed.End = At(RoundToInterval(now, s.cfg.GranularityMinutes))
	if !closed.End.After(closed.Start) {
		var plan EditPlan
		plan.Delete(open.ID)
		if err := s.apply(ctx, plan); err != nil {
			return Slice{}, err
		}
		return closed, nil
	}

	if _, err := s.propose(ctx, closed, s.cfg.DefaultPolicy); err != nil {
		return Slice{}, err
	}
	return s.store.Load(ctx, open.ID)
}

// Current returns the running slice, or nil.
func (s *Service) Current(ctx context.Context) (*Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentOpen(ctx)
}

// =============================================================================
// DIRECT EDITS
// =============================================================================

// EditSlice reassigns a slice's work item and/or note. Boundaries are not
// touched, so no resolution is needed. Nil arguments are left unchanged.
func (s *Service) EditSlice(ctx context.Context, id SliceID, workItem *WorkItemID, note *string) (Slice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, err := s.store.Load(ctx, id)
	if err != nil {
		return Slice{}, err
	}
	edited := current.Clone()
	if workItem != nil {
		edited.WorkItemID = *workItem
	}
	if note != nil {
		edited.Note = *note
	}

	var plan EditPlan
	plan.Update(edited)
	if err := s.apply(ctx, plan); err != nil {
		return Slice{}, err
	}
	return edited, nil
}

// DeleteSlice removes a slice. Deleting the running slice stops tracking.
func (s *Service) DeleteSlice(ctx context.Context, id SliceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.store.Load(ctx, id); err != nil {
		return err
	}
	var plan EditPlan
	plan.Delete(id)
	return s.apply(ctx, plan)
}

// Day returns the slices of the calendar day containing date.
func (s *Service) Day(ctx context.Context, date time.Time) ([]Slice, error) {
	day := DayOf(date, s.cfg.Location)
	return s.store.LoadRange(ctx, day.Start, day.End)
}

// =============================================================================
// MIDNIGHT ROLLOVER
// =============================================================================

// RolloverDay splits a slice left running across midnight: it is closed at
// the end of the day it started in and a new open slice on the same work
// item starts at the beginning of today. Days in between stay empty.
// Returns false when there was nothing to split.
func (s *Service) RolloverDay(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Now()
	today := DayOf(now, s.cfg.Location)

	open, err := s.currentOpen(ctx)
	if err != nil {
		return false, err
	}
	if open == nil || !open.Start.Before(today.Start) {
		return false, nil
	}

	plan, next := s.splitAtMidnight(*open, today)
	plan.Create(next)
	if err := s.apply(ctx, plan); err != nil {
		return false, err
	}
	s.cfg.Logger.Printf("[Service] rolled %s over into %s", open.ID, today)
	return true, nil
}

// splitAtMidnight returns a plan closing open at the end of the day it
// started in, and its continuation opening at today's start. The
// continuation is not part of the plan.
func (s *Service) splitAtMidnight(open Slice, today Day) (EditPlan, Slice) {
	closed := open.Clone()
	closed.End = At(DayOf(open.Start, s.cfg.Location).End)

	var plan EditPlan
	plan.Update(closed)
	return plan, Slice{
		ID:         s.cfg.NewID(),
		WorkItemID: open.WorkItemID,
		Start:      today.Start,
		Note:       open.Note,
	}
}

// stopAcrossMidnight stops a slice that started before today in one plan:
// the old day's part ends at midnight and today's part ends at now, or at
// the first slice already recorded today. Returns the last part written.
// Callers hold s.mu.
func (s *Service) stopAcrossMidnight(ctx context.Context, open Slice, today Day, now time.Time) (Slice, error) {
	plan, next := s.splitAtMidnight(open, today)
	last := plan.Ops[0].Slice

	end := RoundToInterval(now, s.cfg.GranularityMinutes)
	existing, err := s.store.LoadRange(ctx, today.Start, today.End)
	if err != nil {
		return Slice{}, err
	}
	for _, e := range existing {
		if e.ID != open.ID && e.Start.Before(end) {
			end = e.Start
		}
	}
	if end.After(next.Start) {
		next.End = At(end)
		plan.Create(next)
		last = next
	}

	if err := s.apply(ctx, plan); err != nil {
		return Slice{}, err
	}
	s.cfg.Logger.Printf("[Service] stopped %s across midnight into %s", open.ID, today)
	return last, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// propose rounds draft, resolves it against its day and applies the plan.
// Callers hold s.mu.
func (s *Service) propose(ctx context.Context, draft Slice, policy SplitPolicy) (Day, error) {
	now := s.cfg.Now()
	draft = RoundSlice(draft, s.cfg.GranularityMinutes)
	if draft.IsOpen() && !now.After(draft.Start) {
		// A running slice whose start rounded up past the clock still
		// occupies its first step.
		now = draft.Start.Add(s.step())
	}
	if err := Validate(draft, now); err != nil {
		return Day{}, err
	}

	day := DayOf(draft.Start, s.cfg.Location)
	if end := EffectiveEnd(draft, now); end.After(day.End) {
		return Day{}, &RangeError{
			SliceID: draft.ID,
			Start:   draft.Start,
			End:     end,
			Reason:  "slice crosses the day boundary",
		}
	}

	existing, err := s.store.LoadRange(ctx, day.Start, day.End)
	if err != nil {
		return Day{}, err
	}

	// The running slice and the slice being moved take part even when they
	// started on another day.
	open, err := s.currentOpen(ctx)
	if err != nil {
		return Day{}, err
	}
	if open != nil {
		existing = appendMissing(existing, *open)
	}
	if draft.ID != "" {
		prior, err := s.store.Load(ctx, draft.ID)
		switch {
		case err == nil:
			existing = appendMissing(existing, prior)
		case !errors.Is(err, ErrSliceNotFound):
			return Day{}, err
		}
	}

	res, err := s.resolver.Resolve(draft, existing, policy, day, now)
	if err != nil {
		s.cfg.Logger.Printf("[Service] rejected %s under %s: %v", draft, policy, err)
		return Day{}, err
	}
	if err := s.apply(ctx, res.Plan); err != nil {
		return Day{}, err
	}
	if !res.NoConflict() {
		s.cfg.Logger.Printf("[Service] %s overlap with %s resolved under %s: %s",
			res.Shape, res.ConflictID, policy, res.Plan)
	}
	return day, nil
}

// apply hands plan to the store and refreshes the cached open slice. On
// failure the cache is left untouched.
func (s *Service) apply(ctx context.Context, plan EditPlan) error {
	if err := s.store.Apply(ctx, plan); err != nil {
		s.cfg.Logger.Printf("[Service] apply failed for %s: %v", plan, err)
		return &PersistenceError{Plan: plan, Err: err}
	}
	open, err := s.store.OpenSlice(ctx)
	if err != nil {
		s.openLoaded = false
		return nil
	}
	s.open, s.openLoaded = open, true
	return nil
}

func (s *Service) currentOpen(ctx context.Context) (*Slice, error) {
	if !s.openLoaded {
		open, err := s.store.OpenSlice(ctx)
		if err != nil {
			return nil, err
		}
		s.open, s.openLoaded = open, true
	}
	if s.open == nil {
		return nil, nil
	}
	open := s.open.Clone()
	return &open, nil
}

func (s *Service) step() time.Duration {
	if s.cfg.GranularityMinutes <= 1 {
		return time.Minute
	}
	return time.Duration(s.cfg.GranularityMinutes) * time.Minute
}

func appendMissing(slices []Slice, s Slice) []Slice {
	for _, existing := range slices {
		if existing.ID == s.ID {
			return slices
		}
	}
	return append(slices, s)
}
