package timeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timeline-engine/timeline"
	"github.com/warp/timeline-engine/timeline/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// failingStore rejects every Apply while fail is set.
type failingStore struct {
	*store.Memory
	fail bool
}

func (f *failingStore) Apply(ctx context.Context, plan timeline.EditPlan) error {
	if f.fail {
		return errors.New("disk full")
	}
	return f.Memory.Apply(ctx, plan)
}

func testConfig(clock *fakeClock) timeline.Config {
	return timeline.Config{
		GranularityMinutes: 5,
		DefaultPolicy:      timeline.PreserveEnd,
		Location:           time.UTC,
		Now:                clock.Now,
		NewID:              sequence("id"),
		Logger:             log.New(io.Discard, "", 0),
	}
}

func newTestService(t *testing.T, now time.Time) (*timeline.Service, *store.Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: now}
	mem := store.NewMemory()
	return timeline.NewService(mem, testConfig(clock)), mem, clock
}

// =============================================================================
// PROPOSE / MOVE
// =============================================================================

func TestService_ProposeSlice_RoundsAndSplits(t *testing.T) {
	// GIVEN: E = [09:00, 11:00) on A
	// WHEN: [10:02, 10:31) on B is proposed with 5 minute granularity
	// THEN: It lands on [10:00, 10:30) and E is split around it

	svc, mem, _ := newTestService(t, at(18, 0))
	mem.Seed(closed("e", "A", 9, 0, 11, 0))
	ctx := context.Background()

	day, err := svc.ProposeSlice(ctx, timeline.Slice{
		ID:         "c",
		WorkItemID: "B",
		Start:      at(10, 2),
		End:        timeline.At(at(10, 31)),
	}, timeline.PreserveEnd)
	require.NoError(t, err)

	require.Len(t, day, 3)
	assertSlice(t, day[0], "A", at(9, 0), timeline.At(at(10, 0)))
	assertSlice(t, day[1], "B", at(10, 0), timeline.At(at(10, 30)))
	assertSlice(t, day[2], "A", at(10, 30), timeline.At(at(11, 0)))
	assert.Equal(t, timeline.SliceID("id-1"), day[2].ID)
}

func TestService_ProposeSlice_CrossingDayRejected(t *testing.T) {
	svc, mem, _ := newTestService(t, at(18, 0))

	_, err := svc.ProposeSlice(context.Background(), closed("c", "A", 23, 0, 24, 30), timeline.PreserveEnd)

	assert.ErrorIs(t, err, timeline.ErrInvalidRange)
	assert.Empty(t, mem.All())
}

func TestService_ProposeSlice_RoundsToZeroRejected(t *testing.T) {
	svc, _, _ := newTestService(t, at(18, 0))

	_, err := svc.ProposeSlice(context.Background(), closed("c", "A", 9, 1, 9, 2), timeline.PreserveEnd)

	assert.ErrorIs(t, err, timeline.ErrInvalidRange)
}

func TestService_ProposeSlice_MultiConflictLeavesStoreUntouched(t *testing.T) {
	svc, mem, _ := newTestService(t, at(18, 0))
	mem.Seed(closed("e1", "A", 9, 0, 10, 0), closed("e2", "B", 10, 0, 11, 0))

	_, err := svc.ProposeSlice(context.Background(), closed("c", "C", 9, 30, 10, 30), timeline.PreserveEnd)

	assert.ErrorIs(t, err, timeline.ErrMultiConflict)
	assert.Len(t, mem.All(), 2)
}

func TestService_MoveSlice_KeepsDuration(t *testing.T) {
	// GIVEN: E = [09:00, 10:00), F = [13:00, 14:00)
	// WHEN: F is moved to start at 09:30
	// THEN: F = [09:30, 10:30) and E is truncated to [09:00, 09:30)

	svc, mem, _ := newTestService(t, at(18, 0))
	mem.Seed(closed("e", "A", 9, 0, 10, 0), closed("f", "B", 13, 0, 14, 0))

	day, err := svc.MoveSlice(context.Background(), "f", at(9, 30), nil)
	require.NoError(t, err)

	require.Len(t, day, 2)
	assertSlice(t, day[0], "A", at(9, 0), timeline.At(at(9, 30)))
	assertSlice(t, day[1], "B", at(9, 30), timeline.At(at(10, 30)))
}

func TestService_MoveSlice_NotFound(t *testing.T) {
	svc, _, _ := newTestService(t, at(18, 0))

	_, err := svc.MoveSlice(context.Background(), "ghost", at(9, 0), nil)

	assert.True(t, timeline.IsNotFound(err))
}

// =============================================================================
// TRACKING
// =============================================================================

func TestService_StartStopTracking(t *testing.T) {
	svc, _, clock := newTestService(t, at(9, 0))
	ctx := context.Background()

	first, err := svc.StartTracking(ctx, "A", "")
	require.NoError(t, err)
	assertSlice(t, first, "A", at(9, 0), nil)

	// Starting another item closes the first where the second starts
	clock.Set(at(10, 2))
	second, err := svc.StartTracking(ctx, "B", "review")
	require.NoError(t, err)
	assertSlice(t, second, "B", at(10, 0), nil)

	day, err := svc.Day(ctx, at(12, 0))
	require.NoError(t, err)
	require.Len(t, day, 2)
	assertSlice(t, day[0], "A", at(9, 0), timeline.At(at(10, 0)))

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, second.ID, current.ID)

	clock.Set(at(11, 1))
	stopped, err := svc.StopTracking(ctx)
	require.NoError(t, err)
	assertSlice(t, stopped, "B", at(10, 0), timeline.At(at(11, 0)))
	assert.Equal(t, "review", stopped.Note)

	current, err = svc.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestService_StopTracking_NothingRunning(t *testing.T) {
	svc, _, _ := newTestService(t, at(9, 0))

	_, err := svc.StopTracking(context.Background())

	assert.ErrorIs(t, err, timeline.ErrNoOpenSlice)
}

func TestService_StopTracking_ZeroLengthRemoved(t *testing.T) {
	svc, mem, clock := newTestService(t, at(9, 0))
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, "A", "")
	require.NoError(t, err)

	clock.Set(at(9, 1))
	_, err = svc.StopTracking(ctx)
	require.NoError(t, err)

	assert.Empty(t, mem.All())
}

func TestService_StopTracking_AcrossMidnight(t *testing.T) {
	// GIVEN: Tracking A since 22:00 and no rollover has run
	// WHEN: Tracking stops at 00:10 the next day
	// THEN: A ends at midnight and today's part runs from 00:00 to 00:10

	svc, mem, clock := newTestService(t, at(22, 0))
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, "A", "late")
	require.NoError(t, err)

	clock.Set(at(24, 10))
	stopped, err := svc.StopTracking(ctx)
	require.NoError(t, err)
	assertSlice(t, stopped, "A", at(24, 0), timeline.At(at(24, 10)))
	assert.Equal(t, "late", stopped.Note)

	yesterday, err := svc.Day(ctx, at(12, 0))
	require.NoError(t, err)
	require.Len(t, yesterday, 1)
	assertSlice(t, yesterday[0], "A", at(22, 0), timeline.At(at(24, 0)))

	assert.Len(t, mem.All(), 2)
	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestService_StopTracking_AtMidnightLeavesOnlyOldDay(t *testing.T) {
	svc, mem, clock := newTestService(t, at(23, 0))
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, "A", "")
	require.NoError(t, err)

	clock.Set(at(24, 1))
	stopped, err := svc.StopTracking(ctx)
	require.NoError(t, err)

	assertSlice(t, stopped, "A", at(23, 0), timeline.At(at(24, 0)))
	assert.Len(t, mem.All(), 1)
}

// =============================================================================
// AWAY RECONCILIATION
// =============================================================================

func TestService_ReconcileAway_Reassign(t *testing.T) {
	svc, _, clock := newTestService(t, at(8, 0))
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, "1", "")
	require.NoError(t, err)

	clock.Set(at(10, 0))
	day, err := svc.ReconcileAway(ctx, at(9, 0), 1800*time.Second, timeline.AwayReassign, "2")
	require.NoError(t, err)

	require.Len(t, day, 3)
	assertSlice(t, day[0], "1", at(8, 0), timeline.At(at(9, 0)))
	assertSlice(t, day[1], "2", at(9, 0), timeline.At(at(9, 30)))
	assertSlice(t, day[2], "1", at(9, 30), nil)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, day[2].ID, current.ID)
}

func TestService_ReconcileAway_NeverResumesInTheFuture(t *testing.T) {
	// GIVEN: Tracking x since 08:00 and it is 10:03
	// WHEN: Away from 09:00 for 63 minutes is discarded
	// THEN: The away end would round up to 10:05, so tracking resumes at 10:00

	now := at(10, 3)
	svc, mem, _ := newTestService(t, now)
	mem.Seed(open("a", "x", 8, 0))
	ctx := context.Background()

	day, err := svc.ReconcileAway(ctx, at(9, 0), 63*time.Minute, timeline.AwayDiscard, "")
	require.NoError(t, err)

	require.Len(t, day, 2)
	assertSlice(t, day[0], "x", at(8, 0), timeline.At(at(9, 0)))
	assertSlice(t, day[1], "x", at(10, 0), nil)
	for _, s := range day {
		assert.NoError(t, timeline.Validate(s, now))
	}
}

func TestService_ReconcileAway_SubStepWindowIsNoop(t *testing.T) {
	now := at(10, 3)
	svc, mem, _ := newTestService(t, now)
	mem.Seed(open("a", "x", 8, 0))

	away := at(10, 2).Add(40 * time.Second)
	day, err := svc.ReconcileAway(context.Background(), away, 20*time.Second, timeline.AwayDiscard, "")
	require.NoError(t, err)

	require.Len(t, day, 1)
	assertSlice(t, day[0], "x", at(8, 0), nil)
}

func TestService_ReconcileAway_Rejections(t *testing.T) {
	svc, _, clock := newTestService(t, at(10, 0))
	ctx := context.Background()

	_, err := svc.ReconcileAway(ctx, at(9, 0), 30*time.Minute, timeline.AwayDiscard, "")
	assert.ErrorIs(t, err, timeline.ErrNoOpenSlice)

	_, err = svc.StartTracking(ctx, "1", "")
	require.NoError(t, err)

	clock.Set(at(10, 20))
	_, err = svc.ReconcileAway(ctx, at(10, 10), 30*time.Minute, timeline.AwayDiscard, "")
	assert.ErrorIs(t, err, timeline.ErrInvalidRange, "away period cannot end in the future")

	_, err = svc.ReconcileAway(ctx, at(10, 0), -time.Minute, timeline.AwayDiscard, "")
	assert.ErrorIs(t, err, timeline.ErrInvalidRange)

	_, err = svc.ReconcileAway(ctx, at(10, 5), 10*time.Minute, timeline.AwayReassign, "")
	assert.ErrorIs(t, err, timeline.ErrMissingTarget)
}

// =============================================================================
// PERSISTENCE FAILURE
// =============================================================================

func TestService_PersistenceFailure_RollsBackOpenSlice(t *testing.T) {
	// GIVEN: Tracking A since 09:00
	// WHEN: Switching to B while the store is failing
	// THEN: A PersistenceError is returned, the store is unchanged, and the
	//       service still reports A as the running slice

	clock := &fakeClock{now: at(9, 0)}
	fs := &failingStore{Memory: store.NewMemory()}
	svc := timeline.NewService(fs, testConfig(clock))
	ctx := context.Background()

	first, err := svc.StartTracking(ctx, "A", "")
	require.NoError(t, err)

	fs.fail = true
	clock.Set(at(10, 0))
	_, err = svc.StartTracking(ctx, "B", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, timeline.ErrPersistence)
	assert.True(t, timeline.IsRetryable(err))
	var persistErr *timeline.PersistenceError
	require.ErrorAs(t, err, &persistErr)
	assert.False(t, persistErr.Plan.IsEmpty())

	all := fs.All()
	require.Len(t, all, 1)
	assert.True(t, all[0].IsOpen())

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, first.ID, current.ID)

	// Retrying after the store recovers succeeds
	fs.fail = false
	_, err = svc.StartTracking(ctx, "B", "")
	require.NoError(t, err)
	current, err = svc.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, timeline.WorkItemID("B"), current.WorkItemID)
}

// =============================================================================
// ROLLOVER
// =============================================================================

func TestService_RolloverDay(t *testing.T) {
	// GIVEN: Tracking A since 22:00
	// WHEN: Rollover runs at 00:30 the next day
	// THEN: A ends at midnight and a new slice on A runs from 00:00

	svc, _, clock := newTestService(t, at(22, 0))
	ctx := context.Background()

	_, err := svc.StartTracking(ctx, "A", "late")
	require.NoError(t, err)

	clock.Set(at(24, 30))
	rolled, err := svc.RolloverDay(ctx)
	require.NoError(t, err)
	assert.True(t, rolled)

	yesterday, err := svc.Day(ctx, at(12, 0))
	require.NoError(t, err)
	require.Len(t, yesterday, 1)
	assertSlice(t, yesterday[0], "A", at(22, 0), timeline.At(at(24, 0)))

	today, err := svc.Day(ctx, at(24, 30))
	require.NoError(t, err)
	require.Len(t, today, 1)
	assertSlice(t, today[0], "A", at(24, 0), nil)
	assert.Equal(t, "late", today[0].Note)

	rolled, err = svc.RolloverDay(ctx)
	require.NoError(t, err)
	assert.False(t, rolled, "second run has nothing to split")
}

func TestService_RolloverDay_NothingRunning(t *testing.T) {
	svc, _, _ := newTestService(t, at(0, 30))

	rolled, err := svc.RolloverDay(context.Background())

	require.NoError(t, err)
	assert.False(t, rolled)
}

// =============================================================================
// DIRECT EDITS
// =============================================================================

func TestService_EditSlice(t *testing.T) {
	svc, mem, _ := newTestService(t, at(18, 0))
	mem.Seed(closed("e", "A", 9, 0, 10, 0))
	ctx := context.Background()

	item := timeline.WorkItemID("B")
	note := "pairing"
	edited, err := svc.EditSlice(ctx, "e", &item, &note)
	require.NoError(t, err)
	assertSlice(t, edited, "B", at(9, 0), timeline.At(at(10, 0)))

	stored := mem.All()
	require.Len(t, stored, 1)
	assert.Equal(t, "pairing", stored[0].Note)

	// nil leaves the field alone
	edited, err = svc.EditSlice(ctx, "e", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, timeline.WorkItemID("B"), edited.WorkItemID)

	_, err = svc.EditSlice(ctx, "ghost", &item, nil)
	assert.True(t, timeline.IsNotFound(err))
}

func TestService_DeleteSlice_RunningStopsTracking(t *testing.T) {
	svc, mem, clock := newTestService(t, at(9, 0))
	ctx := context.Background()

	running, err := svc.StartTracking(ctx, "A", "")
	require.NoError(t, err)

	clock.Set(at(9, 30))
	require.NoError(t, svc.DeleteSlice(ctx, running.ID))

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, current)
	assert.Empty(t, mem.All())

	assert.ErrorIs(t, svc.DeleteSlice(ctx, running.ID), timeline.ErrSliceNotFound)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestService_ConcurrentProposals_NeverOverlap(t *testing.T) {
	clock := &fakeClock{now: at(20, 0)}
	mem := store.NewMemory()
	cfg := testConfig(clock)
	cfg.NewID = nil // uuid
	svc := timeline.NewService(mem, cfg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(g)))
			for i := 0; i < 20; i++ {
				start := at(6, 0).Add(time.Duration(rng.Intn(120)) * 5 * time.Minute)
				end := start.Add(time.Duration(1+rng.Intn(12)) * 5 * time.Minute)
				draft := timeline.Slice{
					ID:         timeline.SliceID(fmt.Sprintf("g%d-%d", g, i)),
					WorkItemID: timeline.WorkItemID(fmt.Sprintf("item-%d", g)),
					Start:      start,
					End:        timeline.At(end),
				}
				// Multi-conflicts are expected; the invariant is what matters.
				_, _ = svc.ProposeSlice(ctx, draft, timeline.PreserveEnd)
			}
		}(g)
	}
	wg.Wait()

	all := mem.All()
	assert.NotEmpty(t, all)
	assert.Empty(t, timeline.FindOverlaps(all, clock.Now()))
}
