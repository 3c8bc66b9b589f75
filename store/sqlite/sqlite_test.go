package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/timeline-engine/store/sqlite"
	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var day = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func slice(id, item string, start time.Time, end *time.Time) timeline.Slice {
	return timeline.Slice{
		ID:         timeline.SliceID(id),
		WorkItemID: timeline.WorkItemID(item),
		Start:      start,
		End:        end,
	}
}

func create(t *testing.T, store *sqlite.Store, slices ...timeline.Slice) {
	t.Helper()
	var plan timeline.EditPlan
	for _, s := range slices {
		plan.Create(s)
	}
	require.NoError(t, store.Apply(context.Background(), plan))
}

// =============================================================================
// SLICE TESTS
// =============================================================================

func TestStore_CreateAndLoad_RoundTripsFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := slice("a", "PROJ-1", at(9, 0), timeline.At(at(10, 0)))
	s.Note = "standup"
	s.Sync = timeline.SyncMetadata{"worklog_id": "991"}
	create(t, store, s)

	got, err := store.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, timeline.WorkItemID("PROJ-1"), got.WorkItemID)
	assert.True(t, at(9, 0).Equal(got.Start))
	require.NotNil(t, got.End)
	assert.True(t, at(10, 0).Equal(*got.End))
	assert.Equal(t, "standup", got.Note)
	assert.Equal(t, "991", got.Sync["worklog_id"])

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, timeline.ErrSliceNotFound)
}

func TestStore_LoadRange(t *testing.T) {
	// GIVEN: A slice ending at midnight, two slices today, one tomorrow
	// WHEN: Loading today
	// THEN: Only slices overlapping [today, tomorrow) come back, ordered

	store := newTestStore(t)
	create(t, store,
		slice("yesterday", "x", at(-2, 0), timeline.At(at(0, 0))),
		slice("late", "x", at(14, 0), timeline.At(at(15, 0))),
		slice("early", "x", at(9, 0), timeline.At(at(10, 0))),
		slice("tomorrow", "x", at(24, 0), timeline.At(at(25, 0))),
	)

	got, err := store.LoadRange(context.Background(), at(0, 0), at(24, 0))
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, timeline.SliceID("early"), got[0].ID)
	assert.Equal(t, timeline.SliceID("late"), got[1].ID)
}

func TestStore_LoadRange_IncludesOpenSlice(t *testing.T) {
	store := newTestStore(t)
	create(t, store, slice("run", "x", at(-1, 0), nil))

	got, err := store.LoadRange(context.Background(), at(0, 0), at(24, 0))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].IsOpen())

	open, err := store.OpenSlice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, timeline.SliceID("run"), open.ID)
}

func TestStore_OpenSlice_NoneRunning(t *testing.T) {
	store := newTestStore(t)
	create(t, store, slice("a", "x", at(9, 0), timeline.At(at(10, 0))))

	open, err := store.OpenSlice(context.Background())
	require.NoError(t, err)
	assert.Nil(t, open)
}

func TestStore_Apply_SplitPlan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	create(t, store, slice("e", "A", at(9, 0), timeline.At(at(11, 0))))

	var plan timeline.EditPlan
	plan.Update(slice("e", "A", at(9, 0), timeline.At(at(10, 0))))
	plan.Create(slice("e2", "A", at(10, 30), timeline.At(at(11, 0))))
	plan.Create(slice("c", "B", at(10, 0), timeline.At(at(10, 30))))
	require.NoError(t, store.Apply(ctx, plan))

	got, err := store.LoadRange(ctx, at(0, 0), at(24, 0))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []timeline.SliceID{"e", "c", "e2"}, []timeline.SliceID{got[0].ID, got[1].ID, got[2].ID})
	assert.Empty(t, timeline.FindOverlaps(got, at(18, 0)))
}

func TestStore_Apply_IsAllOrNothing(t *testing.T) {
	// GIVEN: One stored slice
	// WHEN: A plan deletes it and then updates a slice that doesn't exist
	// THEN: The plan fails and the delete is rolled back

	store := newTestStore(t)
	ctx := context.Background()
	create(t, store, slice("a", "x", at(9, 0), timeline.At(at(10, 0))))

	var plan timeline.EditPlan
	plan.Delete("a")
	plan.Update(slice("ghost", "x", at(11, 0), timeline.At(at(12, 0))))

	err := store.Apply(ctx, plan)
	require.Error(t, err)
	assert.ErrorIs(t, err, timeline.ErrSliceNotFound)

	_, err = store.Load(ctx, "a")
	assert.NoError(t, err, "delete must have been rolled back")
}

func TestStore_Apply_DuplicateCreate(t *testing.T) {
	store := newTestStore(t)
	create(t, store, slice("a", "x", at(9, 0), timeline.At(at(10, 0))))

	var plan timeline.EditPlan
	plan.Create(slice("a", "x", at(11, 0), timeline.At(at(12, 0))))

	assert.ErrorIs(t, store.Apply(context.Background(), plan), timeline.ErrDuplicateSlice)
}

func TestStore_NonUTCInputIsNormalized(t *testing.T) {
	store := newTestStore(t)
	loc := time.FixedZone("UTC-5", -5*60*60)
	local := time.Date(2026, time.March, 10, 4, 0, 0, 0, loc) // 09:00 UTC
	create(t, store, slice("a", "x", local, timeline.At(local.Add(time.Hour))))

	got, err := store.LoadRange(context.Background(), at(8, 0), at(9, 30))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, local.Equal(got[0].Start))
}

func TestStore_KeepsNanosecondPrecision(t *testing.T) {
	store := newTestStore(t)
	start := at(9, 0).Add(1500 * time.Nanosecond)
	create(t, store, slice("a", "x", start, timeline.At(at(10, 0))))

	got, err := store.Load(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, start.Equal(got.Start), "want %s, got %s", start, got.Start)
}

// =============================================================================
// PERSISTENCE ACROSS REOPEN
// =============================================================================

func TestStore_FileDatabase_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timeline.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	create(t, store, slice("a", "x", at(9, 0), nil))
	require.NoError(t, store.Close())

	reopened, err := sqlite.New(path)
	require.NoError(t, err)
	defer reopened.Close()

	open, err := reopened.OpenSlice(context.Background())
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, timeline.SliceID("a"), open.ID)
}

// =============================================================================
// ENGINE INTEGRATION
// =============================================================================

func TestStore_WithService_TrackingDay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := at(9, 0)
	svc := timeline.NewService(store, timeline.Config{
		GranularityMinutes: 5,
		Location:           time.UTC,
		Now:                func() time.Time { return now },
	})

	_, err := svc.StartTracking(ctx, "A", "")
	require.NoError(t, err)

	now = at(10, 0)
	_, err = svc.StartTracking(ctx, "B", "")
	require.NoError(t, err)

	now = at(11, 0)
	_, err = svc.ReconcileAway(ctx, at(10, 30), 15*time.Minute, timeline.AwayReassign, "C")
	require.NoError(t, err)

	got, err := svc.Day(ctx, at(12, 0))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Empty(t, timeline.FindOverlaps(got, now))
	assert.Len(t, timeline.OpenSlices(got), 1)
	assert.Equal(t, timeline.WorkItemID("C"), got[2].WorkItemID)
}

// =============================================================================
// WORK ITEM TESTS
// =============================================================================

func TestStore_WorkItems(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveWorkItem(ctx, timeline.WorkItem{ID: "b", Key: "PROJ-2"}))
	require.NoError(t, store.SaveWorkItem(ctx, timeline.WorkItem{ID: "a", Key: "PROJ-1", Summary: "Login"}))
	require.NoError(t, store.SaveWorkItem(ctx, timeline.WorkItem{ID: "a", Key: "PROJ-1", Summary: "Login page"}))

	item, err := store.GetWorkItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "Login page", item.Summary)

	items, err := store.ListWorkItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, timeline.WorkItemID("a"), items[0].ID)

	_, err = store.GetWorkItem(ctx, "zzz")
	assert.ErrorIs(t, err, timeline.ErrWorkItemNotFound)
}
