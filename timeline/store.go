/*
store.go - Persistence interface for slices and work items

PURPOSE:
  Defines the boundary between the engine and the database. The store is a
  dumb collaborator: it reads, and it applies whole EditPlans. It enforces
  none of the timeline invariants; the Service does.

CONTRACT:
  - LoadRange returns every slice overlapping [from, to). An open slice
    overlaps when it starts before to.
  - Apply is all-or-nothing. A failed Apply leaves no trace.
  - Read-your-writes: a successful Apply is visible to the next read.

IMPLEMENTATIONS:
  - timeline/store/memory.go: Copy-on-write in-memory store
  - store/sqlite/sqlite.go: SQLite, one SQL transaction per plan
*/
package timeline

import (
	"context"
	"time"
)

// Store persists slices.
type Store interface {
	// LoadRange returns the slices overlapping [from, to), ordered by start.
	LoadRange(ctx context.Context, from, to time.Time) ([]Slice, error)

	// Load returns one slice or ErrSliceNotFound.
	Load(ctx context.Context, id SliceID) (Slice, error)

	// OpenSlice returns the running slice, or nil when nothing is running.
	OpenSlice(ctx context.Context) (*Slice, error)

	// Apply executes every op in plan atomically and in order.
	Apply(ctx context.Context, plan EditPlan) error
}

// WorkItemStore persists the work items slices point at.
type WorkItemStore interface {
	SaveWorkItem(ctx context.Context, item WorkItem) error
	GetWorkItem(ctx context.Context, id WorkItemID) (WorkItem, error)
	ListWorkItems(ctx context.Context) ([]WorkItem, error)
}
