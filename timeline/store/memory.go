// Package store provides in-process timeline.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the whole slice set in one sorted slice. Apply builds the next
// set off to the side and swaps it in under the write lock, so readers see
// either the state before a plan or the state after it.
type Memory struct {
	mu        sync.RWMutex
	slices    []timeline.Slice
	workItems map[timeline.WorkItemID]timeline.WorkItem
}

func NewMemory() *Memory {
	return &Memory{
		workItems: make(map[timeline.WorkItemID]timeline.WorkItem),
	}
}

// Seed replaces the slice set wholesale. No invariants are checked.
func (m *Memory) Seed(slices ...timeline.Slice) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := make([]timeline.Slice, len(slices))
	for i, s := range slices {
		next[i] = s.Clone()
	}
	timeline.SortByStart(next)
	m.slices = next
}

// Apply runs the plan against a copy and swaps the copy in (all-or-nothing).
func (m *Memory) Apply(_ context.Context, plan timeline.EditPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := plan.ApplyTo(m.slices)
	if err != nil {
		return err
	}
	m.slices = next
	return nil
}

func (m *Memory) LoadRange(_ context.Context, from, to time.Time) ([]timeline.Slice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []timeline.Slice
	for _, s := range m.slices {
		if !s.Start.Before(to) {
			break
		}
		if s.End != nil && !s.End.After(from) {
			continue
		}
		result = append(result, s.Clone())
	}
	return result, nil
}

func (m *Memory) Load(_ context.Context, id timeline.SliceID) (timeline.Slice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.slices {
		if s.ID == id {
			return s.Clone(), nil
		}
	}
	return timeline.Slice{}, timeline.ErrSliceNotFound
}

func (m *Memory) OpenSlice(_ context.Context) (*timeline.Slice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.slices) - 1; i >= 0; i-- {
		if m.slices[i].IsOpen() {
			open := m.slices[i].Clone()
			return &open, nil
		}
	}
	return nil, nil
}

// All returns every stored slice, ordered by start.
func (m *Memory) All() []timeline.Slice {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]timeline.Slice, len(m.slices))
	for i, s := range m.slices {
		out[i] = s.Clone()
	}
	return out
}

// =============================================================================
// WORK ITEMS
// =============================================================================

func (m *Memory) SaveWorkItem(_ context.Context, item timeline.WorkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workItems[item.ID] = item
	return nil
}

func (m *Memory) GetWorkItem(_ context.Context, id timeline.WorkItemID) (timeline.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	item, ok := m.workItems[id]
	if !ok {
		return timeline.WorkItem{}, timeline.ErrWorkItemNotFound
	}
	return item, nil
}

func (m *Memory) ListWorkItems(_ context.Context) ([]timeline.WorkItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]timeline.WorkItem, 0, len(m.workItems))
	for _, item := range m.workItems {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}
