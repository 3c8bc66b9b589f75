package timeline

import (
	"fmt"
	"strings"
)

// =============================================================================
// EDIT PLAN - Ordered delete/update/create batch
// =============================================================================

type OpKind string

const (
	OpDelete OpKind = "delete"
	OpUpdate OpKind = "update"
	OpCreate OpKind = "create"
)

// Op is one step of a plan. For update and create, Slice is the full state
// after the step. For delete only Slice.ID is read.
type Op struct {
	Kind  OpKind
	Slice Slice
}

func (o Op) String() string {
	if o.Kind == OpDelete {
		return fmt.Sprintf("delete(%s)", o.Slice.ID)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.Slice)
}

// EditPlan is the sole unit handed to a Store. Stores apply it all-or-nothing.
type EditPlan struct {
	Ops []Op
}

func (p *EditPlan) Delete(id SliceID) {
	p.Ops = append(p.Ops, Op{Kind: OpDelete, Slice: Slice{ID: id}})
}

func (p *EditPlan) Update(s Slice) {
	p.Ops = append(p.Ops, Op{Kind: OpUpdate, Slice: s.Clone()})
}

func (p *EditPlan) Create(s Slice) {
	p.Ops = append(p.Ops, Op{Kind: OpCreate, Slice: s.Clone()})
}

func (p EditPlan) IsEmpty() bool { return len(p.Ops) == 0 }

func (p EditPlan) String() string {
	parts := make([]string, len(p.Ops))
	for i, op := range p.Ops {
		parts[i] = op.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// ApplyTo replays the plan against a copy of existing and returns the result.
// existing is never modified, which makes this the copy-on-write primitive
// the memory store swaps in under its lock.
func (p EditPlan) ApplyTo(existing []Slice) ([]Slice, error) {
	out := make([]Slice, 0, len(existing)+len(p.Ops))
	index := make(map[SliceID]int, len(existing))
	for _, s := range existing {
		index[s.ID] = len(out)
		out = append(out, s.Clone())
	}

	removed := make(map[int]bool)
	for i, op := range p.Ops {
		pos, ok := index[op.Slice.ID]
		switch op.Kind {
		case OpDelete:
			if !ok {
				return nil, fmt.Errorf("op %d %s: %w", i, op, ErrSliceNotFound)
			}
			removed[pos] = true
			delete(index, op.Slice.ID)
		case OpUpdate:
			if !ok {
				return nil, fmt.Errorf("op %d %s: %w", i, op, ErrSliceNotFound)
			}
			out[pos] = op.Slice.Clone()
		case OpCreate:
			if ok {
				return nil, fmt.Errorf("op %d %s: %w", i, op, ErrDuplicateSlice)
			}
			index[op.Slice.ID] = len(out)
			out = append(out, op.Slice.Clone())
		default:
			return nil, fmt.Errorf("op %d: unknown kind %q", i, op.Kind)
		}
	}

	result := make([]Slice, 0, len(out))
	for pos, s := range out {
		if !removed[pos] {
			result = append(result, s)
		}
	}
	SortByStart(result)
	return result, nil
}
