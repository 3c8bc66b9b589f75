package timeline

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY SUMMARY - Per-work-item totals
// =============================================================================

// Hours is a decimal hour count. Durations are summed before conversion so
// three 20-minute slices make exactly one hour.
type Hours = decimal.Decimal

// WorkItemTotal is the time booked to one work item on one day.
type WorkItemTotal struct {
	WorkItemID WorkItemID
	Slices     int
	Hours      Hours
}

// DaySummary aggregates a day's slices.
type DaySummary struct {
	Day        Day
	Total      Hours
	Untracked  Hours // gaps between the first start and the last end
	Open       *Slice
	ByWorkItem []WorkItemTotal
}

// HoursOf converts a duration to decimal hours.
func HoursOf(d time.Duration) Hours {
	return decimal.NewFromInt(int64(d)).Div(decimal.NewFromInt(int64(time.Hour)))
}

// Summarize totals slices per work item. Only the part of each slice inside
// day counts; an open slice counts up to now.
func Summarize(day Day, slices []Slice, now time.Time) DaySummary {
	summary := DaySummary{Day: day, Total: decimal.Zero, Untracked: decimal.Zero}
	totals := make(map[WorkItemID]*WorkItemTotal)
	booked := make(map[WorkItemID]time.Duration)

	var (
		tracked     time.Duration
		first, last time.Time
	)
	for _, s := range slices {
		start := day.Clamp(s.Start)
		end := day.Clamp(EffectiveEnd(s, now))
		if !end.After(start) {
			continue
		}
		if s.IsOpen() {
			open := s.Clone()
			summary.Open = &open
		}

		d := end.Sub(start)
		tracked += d
		if first.IsZero() || start.Before(first) {
			first = start
		}
		if end.After(last) {
			last = end
		}

		t, ok := totals[s.WorkItemID]
		if !ok {
			t = &WorkItemTotal{WorkItemID: s.WorkItemID}
			totals[s.WorkItemID] = t
		}
		t.Slices++
		booked[s.WorkItemID] += d
	}

	summary.Total = HoursOf(tracked)
	if !first.IsZero() {
		summary.Untracked = HoursOf(last.Sub(first) - tracked)
	}
	for id, t := range totals {
		t.Hours = HoursOf(booked[id])
		summary.ByWorkItem = append(summary.ByWorkItem, *t)
	}
	sort.Slice(summary.ByWorkItem, func(i, j int) bool {
		if !summary.ByWorkItem[i].Hours.Equal(summary.ByWorkItem[j].Hours) {
			return summary.ByWorkItem[i].Hours.GreaterThan(summary.ByWorkItem[j].Hours)
		}
		return summary.ByWorkItem[i].WorkItemID < summary.ByWorkItem[j].WorkItemID
	})
	return summary
}

// Summarize loads the day containing date and totals it.
func (s *Service) Summarize(ctx context.Context, date time.Time) (DaySummary, error) {
	day := DayOf(date, s.cfg.Location)
	slices, err := s.store.LoadRange(ctx, day.Start, day.End)
	if err != nil {
		return DaySummary{}, err
	}
	return Summarize(day, slices, s.cfg.Now()), nil
}
