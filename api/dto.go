/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal timeline model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TIME FORMAT:
  Instants are RFC 3339 strings. Days are YYYY-MM-DD. Hours are decimal
  strings so clients never see binary floating point artifacts.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// SLICES
// =============================================================================

// SliceDTO represents a slice in API responses.
type SliceDTO struct {
	ID         string            `json:"id"`
	WorkItemID string            `json:"work_item_id"`
	Start      string            `json:"start"`
	End        *string           `json:"end,omitempty"`
	Open       bool              `json:"open"`
	Note       string            `json:"note,omitempty"`
	Sync       map[string]string `json:"sync,omitempty"`
}

// DayDTO is a day's slice set.
type DayDTO struct {
	Date   string     `json:"date"`
	Slices []SliceDTO `json:"slices"`
}

// ProposeSliceRequest creates a slice, or re-places it when ID exists.
type ProposeSliceRequest struct {
	ID         string            `json:"id,omitempty"`
	WorkItemID string            `json:"work_item_id"`
	Start      string            `json:"start"`
	End        *string           `json:"end,omitempty"`
	Note       string            `json:"note,omitempty"`
	Sync       map[string]string `json:"sync,omitempty"`
	Policy     string            `json:"policy,omitempty"` // "preserve-duration" | "preserve-end"
}

// MoveSliceRequest moves or resizes a slice.
type MoveSliceRequest struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

// EditSliceRequest changes a slice without touching its boundaries.
type EditSliceRequest struct {
	WorkItemID *string `json:"work_item_id,omitempty"`
	Note       *string `json:"note,omitempty"`
}

// =============================================================================
// TRACKING
// =============================================================================

// StartTrackingRequest opens a new slice at the current time.
type StartTrackingRequest struct {
	WorkItemID string `json:"work_item_id"`
	Note       string `json:"note,omitempty"`
}

// ReconcileAwayRequest reports an away period and what to do with it.
type ReconcileAwayRequest struct {
	Start            string `json:"start"`
	DurationSeconds  int64  `json:"duration_seconds"`
	Action           string `json:"action"` // "discard" | "keep" | "reassign"
	TargetWorkItemID string `json:"target_work_item_id,omitempty"`
}

// =============================================================================
// SUMMARY
// =============================================================================

// SummaryDTO totals one day.
type SummaryDTO struct {
	Date       string             `json:"date"`
	TotalHours string             `json:"total_hours"`
	Untracked  string             `json:"untracked_hours"`
	Open       *SliceDTO          `json:"open,omitempty"`
	WorkItems  []WorkItemTotalDTO `json:"work_items"`
}

// WorkItemTotalDTO is one row of a summary.
type WorkItemTotalDTO struct {
	WorkItemID string `json:"work_item_id"`
	Slices     int    `json:"slices"`
	Hours      string `json:"hours"`
}

// =============================================================================
// WORK ITEMS
// =============================================================================

// WorkItemDTO represents a work item.
type WorkItemDTO struct {
	ID      string `json:"id"`
	Key     string `json:"key,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toSliceDTO(s timeline.Slice) SliceDTO {
	dto := SliceDTO{
		ID:         string(s.ID),
		WorkItemID: string(s.WorkItemID),
		Start:      s.Start.Format(time.RFC3339),
		Open:       s.IsOpen(),
		Note:       s.Note,
		Sync:       s.Sync,
	}
	if s.End != nil {
		end := s.End.Format(time.RFC3339)
		dto.End = &end
	}
	return dto
}

func toDayDTO(day timeline.Day, slices []timeline.Slice) DayDTO {
	dto := DayDTO{Date: day.String(), Slices: make([]SliceDTO, len(slices))}
	for i, s := range slices {
		dto.Slices[i] = toSliceDTO(s)
	}
	return dto
}

func toSummaryDTO(s timeline.DaySummary) SummaryDTO {
	dto := SummaryDTO{
		Date:       s.Day.String(),
		TotalHours: s.Total.StringFixed(2),
		Untracked:  s.Untracked.StringFixed(2),
		WorkItems:  make([]WorkItemTotalDTO, len(s.ByWorkItem)),
	}
	if s.Open != nil {
		open := toSliceDTO(*s.Open)
		dto.Open = &open
	}
	for i, t := range s.ByWorkItem {
		dto.WorkItems[i] = WorkItemTotalDTO{
			WorkItemID: string(t.WorkItemID),
			Slices:     t.Slices,
			Hours:      t.Hours.StringFixed(2),
		}
	}
	return dto
}
