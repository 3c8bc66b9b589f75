/*
handlers.go - HTTP API handlers for the timeline engine

PURPOSE:
  Exposes the Timeline Service over REST. Handles HTTP request/response
  and JSON serialization, and delegates every decision to the service.

ENDPOINTS:
  Days:
    GET    /api/days/{date}            Slices of a day
    GET    /api/days/{date}/summary    Per-work-item totals

  Slices:
    POST   /api/slices                 Propose a slice (create or re-place)
    PUT    /api/slices/{id}            Move/resize a slice
    PATCH  /api/slices/{id}            Change work item or note
    DELETE /api/slices/{id}            Delete a slice

  Tracking:
    POST   /api/tracking/start         Start tracking a work item
    POST   /api/tracking/stop          Stop the running slice
    GET    /api/tracking/current       The running slice (204 when idle)
    POST   /api/away                   Reconcile an away period

  Work items:
    GET    /api/work-items             List work items
    POST   /api/work-items             Create or update a work item

  Scenarios (scenarios.go):
    GET    /api/scenarios              List demo scenarios
    POST   /api/scenarios/load         Replace a day with a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid range, unknown policy/action, missing target
  - 404: Slice or work item not found
  - 409: Multi-conflict, cascade overflow, no open slice
  - 500: Persistence failures (marked retryable)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/timeline-engine/timeline"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *timeline.Service
	WorkItems timeline.WorkItemStore
}

// NewHandler creates a new handler.
func NewHandler(svc *timeline.Service, items timeline.WorkItemStore) *Handler {
	return &Handler{Service: svc, WorkItems: items}
}

func (h *Handler) location() *time.Location {
	return h.Service.Config().Location
}

// =============================================================================
// DAY HANDLERS
// =============================================================================

// GetDay returns the slices of one day.
// GET /api/days/{date}
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	day, err := timeline.ParseDay(chi.URLParam(r, "date"), h.location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	slices, err := h.Service.Day(r.Context(), day.Start)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayDTO(day, slices))
}

// GetSummary returns per-work-item totals for one day.
// GET /api/days/{date}/summary
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	day, err := timeline.ParseDay(chi.URLParam(r, "date"), h.location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	summary, err := h.Service.Summarize(r.Context(), day.Start)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(summary))
}

// =============================================================================
// SLICE HANDLERS
// =============================================================================

// ProposeSlice creates a slice, resolving overlaps under the given policy.
// POST /api/slices
func (h *Handler) ProposeSlice(w http.ResponseWriter, r *http.Request) {
	var req ProposeSliceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.WorkItemID == "" {
		writeError(w, http.StatusBadRequest, "work_item_id is required", nil)
		return
	}

	start, end, err := parseBounds(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time", err)
		return
	}

	policy := h.Service.Config().DefaultPolicy
	if req.Policy != "" {
		if policy, err = timeline.ParseSplitPolicy(req.Policy); err != nil {
			writeServiceError(w, err)
			return
		}
	}

	draft := timeline.Slice{
		ID:         timeline.SliceID(req.ID),
		WorkItemID: timeline.WorkItemID(req.WorkItemID),
		Start:      start,
		End:        end,
		Note:       req.Note,
		Sync:       req.Sync,
	}
	slices, err := h.Service.ProposeSlice(r.Context(), draft, policy)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDayDTO(timeline.DayOf(start, h.location()), slices))
}

// MoveSlice moves or resizes a slice under the default policy.
// PUT /api/slices/{id}
func (h *Handler) MoveSlice(w http.ResponseWriter, r *http.Request) {
	var req MoveSliceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, end, err := parseBounds(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time", err)
		return
	}

	id := timeline.SliceID(chi.URLParam(r, "id"))
	slices, err := h.Service.MoveSlice(r.Context(), id, start, end)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayDTO(timeline.DayOf(start, h.location()), slices))
}

// EditSlice changes a slice's work item or note.
// PATCH /api/slices/{id}
func (h *Handler) EditSlice(w http.ResponseWriter, r *http.Request) {
	var req EditSliceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var workItem *timeline.WorkItemID
	if req.WorkItemID != nil {
		if *req.WorkItemID == "" {
			writeError(w, http.StatusBadRequest, "work_item_id must not be empty", nil)
			return
		}
		id := timeline.WorkItemID(*req.WorkItemID)
		workItem = &id
	}

	id := timeline.SliceID(chi.URLParam(r, "id"))
	slice, err := h.Service.EditSlice(r.Context(), id, workItem, req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSliceDTO(slice))
}

// DeleteSlice removes a slice.
// DELETE /api/slices/{id}
func (h *Handler) DeleteSlice(w http.ResponseWriter, r *http.Request) {
	id := timeline.SliceID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteSlice(r.Context(), id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRACKING HANDLERS
// =============================================================================

// StartTracking opens a slice at the current time.
// POST /api/tracking/start
func (h *Handler) StartTracking(w http.ResponseWriter, r *http.Request) {
	var req StartTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.WorkItemID == "" {
		writeError(w, http.StatusBadRequest, "work_item_id is required", nil)
		return
	}

	slice, err := h.Service.StartTracking(r.Context(), timeline.WorkItemID(req.WorkItemID), req.Note)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSliceDTO(slice))
}

// StopTracking closes the running slice.
// POST /api/tracking/stop
func (h *Handler) StopTracking(w http.ResponseWriter, r *http.Request) {
	slice, err := h.Service.StopTracking(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSliceDTO(slice))
}

// GetCurrent returns the running slice.
// GET /api/tracking/current
func (h *Handler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	open, err := h.Service.Current(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if open == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, toSliceDTO(*open))
}

// ReconcileAway applies the user's decision for an away period.
// POST /api/away
func (h *Handler) ReconcileAway(w http.ResponseWriter, r *http.Request) {
	var req ReconcileAwayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start", err)
		return
	}
	action, err := timeline.ParseAwayAction(req.Action)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	duration := time.Duration(req.DurationSeconds) * time.Second
	slices, err := h.Service.ReconcileAway(r.Context(), start, duration, action, timeline.WorkItemID(req.TargetWorkItemID))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayDTO(timeline.DayOf(start, h.location()), slices))
}

// =============================================================================
// WORK ITEM HANDLERS
// =============================================================================

// ListWorkItems returns all work items.
// GET /api/work-items
func (h *Handler) ListWorkItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.WorkItems.ListWorkItems(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list work items", err)
		return
	}

	dtos := make([]WorkItemDTO, len(items))
	for i, item := range items {
		dtos[i] = WorkItemDTO{ID: string(item.ID), Key: item.Key, Summary: item.Summary}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SaveWorkItem creates or updates a work item.
// POST /api/work-items
func (h *Handler) SaveWorkItem(w http.ResponseWriter, r *http.Request) {
	var req WorkItemDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required", nil)
		return
	}

	item := timeline.WorkItem{ID: timeline.WorkItemID(req.ID), Key: req.Key, Summary: req.Summary}
	if err := h.WorkItems.SaveWorkItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save work item", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// =============================================================================
// HELPERS
// =============================================================================

func parseBounds(start string, end *string) (time.Time, *time.Time, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("start: %w", err)
	}
	if end == nil || *end == "" {
		return s, nil, nil
	}
	e, err := time.Parse(time.RFC3339, *end)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("end: %w", err)
	}
	return s, &e, nil
}

// writeServiceError maps the engine's error taxonomy to HTTP.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		status  int
		code    string
		details any
	)
	var multi *timeline.MultiConflictError
	var overflow *timeline.CascadeOverflowError

	switch {
	case errors.Is(err, timeline.ErrPersistence):
		status, code = http.StatusInternalServerError, "persistence_failure"
	case timeline.IsNotFound(err):
		status, code = http.StatusNotFound, "not_found"
	case errors.As(err, &multi):
		status, code, details = http.StatusConflict, "multi_conflict", multi.Conflicts
	case errors.As(err, &overflow):
		status, code, details = http.StatusConflict, "cascade_overflow", overflow.SliceID
	case errors.Is(err, timeline.ErrNoOpenSlice):
		status, code = http.StatusConflict, "no_open_slice"
	case timeline.IsClientError(err):
		status, code = http.StatusBadRequest, "invalid_request"
	default:
		status, code = http.StatusInternalServerError, "internal"
	}

	resp := ErrorResponse{
		Error:     err.Error(),
		Code:      code,
		Details:   details,
		Retryable: timeline.IsRetryable(err),
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
