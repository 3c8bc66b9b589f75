/*
scenarios.go - Demo day loaders for testing and demonstrations

PURPOSE:
  Populates one day with a realistic slice set so the resolver's behavior
  can be shown without clicking a timeline together by hand. Every slice
  goes through the Service, so a scenario is also a replay of real edits.

AVAILABLE SCENARIOS:
  workday:       A plain day of focus blocks, a meeting, and a review
  split-demo:    A meeting dropped into the middle of a long block
  cascade-demo:  An early slice pushing the morning later (preserve-duration)

HOW SCENARIOS WORK:
  1. Delete every slice of the target day
  2. Save the scenario's work items
  3. Propose each step in order under its policy

USAGE VIA API:
  POST /api/scenarios/load
  {"scenario_id": "cascade-demo", "date": "2026-03-10"}

NOTE:
  Loading clears the target day, including a running slice that started
  in it. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - timeline/resolver.go: What the demos exercise
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/timeline-engine/timeline"
)

// ScenarioDTO describes a loadable scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario and the day it is loaded into.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
	Date       string `json:"date,omitempty"` // YYYY-MM-DD, default today
}

// scenarioStep is one proposed slice, with times as offsets from midnight.
type scenarioStep struct {
	item     timeline.WorkItemID
	from, to time.Duration
	note     string
	policy   timeline.SplitPolicy
}

type scenario struct {
	ScenarioDTO
	items []timeline.WorkItem
	steps []scenarioStep
}

func clock(hour, min int) time.Duration {
	return time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var demoItems = []timeline.WorkItem{
	{ID: "PROJ-1", Key: "PROJ-1", Summary: "Auth service"},
	{ID: "PROJ-2", Key: "PROJ-2", Summary: "Code review"},
	{ID: "PROJ-3", Key: "PROJ-3", Summary: "Release notes"},
	{ID: "MEET", Key: "MEET", Summary: "Meetings"},
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "workday",
			Name:        "Workday",
			Description: "Focus blocks, a standup and an afternoon of reviews",
		},
		items: demoItems,
		steps: []scenarioStep{
			{item: "MEET", from: clock(9, 0), to: clock(9, 15), note: "standup", policy: timeline.PreserveEnd},
			{item: "PROJ-1", from: clock(9, 15), to: clock(12, 0), policy: timeline.PreserveEnd},
			{item: "PROJ-2", from: clock(13, 0), to: clock(15, 0), policy: timeline.PreserveEnd},
			{item: "PROJ-1", from: clock(15, 0), to: clock(17, 30), policy: timeline.PreserveEnd},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "split-demo",
			Name:        "Middle Split",
			Description: "A meeting inserted inside a long block splits it in two",
		},
		items: demoItems,
		steps: []scenarioStep{
			{item: "PROJ-1", from: clock(9, 0), to: clock(12, 0), policy: timeline.PreserveEnd},
			{item: "MEET", from: clock(10, 0), to: clock(10, 30), note: "design sync", policy: timeline.PreserveEnd},
		},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "cascade-demo",
			Name:        "Cascading Shift",
			Description: "An early meeting pushes the whole morning later, keeping every duration",
		},
		items: demoItems,
		steps: []scenarioStep{
			{item: "PROJ-1", from: clock(9, 0), to: clock(10, 0), policy: timeline.PreserveEnd},
			{item: "PROJ-2", from: clock(10, 0), to: clock(11, 0), policy: timeline.PreserveEnd},
			{item: "PROJ-3", from: clock(11, 0), to: clock(11, 30), policy: timeline.PreserveEnd},
			{item: "MEET", from: clock(8, 30), to: clock(9, 30), note: "incident review", policy: timeline.PreserveDuration},
		},
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario replaces a day with a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var sc *scenario
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			sc = &scenarios[i]
		}
	}
	if sc == nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	day := timeline.DayOf(h.Service.Config().Now(), h.location())
	if req.Date != "" {
		var err error
		if day, err = timeline.ParseDay(req.Date, h.location()); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
	}

	slices, err := h.loadScenario(r.Context(), sc, day)
	if err != nil {
		writeServiceError(w, fmt.Errorf("failed to load scenario %s: %w", sc.ID, err))
		return
	}
	writeJSON(w, http.StatusOK, toDayDTO(day, slices))
}

func (h *Handler) loadScenario(ctx context.Context, sc *scenario, day timeline.Day) ([]timeline.Slice, error) {
	// Clear the day
	existing, err := h.Service.Day(ctx, day.Start)
	if err != nil {
		return nil, err
	}
	for _, s := range existing {
		if err := h.Service.DeleteSlice(ctx, s.ID); err != nil {
			return nil, err
		}
	}

	for _, item := range sc.items {
		if err := h.WorkItems.SaveWorkItem(ctx, item); err != nil {
			return nil, err
		}
	}

	var slices []timeline.Slice
	for _, step := range sc.steps {
		slices, err = h.Service.ProposeSlice(ctx, timeline.Slice{
			WorkItemID: step.item,
			Start:      day.Start.Add(step.from),
			End:        timeline.At(day.Start.Add(step.to)),
			Note:       step.note,
		}, step.policy)
		if err != nil {
			return nil, err
		}
	}
	return slices, nil
}
