package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/sprint"
)

// AssignSprint creates a Skill Sprint for a student.
// POST /api/students/{id}/sprints
func (h *Handler) AssignSprint(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	var req CreateSprintRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	a, err := h.Sprints.Assign(r.Context(), sprint.Assignment{
		StudentID:     id,
		Title:         req.Title,
		DueAt:         req.DueAt,
		PenaltyPerDay: req.PenaltyPerDay,
		RewardPoints:  req.RewardPoints,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSprintDTO(a, h.Now()))
}

// ListStudentSprints returns a student's sprints ordered by due date.
// GET /api/students/{id}/sprints
func (h *Handler) ListStudentSprints(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	list, err := h.Sprints.ForStudent(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	now := h.Now()
	out := make([]SprintDTO, 0, len(list))
	for _, a := range list {
		out = append(out, toSprintDTO(a, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSprint returns the sprint card with its current decay state.
// GET /api/sprints/{id}
func (h *Handler) GetSprint(w http.ResponseWriter, r *http.Request) {
	a, err := h.Sprints.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSprintDTO(a, h.Now()))
}

// CompleteSprint closes the sprint and pays the current prize. A second
// completion is a 409.
// POST /api/sprints/{id}/complete
func (h *Handler) CompleteSprint(w http.ResponseWriter, r *http.Request) {
	c, err := h.Sprints.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, points.ErrStaleTotals) {
		h.writeDomainError(w, r, err)
		return
	}
	resp := CompleteSprintResponse{Sprint: toSprintDTO(c.Assignment, h.Now()), Paid: c.Paid}
	if c.Totals != nil {
		t := toTotalsDTO(*c.Totals)
		resp.Totals = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetChargedDays records how many overdue days have been charged. Accrual of
// the penalty entries themselves runs outside this service.
// PUT /api/sprints/{id}/charged-days
func (h *Handler) SetChargedDays(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req ChargeDaysRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.ChargeDays(r.Context(), id, req.Days); err != nil {
		h.writeDomainError(w, r, points.Unavailable("charge days", err))
		return
	}
	h.GetSprint(w, r)
}
