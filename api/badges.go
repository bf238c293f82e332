package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/factory"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// ACTIVITY
// =============================================================================

// AddActivity bumps one of the counters badge criteria read.
// POST /api/students/{id}/activity
func (h *Handler) AddActivity(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	var req ActivityRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	kind := badges.ActivityKind(req.Kind)
	if !badges.ValidActivity(kind) {
		h.writeDomainError(w, r, points.Invalid("kind", "unknown activity "+req.Kind))
		return
	}
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.AddActivity(r.Context(), id, kind, req.Delta); err != nil {
		h.writeDomainError(w, r, points.Unavailable("add activity", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAwards returns the badges a student holds.
// GET /api/students/{id}/badges
func (h *Handler) ListAwards(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	awards, err := h.Store.Awards(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, points.Unavailable("list awards", err))
		return
	}
	out := make([]AwardDTO, 0, len(awards))
	for _, a := range awards {
		out = append(out, toAwardDTO(a))
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// RULES
// =============================================================================

// ListRules returns every badge rule in its JSON form.
// GET /api/badges/rules
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Store.Rules(r.Context())
	if err != nil {
		h.writeDomainError(w, r, points.Unavailable("list rules", err))
		return
	}
	out := make([]factory.RuleJSON, 0, len(rules))
	for _, rule := range rules {
		if rule.LoadErr != nil {
			h.log.WithContext(r.Context()).Warnf("skipping unreadable rule: %v", rule.LoadErr)
			continue
		}
		out = append(out, h.Factory.ToJSON(rule))
	}
	writeJSON(w, http.StatusOK, out)
}

// SaveRule creates or replaces a rule. The id in the path wins over the body.
// PUT /api/badges/rules/{id}
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	var rj factory.RuleJSON
	if err := h.decodeAndValidate(r, &rj); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	rj.ID = chi.URLParam(r, "id")

	rule, err := h.Factory.FromJSON(rj)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.SaveRule(r.Context(), rule); err != nil {
		h.writeDomainError(w, r, points.Unavailable("save rule", err))
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.ToJSON(rule))
}

// =============================================================================
// SWEEP
// =============================================================================

// Sweep evaluates one rule or all rules against one student or the roster.
// Rule failures are reported per rule with the stage that failed.
// POST /api/badges/sweep
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if r.ContentLength != 0 {
		if err := h.decodeAndValidate(r, &req); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}
	if req.StudentID != "" {
		if _, err := h.requireStudent(r.Context(), points.StudentID(req.StudentID)); err != nil {
			h.writeDomainError(w, r, err)
			return
		}
	}

	report, err := h.Badges.Sweep(r.Context(), req.RuleID, points.StudentID(req.StudentID))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSweepResponse(report))
}
