package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/leaderboard"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// BOARDS
// =============================================================================

// GetLeaderboard ranks one metric. Ties share a rank and a tie at the cutoff
// is included in full, so rows may exceed limit.
// GET /api/leaderboards/{metric}?limit=10&skill_id=&stat_id=&date=
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	m := leaderboard.Metric{
		Kind:    leaderboard.MetricKind(chi.URLParam(r, "metric")),
		SkillID: q.Get("skill_id"),
		StatID:  q.Get("stat_id"),
		Date:    q.Get("date"),
	}

	res, err := h.Board.Read(r.Context(), m, limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	rows := res.Rows
	if rows == nil {
		rows = []leaderboard.RankedRow{}
	}
	writeJSON(w, http.StatusOK, LeaderboardResponse{
		Metric:         string(res.Metric.Kind),
		HigherIsBetter: res.HigherIsBetter,
		Limit:          limit,
		Rows:           rows,
	})
}

// =============================================================================
// PERFORMANCE STATS
// =============================================================================

// SaveStat defines or updates a performance stat.
// PUT /api/stats/{id}
func (h *Handler) SaveStat(w http.ResponseWriter, r *http.Request) {
	var req StatRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	st, err := req.toStat(chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.SaveStat(r.Context(), st); err != nil {
		h.writeDomainError(w, r, points.Unavailable("save stat", err))
		return
	}
	h.Board.Invalidate(r.Context(), points.Totals{})
	writeJSON(w, http.StatusOK, req)
}

// RecordStatValue sets a student's current value for a stat.
// POST /api/stats/{id}/values
func (h *Handler) RecordStatValue(w http.ResponseWriter, r *http.Request) {
	statID := chi.URLParam(r, "id")
	var req StatValueRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		h.writeDomainError(w, r, points.Invalid("value", "must be a number"))
		return
	}
	if _, err := h.Store.Stat(r.Context(), statID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	id := points.StudentID(req.StudentID)
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.RecordStatValue(r.Context(), statID, id, value, h.Now().UTC()); err != nil {
		h.writeDomainError(w, r, points.Unavailable("record stat value", err))
		return
	}
	h.Board.Invalidate(r.Context(), points.Totals{StudentID: id})
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SKILL RESULTS
// =============================================================================

// RecordSkillResult stores one attempt at a skill. The date defaults to the
// current civil date.
// POST /api/skills/{id}/results
func (h *Handler) RecordSkillResult(w http.ResponseWriter, r *http.Request) {
	var req SkillResultRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	now := h.Now()
	res := leaderboard.SkillResult{
		ID:         uuid.NewString(),
		StudentID:  points.StudentID(req.StudentID),
		SkillID:    chi.URLParam(r, "id"),
		DateKey:    req.Date,
		Success:    req.Success,
		RecordedAt: now.UTC(),
	}
	if res.DateKey == "" {
		res.DateKey = h.Calendar.DateKey(now)
	}
	if err := res.Validate(); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.requireStudent(r.Context(), res.StudentID); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Store.RecordSkillResult(r.Context(), res); err != nil {
		h.writeDomainError(w, r, points.Unavailable("record skill result", err))
		return
	}
	h.Board.Invalidate(r.Context(), points.Totals{StudentID: res.StudentID})
	writeJSON(w, http.StatusCreated, map[string]string{"id": res.ID, "date": res.DateKey})
}
