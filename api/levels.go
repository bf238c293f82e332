package api

import (
	"net/http"
)

// GetLevels returns the active threshold table and whether an admin
// persisted it. Without a persisted table the generated curve applies.
// GET /api/levels
func (h *Handler) GetLevels(w http.ResponseWriter, r *http.Request) {
	table, persisted, err := h.Levels.Table(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LevelsResponse{Persisted: persisted, Thresholds: toThresholdDTOs(table)})
}

// SaveLevels replaces the persisted table. Cached student levels catch up on
// each student's next recompute.
// PUT /api/levels
func (h *Handler) SaveLevels(w http.ResponseWriter, r *http.Request) {
	var req LevelsRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if err := h.Levels.Save(r.Context(), req.table()); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.GetLevels(w, r)
}
