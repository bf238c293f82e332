package api

import (
	"net/http"

	"github.com/pkg/errors"

	"github.com/warp/points-engine/points"
)

// Claim grants today's bonus for a category at most once per civil date. A
// repeat is a 200 with granted=false, not an error.
// POST /api/students/{id}/claims
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	var req ClaimRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out, err := h.Awarder.Claim(r.Context(), id, req.Category)
	if err != nil && !errors.Is(err, points.ErrStaleTotals) {
		h.writeDomainError(w, r, err)
		return
	}

	resp := ClaimResponse{
		Granted: out.Granted,
		Reason:  out.Reason,
		ClaimID: out.Claim.ID,
		DateKey: out.Claim.DateKey,
		Points:  out.Points,
	}
	if err == nil && out.Granted {
		t := toTotalsDTO(out.Totals)
		resp.Totals = &t
	}
	if err != nil {
		h.log.WithContext(r.Context()).Warnf("claim %s paid with stale totals: %v", out.Claim.ID, err)
	}

	status := http.StatusOK
	if out.Granted {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// ListUnpaidClaims lists committed claims with no ledger entry. Any row here
// needs manual reconciliation.
// GET /api/claims/unpaid
func (h *Handler) ListUnpaidClaims(w http.ResponseWriter, r *http.Request) {
	unpaid, err := h.Guard.Unpaid(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	out := make([]ClaimDTO, 0, len(unpaid))
	for _, c := range unpaid {
		out = append(out, toClaimDTO(c))
	}
	writeJSON(w, http.StatusOK, out)
}
