package api

import (
	"net/http"
	"strconv"

	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// ROSTER
// =============================================================================

// ListStudents returns the roster with cached totals.
// GET /api/students
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.Students(r.Context())
	if err != nil {
		h.writeDomainError(w, r, points.Unavailable("list students", err))
		return
	}
	out := make([]StudentDTO, 0, len(students))
	for _, s := range students {
		out = append(out, toStudentDTO(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// SaveStudent creates or renames a student. Roster ownership stays with the
// host application; this keeps a local copy for joins.
// PUT /api/students/{id}
func (h *Handler) SaveStudent(w http.ResponseWriter, r *http.Request) {
	var req SaveStudentRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	st := points.Student{ID: studentID(r), Name: req.Name, IsCompetitionTeam: req.IsCompetitionTeam}
	if err := h.Store.SaveStudent(r.Context(), st); err != nil {
		h.writeDomainError(w, r, points.Unavailable("save student", err))
		return
	}
	h.Board.Invalidate(r.Context(), points.Totals{StudentID: st.ID})
	saved, err := h.Store.Student(r.Context(), st.ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(saved))
}

// GetStudent returns one student.
// GET /api/students/{id}
func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	st, err := h.requireStudent(r.Context(), studentID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDTO(st))
}

// GetTotals returns cached totals and progress toward the next level.
// GET /api/students/{id}/totals
func (h *Handler) GetTotals(w http.ResponseWriter, r *http.Request) {
	st, err := h.requireStudent(r.Context(), studentID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	progress, err := h.Levels.Progress(r.Context(), st.Totals.Lifetime)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	t := st.Totals
	t.StudentID = st.ID
	if t.Level < 1 {
		t.Level = progress.Level
	}
	writeJSON(w, http.StatusOK, TotalsResponse{Totals: toTotalsDTO(t), Progress: toProgressDTO(progress)})
}

// =============================================================================
// LEDGER
// =============================================================================

// GetLedger returns the student's entries oldest first, each with the
// running balance and lifetime total after it.
// GET /api/students/{id}/ledger
func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	entries, err := h.Ledger.Entries(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	cats := h.Ledger.Categories()
	out := make([]EntryDTO, 0, len(entries))
	var balance, lifetime int64
	for _, e := range entries {
		balance += e.Points
		if cats.CountsLifetime(e.Category) {
			lifetime += e.Points
		}
		out = append(out, EntryDTO{
			ID:             string(e.ID),
			Points:         e.Points,
			Category:       string(e.Category),
			Note:           e.Note,
			SourceType:     e.SourceType,
			SourceID:       e.SourceID,
			IdempotencyKey: e.IdempotencyKey,
			CreatedAt:      e.CreatedAt,
			Balance:        balance,
			Lifetime:       lifetime,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// AppendEntries writes a batch atomically, possibly spanning students, and
// returns the recomputed totals.
// POST /api/ledger
func (h *Handler) AppendEntries(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	entries := make([]points.Entry, len(req.Entries))
	seen := make(map[string]bool)
	for i, e := range req.Entries {
		if !seen[e.StudentID] {
			if _, err := h.requireStudent(r.Context(), points.StudentID(e.StudentID)); err != nil {
				h.writeDomainError(w, r, err)
				return
			}
			seen[e.StudentID] = true
		}
		entries[i] = e.toEntry()
		if entries[i].SourceType == "" {
			entries[i].SourceType = points.SourceManual
		}
	}

	totals, err := h.Ledger.Append(r.Context(), entries)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	resp := AppendResponse{Totals: make([]TotalsDTO, 0, len(totals))}
	for _, t := range totals {
		resp.Totals = append(resp.Totals, toTotalsDTO(t))
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Recompute rebuilds a student's totals from the full ledger.
// POST /api/students/{id}/recompute
func (h *Handler) Recompute(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	t, err := h.Ledger.Recompute(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(t))
}

// =============================================================================
// SPENDING
// =============================================================================

// Redeem spends points from the balance. Lifetime is untouched.
// POST /api/students/{id}/redeem
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	var req RedeemRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	t, err := h.Redeemer.Redeem(r.Context(), claims.RedeemRequest{
		StudentID:      id,
		Points:         req.Points,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsDTO(t))
}

// CheckUnlock reports whether the student may unlock an item gated by
// min_level and cost.
// GET /api/students/{id}/unlocks/check?min_level=5&cost=100
func (h *Handler) CheckUnlock(w http.ResponseWriter, r *http.Request) {
	minLevel, err := queryInt(r, "min_level")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	cost, err := queryInt(r, "cost")
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	st, err := h.requireStudent(r.Context(), studentID(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	res := levels.CanUnlock(st.Totals, levels.Unlock{MinLevel: minLevel, Cost: int64(cost)})
	writeJSON(w, http.StatusOK, UnlockCheckResponse{Allowed: res.Allowed, Reason: res.Reason})
}

// ListNotifications returns a student's notifications, newest first.
// GET /api/students/{id}/notifications
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	id := studentID(r)
	if _, err := h.requireStudent(r.Context(), id); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	notes, err := h.Store.Notifications(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, points.Unavailable("list notifications", err))
		return
	}
	out := make([]NotificationDTO, 0, len(notes))
	for _, n := range notes {
		out = append(out, NotificationDTO{ID: n.ID, Message: n.Message, Kind: n.Kind, CreatedAt: n.CreatedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, points.Invalid(name, "must be a non-negative integer")
	}
	return v, nil
}
