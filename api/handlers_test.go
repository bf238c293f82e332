/*
handlers_test.go - HTTP tests for API handlers

Tests for:
- Daily claims through HTTP (one grant per civil day)
- Ledger append and running totals
- Error status mapping (400, 404, 409, 422, 500, 503)
- Leaderboard tie overflow
- Badge rules and sweeps
- Sprint completion guard
- Level table management
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/leaderboard"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/store/sqlite"
)

// 10:00 in Los Angeles on a Monday.
var testNow = time.Date(2025, 6, 2, 17, 0, 0, 0, time.UTC)

type testServer struct {
	h      *Handler
	router *chi.Mux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newCachedTestServer(t, nil)
}

func newCachedTestServer(t *testing.T, cache leaderboard.Cache) *testServer {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h, err := NewHandler(store, config.Default(), cache, log.NewStdLogger(io.Discard))
	require.NoError(t, err)
	h.SetClock(func() time.Time { return testNow })

	return &testServer{h: h, router: NewRouter(h, []string{"*"})}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		buf = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) addStudent(t *testing.T, id, name string) {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/api/students/"+id, SaveStudentRequest{Name: name})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (s *testServer) award(t *testing.T, id string, pts int64, cat points.Category) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/ledger", AppendRequest{Entries: []EntryRequest{
		{StudentID: id, Points: pts, Category: string(cat)},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// genCache is an in-process leaderboard.Cache keyed by generation.
type genCache struct {
	m   map[string][]leaderboard.RankedRow
	gen int64
}

func (c *genCache) Get(_ context.Context, key string) ([]leaderboard.RankedRow, int64, bool, error) {
	rows, ok := c.m[fmt.Sprintf("%d:%s", c.gen, key)]
	return rows, c.gen, ok, nil
}

func (c *genCache) Set(_ context.Context, key string, gen int64, rows []leaderboard.RankedRow) error {
	c.m[fmt.Sprintf("%d:%s", gen, key)] = rows
	return nil
}

func (c *genCache) Invalidate(context.Context) error {
	c.gen++
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// =============================================================================
// CLAIMS
// =============================================================================

func TestClaim_TwiceSameDayPaysOnce(t *testing.T) {
	// GIVEN: A student on the roster
	// WHEN: The avatar bonus is claimed twice on the same civil day
	// THEN: The first is granted and paid, the second is a non-error rejection

	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")

	first := s.do(t, http.MethodPost, "/api/students/ana/claims", ClaimRequest{Category: "avatar"})
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	granted := decode[ClaimResponse](t, first)
	assert.True(t, granted.Granted)
	assert.Equal(t, "2025-06-02", granted.DateKey)
	require.NotNil(t, granted.Totals)
	assert.Equal(t, int64(5), granted.Totals.Balance)

	second := s.do(t, http.MethodPost, "/api/students/ana/claims", ClaimRequest{Category: "avatar"})
	require.Equal(t, http.StatusOK, second.Code)
	rejected := decode[ClaimResponse](t, second)
	assert.False(t, rejected.Granted)
	assert.Equal(t, "already_claimed", rejected.Reason)

	totals := decode[TotalsResponse](t, s.do(t, http.MethodGet, "/api/students/ana/totals", nil))
	assert.Equal(t, int64(5), totals.Totals.Balance)
	assert.Equal(t, int64(0), totals.Totals.Lifetime, "bonus categories are non-lifetime")

	unpaid := decode[[]ClaimDTO](t, s.do(t, http.MethodGet, "/api/claims/unpaid", nil))
	assert.Empty(t, unpaid)
}

func TestClaim_UnknownCategoryIsValidation(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")

	rec := s.do(t, http.MethodPost, "/api/students/ana/claims", ClaimRequest{Category: "homework"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestLedger_RunningTotals(t *testing.T) {
	// GIVEN: Two awards and a redeem
	// WHEN: Reading the ledger
	// THEN: Each row carries the balance and lifetime after it; redeems skip lifetime

	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")

	rec := s.do(t, http.MethodPost, "/api/ledger", AppendRequest{Entries: []EntryRequest{
		{StudentID: "ana", Points: 10, Category: string(points.CategoryCoachAward)},
		{StudentID: "ana", Points: 5, Category: string(points.CategoryChallenge)},
	}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appended := decode[AppendResponse](t, rec)
	require.Len(t, appended.Totals, 1)
	assert.Equal(t, int64(15), appended.Totals[0].Balance)

	rec = s.do(t, http.MethodPost, "/api/students/ana/redeem", RedeemRequest{Points: 4, Note: "sticker"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := decode[[]EntryDTO](t, s.do(t, http.MethodGet, "/api/students/ana/ledger", nil))
	require.Len(t, rows, 3)
	assert.Equal(t, []int64{10, 15, 11}, []int64{rows[0].Balance, rows[1].Balance, rows[2].Balance})
	assert.Equal(t, []int64{10, 15, 15}, []int64{rows[0].Lifetime, rows[1].Lifetime, rows[2].Lifetime})
	assert.Equal(t, points.SourceManual, rows[0].SourceType)
}

func TestLedger_DuplicateIdempotencyKeyConflicts(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")
	body := AppendRequest{Entries: []EntryRequest{
		{StudentID: "ana", Points: 10, Category: "coach_award", IdempotencyKey: "import:1"},
	}}

	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/ledger", body).Code)
	rec := s.do(t, http.MethodPost, "/api/ledger", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate", decode[ErrorResponse](t, rec).Code)
}

func TestErrors_Statuses(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"empty batch", http.MethodPost, "/api/ledger", AppendRequest{}, http.StatusBadRequest, "validation"},
		{"zero points", http.MethodPost, "/api/ledger", AppendRequest{Entries: []EntryRequest{{StudentID: "ana", Category: "coach_award"}}}, http.StatusBadRequest, "validation"},
		{"unknown student", http.MethodGet, "/api/students/ghost", nil, http.StatusNotFound, "not_found"},
		{"unknown student in batch", http.MethodPost, "/api/ledger", AppendRequest{Entries: []EntryRequest{{StudentID: "ghost", Points: 1, Category: "coach_award"}}}, http.StatusNotFound, "not_found"},
		{"overspend", http.MethodPost, "/api/students/ana/redeem", RedeemRequest{Points: 50}, http.StatusUnprocessableEntity, "insufficient_balance"},
		{"negative redeem", http.MethodPost, "/api/students/ana/redeem", RedeemRequest{Points: -5}, http.StatusBadRequest, "validation"},
		{"unknown metric", http.MethodGet, "/api/leaderboards/fastest", nil, http.StatusBadRequest, "validation"},
		{"unknown sprint", http.MethodGet, "/api/sprints/nope", nil, http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestErrors_ValidationDetailsNameFields(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/students/ana", SaveStudentRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	details, ok := resp.Details.(map[string]any)
	require.True(t, ok, "details should be a field map, got %T", resp.Details)
	assert.Equal(t, "required", details["name"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", points.Invalid("points", "must not be zero"), http.StatusBadRequest, "validation"},
		{"not found", points.ErrNotFound, http.StatusNotFound, "not_found"},
		{"duplicate", points.ErrDuplicateIdempotencyKey, http.StatusConflict, "duplicate"},
		{"completed", points.ErrAlreadyCompleted, http.StatusConflict, "already_completed"},
		{"insufficient", &points.InsufficientBalanceError{Available: 1, Requested: 2}, http.StatusUnprocessableEntity, "insufficient_balance"},
		{"stale", &points.StaleTotalsError{StudentID: "ana", Err: fmt.Errorf("locked")}, http.StatusServiceUnavailable, "stale_totals"},
		{"unavailable", points.Unavailable("append", fmt.Errorf("disk full")), http.StatusServiceUnavailable, "store_unavailable"},
		{
			"inconsistent wins over unavailable",
			&points.InconsistentStateError{Kind: "claim_unpaid", StudentID: "ana", SourceID: "c1", Err: points.Unavailable("append", fmt.Errorf("disk full"))},
			http.StatusInternalServerError, "inconsistent_state",
		},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestWriteDomainError_RetryAfterOnlyWhenRetryable(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/students", nil)

	tests := []struct {
		name       string
		err        error
		retryAfter string
	}{
		{"store unavailable", points.Unavailable("append", fmt.Errorf("disk full")), "1"},
		{"stale totals", &points.StaleTotalsError{StudentID: "ana", Err: fmt.Errorf("locked")}, "1"},
		{"client error", points.ErrDuplicateIdempotencyKey, ""},
		{"inconsistent", &points.InconsistentStateError{Kind: "claim_unpaid", StudentID: "ana", Err: points.Unavailable("append", fmt.Errorf("disk full"))}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.h.writeDomainError(rec, req, tt.err)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
		})
	}
}

// =============================================================================
// UNLOCKS
// =============================================================================

func TestCheckUnlock(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")
	s.award(t, "ana", 60, points.CategoryCoachAward)

	tests := []struct {
		query   string
		allowed bool
		reason  string
	}{
		{"min_level=1&cost=60", true, ""},
		{"min_level=1&cost=61", false, "insufficient_points"},
		{"min_level=5&cost=0", false, "level_too_low"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := s.do(t, http.MethodGet, "/api/students/ana/unlocks/check?"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			res := decode[UnlockCheckResponse](t, rec)
			assert.Equal(t, tt.allowed, res.Allowed)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

// =============================================================================
// LEADERBOARDS
// =============================================================================

func TestLeaderboard_TieAtCutoffOverflows(t *testing.T) {
	// GIVEN: Two students tied for first and one behind
	// WHEN: Requesting the top 1
	// THEN: Both tied students come back at rank 1

	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")
	s.addStudent(t, "ben", "Ben")
	s.addStudent(t, "cy", "Cy")
	s.award(t, "ana", 10, points.CategoryCoachAward)
	s.award(t, "ben", 10, points.CategoryChallenge)
	s.award(t, "cy", 5, points.CategoryCoachAward)

	rec := s.do(t, http.MethodGet, "/api/leaderboards/total_points?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	board := decode[LeaderboardResponse](t, rec)
	assert.True(t, board.HigherIsBetter)
	require.Len(t, board.Rows, 2)
	for _, row := range board.Rows {
		assert.Equal(t, 1, row.Rank)
		assert.Equal(t, "10", row.Value.String())
	}
	assert.Equal(t, points.StudentID("ana"), board.Rows[0].StudentID)
}

func TestLeaderboard_NewStudentShowsOnCachedBoard(t *testing.T) {
	// GIVEN: A cached balance board holding one student
	// WHEN: A second student joins the roster
	// THEN: The next read includes them at 0

	s := newCachedTestServer(t, &genCache{m: make(map[string][]leaderboard.RankedRow)})
	s.addStudent(t, "ana", "Ana")
	s.award(t, "ana", 10, points.CategoryCoachAward)

	rec := s.do(t, http.MethodGet, "/api/leaderboards/total_points", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, decode[LeaderboardResponse](t, rec).Rows, 1)

	s.addStudent(t, "ben", "Ben")

	rec = s.do(t, http.MethodGet, "/api/leaderboards/total_points", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	board := decode[LeaderboardResponse](t, rec)
	require.Len(t, board.Rows, 2)
	assert.Equal(t, points.StudentID("ben"), board.Rows[1].StudentID)
	assert.Equal(t, "0", board.Rows[1].Value.String())
}

func TestLeaderboard_PerformanceStatLowerIsBetter(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")
	s.addStudent(t, "ben", "Ben")

	rec := s.do(t, http.MethodPut, "/api/stats/mile", StatRequest{Name: "Mile time", Unit: "s"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for id, v := range map[string]string{"ana": "412.5", "ben": "398"} {
		rec := s.do(t, http.MethodPost, "/api/stats/mile/values", StatValueRequest{StudentID: id, Value: v})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	}

	board := decode[LeaderboardResponse](t, s.do(t, http.MethodGet, "/api/leaderboards/performance_stat?stat_id=mile", nil))
	assert.False(t, board.HigherIsBetter)
	require.Len(t, board.Rows, 2)
	assert.Equal(t, points.StudentID("ben"), board.Rows[0].StudentID)
}

func TestLeaderboard_SkillDailyCountsTodaysSuccesses(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")

	for _, ok := range []bool{true, true, false} {
		rec := s.do(t, http.MethodPost, "/api/skills/kick/results", SkillResultRequest{StudentID: "ana", Success: ok})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	board := decode[LeaderboardResponse](t, s.do(t, http.MethodGet, "/api/leaderboards/skill_daily?skill_id=kick", nil))
	require.Len(t, board.Rows, 1)
	assert.Equal(t, "2", board.Rows[0].Value.String())
}

// =============================================================================
// BADGES
// =============================================================================

func TestBadges_RuleAndSweep(t *testing.T) {
	// GIVEN: A lifetime-points rule and a student over the threshold
	// WHEN: Sweeping twice
	// THEN: The badge and its points are awarded exactly once

	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")
	s.addStudent(t, "ben", "Ben")
	s.award(t, "ana", 100, points.CategoryCoachAward)

	rule := map[string]any{
		"name":         "Century",
		"points_award": 20,
		"criteria":     map[string]any{"type": "lifetime_points", "min": 100},
	}
	rec := s.do(t, http.MethodPut, "/api/badges/rules/century", rule)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	first := decode[SweepResponse](t, s.do(t, http.MethodPost, "/api/badges/sweep", SweepRequest{}))
	assert.Equal(t, 1, first.Awarded)
	require.Len(t, first.Rules, 1)
	assert.Empty(t, first.Rules[0].Error)

	second := decode[SweepResponse](t, s.do(t, http.MethodPost, "/api/badges/sweep", SweepRequest{RuleID: "century"}))
	assert.Equal(t, 0, second.Awarded)

	awards := decode[[]AwardDTO](t, s.do(t, http.MethodGet, "/api/students/ana/badges", nil))
	require.Len(t, awards, 1)
	assert.Equal(t, "century", awards[0].BadgeID)

	totals := decode[TotalsResponse](t, s.do(t, http.MethodGet, "/api/students/ana/totals", nil))
	assert.Equal(t, int64(120), totals.Totals.Balance)

	notes := decode[[]NotificationDTO](t, s.do(t, http.MethodGet, "/api/students/ana/notifications", nil))
	assert.Len(t, notes, 1)
}

func TestBadges_RejectsUnknownCriteria(t *testing.T) {
	s := newTestServer(t)
	rule := map[string]any{"name": "Mystery", "criteria": map[string]any{"type": "vibes"}}

	rec := s.do(t, http.MethodPut, "/api/badges/rules/mystery", rule)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivity_FeedsActivityCriteria(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")

	rec := s.do(t, http.MethodPost, "/api/students/ana/activity", ActivityRequest{Kind: "battle_wins", Delta: 3})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	rec = s.do(t, http.MethodPost, "/api/students/ana/activity", ActivityRequest{Kind: "naps", Delta: 1})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rule := map[string]any{"name": "Champion", "criteria": map[string]any{"type": "battle_wins", "min": 3}}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/badges/rules/champion", rule).Code)

	res := decode[SweepResponse](t, s.do(t, http.MethodPost, "/api/badges/sweep", SweepRequest{StudentID: "ana"}))
	assert.Equal(t, 1, res.Awarded)
}

// =============================================================================
// SPRINTS
// =============================================================================

func TestSprint_CompleteTwiceConflicts(t *testing.T) {
	// GIVEN: A sprint assigned now and due in ten days
	// WHEN: Completing it immediately, then again
	// THEN: The full prize is paid once and the repeat is a 409

	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")

	rec := s.do(t, http.MethodPost, "/api/students/ana/sprints", CreateSprintRequest{
		Title:         "Butterfly kick",
		DueAt:         testNow.Add(10 * 24 * time.Hour),
		PenaltyPerDay: 2,
		RewardPoints:  100,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sp := decode[SprintDTO](t, rec)
	assert.Equal(t, int64(100), sp.PrizeNow)
	assert.Equal(t, "10", sp.PrizeDropPerDay.String())

	rec = s.do(t, http.MethodPost, "/api/sprints/"+sp.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[CompleteSprintResponse](t, rec)
	assert.Equal(t, int64(100), done.Paid)
	require.NotNil(t, done.Totals)
	assert.Equal(t, int64(100), done.Totals.Balance)

	rec = s.do(t, http.MethodPost, "/api/sprints/"+sp.ID+"/complete", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSprint_ChargedDaysShowLostPoints(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")
	sp := decode[SprintDTO](t, s.do(t, http.MethodPost, "/api/students/ana/sprints", CreateSprintRequest{
		Title: "Split", DueAt: testNow.Add(48 * time.Hour), PenaltyPerDay: 3, RewardPoints: 20,
	}))

	rec := s.do(t, http.MethodPut, "/api/sprints/"+sp.ID+"/charged-days", ChargeDaysRequest{Days: 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(12), decode[SprintDTO](t, rec).LostPoints)

	list := decode[[]SprintDTO](t, s.do(t, http.MethodGet, "/api/students/ana/sprints", nil))
	require.Len(t, list, 1)
	assert.Equal(t, 4, list[0].ChargedDays)

	rec = s.do(t, http.MethodPut, "/api/sprints/"+sp.ID+"/charged-days", ChargeDaysRequest{Days: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "validation", decode[ErrorResponse](t, rec).Code)
}

// =============================================================================
// LEVELS
// =============================================================================

func TestLevels_GeneratedThenPersisted(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/levels", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	generated := decode[LevelsResponse](t, rec)
	assert.False(t, generated.Persisted)
	require.Len(t, generated.Thresholds, 99)
	assert.Equal(t, ThresholdDTO{Level: 1, MinLifetime: 0}, generated.Thresholds[0])

	bad := LevelsRequest{Thresholds: []ThresholdDTO{{Level: 1, MinLifetime: 10}}}
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/levels", bad).Code)

	good := LevelsRequest{Thresholds: []ThresholdDTO{{Level: 1, MinLifetime: 0}, {Level: 2, MinLifetime: 25}}}
	rec = s.do(t, http.MethodPut, "/api/levels", good)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[LevelsResponse](t, rec)
	assert.True(t, saved.Persisted)
	assert.Len(t, saved.Thresholds, 2)

	s.addStudent(t, "ana", "Ana")
	s.award(t, "ana", 30, points.CategoryCoachAward)
	totals := decode[TotalsResponse](t, s.do(t, http.MethodGet, "/api/students/ana/totals", nil))
	assert.Equal(t, 2, totals.Totals.Level)
	assert.True(t, totals.Progress.AtMax)
}

// =============================================================================
// OPERATIONS
// =============================================================================

func TestMetricsAndHealth(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)
	rec := s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decode[ErrorResponse](t, rec).Error)
}

func TestScheduler_RunNowSweeps(t *testing.T) {
	s := newTestServer(t)
	s.addStudent(t, "ana", "Ana")
	s.award(t, "ana", 150, points.CategoryCoachAward)
	rule := map[string]any{"name": "Century", "criteria": map[string]any{"type": "lifetime_points", "min": 100}}
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPut, "/api/badges/rules/century", rule).Code)

	sched := NewBadgeSweepScheduler(s.h.Badges, s.h.Guard, log.NewStdLogger(io.Discard))
	report := sched.RunNow(context.Background())

	assert.Equal(t, 1, report.Awarded())
	assert.Empty(t, report.Failed())
}
