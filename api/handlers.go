/*
handlers.go - HTTP API handlers for the points engine

PURPOSE:
  Exposes the ledger, claim guard, badge sweep, leaderboards, levels and
  Skill Sprints via REST. Handles HTTP request/response, JSON
  serialization, and delegates to the domain packages.

ENDPOINTS:
  Students (students.go):
    GET    /api/students                         List roster with totals
    PUT    /api/students/{id}                    Create or update a student
    GET    /api/students/{id}                    Student with totals
    GET    /api/students/{id}/totals             Totals and level progress
    GET    /api/students/{id}/ledger             Entries with running totals
    POST   /api/students/{id}/recompute          Rebuild totals from the ledger
    POST   /api/students/{id}/redeem             Spend points
    GET    /api/students/{id}/unlocks/check      Level and cost gate
    GET    /api/students/{id}/notifications      Newest first

  Ledger and claims (students.go, claims.go):
    POST   /api/ledger                           Append a multi-student batch
    POST   /api/students/{id}/claims             Daily bonus claim
    GET    /api/claims/unpaid                    Claims missing their entry

  Badges (badges.go):
    POST   /api/students/{id}/activity           Bump an activity counter
    GET    /api/students/{id}/badges             Awards held
    GET    /api/badges/rules                     List rules
    PUT    /api/badges/rules/{id}                Create or replace a rule
    POST   /api/badges/sweep                     Run a sweep

  Leaderboards (leaderboards.go):
    GET    /api/leaderboards/{metric}            Ranked board
    PUT    /api/stats/{id}                       Define a performance stat
    POST   /api/stats/{id}/values                Record a stat value
    POST   /api/skills/{id}/results              Record a skill attempt

  Levels and sprints (levels.go, sprints.go):
    GET    /api/levels                           Active threshold table
    PUT    /api/levels                           Persist a threshold table
    GET    /api/students/{id}/sprints            Student's sprints
    POST   /api/students/{id}/sprints            Assign a sprint
    GET    /api/sprints/{id}                     Sprint card
    POST   /api/sprints/{id}/complete            Complete and pay
    PUT    /api/sprints/{id}/charged-days        Set charged overdue days

ERROR HANDLING:
  Domain errors map to status codes in one place (writeDomainError):
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate idempotency key, already completed
  - 422: Insufficient balance
  - 500: Inconsistent state (code "inconsistent_state")
  - 503: Store unavailable, stale totals (with Retry-After)

SECURITY NOTE:
  No authentication or authorization. Role checks belong to the caller.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/config"
	"github.com/warp/points-engine/factory"
	"github.com/warp/points-engine/leaderboard"
	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/sprint"
	"github.com/warp/points-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Ledger   *points.Ledger
	Levels   *levels.Resolver
	Guard    *claims.Guard
	Awarder  *claims.Awarder
	Redeemer *claims.Redeemer
	Badges   *badges.Engine
	Board    *leaderboard.Board
	Sprints  *sprint.Service
	Factory  *factory.BadgeFactory
	Calendar points.Calendar

	log      *log.Helper
	validate *validator.Validate

	Now func() time.Time
}

// NewHandler wires the domain services over one store. cache may be nil.
func NewHandler(store *sqlite.Store, cfg config.Config, cache leaderboard.Cache, logger log.Logger) (*Handler, error) {
	calendar, err := points.NewCalendar(cfg.Calendar.Timezone)
	if err != nil {
		return nil, errors.Wrap(err, "calendar")
	}
	categories := cfg.CategoryConfig()

	resolver := levels.NewResolver(store, cfg.Curve(), logger)
	ledger := points.NewLedger(store, categories, resolver, logger)
	guard := claims.NewGuard(store, calendar, logger)

	board := leaderboard.NewBoard(store, cache, categories, calendar, logger)
	ledger.OnRecompute(board.Invalidate)

	h := &Handler{
		Store:    store,
		Ledger:   ledger,
		Levels:   resolver,
		Guard:    guard,
		Awarder:  claims.NewAwarder(guard, ledger, cfg.Amounts(), logger),
		Redeemer: claims.NewRedeemer(ledger),
		Badges:   badges.NewEngine(store, ledger, store, logger),
		Board:    board,
		Sprints:  sprint.NewService(store, ledger, logger),
		Factory:  factory.NewBadgeFactory(),
		Calendar: calendar,
		log:      points.LogHelper(logger, "api"),
		validate: newValidator(),
		Now:      time.Now,
	}
	return h, nil
}

// SetClock pins every time source, for tests and replays.
func (h *Handler) SetClock(now func() time.Time) {
	h.Now = now
	h.Ledger.Now = now
	h.Guard.Now = now
	h.Badges.Now = now
	h.Board.Now = now
	h.Sprints.Now = now
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// REQUEST HELPERS
// =============================================================================

// decodeAndValidate reads a JSON body into dst and runs struct validation.
func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return points.Invalid("body", "malformed JSON: "+err.Error())
	}
	return h.validate.Struct(dst)
}

func studentID(r *http.Request) points.StudentID {
	return points.StudentID(chi.URLParam(r, "id"))
}

// requireStudent returns points.ErrNotFound for ids missing from the roster.
func (h *Handler) requireStudent(ctx context.Context, id points.StudentID) (points.Student, error) {
	st, err := h.Store.Student(ctx, id)
	if err != nil {
		return points.Student{}, err
	}
	return st, nil
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

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

// statusFor maps a domain error to an HTTP status and a stable code.
// Inconsistent state is checked first since it can wrap a store failure.
func statusFor(err error) (int, string) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs), errors.Is(err, points.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, points.ErrInconsistentState):
		return http.StatusInternalServerError, "inconsistent_state"
	case errors.Is(err, points.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, points.ErrDuplicateIdempotencyKey):
		return http.StatusConflict, "duplicate"
	case errors.Is(err, points.ErrAlreadyCompleted):
		return http.StatusConflict, "already_completed"
	case errors.Is(err, points.ErrRejectedClaim):
		return http.StatusConflict, "already_claimed"
	case errors.Is(err, points.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	case errors.Is(err, points.ErrStaleTotals):
		return http.StatusServiceUnavailable, "stale_totals"
	case errors.Is(err, points.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// writeDomainError renders err with its mapped status. Field-level
// validation failures carry a field map in details.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := ErrorResponse{Error: http.StatusText(status), Code: code, Details: err.Error()}

	var verrs validator.ValidationErrors
	var verr *points.ValidationError
	switch {
	case errors.As(err, &verrs):
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fe.Tag()
		}
		resp.Details = fields
	case errors.As(err, &verr):
		resp.Details = map[string]string{verr.Field: verr.Reason}
	}

	switch {
	case status >= http.StatusInternalServerError:
		h.log.WithContext(r.Context()).Errorw("msg", "request failed",
			"method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	case points.IsClientError(err):
		h.log.WithContext(r.Context()).Debugw("msg", "request rejected",
			"method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	}
	if points.IsRetryable(err) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, resp)
}
