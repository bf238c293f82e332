package sprint

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/metrics"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// ASSIGNMENT
// =============================================================================

// Assignment is a SkillSprintAssignment. It is immutable once CompletedAt is
// set.
type Assignment struct {
	ID            string
	StudentID     points.StudentID
	Title         string
	AssignedAt    time.Time
	DueAt         time.Time
	PenaltyPerDay int64
	RewardPoints  int64
	ChargedDays   int
	CompletedAt   *time.Time
	PaidPoints    int64
}

func (a Assignment) Completed() bool { return a.CompletedAt != nil }

func (a Assignment) Validate() error {
	switch {
	case a.StudentID == "":
		return points.Invalid("student_id", "required")
	case a.RewardPoints < 0:
		return points.Invalid("reward_points", "must not be negative")
	case a.PenaltyPerDay < 0:
		return points.Invalid("penalty_points_per_day", "must not be negative")
	case a.DueAt.IsZero():
		return points.Invalid("due_at", "required")
	case !a.DueAt.After(a.AssignedAt):
		return points.Invalid("due_at", "must be after assigned_at")
	}
	return nil
}

// Display is the decay state shown on a sprint card.
type Display struct {
	PrizeNow        int64
	PrizeDropPerDay decimal.Decimal
	PoolDropped     int64
	LostPoints      int64
	Overdue         bool
}

// Display renders the card at now. A completed sprint shows what it paid.
func (a Assignment) Display(now time.Time) Display {
	if a.Completed() {
		now = *a.CompletedAt
	}
	d := Display{
		PrizeNow:        PrizeNow(a.RewardPoints, a.AssignedAt, a.DueAt, now),
		PrizeDropPerDay: PrizeDropPerDay(a.RewardPoints, a.AssignedAt, a.DueAt),
		PoolDropped:     PoolDropped(a.RewardPoints, a.AssignedAt, a.DueAt, now),
		LostPoints:      LostPoints(a.ChargedDays, a.PenaltyPerDay),
		Overdue:         !now.Before(a.DueAt),
	}
	if a.Completed() {
		d.PrizeNow = a.PaidPoints
	}
	return d
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	CreateSprint(ctx context.Context, a Assignment) error
	// Sprint returns points.ErrNotFound for unknown ids.
	Sprint(ctx context.Context, id string) (Assignment, error)
	StudentSprints(ctx context.Context, studentID points.StudentID) ([]Assignment, error)

	// CompleteSprint sets completed_at and paid points only if the sprint is
	// still open, and returns points.ErrAlreadyCompleted otherwise.
	CompleteSprint(ctx context.Context, id string, at time.Time, paid int64) error
}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store  Store
	ledger *points.Ledger
	log    *log.Helper

	Now func() time.Time
}

func NewService(store Store, ledger *points.Ledger, logger log.Logger) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
		log:    points.LogHelper(logger, "sprint"),
		Now:    time.Now,
	}
}

// Assign creates a sprint. AssignedAt defaults to now.
func (s *Service) Assign(ctx context.Context, a Assignment) (Assignment, error) {
	if a.AssignedAt.IsZero() {
		a.AssignedAt = s.Now()
	}
	a.AssignedAt = a.AssignedAt.UTC()
	a.DueAt = a.DueAt.UTC()
	if err := a.Validate(); err != nil {
		return Assignment{}, err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	a.ChargedDays, a.CompletedAt, a.PaidPoints = 0, nil, 0

	if err := s.store.CreateSprint(ctx, a); err != nil {
		return Assignment{}, points.Unavailable("create sprint", err)
	}
	return a, nil
}

func (s *Service) Get(ctx context.Context, id string) (Assignment, error) {
	a, err := s.store.Sprint(ctx, id)
	if err != nil {
		return Assignment{}, points.Unavailable("load sprint", err)
	}
	return a, nil
}

func (s *Service) ForStudent(ctx context.Context, studentID points.StudentID) ([]Assignment, error) {
	list, err := s.store.StudentSprints(ctx, studentID)
	if err != nil {
		return nil, points.Unavailable("load sprints", err)
	}
	return list, nil
}

// Completion is the result of completing a sprint.
type Completion struct {
	Assignment Assignment
	Paid       int64
	Totals     *points.Totals
}

// Complete closes the sprint and pays the current prize. The completion row
// is the guard: a second completion returns ErrAlreadyCompleted.
func (s *Service) Complete(ctx context.Context, id string) (Completion, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return Completion{}, err
	}
	if a.Completed() {
		return Completion{}, points.ErrAlreadyCompleted
	}

	now := s.Now().UTC()
	prize := PrizeNow(a.RewardPoints, a.AssignedAt, a.DueAt, now)
	if err := s.store.CompleteSprint(ctx, id, now, prize); err != nil {
		return Completion{}, points.Unavailable("complete sprint", err)
	}
	a.CompletedAt, a.PaidPoints = &now, prize

	out := Completion{Assignment: a, Paid: prize}
	if prize == 0 {
		return out, nil
	}

	totals, err := s.ledger.Append(ctx, []points.Entry{{
		StudentID:      a.StudentID,
		Points:         prize,
		Category:       points.CategorySkillSprint,
		Note:           "Skill Sprint: " + a.Title,
		SourceType:     points.SourceSprint,
		SourceID:       a.ID,
		IdempotencyKey: "sprint:" + a.ID,
	}})
	switch {
	case err == nil:
		out.Totals = &totals[0]
		return out, nil
	case errors.Is(err, points.ErrStaleTotals):
		return out, err
	default:
		metrics.InconsistentState.WithLabelValues("sprint_unpaid").Inc()
		s.log.WithContext(ctx).Errorw(
			"msg", "sprint completed but ledger append failed",
			"alert", "inconsistent_state",
			"sprint_id", a.ID,
			"student_id", a.StudentID,
			"prize", prize,
			"err", err,
		)
		return out, &points.InconsistentStateError{
			Kind:      "sprint_unpaid",
			StudentID: a.StudentID,
			SourceID:  a.ID,
			Err:       err,
		}
	}
}
