/*
Package claims implements daily bonus claims and redeems.

PURPOSE:
  A student may claim each bonus category at most once per civil day. The
  guard inserts a (student, category, date_key) row under a unique
  constraint; the insert is the only concurrency gate. Two racing claims
  for the same row have exactly one winner, and the loser gets a rejected
  result rather than an error.

FLOW:
  1. Guard.TryClaim commits the claim row.
  2. Awarder appends the paired ledger entry, keyed "claim:<claim id>".
  3. If step 2 fails the claim is "claimed but unpaid". That is reported as
     an InconsistentStateError and never retried automatically: an operator
     reconciles it from Guard.Unpaid.

CLAIM CATEGORIES:
  avatar          daily avatar bonus
  leaderboard     daily leaderboard bonus
  role            daily role-based bonus
  event:<id>      per-event bonus, one bucket per event

  Categories are independent: claiming one grants nothing for the others.

SEE ALSO:
  - award.go: Claim-then-pay
  - redeem.go: Balance-checked spend
*/
package claims

import (
	"context"
	"strings"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/metrics"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// CATEGORIES
// =============================================================================

// Kind is the family of a claim category.
type Kind string

const (
	KindAvatar      Kind = "avatar"
	KindLeaderboard Kind = "leaderboard"
	KindRole        Kind = "role"
	KindEvent       Kind = "event"
)

const eventPrefix = "event:"

// EventCategory returns the claim category for one event.
func EventCategory(eventID string) string { return eventPrefix + eventID }

// ParseCategory validates a claim category and returns its kind.
func ParseCategory(category string) (Kind, error) {
	switch Kind(category) {
	case KindAvatar, KindLeaderboard, KindRole:
		return Kind(category), nil
	}
	if id := strings.TrimPrefix(category, eventPrefix); id != category && id != "" {
		return KindEvent, nil
	}
	return "", points.Invalid("category", "unknown claim category "+category)
}

// LedgerCategory maps a claim kind to the category its payout is booked under.
func (k Kind) LedgerCategory() points.Category {
	switch k {
	case KindAvatar:
		return points.CategoryAvatarBonus
	case KindLeaderboard:
		return points.CategoryLeaderboardBonus
	case KindRole:
		return points.CategoryRoleBonus
	default:
		return points.CategoryEventBonus
	}
}

// =============================================================================
// TYPES
// =============================================================================

// Claim is one committed daily claim row.
type Claim struct {
	ID        string
	StudentID points.StudentID
	Category  string
	DateKey   string
	ClaimedAt time.Time
}

// Store persists claim rows.
type Store interface {
	// InsertClaim returns points.ErrRejectedClaim when the
	// (student, category, date_key) row already exists.
	InsertClaim(ctx context.Context, c Claim) error

	// UnpaidClaims lists claims with no ledger entry whose source is the claim.
	UnpaidClaims(ctx context.Context) ([]Claim, error)
}

const ReasonAlreadyClaimed = "already_claimed"

// Result of a claim attempt. A rejected claim is a normal outcome.
type Result struct {
	Granted bool
	Reason  string
	Claim   Claim
}

// =============================================================================
// GUARD
// =============================================================================

type Guard struct {
	store    Store
	calendar points.Calendar
	log      *log.Helper

	Now func() time.Time
}

func NewGuard(store Store, calendar points.Calendar, logger log.Logger) *Guard {
	return &Guard{
		store:    store,
		calendar: calendar,
		log:      points.LogHelper(logger, "claims/guard"),
		Now:      time.Now,
	}
}

// Today returns the current civil date key.
func (g *Guard) Today() string { return g.calendar.DateKey(g.Now()) }

// TryClaim commits the claim row for dateKey, or reports that it exists.
func (g *Guard) TryClaim(ctx context.Context, studentID points.StudentID, category, dateKey string) (Result, error) {
	if studentID == "" {
		return Result{}, points.Invalid("student_id", "required")
	}
	kind, err := ParseCategory(category)
	if err != nil {
		return Result{}, err
	}
	if _, err := time.Parse(points.DateKeyLayout, dateKey); err != nil {
		return Result{}, points.Invalid("date_key", "must be YYYY-MM-DD")
	}

	c := Claim{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Category:  category,
		DateKey:   dateKey,
		ClaimedAt: g.Now().UTC(),
	}
	err = g.store.InsertClaim(ctx, c)
	switch {
	case err == nil:
		metrics.Claims.WithLabelValues(string(kind), metrics.ResultGranted).Inc()
		return Result{Granted: true, Claim: c}, nil
	case errors.Is(err, points.ErrRejectedClaim):
		metrics.Claims.WithLabelValues(string(kind), metrics.ResultRejected).Inc()
		return Result{Reason: ReasonAlreadyClaimed}, nil
	default:
		metrics.Claims.WithLabelValues(string(kind), metrics.ResultFailed).Inc()
		g.log.WithContext(ctx).Errorf("claim %s/%s/%s failed: %v", studentID, category, dateKey, err)
		return Result{}, points.Unavailable("insert claim", err)
	}
}

// ClaimToday is TryClaim for the current civil date.
func (g *Guard) ClaimToday(ctx context.Context, studentID points.StudentID, category string) (Result, error) {
	return g.TryClaim(ctx, studentID, category, g.Today())
}

// Unpaid lists claims whose ledger entry is missing.
func (g *Guard) Unpaid(ctx context.Context) ([]Claim, error) {
	claims, err := g.store.UnpaidClaims(ctx)
	if err != nil {
		return nil, points.Unavailable("load unpaid claims", err)
	}
	return claims, nil
}
