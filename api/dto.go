/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags. Handlers call
  decodeAndValidate before touching any domain service, so a request that
  fails here never reaches a write.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/badge.go: RuleJSON, the badge rule wire format
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/leaderboard"
	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/sprint"
)

// =============================================================================
// STUDENTS AND TOTALS
// =============================================================================

type SaveStudentRequest struct {
	Name              string `json:"name" validate:"required"`
	IsCompetitionTeam bool   `json:"is_competition_team"`
}

type TotalsDTO struct {
	StudentID string    `json:"student_id"`
	Balance   int64     `json:"balance"`
	Lifetime  int64     `json:"lifetime"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type ProgressDTO struct {
	Level        int   `json:"level"`
	CurrentMin   int64 `json:"current_min"`
	NextMin      int64 `json:"next_min,omitempty"`
	PointsToNext int64 `json:"points_to_next"`
	Percent      int   `json:"percent"`
	AtMax        bool  `json:"at_max"`
}

type StudentDTO struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	IsCompetitionTeam bool      `json:"is_competition_team"`
	Totals            TotalsDTO `json:"totals"`
}

type TotalsResponse struct {
	Totals   TotalsDTO   `json:"totals"`
	Progress ProgressDTO `json:"progress"`
}

func toTotalsDTO(t points.Totals) TotalsDTO {
	return TotalsDTO{
		StudentID: string(t.StudentID),
		Balance:   t.Balance,
		Lifetime:  t.Lifetime,
		Level:     t.Level,
		UpdatedAt: t.UpdatedAt,
	}
}

func toStudentDTO(s points.Student) StudentDTO {
	t := s.Totals
	t.StudentID = s.ID
	return StudentDTO{
		ID:                string(s.ID),
		Name:              s.Name,
		IsCompetitionTeam: s.IsCompetitionTeam,
		Totals:            toTotalsDTO(t),
	}
}

func toProgressDTO(p levels.Progress) ProgressDTO {
	return ProgressDTO{
		Level:        p.Level,
		CurrentMin:   p.CurrentMin,
		NextMin:      p.NextMin,
		PointsToNext: p.PointsToNext,
		Percent:      p.Percent,
		AtMax:        p.AtMax,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

type EntryRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	Points         int64  `json:"points" validate:"ne=0"`
	Category       string `json:"category" validate:"required"`
	Note           string `json:"note"`
	SourceType     string `json:"source_type"`
	SourceID       string `json:"source_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

type AppendRequest struct {
	Entries []EntryRequest `json:"entries" validate:"required,min=1,dive"`
}

type AppendResponse struct {
	Totals []TotalsDTO `json:"totals"`
}

// EntryDTO is one ledger row with the running totals after it.
type EntryDTO struct {
	ID             string    `json:"id"`
	Points         int64     `json:"points"`
	Category       string    `json:"category"`
	Note           string    `json:"note,omitempty"`
	SourceType     string    `json:"source_type,omitempty"`
	SourceID       string    `json:"source_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	Balance        int64     `json:"balance"`
	Lifetime       int64     `json:"lifetime"`
}

func (r EntryRequest) toEntry() points.Entry {
	return points.Entry{
		StudentID:      points.StudentID(r.StudentID),
		Points:         r.Points,
		Category:       points.Category(r.Category),
		Note:           r.Note,
		SourceType:     r.SourceType,
		SourceID:       r.SourceID,
		IdempotencyKey: r.IdempotencyKey,
	}
}

// =============================================================================
// CLAIMS AND REDEEM
// =============================================================================

type ClaimRequest struct {
	Category string `json:"category" validate:"required"`
}

type ClaimResponse struct {
	Granted bool       `json:"granted"`
	Reason  string     `json:"reason,omitempty"`
	ClaimID string     `json:"claim_id,omitempty"`
	DateKey string     `json:"date,omitempty"`
	Points  int64      `json:"points,omitempty"`
	Totals  *TotalsDTO `json:"totals,omitempty"`
}

type ClaimDTO struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Category  string    `json:"category"`
	DateKey   string    `json:"date"`
	ClaimedAt time.Time `json:"claimed_at"`
}

func toClaimDTO(c claims.Claim) ClaimDTO {
	return ClaimDTO{
		ID:        c.ID,
		StudentID: string(c.StudentID),
		Category:  c.Category,
		DateKey:   c.DateKey,
		ClaimedAt: c.ClaimedAt,
	}
}

type RedeemRequest struct {
	Points         int64  `json:"points" validate:"gt=0"`
	Note           string `json:"note"`
	IdempotencyKey string `json:"idempotency_key"`
}

type UnlockCheckResponse struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// =============================================================================
// BADGES
// =============================================================================

type ActivityRequest struct {
	Kind  string `json:"kind" validate:"required"`
	Delta int64  `json:"delta" validate:"ne=0"`
}

type SweepRequest struct {
	RuleID    string `json:"rule_id"`
	StudentID string `json:"student_id"`
}

type RuleResultDTO struct {
	RuleID   string `json:"rule_id"`
	Name     string `json:"name"`
	Eligible int    `json:"eligible"`
	Awarded  int    `json:"awarded"`
	Stage    string `json:"failed_stage,omitempty"`
	Error    string `json:"error,omitempty"`
}

type SweepResponse struct {
	Awarded int             `json:"awarded"`
	Rules   []RuleResultDTO `json:"rules"`
}

func toSweepResponse(r badges.Report) SweepResponse {
	resp := SweepResponse{Awarded: r.Awarded(), Rules: []RuleResultDTO{}}
	for _, rr := range r.Rules {
		dto := RuleResultDTO{
			RuleID:   rr.RuleID,
			Name:     rr.Name,
			Eligible: rr.Eligible,
			Awarded:  rr.Awarded,
			Stage:    rr.Stage,
		}
		if rr.Err != nil {
			dto.Error = rr.Err.Error()
		}
		resp.Rules = append(resp.Rules, dto)
	}
	return resp
}

type AwardDTO struct {
	BadgeID       string    `json:"badge_id"`
	AwardedAt     time.Time `json:"awarded_at"`
	PointsAwarded int64     `json:"points_awarded"`
	Note          string    `json:"note,omitempty"`
}

func toAwardDTO(a badges.Award) AwardDTO {
	return AwardDTO{BadgeID: a.BadgeID, AwardedAt: a.AwardedAt, PointsAwarded: a.PointsAwarded, Note: a.Note}
}

type NotificationDTO struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// =============================================================================
// LEVELS
// =============================================================================

type ThresholdDTO struct {
	Level       int   `json:"level" validate:"gte=1,lte=99"`
	MinLifetime int64 `json:"min_lifetime" validate:"gte=0"`
}

type LevelsRequest struct {
	Thresholds []ThresholdDTO `json:"thresholds" validate:"required,min=1,dive"`
}

type LevelsResponse struct {
	Persisted  bool           `json:"persisted"`
	Thresholds []ThresholdDTO `json:"thresholds"`
}

func toThresholdDTOs(t levels.Table) []ThresholdDTO {
	out := make([]ThresholdDTO, len(t))
	for i, th := range t {
		out[i] = ThresholdDTO{Level: th.Level, MinLifetime: th.MinLifetime}
	}
	return out
}

func (r LevelsRequest) table() levels.Table {
	t := make(levels.Table, len(r.Thresholds))
	for i, th := range r.Thresholds {
		t[i] = levels.Threshold{Level: th.Level, MinLifetime: th.MinLifetime}
	}
	return t
}

// =============================================================================
// LEADERBOARDS
// =============================================================================

type LeaderboardResponse struct {
	Metric         string                  `json:"metric"`
	HigherIsBetter bool                    `json:"higher_is_better"`
	Limit          int                     `json:"limit"`
	Rows           []leaderboard.RankedRow `json:"rows"`
}

type StatRequest struct {
	Name           string  `json:"name" validate:"required"`
	Unit           string  `json:"unit"`
	HigherIsBetter bool    `json:"higher_is_better"`
	MinValue       *string `json:"min_value" validate:"omitempty,numeric"`
}

type StatValueRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Value     string `json:"value" validate:"required,numeric"`
}

type SkillResultRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	Success   bool   `json:"success"`
	// Date defaults to today in the configured timezone.
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (r StatRequest) toStat(id string) (leaderboard.Stat, error) {
	st := leaderboard.Stat{ID: id, Name: r.Name, Unit: r.Unit, HigherIsBetter: r.HigherIsBetter}
	if r.MinValue != nil {
		v, err := decimal.NewFromString(*r.MinValue)
		if err != nil {
			return leaderboard.Stat{}, points.Invalid("min_value", "must be a number")
		}
		st.MinValue = &v
	}
	return st, nil
}

// =============================================================================
// SPRINTS
// =============================================================================

type CreateSprintRequest struct {
	Title         string    `json:"title" validate:"required"`
	DueAt         time.Time `json:"due_at" validate:"required"`
	PenaltyPerDay int64     `json:"penalty_points_per_day" validate:"gte=0"`
	RewardPoints  int64     `json:"reward_points" validate:"gte=0"`
}

type ChargeDaysRequest struct {
	Days int `json:"days" validate:"gte=0"`
}

type SprintDTO struct {
	ID              string          `json:"id"`
	StudentID       string          `json:"student_id"`
	Title           string          `json:"title"`
	AssignedAt      time.Time       `json:"assigned_at"`
	DueAt           time.Time       `json:"due_at"`
	PenaltyPerDay   int64           `json:"penalty_points_per_day"`
	RewardPoints    int64           `json:"reward_points"`
	ChargedDays     int             `json:"charged_days"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	PrizeNow        int64           `json:"prize_now"`
	PrizeDropPerDay decimal.Decimal `json:"prize_drop_per_day"`
	PoolDropped     int64           `json:"pool_dropped"`
	LostPoints      int64           `json:"lost_points"`
	Overdue         bool            `json:"overdue"`
}

type CompleteSprintResponse struct {
	Sprint SprintDTO  `json:"sprint"`
	Paid   int64      `json:"paid"`
	Totals *TotalsDTO `json:"totals,omitempty"`
}

func toSprintDTO(a sprint.Assignment, now time.Time) SprintDTO {
	d := a.Display(now)
	return SprintDTO{
		ID:              a.ID,
		StudentID:       string(a.StudentID),
		Title:           a.Title,
		AssignedAt:      a.AssignedAt,
		DueAt:           a.DueAt,
		PenaltyPerDay:   a.PenaltyPerDay,
		RewardPoints:    a.RewardPoints,
		ChargedDays:     a.ChargedDays,
		CompletedAt:     a.CompletedAt,
		PrizeNow:        d.PrizeNow,
		PrizeDropPerDay: d.PrizeDropPerDay,
		PoolDropped:     d.PoolDropped,
		LostPoints:      d.LostPoints,
		Overdue:         d.Overdue,
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
