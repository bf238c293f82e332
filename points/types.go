/*
Package points provides the points accounting core.

PURPOSE:
  This package owns the append-only points ledger and the recompute engine
  that derives each student's denormalized totals from it. Every other
  component (daily claims, badges, skill sprints, leaderboards) writes
  through the Ledger here or reads the totals it maintains.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: One immutable signed point change for a student
  - Category: Enumerated tag on an entry (coach award, redeem, bonus, ...)
  - Totals: Cached balance/lifetime/level, a projection of the ledger
  - Student: Roster record as seen by this core

DESIGN PRINCIPLES:
  1. Immutability: Entries are never updated or deleted
  2. Single source of truth: Balance and lifetime are re-derived from the
     full log on every recompute, never incremented in place
  3. Type Safety: Strong typing for IDs and categories
  4. Auditability: Every entry carries a source type and source id

USAGE:
  ledger := points.NewLedger(store, points.DefaultCategoryConfig(), resolver, logger)
  totals, err := ledger.Append(ctx, []points.Entry{{
      StudentID: "stu-1",
      Points:    10,
      Category:  points.CategoryCoachAward,
      Note:      "great footwork",
  }})

SEE ALSO:
  - ledger.go: Append and recompute
  - categories.go: Which categories count toward lifetime and weekly totals
  - store.go: Persistence interfaces
*/
package points

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type EntryID string

// =============================================================================
// CATEGORY - Enumerated tag on a ledger entry
// =============================================================================

type Category string

const (
	CategoryCoachAward       Category = "coach_award"       // Coach-granted points
	CategoryChallenge        Category = "challenge"         // Challenge completion
	CategorySkillSprint      Category = "skill_sprint"      // Skill Sprint prize payout
	CategorySprintPenalty    Category = "sprint_penalty"    // Skill Sprint overdue penalty
	CategoryBadge            Category = "badge"             // Badge points award
	CategoryAvatarBonus      Category = "avatar_bonus"      // Daily avatar bonus claim
	CategoryLeaderboardBonus Category = "leaderboard_bonus" // Daily leaderboard bonus claim
	CategoryRoleBonus        Category = "role_bonus"        // Daily role-based bonus claim
	CategoryEventBonus       Category = "event_bonus"       // Per-event bonus claim
	CategoryRedeem           Category = "redeem"            // Spend (negative)
	CategoryAdjustment       Category = "adjustment"        // Manual admin correction
)

// Source types recorded on entries written by this core.
const (
	SourceManual     = "manual"
	SourceDailyClaim = "daily_claim"
	SourceBadge      = "badge"
	SourceSprint     = "skill_sprint"
	SourceRedeem     = "redeem"
)

// =============================================================================
// ENTRY - Immutable signed point change
// =============================================================================

type Entry struct {
	ID         EntryID
	StudentID  StudentID
	Points     int64
	Category   Category
	Note       string
	SourceType string
	SourceID   string

	// IdempotencyKey is optional. When set, the store rejects a second entry
	// with the same key.
	IdempotencyKey string

	CreatedAt time.Time
}

// =============================================================================
// TOTALS - Denormalized projection of the ledger
// =============================================================================

// Totals is the cached view written by the recompute engine. It can always be
// rebuilt from the ledger.
type Totals struct {
	StudentID StudentID
	Balance   int64
	Lifetime  int64
	Level     int
	UpdatedAt time.Time
}

// =============================================================================
// STUDENT - Roster record (external entity)
// =============================================================================

type Student struct {
	ID                StudentID
	Name              string
	IsCompetitionTeam bool
	Totals            Totals
}

// =============================================================================
// NOTIFICATION - Fire-and-forget message to a student
// =============================================================================

type Notification struct {
	ID        string
	StudentID StudentID
	Message   string
	Kind      string
	CreatedAt time.Time
}
