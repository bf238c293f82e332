/*
Package sprint implements Skill Sprints: time-boxed challenges whose prize
shrinks linearly from full reward at assignment to zero at the deadline.

DECAY:
  prizeNow        = round(reward * clamp((due - now) / (due - assigned), 0, 1))
  prizeDropPerDay = reward / totalDays      (0 when totalDays <= 0)
  poolDropped     = reward - prizeNow
  lostPoints      = chargedDays * penaltyPerDay

  A now before assigned clamps to the full reward; a now at or after due
  clamps to zero. A window with due <= assigned has nothing to decay over
  and pays 0.

  Charged days are incremented by an external scheduled process. This
  package only renders the current lost-points display from them.

SEE ALSO:
  - sprint.go: Assignment lifecycle and completion payout
*/
package sprint

import (
	"time"

	"github.com/shopspring/decimal"
)

var day = decimal.NewFromInt(int64(24 * time.Hour))

// PrizeNow is the prize a completion at now would pay.
func PrizeNow(reward int64, assigned, due, now time.Time) int64 {
	window := due.Sub(assigned)
	if window <= 0 {
		return 0
	}
	frac := decimal.NewFromInt(int64(due.Sub(now))).Div(decimal.NewFromInt(int64(window)))
	switch {
	case frac.LessThan(decimal.Zero):
		frac = decimal.Zero
	case frac.GreaterThan(decimal.NewFromInt(1)):
		frac = decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(reward).Mul(frac).Round(0).IntPart()
}

// PrizeDropPerDay is how much of the reward decays each day, to two places.
func PrizeDropPerDay(reward int64, assigned, due time.Time) decimal.Decimal {
	totalDays := decimal.NewFromInt(int64(due.Sub(assigned))).Div(day)
	if !totalDays.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(reward).Div(totalDays).Round(2)
}

// PoolDropped is how much of the reward has already decayed.
func PoolDropped(reward int64, assigned, due, now time.Time) int64 {
	return reward - PrizeNow(reward, assigned, due, now)
}

// LostPoints is the accrued penalty shown to the student.
func LostPoints(chargedDays int, penaltyPerDay int64) int64 {
	if chargedDays <= 0 || penaltyPerDay <= 0 {
		return 0
	}
	return int64(chargedDays) * penaltyPerDay
}
