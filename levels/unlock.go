package levels

import "github.com/warp/points-engine/points"

// Unlock is a cosmetic item gate: a minimum level and a point cost.
type Unlock struct {
	MinLevel int
	Cost     int64
}

const (
	ReasonLevelTooLow        = "level_too_low"
	ReasonInsufficientPoints = "insufficient_points"
)

type Eligibility struct {
	Allowed bool
	Reason  string
}

// CanUnlock checks the gate against cached totals. The level gate is checked
// first.
func CanUnlock(t points.Totals, u Unlock) Eligibility {
	level := t.Level
	if level < 1 {
		level = 1
	}
	if level < u.MinLevel {
		return Eligibility{Reason: ReasonLevelTooLow}
	}
	if t.Balance < u.Cost {
		return Eligibility{Reason: ReasonInsufficientPoints}
	}
	return Eligibility{Allowed: true}
}
