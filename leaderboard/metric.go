package leaderboard

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// METRIC KINDS
// =============================================================================

type MetricKind string

const (
	MetricTotalPoints     MetricKind = "total_points"     // current balance
	MetricWeeklyPoints    MetricKind = "weekly_points"    // this civil week, weekly-counting categories only
	MetricLifetimePoints  MetricKind = "lifetime_points"  // cached lifetime total
	MetricSkillDaily      MetricKind = "skill_daily"      // successes on one skill on one civil date
	MetricPerformanceStat MetricKind = "performance_stat" // admin-defined stat
)

// Metric selects one board. SkillID and Date apply to skill_daily (Date
// defaults to today); StatID applies to performance_stat.
type Metric struct {
	Kind    MetricKind
	SkillID string
	StatID  string
	Date    string
}

func (m Metric) Validate() error {
	switch m.Kind {
	case MetricTotalPoints, MetricWeeklyPoints, MetricLifetimePoints:
		return nil
	case MetricSkillDaily:
		if m.SkillID == "" {
			return points.Invalid("skill_id", "required for skill_daily")
		}
		return nil
	case MetricPerformanceStat:
		if m.StatID == "" {
			return points.Invalid("stat_id", "required for performance_stat")
		}
		return nil
	case "":
		return points.Invalid("metric", "required")
	default:
		return points.Invalid("metric", fmt.Sprintf("unknown metric %q", m.Kind))
	}
}

// Key identifies the board for caching. period distinguishes weekly or daily
// boards from different weeks or days.
func (m Metric) Key(period string, limit int) string {
	switch m.Kind {
	case MetricSkillDaily:
		return fmt.Sprintf("%s:%s:%s:%d", m.Kind, m.SkillID, period, limit)
	case MetricPerformanceStat:
		return fmt.Sprintf("%s:%s:%d", m.Kind, m.StatID, limit)
	case MetricWeeklyPoints:
		return fmt.Sprintf("%s:%s:%d", m.Kind, period, limit)
	default:
		return fmt.Sprintf("%s:%d", m.Kind, limit)
	}
}

// =============================================================================
// PERFORMANCE STATS
// =============================================================================

// Stat is an admin-defined performance statistic such as "mile time" or
// "push-ups in a minute".
type Stat struct {
	ID             string
	Name           string
	Unit           string
	HigherIsBetter bool

	// MinValue, when set, excludes students whose value is below it.
	MinValue *decimal.Decimal
}

func (s Stat) Validate() error {
	switch {
	case s.ID == "":
		return points.Invalid("id", "required")
	case s.Name == "":
		return points.Invalid("name", "required")
	}
	return nil
}

// Qualifies reports whether a value clears the stat's minimum.
func (s Stat) Qualifies(v decimal.Decimal) bool {
	return s.MinValue == nil || v.GreaterThanOrEqual(*s.MinValue)
}

// =============================================================================
// SKILL RESULTS
// =============================================================================

// SkillResult is one attempt at a tracked skill. Successful results on a
// civil date feed the skill_daily board.
type SkillResult struct {
	ID         string
	StudentID  points.StudentID
	SkillID    string
	DateKey    string
	Success    bool
	RecordedAt time.Time
}

func (r SkillResult) Validate() error {
	switch {
	case r.StudentID == "":
		return points.Invalid("student_id", "required")
	case r.SkillID == "":
		return points.Invalid("skill_id", "required")
	case r.DateKey == "":
		return points.Invalid("date", "required")
	}
	if _, err := time.Parse(points.DateKeyLayout, r.DateKey); err != nil {
		return points.Invalid("date", "must be YYYY-MM-DD")
	}
	return nil
}
