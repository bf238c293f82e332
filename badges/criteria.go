/*
Package badges grants badges from declarative rules.

PURPOSE:
  A badge rule pairs a badge with a Criteria. The sweep engine evaluates
  the criteria against per-student aggregates and grants the badge to every
  eligible student who does not hold it yet. A student holds a given badge
  at most once, ever.

CRITERIA:
  Criteria is a closed set of variants. Each variant carries typed
  parameters; there is no free-text dispatch.

    LifetimePoints{Min}            lifetime points >= Min
    CompetitionTeam{}              competition-team flag set
    ActivityCount{Activity, Min}   activity counter >= Min
                                   (skill_tree_sets, attendance_checkins,
                                   battle_wins, spotlight_awards,
                                   gold_medals, taolu_forms)
    CharacterLevel{Min}            cached level >= Min
    AllOf{Criteria}                every child is satisfied

  "Taolu master" is AllOf{taolu_forms >= N, skill_tree_sets >= M}.

SEE ALSO:
  - sweep.go: Sweep engine
  - factory/badge.go: JSON rule definitions
*/
package badges

import (
	"fmt"
	"time"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// AGGREGATES - Precomputed per-student inputs
// =============================================================================

// ActivityKind names a counter fed by external processes.
type ActivityKind string

const (
	ActivitySkillTreeSets      ActivityKind = "skill_tree_sets"
	ActivityAttendanceCheckins ActivityKind = "attendance_checkins"
	ActivityBattleWins         ActivityKind = "battle_wins"
	ActivitySpotlightAwards    ActivityKind = "spotlight_awards"
	ActivityGoldMedals         ActivityKind = "gold_medals"
	ActivityTaoluForms         ActivityKind = "taolu_forms"
)

var activityKinds = map[ActivityKind]bool{
	ActivitySkillTreeSets:      true,
	ActivityAttendanceCheckins: true,
	ActivityBattleWins:         true,
	ActivitySpotlightAwards:    true,
	ActivityGoldMedals:         true,
	ActivityTaoluForms:         true,
}

func ValidActivity(k ActivityKind) bool { return activityKinds[k] }

// Aggregates is everything a criteria can look at for one student.
type Aggregates struct {
	StudentID         points.StudentID
	Name              string
	Lifetime          int64
	Level             int
	IsCompetitionTeam bool
	Counts            map[ActivityKind]int64
}

// =============================================================================
// CRITERIA
// =============================================================================

type CriteriaKind string

const (
	KindLifetimePoints  CriteriaKind = "lifetime_points"
	KindCompetitionTeam CriteriaKind = "competition_team"
	KindCharacterLevel  CriteriaKind = "character_level"
	KindAllOf           CriteriaKind = "all_of"
)

// Criteria is implemented only by the variants in this package.
type Criteria interface {
	Kind() CriteriaKind
	Eligible(a Aggregates) bool
	Validate() error
	criteria()
}

type LifetimePoints struct{ Min int64 }

func (LifetimePoints) Kind() CriteriaKind           { return KindLifetimePoints }
func (c LifetimePoints) Eligible(a Aggregates) bool { return a.Lifetime >= c.Min }
func (LifetimePoints) criteria()                    {}

func (c LifetimePoints) Validate() error {
	if c.Min <= 0 {
		return points.Invalid("criteria.min", "lifetime threshold must be positive")
	}
	return nil
}

type CompetitionTeam struct{}

func (CompetitionTeam) Kind() CriteriaKind         { return KindCompetitionTeam }
func (CompetitionTeam) Eligible(a Aggregates) bool { return a.IsCompetitionTeam }
func (CompetitionTeam) Validate() error            { return nil }
func (CompetitionTeam) criteria()                  {}

// ActivityCount is satisfied when a counter reaches Min. Its Kind is the
// activity name.
type ActivityCount struct {
	Activity ActivityKind
	Min      int64
}

func (c ActivityCount) Kind() CriteriaKind         { return CriteriaKind(c.Activity) }
func (c ActivityCount) Eligible(a Aggregates) bool { return a.Counts[c.Activity] >= c.Min }
func (ActivityCount) criteria()                    {}

func (c ActivityCount) Validate() error {
	if !ValidActivity(c.Activity) {
		return points.Invalid("criteria.type", fmt.Sprintf("unknown activity %q", c.Activity))
	}
	if c.Min <= 0 {
		return points.Invalid("criteria.min", "count must be positive")
	}
	return nil
}

type CharacterLevel struct{ Min int }

func (CharacterLevel) Kind() CriteriaKind           { return KindCharacterLevel }
func (c CharacterLevel) Eligible(a Aggregates) bool { return a.Level >= c.Min }
func (CharacterLevel) criteria()                    {}

func (c CharacterLevel) Validate() error {
	if c.Min < 2 {
		return points.Invalid("criteria.min", "level must be at least 2")
	}
	return nil
}

// AllOf is satisfied when every child is.
type AllOf struct{ Criteria []Criteria }

func (AllOf) Kind() CriteriaKind { return KindAllOf }
func (AllOf) criteria()          {}

func (c AllOf) Eligible(a Aggregates) bool {
	for _, child := range c.Criteria {
		if !child.Eligible(a) {
			return false
		}
	}
	return true
}

func (c AllOf) Validate() error {
	if len(c.Criteria) < 2 {
		return points.Invalid("criteria.all_of", "needs at least two children")
	}
	for _, child := range c.Criteria {
		if child == nil {
			return points.Invalid("criteria.all_of", "nil child")
		}
		if err := child.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// TaoluMaster is the composite preset for the taolu master badge.
func TaoluMaster(forms, sets int64) AllOf {
	return AllOf{Criteria: []Criteria{
		ActivityCount{Activity: ActivityTaoluForms, Min: forms},
		ActivityCount{Activity: ActivitySkillTreeSets, Min: sets},
	}}
}

// =============================================================================
// RULES AND AWARDS
// =============================================================================

type Rule struct {
	ID          string
	Name        string
	Category    string
	Criteria    Criteria
	PointsAward int64

	// LoadErr is set when the stored form no longer parses. Only ID is
	// populated then, and the rule fails at the evaluate stage.
	LoadErr error
}

func (r Rule) Validate() error {
	switch {
	case r.ID == "":
		return points.Invalid("id", "required")
	case r.Name == "":
		return points.Invalid("name", "required")
	case r.Criteria == nil:
		return points.Invalid("criteria", "required")
	case r.PointsAward < 0:
		return points.Invalid("points_award", "must not be negative")
	}
	return r.Criteria.Validate()
}

// Award is a StudentBadgeAward row, unique per (student, badge).
type Award struct {
	StudentID     points.StudentID
	BadgeID       string
	AwardedAt     time.Time
	PointsAwarded int64
	Note          string
}
