/*
Package factory provides JSON to Go badge rule conversion.

PURPOSE:
  Converts JSON badge rule definitions into badges.Rule values. Rules are
  stored as JSON in the badge_rules table and edited from the admin API;
  the factory is the only place that knows the wire shape of a criteria.

JSON SCHEMA:
  {
    "id": "taolu-master",
    "name": "Taolu Master",
    "category": "forms",
    "points_award": 50,
    "criteria": {
      "type": "all_of",
      "all_of": [
        {"type": "taolu_forms", "min": 5},
        {"type": "skill_tree_sets", "min": 3}
      ]
    }
  }

CRITERIA TYPES:
  lifetime_points       {"min": N}
  competition_team      {}
  character_level       {"min": N}
  skill_tree_sets, attendance_checkins, battle_wins,
  spotlight_awards, gold_medals, taolu_forms
                        {"min": N}
  all_of                {"all_of": [criteria, ...]}

  Unknown types are rejected. There is no fallback.

USAGE:
  f := NewBadgeFactory()
  rule, err := f.ParseRule(TaoluMasterJSON("taolu-master", "Taolu Master", 5, 3, 50))

SEE ALSO:
  - badges/criteria.go: Criteria variants
  - store/sqlite: Persists rule JSON
*/
package factory

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is the JSON representation of a badge rule.
type RuleJSON struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Category    string       `json:"category,omitempty"`
	PointsAward int64        `json:"points_award,omitempty"`
	Criteria    CriteriaJSON `json:"criteria"`
}

// CriteriaJSON represents one criteria node.
type CriteriaJSON struct {
	Type  string         `json:"type"`
	Min   int64          `json:"min,omitempty"`
	AllOf []CriteriaJSON `json:"all_of,omitempty"`
}

// =============================================================================
// BADGE FACTORY
// =============================================================================

// BadgeFactory converts JSON badge rules to Go structs.
type BadgeFactory struct{}

func NewBadgeFactory() *BadgeFactory {
	return &BadgeFactory{}
}

// ParseRule parses and validates a JSON badge rule.
func (f *BadgeFactory) ParseRule(jsonStr string) (badges.Rule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return badges.Rule{}, points.Invalid("rule", "malformed JSON: "+err.Error())
	}
	return f.FromJSON(rj)
}

// FromJSON converts RuleJSON to a validated badges.Rule.
func (f *BadgeFactory) FromJSON(rj RuleJSON) (badges.Rule, error) {
	criteria, err := parseCriteria(rj.Criteria)
	if err != nil {
		return badges.Rule{}, err
	}
	rule := badges.Rule{
		ID:          rj.ID,
		Name:        rj.Name,
		Category:    rj.Category,
		Criteria:    criteria,
		PointsAward: rj.PointsAward,
	}
	if err := rule.Validate(); err != nil {
		return badges.Rule{}, err
	}
	return rule, nil
}

// ToJSON converts a rule to its JSON representation.
func (f *BadgeFactory) ToJSON(rule badges.Rule) RuleJSON {
	return RuleJSON{
		ID:          rule.ID,
		Name:        rule.Name,
		Category:    rule.Category,
		PointsAward: rule.PointsAward,
		Criteria:    criteriaJSON(rule.Criteria),
	}
}

// Encode renders a rule as a JSON string for storage.
func (f *BadgeFactory) Encode(rule badges.Rule) (string, error) {
	data, err := json.Marshal(f.ToJSON(rule))
	if err != nil {
		return "", errors.Wrapf(err, "encode rule %s", rule.ID)
	}
	return string(data), nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseCriteria(cj CriteriaJSON) (badges.Criteria, error) {
	switch badges.CriteriaKind(cj.Type) {
	case badges.KindLifetimePoints:
		return badges.LifetimePoints{Min: cj.Min}, nil
	case badges.KindCompetitionTeam:
		return badges.CompetitionTeam{}, nil
	case badges.KindCharacterLevel:
		return badges.CharacterLevel{Min: int(cj.Min)}, nil
	case badges.KindAllOf:
		all := badges.AllOf{}
		for _, child := range cj.AllOf {
			c, err := parseCriteria(child)
			if err != nil {
				return nil, err
			}
			all.Criteria = append(all.Criteria, c)
		}
		return all, nil
	}

	if activity := badges.ActivityKind(cj.Type); badges.ValidActivity(activity) {
		return badges.ActivityCount{Activity: activity, Min: cj.Min}, nil
	}
	if cj.Type == "" {
		return nil, points.Invalid("criteria.type", "required")
	}
	return nil, points.Invalid("criteria.type", "unknown criteria type "+cj.Type)
}

func criteriaJSON(c badges.Criteria) CriteriaJSON {
	switch v := c.(type) {
	case badges.LifetimePoints:
		return CriteriaJSON{Type: string(v.Kind()), Min: v.Min}
	case badges.CharacterLevel:
		return CriteriaJSON{Type: string(v.Kind()), Min: int64(v.Min)}
	case badges.ActivityCount:
		return CriteriaJSON{Type: string(v.Activity), Min: v.Min}
	case badges.AllOf:
		cj := CriteriaJSON{Type: string(v.Kind())}
		for _, child := range v.Criteria {
			cj.AllOf = append(cj.AllOf, criteriaJSON(child))
		}
		return cj
	case nil:
		return CriteriaJSON{}
	default:
		return CriteriaJSON{Type: string(c.Kind())}
	}
}

// =============================================================================
// PRESET RULES
// =============================================================================

func mustJSON(rj RuleJSON) string {
	data, err := json.Marshal(rj)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// TaoluMasterJSON requires both a taolu form count and a skill-tree set count.
func TaoluMasterJSON(id, name string, forms, sets, pointsAward int64) string {
	return mustJSON(RuleJSON{
		ID:          id,
		Name:        name,
		Category:    "forms",
		PointsAward: pointsAward,
		Criteria: CriteriaJSON{Type: string(badges.KindAllOf), AllOf: []CriteriaJSON{
			{Type: string(badges.ActivityTaoluForms), Min: forms},
			{Type: string(badges.ActivitySkillTreeSets), Min: sets},
		}},
	})
}

// LifetimePointsJSON grants a badge at a lifetime points milestone.
func LifetimePointsJSON(id, name string, threshold, pointsAward int64) string {
	return mustJSON(RuleJSON{
		ID:          id,
		Name:        name,
		Category:    "milestone",
		PointsAward: pointsAward,
		Criteria:    CriteriaJSON{Type: string(badges.KindLifetimePoints), Min: threshold},
	})
}

// CompetitionTeamJSON grants a badge to every competition-team member.
func CompetitionTeamJSON(id, name string) string {
	return mustJSON(RuleJSON{
		ID:       id,
		Name:     name,
		Category: "team",
		Criteria: CriteriaJSON{Type: string(badges.KindCompetitionTeam)},
	})
}
