package points

import "sort"

// =============================================================================
// CATEGORY CONFIGURATION
// =============================================================================

// CategoryConfig says which categories are excluded from the lifetime
// (leveling) counter and from weekly rankings. Balance always includes every
// category. A category that appears in neither set counts everywhere.
type CategoryConfig struct {
	nonLifetime map[Category]bool
	nonWeekly   map[Category]bool
}

func NewCategoryConfig(nonLifetime, nonWeekly []Category) CategoryConfig {
	cfg := CategoryConfig{
		nonLifetime: make(map[Category]bool, len(nonLifetime)),
		nonWeekly:   make(map[Category]bool, len(nonWeekly)),
	}
	for _, c := range nonLifetime {
		cfg.nonLifetime[c] = true
	}
	for _, c := range nonWeekly {
		cfg.nonWeekly[c] = true
	}
	return cfg
}

// DefaultCategoryConfig excludes bonus claims, redeems and sprint penalties
// from lifetime, and bonus claims plus redeems from weekly rankings.
func DefaultCategoryConfig() CategoryConfig {
	bonuses := []Category{
		CategoryAvatarBonus,
		CategoryLeaderboardBonus,
		CategoryRoleBonus,
		CategoryEventBonus,
	}
	nonLifetime := append([]Category{CategoryRedeem, CategorySprintPenalty}, bonuses...)
	nonWeekly := append([]Category{CategoryRedeem}, bonuses...)
	return NewCategoryConfig(nonLifetime, nonWeekly)
}

func (c CategoryConfig) CountsLifetime(cat Category) bool { return !c.nonLifetime[cat] }
func (c CategoryConfig) CountsWeekly(cat Category) bool   { return !c.nonWeekly[cat] }

// NonLifetime returns the excluded lifetime categories, sorted.
func (c CategoryConfig) NonLifetime() []Category { return sortedKeys(c.nonLifetime) }

// NonWeekly returns the excluded weekly categories, sorted.
func (c CategoryConfig) NonWeekly() []Category { return sortedKeys(c.nonWeekly) }

// Sum derives balance and lifetime from a full set of entries.
func (c CategoryConfig) Sum(entries []Entry) (balance, lifetime int64) {
	for _, e := range entries {
		balance += e.Points
		if c.CountsLifetime(e.Category) {
			lifetime += e.Points
		}
	}
	return balance, lifetime
}

func sortedKeys(m map[Category]bool) []Category {
	out := make([]Category, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
