/*
Package levels maps lifetime points to a level.

PURPOSE:
  A level table is a list of (level, min_lifetime_points) rows. Tables are
  either persisted by an admin or generated from an exponential curve. The
  level for a lifetime total is the highest level whose minimum is satisfied.

CURVE:
  level 1 -> 0
  level L -> round_to_unit( sum_{k=2..L} base_jump * (1 + difficulty_pct/100)^(k-1) )

  The running sum is kept in exact decimal arithmetic and only the cumulative
  value is rounded, so rounding error never compounds across levels. The
  rounded value is floored at 0 and never allowed to drop below the previous
  level's minimum.

  base_jump=50, difficulty_pct=8, unit=10 -> 0, 50, 110, 180, 240, 320, ...

SEE ALSO:
  - resolver.go: Persisted-or-generated table, implements points.Leveler
  - unlock.go: Level/balance gates for cosmetic unlocks
*/
package levels

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/points"
)

// MaxLevel is the highest level a generated table contains.
const MaxLevel = 99

// =============================================================================
// TYPES
// =============================================================================

type Threshold struct {
	Level       int
	MinLifetime int64
}

// Table is a level table in ascending level order.
type Table []Threshold

// Curve parameters for a generated table.
type Curve struct {
	BaseJump      int64
	DifficultyPct float64
	RoundingUnit  int64
	MaxLevel      int
}

func DefaultCurve() Curve {
	return Curve{BaseJump: 50, DifficultyPct: 8, RoundingUnit: 10, MaxLevel: MaxLevel}
}

func (c Curve) Validate() error {
	switch {
	case c.BaseJump <= 0:
		return points.Invalid("base_jump", "must be positive")
	case c.DifficultyPct < 0:
		return points.Invalid("difficulty_pct", "must not be negative")
	case c.RoundingUnit != 5 && c.RoundingUnit != 10:
		return points.Invalid("rounding_unit", "must be 5 or 10")
	case c.MaxLevel < 1 || c.MaxLevel > MaxLevel:
		return points.Invalid("max_level", "must be between 1 and 99")
	}
	return nil
}

// =============================================================================
// GENERATION
// =============================================================================

// Generate builds a table from the curve. Identical parameters always yield
// identical tables.
func Generate(c Curve) Table {
	maxLevel := c.MaxLevel
	if maxLevel < 1 || maxLevel > MaxLevel {
		maxLevel = MaxLevel
	}
	unit := decimal.NewFromInt(c.RoundingUnit)
	if c.RoundingUnit <= 0 {
		unit = decimal.NewFromInt(1)
	}

	factor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(c.DifficultyPct).Div(decimal.NewFromInt(100)))
	increment := decimal.NewFromInt(c.BaseJump)
	cumulative := decimal.Zero

	table := make(Table, 0, maxLevel)
	table = append(table, Threshold{Level: 1, MinLifetime: 0})

	var prev int64
	for level := 2; level <= maxLevel; level++ {
		increment = increment.Mul(factor)
		cumulative = cumulative.Add(increment)

		rounded := cumulative.Div(unit).Round(0).Mul(unit).IntPart()
		if rounded < 0 {
			rounded = 0
		}
		if rounded < prev {
			rounded = prev
		}
		prev = rounded
		table = append(table, Threshold{Level: level, MinLifetime: rounded})
	}
	return table
}

// =============================================================================
// LOOKUP
// =============================================================================

// LevelFor returns the highest level whose minimum is at or below lifetime.
// An empty table, or a lifetime below every row, is level 1.
func LevelFor(lifetime int64, table Table) int {
	level := 1
	for _, t := range table {
		if t.MinLifetime <= lifetime {
			level = t.Level
		}
	}
	return level
}

// Progress describes where a lifetime total sits between two levels.
type Progress struct {
	Level        int
	CurrentMin   int64
	NextMin      int64
	PointsToNext int64
	Percent      int
	AtMax        bool
}

func ProgressFor(lifetime int64, table Table) Progress {
	level := LevelFor(lifetime, table)
	p := Progress{Level: level}

	for i, t := range table {
		if t.Level != level {
			continue
		}
		p.CurrentMin = t.MinLifetime
		if i+1 >= len(table) {
			p.AtMax = true
			p.Percent = 100
			return p
		}
		p.NextMin = table[i+1].MinLifetime
		p.PointsToNext = p.NextMin - lifetime
		if span := p.NextMin - p.CurrentMin; span > 0 {
			p.Percent = int((lifetime - p.CurrentMin) * 100 / span)
		}
		return p
	}

	p.AtMax = len(table) == 0
	if p.AtMax {
		p.Percent = 100
	}
	return p
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks a table an admin wants to persist: levels 1..N in order,
// level 1 at 0, minimums non-negative and non-decreasing.
func (t Table) Validate() error {
	if len(t) == 0 {
		return points.Invalid("thresholds", "at least one level required")
	}
	if len(t) > MaxLevel {
		return points.Invalid("thresholds", "more than 99 levels")
	}
	if t[0].Level != 1 || t[0].MinLifetime != 0 {
		return points.Invalid("thresholds", "level 1 must start at 0")
	}
	for i := 1; i < len(t); i++ {
		if t[i].Level != t[i-1].Level+1 {
			return points.Invalid("thresholds", "levels must be consecutive")
		}
		if t[i].MinLifetime < t[i-1].MinLifetime {
			return points.Invalid("thresholds", "minimums must not decrease")
		}
	}
	return nil
}

// Sorted returns a copy ordered by level.
func (t Table) Sorted() Table {
	out := append(Table(nil), t...)
	sort.Slice(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}
