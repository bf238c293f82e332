package levels_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
)

func TestGenerate_DefaultCurve(t *testing.T) {
	// GIVEN: base_jump=50, difficulty_pct=8, rounding to 10
	// WHEN: Generating the table
	// THEN: The cumulative sum is rounded per level and level 1 is 0

	table := levels.Generate(levels.DefaultCurve())

	require.Len(t, table, 99)
	want := []int64{0, 50, 110, 180, 240, 320}
	for i, min := range want {
		assert.Equal(t, i+1, table[i].Level)
		assert.Equal(t, min, table[i].MinLifetime, "level %d", i+1)
	}
	assert.NoError(t, table.Validate())
}

func TestGenerate_RoundingUnitFive(t *testing.T) {
	curve := levels.DefaultCurve()
	curve.RoundingUnit = 5

	table := levels.Generate(curve)
	assert.Equal(t, int64(55), table[1].MinLifetime)
	assert.Equal(t, int64(110), table[2].MinLifetime)
	assert.Equal(t, int64(175), table[3].MinLifetime)
}

func TestGenerate_Deterministic(t *testing.T) {
	a := levels.Generate(levels.DefaultCurve())
	b := levels.Generate(levels.DefaultCurve())
	assert.Equal(t, a, b)
}

func TestGenerate_Monotonic(t *testing.T) {
	for _, curve := range []levels.Curve{
		levels.DefaultCurve(),
		{BaseJump: 1, DifficultyPct: 0, RoundingUnit: 10, MaxLevel: 99},
		{BaseJump: 3, DifficultyPct: 1.5, RoundingUnit: 5, MaxLevel: 40},
	} {
		table := levels.Generate(curve)
		for i := 1; i < len(table); i++ {
			assert.GreaterOrEqual(t, table[i].MinLifetime, table[i-1].MinLifetime)
		}
	}
}

func TestLevelFor(t *testing.T) {
	table := levels.Generate(levels.DefaultCurve())

	tests := []struct {
		lifetime int64
		want     int
	}{
		{0, 1},
		{49, 1},
		{50, 2},
		{109, 2},
		{110, 3},
		{1 << 40, 99},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, levels.LevelFor(tt.lifetime, table), "lifetime %d", tt.lifetime)
	}
	assert.Equal(t, 1, levels.LevelFor(500, nil))
}

func TestProgressFor(t *testing.T) {
	table := levels.Table{{1, 0}, {2, 100}, {3, 300}}

	p := levels.ProgressFor(150, table)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(100), p.CurrentMin)
	assert.Equal(t, int64(300), p.NextMin)
	assert.Equal(t, int64(150), p.PointsToNext)
	assert.Equal(t, 25, p.Percent)
	assert.False(t, p.AtMax)

	top := levels.ProgressFor(1000, table)
	assert.True(t, top.AtMax)
	assert.Equal(t, 100, top.Percent)
}

func TestTable_Validate(t *testing.T) {
	tests := []struct {
		name  string
		table levels.Table
		ok    bool
	}{
		{"valid", levels.Table{{1, 0}, {2, 10}, {3, 10}}, true},
		{"empty", nil, false},
		{"level 1 not zero", levels.Table{{1, 5}}, false},
		{"gap", levels.Table{{1, 0}, {3, 10}}, false},
		{"decreasing", levels.Table{{1, 0}, {2, 20}, {3, 10}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.table.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, points.ErrValidation)
			}
		})
	}
}

func TestCurve_Validate(t *testing.T) {
	assert.NoError(t, levels.DefaultCurve().Validate())

	bad := levels.DefaultCurve()
	bad.RoundingUnit = 7
	assert.ErrorIs(t, bad.Validate(), points.ErrValidation)
}

// =============================================================================
// RESOLVER
// =============================================================================

type tableStore struct {
	table levels.Table
	err   error
}

func (s *tableStore) Thresholds(context.Context) (levels.Table, error) { return s.table, s.err }

func (s *tableStore) SaveThresholds(_ context.Context, t levels.Table) error {
	if s.err != nil {
		return s.err
	}
	s.table = t
	return nil
}

func TestResolver_FallsBackToGenerated(t *testing.T) {
	r := levels.NewResolver(&tableStore{}, levels.DefaultCurve(), nil)

	table, persisted, err := r.Table(context.Background())
	require.NoError(t, err)
	assert.False(t, persisted)
	assert.Len(t, table, 99)

	level, err := r.LevelFor(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, level)
}

func TestResolver_PersistedWins(t *testing.T) {
	store := &tableStore{}
	r := levels.NewResolver(store, levels.DefaultCurve(), nil)
	ctx := context.Background()

	require.NoError(t, r.Save(ctx, levels.Table{{2, 30}, {1, 0}}))

	_, persisted, err := r.Table(ctx)
	require.NoError(t, err)
	assert.True(t, persisted)

	level, err := r.LevelFor(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, 2, level)

	err = r.Save(ctx, levels.Table{{1, 10}})
	assert.ErrorIs(t, err, points.ErrValidation)
}

func TestResolver_StoreFailure(t *testing.T) {
	r := levels.NewResolver(&tableStore{err: errors.New("boom")}, levels.DefaultCurve(), nil)
	_, err := r.LevelFor(context.Background(), 10)
	assert.ErrorIs(t, err, points.ErrStoreUnavailable)
}

// =============================================================================
// UNLOCKS
// =============================================================================

func TestCanUnlock(t *testing.T) {
	totals := points.Totals{Balance: 40, Level: 3}

	assert.True(t, levels.CanUnlock(totals, levels.Unlock{MinLevel: 3, Cost: 40}).Allowed)
	assert.Equal(t, levels.ReasonLevelTooLow, levels.CanUnlock(totals, levels.Unlock{MinLevel: 4}).Reason)
	assert.Equal(t, levels.ReasonInsufficientPoints, levels.CanUnlock(totals, levels.Unlock{MinLevel: 1, Cost: 41}).Reason)
}
