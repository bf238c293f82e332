package sprint_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/points/store"
	"github.com/warp/points-engine/sprint"
)

var (
	t0  = time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	due = t0.Add(10 * 24 * time.Hour)
)

// =============================================================================
// DECAY
// =============================================================================

func TestPrizeNow_Boundaries(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want int64
	}{
		{"at assignment", t0, 100},
		{"halfway", t0.Add(5 * 24 * time.Hour), 50},
		{"at deadline", due, 0},
		{"before assignment clamps to full", t0.Add(-time.Hour), 100},
		{"after deadline clamps to zero", due.Add(48 * time.Hour), 0},
		{"three days in", t0.Add(3 * 24 * time.Hour), 70},
		{"rounds half away from zero", due.Add(-72 * time.Minute), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sprint.PrizeNow(100, t0, due, tt.now))
		})
	}
}

func TestPrizeNow_DegenerateWindow(t *testing.T) {
	assert.Equal(t, int64(0), sprint.PrizeNow(100, t0, t0, t0))
	assert.Equal(t, int64(0), sprint.PrizeNow(100, due, t0, t0))
}

func TestPrizeDropPerDay(t *testing.T) {
	assert.True(t, sprint.PrizeDropPerDay(100, t0, due).Equal(decimal.NewFromInt(10)))
	assert.True(t, sprint.PrizeDropPerDay(100, t0, t0.Add(72*time.Hour)).Equal(decimal.RequireFromString("33.33")))
	assert.True(t, sprint.PrizeDropPerDay(100, t0, t0).IsZero())
	assert.True(t, sprint.PrizeDropPerDay(100, due, t0).IsZero())
}

func TestPoolDroppedAndLostPoints(t *testing.T) {
	assert.Equal(t, int64(30), sprint.PoolDropped(100, t0, due, t0.Add(3*24*time.Hour)))
	assert.Equal(t, int64(15), sprint.LostPoints(3, 5))
	assert.Equal(t, int64(0), sprint.LostPoints(0, 5))
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func newService(t *testing.T, now *time.Time) (*sprint.Service, *points.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ledger := points.NewLedger(mem, points.DefaultCategoryConfig(), nil, nil)
	svc := sprint.NewService(mem, ledger, nil)
	svc.Now = func() time.Time { return *now }
	return svc, ledger, mem
}

func TestService_CompletePaysPrizeOnce(t *testing.T) {
	// GIVEN: A 100-point sprint over 10 days
	// WHEN: Completed halfway, then completed again
	// THEN: 50 points are paid once and the second completion is rejected

	now := t0
	svc, ledger, _ := newService(t, &now)
	ctx := context.Background()

	a, err := svc.Assign(ctx, sprint.Assignment{StudentID: "stu-1", Title: "Splits", DueAt: due, RewardPoints: 100, PenaltyPerDay: 5})
	require.NoError(t, err)
	assert.Equal(t, t0, a.AssignedAt)

	now = t0.Add(5 * 24 * time.Hour)
	done, err := svc.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), done.Paid)
	require.NotNil(t, done.Totals)
	assert.Equal(t, int64(50), done.Totals.Balance)

	_, err = svc.Complete(ctx, a.ID)
	assert.ErrorIs(t, err, points.ErrAlreadyCompleted)

	entries, _ := ledger.Entries(ctx, "stu-1")
	require.Len(t, entries, 1)
	assert.Equal(t, points.CategorySkillSprint, entries[0].Category)
	assert.Equal(t, "sprint:"+a.ID, entries[0].IdempotencyKey)
}

func TestService_CompleteAfterDeadlinePaysNothing(t *testing.T) {
	now := t0
	svc, ledger, _ := newService(t, &now)
	ctx := context.Background()

	a, err := svc.Assign(ctx, sprint.Assignment{StudentID: "stu-1", DueAt: due, RewardPoints: 100})
	require.NoError(t, err)

	now = due.Add(time.Hour)
	done, err := svc.Complete(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), done.Paid)
	assert.Nil(t, done.Totals)

	entries, _ := ledger.Entries(ctx, "stu-1")
	assert.Empty(t, entries)
}

func TestAssignment_Display(t *testing.T) {
	now := t0
	svc, _, mem := newService(t, &now)
	ctx := context.Background()

	a, err := svc.Assign(ctx, sprint.Assignment{StudentID: "stu-1", DueAt: due, RewardPoints: 100, PenaltyPerDay: 4})
	require.NoError(t, err)
	mem.ChargeDays(a.ID, 2)

	a, err = svc.Get(ctx, a.ID)
	require.NoError(t, err)

	d := a.Display(t0.Add(2 * 24 * time.Hour))
	assert.Equal(t, int64(80), d.PrizeNow)
	assert.Equal(t, int64(20), d.PoolDropped)
	assert.Equal(t, int64(8), d.LostPoints)
	assert.False(t, d.Overdue)

	assert.True(t, a.Display(due).Overdue)
}

func TestService_AssignValidation(t *testing.T) {
	now := t0
	svc, _, _ := newService(t, &now)
	ctx := context.Background()

	_, err := svc.Assign(ctx, sprint.Assignment{StudentID: "stu-1", DueAt: t0.Add(-time.Hour), RewardPoints: 10})
	assert.ErrorIs(t, err, points.ErrValidation)

	_, err = svc.Assign(ctx, sprint.Assignment{DueAt: due, RewardPoints: 10})
	assert.ErrorIs(t, err, points.ErrValidation)

	_, err = svc.Complete(ctx, "nope")
	assert.ErrorIs(t, err, points.ErrNotFound)
}
