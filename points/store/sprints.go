package store

import (
	"context"
	"sort"
	"time"

	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/sprint"
)

// =============================================================================
// SKILL SPRINTS
// =============================================================================

func (m *Memory) CreateSprint(_ context.Context, a sprint.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sprints[a.ID] = a
	return nil
}

func (m *Memory) Sprint(_ context.Context, id string) (sprint.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.sprints[id]
	if !ok {
		return sprint.Assignment{}, points.ErrNotFound
	}
	return a, nil
}

func (m *Memory) StudentSprints(_ context.Context, id points.StudentID) ([]sprint.Assignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []sprint.Assignment
	for _, a := range m.sprints {
		if a.StudentID == id {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (m *Memory) CompleteSprint(_ context.Context, id string, at time.Time, paid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.sprints[id]
	if !ok {
		return points.ErrNotFound
	}
	if a.CompletedAt != nil {
		return points.ErrAlreadyCompleted
	}
	a.CompletedAt = &at
	a.PaidPoints = paid
	m.sprints[id] = a
	return nil
}

// ChargeDays sets the charged-day counter, standing in for the external
// accrual process.
func (m *Memory) ChargeDays(id string, days int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.sprints[id]
	a.ChargedDays = days
	m.sprints[id] = a
}

// =============================================================================
// LEVEL THRESHOLDS
// =============================================================================

func (m *Memory) Thresholds(_ context.Context) (levels.Table, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append(levels.Table(nil), m.thresholds...), nil
}

func (m *Memory) SaveThresholds(_ context.Context, t levels.Table) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = append(levels.Table(nil), t...)
	return nil
}
