// Package store provides an in-memory implementation of every store
// interface in the engine: ledger, totals, roster, notifications, daily
// claims, badges, sprints and level thresholds.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/sprint"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu            sync.RWMutex
	entries       map[points.StudentID][]points.Entry
	idempotency   map[string]bool
	totals        map[points.StudentID]points.Totals
	students      map[points.StudentID]points.Student
	notifications []points.Notification

	claims     []claims.Claim
	claimIndex map[claimKey]string

	rules    map[string]badges.Rule
	awards   map[string]map[points.StudentID]badges.Award
	activity map[points.StudentID]map[badges.ActivityKind]int64

	sprints map[string]sprint.Assignment

	thresholds levels.Table
}

func NewMemory() *Memory {
	return &Memory{
		entries:     make(map[points.StudentID][]points.Entry),
		idempotency: make(map[string]bool),
		totals:      make(map[points.StudentID]points.Totals),
		students:    make(map[points.StudentID]points.Student),
		claimIndex:  make(map[claimKey]string),
		rules:       make(map[string]badges.Rule),
		awards:      make(map[string]map[points.StudentID]badges.Award),
		activity:    make(map[points.StudentID]map[badges.ActivityKind]int64),
		sprints:     make(map[string]sprint.Assignment),
	}
}

// AppendBatch adds entries atomically. Append-only.
func (m *Memory) AppendBatch(_ context.Context, entries []points.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Check all idempotency keys first (atomic check)
	for _, e := range entries {
		if e.IdempotencyKey != "" && m.idempotency[e.IdempotencyKey] {
			return points.ErrDuplicateIdempotencyKey
		}
	}

	for _, e := range entries {
		list := m.entries[e.StudentID]

		// Keep each student's log ordered by CreatedAt.
		i := sort.Search(len(list), func(i int) bool {
			return list[i].CreatedAt.After(e.CreatedAt)
		})
		list = append(list, points.Entry{})
		copy(list[i+1:], list[i:])
		list[i] = e
		m.entries[e.StudentID] = list

		if e.IdempotencyKey != "" {
			m.idempotency[e.IdempotencyKey] = true
		}
	}
	return nil
}

func (m *Memory) Entries(_ context.Context, id points.StudentID) ([]points.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]points.Entry, len(m.entries[id]))
	copy(result, m.entries[id])
	return result, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[key], nil
}

// =============================================================================
// TOTALS
// =============================================================================

func (m *Memory) SaveTotals(_ context.Context, t points.Totals) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[t.StudentID] = t
	return nil
}

func (m *Memory) Totals(_ context.Context, id points.StudentID) (points.Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.totals[id]
	if !ok {
		return points.Totals{}, points.ErrNotFound
	}
	return t, nil
}

// =============================================================================
// ROSTER
// =============================================================================

// AddStudent registers a roster entry.
func (m *Memory) AddStudent(s points.Student) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[s.ID] = s
}

func (m *Memory) Student(_ context.Context, id points.StudentID) (points.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return points.Student{}, points.ErrNotFound
	}
	s.Totals = m.totals[id]
	return s, nil
}

func (m *Memory) Students(_ context.Context) ([]points.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]points.Student, 0, len(m.students))
	for id, s := range m.students {
		s.Totals = m.totals[id]
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (m *Memory) Notify(_ context.Context, n points.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// Notifications returns everything recorded so far.
func (m *Memory) Notifications() []points.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]points.Notification(nil), m.notifications...)
}
