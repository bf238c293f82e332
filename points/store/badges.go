package store

import (
	"context"
	"sort"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// BADGES
// =============================================================================

func (m *Memory) Rules(_ context.Context) ([]badges.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]badges.Rule, 0, len(m.rules))
	for _, r := range m.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Rule(_ context.Context, id string) (badges.Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rules[id]
	if !ok {
		return badges.Rule{}, points.ErrNotFound
	}
	return r, nil
}

func (m *Memory) SaveRule(_ context.Context, r badges.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[r.ID] = r
	return nil
}

// AddActivity bumps an activity counter.
func (m *Memory) AddActivity(_ context.Context, id points.StudentID, kind badges.ActivityKind, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := m.activity[id]
	if counts == nil {
		counts = make(map[badges.ActivityKind]int64)
		m.activity[id] = counts
	}
	counts[kind] += delta
	return nil
}

func (m *Memory) Aggregates(_ context.Context, ids []points.StudentID) ([]badges.Aggregates, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(ids) == 0 {
		for id := range m.students {
			ids = append(ids, id)
		}
	}

	var out []badges.Aggregates
	for _, id := range ids {
		s, ok := m.students[id]
		if !ok {
			continue
		}
		t := m.totals[id]
		counts := make(map[badges.ActivityKind]int64, len(m.activity[id]))
		for k, v := range m.activity[id] {
			counts[k] = v
		}
		out = append(out, badges.Aggregates{
			StudentID:         id,
			Name:              s.Name,
			Lifetime:          t.Lifetime,
			Level:             t.Level,
			IsCompetitionTeam: s.IsCompetitionTeam,
			Counts:            counts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (m *Memory) Holders(_ context.Context, badgeID string) (map[points.StudentID]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[points.StudentID]bool, len(m.awards[badgeID]))
	for id := range m.awards[badgeID] {
		out[id] = true
	}
	return out, nil
}

func (m *Memory) InsertAwards(_ context.Context, awards []badges.Award) ([]badges.Award, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inserted []badges.Award
	for _, a := range awards {
		byStudent := m.awards[a.BadgeID]
		if byStudent == nil {
			byStudent = make(map[points.StudentID]badges.Award)
			m.awards[a.BadgeID] = byStudent
		}
		if _, ok := byStudent[a.StudentID]; ok {
			continue
		}
		byStudent[a.StudentID] = a
		inserted = append(inserted, a)
	}
	return inserted, nil
}

func (m *Memory) Awards(_ context.Context, id points.StudentID) ([]badges.Award, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []badges.Award
	for _, byStudent := range m.awards {
		if a, ok := byStudent[id]; ok {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BadgeID < out[j].BadgeID })
	return out, nil
}
