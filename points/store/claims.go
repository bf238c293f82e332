package store

import (
	"context"
	"sort"

	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// DAILY CLAIMS
// =============================================================================

type claimKey struct {
	student  points.StudentID
	category string
	dateKey  string
}

func (m *Memory) InsertClaim(_ context.Context, c claims.Claim) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := claimKey{c.StudentID, c.Category, c.DateKey}
	if _, ok := m.claimIndex[k]; ok {
		return points.ErrRejectedClaim
	}
	m.claimIndex[k] = c.ID
	m.claims = append(m.claims, c)
	return nil
}

func (m *Memory) UnpaidClaims(_ context.Context) ([]claims.Claim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	paid := make(map[string]bool)
	for _, list := range m.entries {
		for _, e := range list {
			if e.SourceType == points.SourceDailyClaim {
				paid[e.SourceID] = true
			}
		}
	}

	var out []claims.Claim
	for _, c := range m.claims {
		if !paid[c.ID] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClaimedAt.Before(out[j].ClaimedAt) })
	return out, nil
}
