package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/warp/points-engine/claims"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// DAILY CLAIM STORE (claims.Store interface)
// =============================================================================

// InsertClaim writes the guard row. The unique index on
// (student_id, category, date_key) is the only concurrency gate.
func (s *Store) InsertClaim(ctx context.Context, c claims.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_claims (id, student_id, category, date_key, claimed_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, string(c.StudentID), c.Category, c.DateKey, formatTime(c.ClaimedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return points.ErrRejectedClaim
		}
		return errors.Wrap(err, "failed to insert claim")
	}
	return nil
}

// UnpaidClaims lists claims that no daily_claim ledger entry points back to.
func (s *Store) UnpaidClaims(ctx context.Context) ([]claims.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT c.id, c.student_id, c.category, c.date_key, c.claimed_at
		FROM daily_claims c
		WHERE NOT EXISTS (
			SELECT 1 FROM ledger_entries e
			WHERE e.source_type = ? AND e.source_id = c.id
		)
		ORDER BY c.claimed_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, points.SourceDailyClaim)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query unpaid claims")
	}
	defer rows.Close()

	var out []claims.Claim
	for rows.Next() {
		var (
			c         claims.Claim
			claimedAt string
		)
		if err := rows.Scan(&c.ID, &c.StudentID, &c.Category, &c.DateKey, &claimedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan claim")
		}
		c.ClaimedAt = parseTime(claimedAt)
		out = append(out, c)
	}
	return out, rows.Err()
}
