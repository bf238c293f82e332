package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/warp/points-engine/leaderboard"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// LEADERBOARD SOURCE (leaderboard.Source interface)
// =============================================================================

// BalanceRows returns every rostered student's cached balance. Students that
// were never recomputed rank with 0.
func (s *Store) BalanceRows(ctx context.Context) ([]leaderboard.Row, error) {
	return s.intRows(ctx, `
		SELECT s.id, s.name, COALESCE(t.balance, 0)
		FROM students s LEFT JOIN student_totals t ON t.student_id = s.id`)
}

func (s *Store) LifetimeRows(ctx context.Context) ([]leaderboard.Row, error) {
	return s.intRows(ctx, `
		SELECT s.id, s.name, COALESCE(t.lifetime, 0)
		FROM students s LEFT JOIN student_totals t ON t.student_id = s.id`)
}

// PointsSince sums entries created at or after since, skipping excluded
// categories. Students with no qualifying entries are omitted.
func (s *Store) PointsSince(ctx context.Context, since time.Time, exclude []points.Category) ([]leaderboard.Row, error) {
	query := `
		SELECT s.id, s.name, SUM(e.points)
		FROM ledger_entries e
		JOIN students s ON s.id = e.student_id
		WHERE e.created_at >= ?`
	args := []any{formatTime(since)}
	if len(exclude) > 0 {
		query += ` AND e.category NOT IN (` + placeholders(len(exclude)) + `)`
		for _, c := range exclude {
			args = append(args, string(c))
		}
	}
	query += ` GROUP BY s.id, s.name`

	return s.intRows(ctx, query, args...)
}

// SkillSuccesses counts successful results per student for one skill on one
// civil date.
func (s *Store) SkillSuccesses(ctx context.Context, skillID, dateKey string) ([]leaderboard.Row, error) {
	return s.intRows(ctx, `
		SELECT s.id, s.name, COUNT(*)
		FROM skill_results r
		JOIN students s ON s.id = r.student_id
		WHERE r.skill_id = ? AND r.date_key = ? AND r.success = TRUE
		GROUP BY s.id, s.name`, skillID, dateKey)
}

func (s *Store) intRows(ctx context.Context, query string, args ...any) ([]leaderboard.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query leaderboard rows")
	}
	defer rows.Close()

	var out []leaderboard.Row
	for rows.Next() {
		var (
			r     leaderboard.Row
			value int64
		)
		if err := rows.Scan(&r.StudentID, &r.Name, &value); err != nil {
			return nil, errors.Wrap(err, "failed to scan leaderboard row")
		}
		r.Value = decimal.NewFromInt(value)
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// PERFORMANCE STATS
// =============================================================================

// SaveStat creates or updates a stat definition.
func (s *Store) SaveStat(ctx context.Context, st leaderboard.Stat) error {
	if err := st.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var minValue sql.NullString
	if st.MinValue != nil {
		minValue = sql.NullString{String: st.MinValue.String(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_stats (id, name, unit, higher_is_better, min_value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			unit = excluded.unit,
			higher_is_better = excluded.higher_is_better,
			min_value = excluded.min_value`,
		st.ID, st.Name, st.Unit, st.HigherIsBetter, minValue)
	return errors.Wrap(err, "failed to save stat")
}

// Stat returns points.ErrNotFound for unknown stats.
func (s *Store) Stat(ctx context.Context, id string) (leaderboard.Stat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		st       leaderboard.Stat
		minValue sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, unit, higher_is_better, min_value FROM performance_stats WHERE id = ?`, id,
	).Scan(&st.ID, &st.Name, &st.Unit, &st.HigherIsBetter, &minValue)
	if err == sql.ErrNoRows {
		return leaderboard.Stat{}, points.ErrNotFound
	}
	if err != nil {
		return leaderboard.Stat{}, errors.Wrap(err, "failed to load stat")
	}
	if minValue.Valid {
		v, err := decimal.NewFromString(minValue.String)
		if err != nil {
			return leaderboard.Stat{}, errors.Wrapf(err, "stat %s min_value", id)
		}
		st.MinValue = &v
	}
	return st, nil
}

// RecordStatValue sets a student's current value for a stat.
func (s *Store) RecordStatValue(ctx context.Context, statID string, id points.StudentID, value decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO performance_stat_values (stat_id, student_id, value, recorded_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(stat_id, student_id) DO UPDATE SET
			value = excluded.value,
			recorded_at = excluded.recorded_at`,
		statID, string(id), value.String(), formatTime(at))
	return errors.Wrap(err, "failed to record stat value")
}

// StatValues returns each rostered student's current value for a stat.
// Values are stored as decimal text, so ordering happens in the ranker.
func (s *Store) StatValues(ctx context.Context, statID string) ([]leaderboard.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, v.value
		FROM performance_stat_values v
		JOIN students s ON s.id = v.student_id
		WHERE v.stat_id = ?`, statID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query stat values")
	}
	defer rows.Close()

	var out []leaderboard.Row
	for rows.Next() {
		var (
			r     leaderboard.Row
			value string
		)
		if err := rows.Scan(&r.StudentID, &r.Name, &value); err != nil {
			return nil, errors.Wrap(err, "failed to scan stat value")
		}
		if r.Value, err = decimal.NewFromString(value); err != nil {
			return nil, errors.Wrapf(err, "stat %s value for %s", statID, r.StudentID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// SKILL RESULTS
// =============================================================================

func (s *Store) RecordSkillResult(ctx context.Context, r leaderboard.SkillResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skill_results (id, student_id, skill_id, date_key, success, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.StudentID), r.SkillID, r.DateKey, r.Success, formatTime(r.RecordedAt))
	return errors.Wrap(err, "failed to record skill result")
}
