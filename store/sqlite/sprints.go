package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/warp/points-engine/levels"
	"github.com/warp/points-engine/points"
	"github.com/warp/points-engine/sprint"
)

// =============================================================================
// SKILL SPRINTS (sprint.Store interface)
// =============================================================================

const sprintColumns = `id, student_id, title, assigned_at, due_at, penalty_per_day,
	reward_points, charged_days, completed_at, paid_points`

func (s *Store) CreateSprint(ctx context.Context, a sprint.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `INSERT INTO skill_sprints (`+sprintColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, 0)`,
		a.ID, string(a.StudentID), a.Title, formatTime(a.AssignedAt), formatTime(a.DueAt),
		a.PenaltyPerDay, a.RewardPoints, a.ChargedDays)
	return errors.Wrap(err, "failed to create sprint")
}

func (s *Store) Sprint(ctx context.Context, id string) (sprint.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := scanSprint(s.db.QueryRowContext(ctx,
		`SELECT `+sprintColumns+` FROM skill_sprints WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return sprint.Assignment{}, points.ErrNotFound
	}
	if err != nil {
		return sprint.Assignment{}, errors.Wrap(err, "failed to load sprint")
	}
	return a, nil
}

// StudentSprints returns a student's sprints ordered by due date.
func (s *Store) StudentSprints(ctx context.Context, id points.StudentID) ([]sprint.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sprintColumns+` FROM skill_sprints WHERE student_id = ? ORDER BY due_at, id`,
		string(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query sprints")
	}
	defer rows.Close()

	var out []sprint.Assignment
	for rows.Next() {
		a, err := scanSprint(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan sprint")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CompleteSprint closes an open sprint. The completed_at IS NULL predicate
// makes a second completion a no-op that is reported as ErrAlreadyCompleted.
func (s *Store) CompleteSprint(ctx context.Context, id string, at time.Time, paid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE skill_sprints SET completed_at = ?, paid_points = ?
		WHERE id = ? AND completed_at IS NULL`,
		formatTime(at), paid, id)
	if err != nil {
		return errors.Wrap(err, "failed to complete sprint")
	}
	return s.sprintUpdated(ctx, res, id)
}

// ChargeDays sets the charged-day counter of an open sprint. Called by the
// external accrual process. The counter never moves backwards.
func (s *Store) ChargeDays(ctx context.Context, id string, days int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE skill_sprints SET charged_days = ?
		WHERE id = ? AND completed_at IS NULL AND charged_days <= ?`, days, id, days)
	if err != nil {
		return errors.Wrap(err, "failed to charge sprint")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 1 {
		return nil
	}

	var (
		completed sql.NullString
		charged   int
	)
	err = s.db.QueryRowContext(ctx, `SELECT completed_at, charged_days FROM skill_sprints WHERE id = ?`, id).
		Scan(&completed, &charged)
	switch {
	case err == sql.ErrNoRows:
		return points.ErrNotFound
	case err != nil:
		return errors.Wrap(err, "failed to load sprint")
	case completed.Valid:
		return points.ErrAlreadyCompleted
	default:
		return points.Invalid("days", fmt.Sprintf("must not decrease below %d", charged))
	}
}

// sprintUpdated tells a missing sprint apart from a completed one when an
// update touched no rows.
func (s *Store) sprintUpdated(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 1 {
		return nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM skill_sprints WHERE id = ?`, id).Scan(&count); err != nil {
		return errors.Wrap(err, "failed to load sprint")
	}
	if count == 0 {
		return points.ErrNotFound
	}
	return points.ErrAlreadyCompleted
}

func scanSprint(row rowScanner) (sprint.Assignment, error) {
	var (
		a                 sprint.Assignment
		assignedAt, dueAt string
		completedAt       sql.NullString
	)
	err := row.Scan(&a.ID, &a.StudentID, &a.Title, &assignedAt, &dueAt, &a.PenaltyPerDay,
		&a.RewardPoints, &a.ChargedDays, &completedAt, &a.PaidPoints)
	if err != nil {
		return sprint.Assignment{}, err
	}
	a.AssignedAt = parseTime(assignedAt)
	a.DueAt = parseTime(dueAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		a.CompletedAt = &t
	}
	return a, nil
}

// =============================================================================
// LEVEL THRESHOLDS (levels.Store interface)
// =============================================================================

// Thresholds returns the persisted table, empty when none is stored.
func (s *Store) Thresholds(ctx context.Context) (levels.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT level, min_lifetime FROM level_thresholds ORDER BY level`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query thresholds")
	}
	defer rows.Close()

	var table levels.Table
	for rows.Next() {
		var t levels.Threshold
		if err := rows.Scan(&t.Level, &t.MinLifetime); err != nil {
			return nil, errors.Wrap(err, "failed to scan threshold")
		}
		table = append(table, t)
	}
	return table, rows.Err()
}

// SaveThresholds replaces the persisted table in one transaction.
func (s *Store) SaveThresholds(ctx context.Context, table levels.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM level_thresholds`); err != nil {
		return errors.Wrap(err, "failed to clear thresholds")
	}
	for _, t := range table {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO level_thresholds (level, min_lifetime) VALUES (?, ?)`,
			t.Level, t.MinLifetime); err != nil {
			return errors.Wrap(err, "failed to insert threshold")
		}
	}
	return errors.Wrap(tx.Commit(), "failed to commit thresholds")
}
