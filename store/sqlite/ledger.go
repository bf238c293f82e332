package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/warp/points-engine/points"
)

// =============================================================================
// LEDGER STORE (points.Store interface)
// =============================================================================

const entryColumns = `id, student_id, points, category, note, source_type, source_id,
	idempotency_key, created_at`

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, entries []points.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for duplicate idempotency keys within the batch first
	keys := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return points.ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, e := range entries {
		if err := appendEntry(ctx, tx, e); err != nil {
			return err
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit entries")
}

func appendEntry(ctx context.Context, tx *sql.Tx, e points.Entry) error {
	query := `INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := tx.ExecContext(ctx, query,
		string(e.ID),
		string(e.StudentID),
		e.Points,
		string(e.Category),
		e.Note,
		e.SourceType,
		e.SourceID,
		nullString(e.IdempotencyKey),
		formatTime(e.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return points.ErrDuplicateIdempotencyKey
		}
		return errors.Wrap(err, "failed to append entry")
	}
	return nil
}

// Entries returns a student's full log, oldest first.
func (s *Store) Entries(ctx context.Context, id points.StudentID) ([]points.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE student_id = ?
		ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, string(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query entries")
	}
	defer rows.Close()

	var entries []points.Entry
	for rows.Next() {
		var (
			e         points.Entry
			key       sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.StudentID, &e.Points, &e.Category, &e.Note,
			&e.SourceType, &e.SourceID, &key, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan entry")
		}
		e.IdempotencyKey = key.String
		e.CreatedAt = parseTime(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// TOTALS STORE (points.TotalsStore interface)
// =============================================================================

// SaveTotals overwrites the cached totals for a student.
func (s *Store) SaveTotals(ctx context.Context, t points.Totals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO student_totals (student_id, balance, lifetime, level, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(student_id) DO UPDATE SET
			balance = excluded.balance,
			lifetime = excluded.lifetime,
			level = excluded.level,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query,
		string(t.StudentID), t.Balance, t.Lifetime, t.Level, formatTime(t.UpdatedAt))
	return errors.Wrap(err, "failed to save totals")
}

// Totals returns points.ErrNotFound if the student has never been recomputed.
func (s *Store) Totals(ctx context.Context, id points.StudentID) (points.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		t         points.Totals
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT student_id, balance, lifetime, level, updated_at
		 FROM student_totals WHERE student_id = ?`, string(id),
	).Scan(&t.StudentID, &t.Balance, &t.Lifetime, &t.Level, &updatedAt)
	if err == sql.ErrNoRows {
		return points.Totals{}, points.ErrNotFound
	}
	if err != nil {
		return points.Totals{}, errors.Wrap(err, "failed to load totals")
	}
	t.UpdatedAt = parseTime(updatedAt)
	return t, nil
}

// =============================================================================
// ROSTER (points.Roster interface)
// =============================================================================

const studentQuery = `
	SELECT s.id, s.name, s.is_competition_team,
	       COALESCE(t.balance, 0), COALESCE(t.lifetime, 0), COALESCE(t.level, 0),
	       COALESCE(t.updated_at, '')
	FROM students s
	LEFT JOIN student_totals t ON t.student_id = s.id`

// SaveStudent creates or renames a roster entry. Totals are left alone.
func (s *Store) SaveStudent(ctx context.Context, st points.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO students (id, name, is_competition_team)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_competition_team = excluded.is_competition_team
	`
	_, err := s.db.ExecContext(ctx, query, string(st.ID), st.Name, st.IsCompetitionTeam)
	return errors.Wrap(err, "failed to save student")
}

func (s *Store) Student(ctx context.Context, id points.StudentID) (points.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, err := scanStudent(s.db.QueryRowContext(ctx, studentQuery+` WHERE s.id = ?`, string(id)))
	if err == sql.ErrNoRows {
		return points.Student{}, points.ErrNotFound
	}
	if err != nil {
		return points.Student{}, errors.Wrap(err, "failed to load student")
	}
	return st, nil
}

// Students returns the roster ordered by name.
func (s *Store) Students(ctx context.Context) ([]points.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, studentQuery+` ORDER BY s.name, s.id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query students")
	}
	defer rows.Close()

	var out []points.Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan student")
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (points.Student, error) {
	var (
		st        points.Student
		updatedAt string
	)
	err := row.Scan(&st.ID, &st.Name, &st.IsCompetitionTeam,
		&st.Totals.Balance, &st.Totals.Lifetime, &st.Totals.Level, &updatedAt)
	if err != nil {
		return points.Student{}, err
	}
	if updatedAt != "" {
		st.Totals.StudentID = st.ID
		st.Totals.UpdatedAt = parseTime(updatedAt)
	}
	return st, nil
}

// =============================================================================
// NOTIFICATIONS (points.Notifier interface)
// =============================================================================

func (s *Store) Notify(ctx context.Context, n points.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, student_id, message, kind, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n.ID, string(n.StudentID), n.Message, n.Kind, formatTime(n.CreatedAt))
	return errors.Wrap(err, "failed to save notification")
}

// Notifications returns a student's notifications, newest first.
func (s *Store) Notifications(ctx context.Context, id points.StudentID) ([]points.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, student_id, message, kind, created_at
		 FROM notifications WHERE student_id = ?
		 ORDER BY created_at DESC, rowid DESC`, string(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query notifications")
	}
	defer rows.Close()

	var out []points.Notification
	for rows.Next() {
		var (
			n         points.Notification
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.StudentID, &n.Message, &n.Kind, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan notification")
		}
		n.CreatedAt = parseTime(createdAt)
		out = append(out, n)
	}
	return out, rows.Err()
}
