package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/warp/points-engine/badges"
	"github.com/warp/points-engine/points"
)

// =============================================================================
// BADGE RULES (badges.Store interface)
// =============================================================================

// Rules returns every stored rule ordered by id. A row that no longer parses
// comes back with LoadErr set so one bad rule cannot hide the others.
func (s *Store) Rules(ctx context.Context) ([]badges.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, rule_json FROM badge_rules ORDER BY id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query badge rules")
	}
	defer rows.Close()

	var out []badges.Rule
	for rows.Next() {
		var id, ruleJSON string
		if err := rows.Scan(&id, &ruleJSON); err != nil {
			return nil, errors.Wrap(err, "failed to scan badge rule")
		}
		out = append(out, s.parseStored(id, ruleJSON))
	}
	return out, rows.Err()
}

func (s *Store) Rule(ctx context.Context, id string) (badges.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ruleJSON string
	err := s.db.QueryRowContext(ctx, `SELECT rule_json FROM badge_rules WHERE id = ?`, id).Scan(&ruleJSON)
	if err == sql.ErrNoRows {
		return badges.Rule{}, points.ErrNotFound
	}
	if err != nil {
		return badges.Rule{}, errors.Wrap(err, "failed to load badge rule")
	}
	return s.parseStored(id, ruleJSON), nil
}

func (s *Store) parseStored(id, ruleJSON string) badges.Rule {
	rule, err := s.factory.ParseRule(ruleJSON)
	if err != nil {
		return badges.Rule{ID: id, LoadErr: errors.Wrapf(err, "stored rule %s", id)}
	}
	return rule
}

// SaveRule stores the rule as JSON. Invalid rules are rejected before the
// write.
func (s *Store) SaveRule(ctx context.Context, r badges.Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	ruleJSON, err := s.factory.Encode(r)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO badge_rules (id, rule_json, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rule_json = excluded.rule_json,
			updated_at = excluded.updated_at`,
		r.ID, ruleJSON, formatTime(time.Now()))
	return errors.Wrap(err, "failed to save badge rule")
}

// =============================================================================
// ACTIVITY AND AGGREGATES
// =============================================================================

// AddActivity bumps a student's activity counter by delta.
func (s *Store) AddActivity(ctx context.Context, id points.StudentID, kind badges.ActivityKind, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO student_activity (student_id, kind, count) VALUES (?, ?, ?)
		ON CONFLICT(student_id, kind) DO UPDATE SET count = count + excluded.count`,
		string(id), string(kind), delta)
	return errors.Wrap(err, "failed to add activity")
}

// Aggregates loads criteria inputs for the given students, or the whole roster
// when ids is empty. Unknown ids are skipped.
func (s *Store) Aggregates(ctx context.Context, ids []points.StudentID) ([]badges.Aggregates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter, args := "", []any{}
	if len(ids) > 0 {
		filter = ` WHERE s.id IN (` + placeholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, string(id))
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.is_competition_team,
		       COALESCE(t.lifetime, 0), COALESCE(t.level, 0)
		FROM students s
		LEFT JOIN student_totals t ON t.student_id = s.id`+filter+`
		ORDER BY s.id`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query aggregates")
	}

	var (
		out   []badges.Aggregates
		index = make(map[points.StudentID]int)
	)
	for rows.Next() {
		var a badges.Aggregates
		if err := rows.Scan(&a.StudentID, &a.Name, &a.IsCompetitionTeam, &a.Lifetime, &a.Level); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan aggregates")
		}
		a.Counts = make(map[badges.ActivityKind]int64)
		index[a.StudentID] = len(out)
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	counts, err := s.db.QueryContext(ctx, `
		SELECT a.student_id, a.kind, a.count
		FROM student_activity a
		JOIN students s ON s.id = a.student_id`+filter, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query activity")
	}
	defer counts.Close()

	for counts.Next() {
		var (
			id    points.StudentID
			kind  badges.ActivityKind
			count int64
		)
		if err := counts.Scan(&id, &kind, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan activity")
		}
		if i, ok := index[id]; ok {
			out[i].Counts[kind] = count
		}
	}
	return out, counts.Err()
}

// =============================================================================
// AWARDS
// =============================================================================

func (s *Store) Holders(ctx context.Context, badgeID string) (map[points.StudentID]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT student_id FROM student_badges WHERE badge_id = ?`, badgeID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query badge holders")
	}
	defer rows.Close()

	out := make(map[points.StudentID]bool)
	for rows.Next() {
		var id points.StudentID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan badge holder")
		}
		out[id] = true
	}
	return out, rows.Err()
}

// InsertAwards writes award rows in one transaction. Rows that already exist
// are ignored; only the rows actually inserted are returned. Any failure
// rolls back the whole batch.
func (s *Store) InsertAwards(ctx context.Context, awards []badges.Award) ([]badges.Award, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	var inserted []badges.Award
	for _, a := range awards {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO student_badges
			(student_id, badge_id, awarded_at, points_awarded, note)
			VALUES (?, ?, ?, ?, ?)`,
			string(a.StudentID), a.BadgeID, formatTime(a.AwardedAt), a.PointsAwarded, a.Note)
		if err != nil {
			return nil, errors.Wrap(err, "failed to insert award")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, errors.Wrap(err, "failed to read affected rows")
		}
		if n == 1 {
			inserted = append(inserted, a)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit awards")
	}
	return inserted, nil
}

// Awards returns a student's badges ordered by badge id.
func (s *Store) Awards(ctx context.Context, id points.StudentID) ([]badges.Award, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT student_id, badge_id, awarded_at, points_awarded, note
		FROM student_badges WHERE student_id = ?
		ORDER BY badge_id`, string(id))
	if err != nil {
		return nil, errors.Wrap(err, "failed to query awards")
	}
	defer rows.Close()

	var out []badges.Award
	for rows.Next() {
		var (
			a         badges.Award
			awardedAt string
		)
		if err := rows.Scan(&a.StudentID, &a.BadgeID, &awardedAt, &a.PointsAwarded, &a.Note); err != nil {
			return nil, errors.Wrap(err, "failed to scan award")
		}
		a.AwardedAt = parseTime(awardedAt)
		out = append(out, a)
	}
	return out, rows.Err()
}
