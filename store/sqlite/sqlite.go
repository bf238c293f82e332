/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the points engine on SQLite:
  the append-only ledger, cached totals, the roster, daily claims, badge
  rules and awards, skill sprints, level thresholds, and the raw values the
  leaderboards rank.

INTERFACES IMPLEMENTED:
  points.LedgerStore:  Ledger entries and cached totals
  points.Roster:       Student lookup
  points.Notifier:     Notification rows
  claims.Store:        Daily claim guard rows
  badges.Store:        Badge rules, activity aggregates, awards
  sprint.Store:        Skill sprint assignments
  levels.Store:        Persisted level thresholds
  leaderboard.Source:  Balances, weekly sums, skill successes, stat values

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries
  - Corrections are new entries (category "adjustment")

KEY TABLES:
  ledger_entries:   Immutable log of every point change
  student_totals:   Cached balance/lifetime/level, rebuilt by recompute
  daily_claims:     One row per (student, category, civil date)
  student_badges:   One row per (student, badge)
  skill_sprints:    Time-boxed challenges with decaying prize

UNIQUENESS GUARDS:
  The concurrency gates of the engine are unique constraints here:
  - ledger_entries.idempotency_key:                  retried payouts
  - daily_claims(student_id, category, date_key):    daily claims
  - student_badges(student_id, badge_id):            badge awards

TIME FORMAT:
  Timestamps are stored as fixed-width UTC text so that string comparison
  orders them chronologically.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to a
  single connection so every query sees the same database.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time

USAGE:
  store, err := sqlite.New("./data/points.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := points.NewLedger(store, points.DefaultCategoryConfig(), resolver, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - points/store.go: Ledger interface definitions
  - points/store: In-memory implementation for testing
*/
package sqlite

import (
	"database/sql"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/warp/points-engine/factory"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *factory.BadgeFactory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := NewFromDB(db)
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return store, nil
}

// NewFromDB wraps an already-open, already-migrated database.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db, factory: factory.NewBadgeFactory()}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		category TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		source_type TEXT NOT NULL DEFAULT '',
		source_id TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_student_created
		ON ledger_entries(student_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_created
		ON ledger_entries(created_at);
	CREATE INDEX IF NOT EXISTS idx_ledger_source
		ON ledger_entries(source_type, source_id);

	-- Students (roster, external)
	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_competition_team BOOLEAN NOT NULL DEFAULT FALSE
	);

	-- Cached totals (derived, rebuildable from ledger_entries)
	CREATE TABLE IF NOT EXISTS student_totals (
		student_id TEXT PRIMARY KEY,
		balance INTEGER NOT NULL,
		lifetime INTEGER NOT NULL,
		level INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Notifications (fire-and-forget)
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		message TEXT NOT NULL,
		kind TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notifications_student
		ON notifications(student_id, created_at);

	-- Daily claims
	CREATE TABLE IF NOT EXISTS daily_claims (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		category TEXT NOT NULL,
		date_key TEXT NOT NULL,
		claimed_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_daily_claims_unique
		ON daily_claims(student_id, category, date_key);

	-- Badge rules (JSON, see factory/badge.go)
	CREATE TABLE IF NOT EXISTS badge_rules (
		id TEXT PRIMARY KEY,
		rule_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Badge awards
	CREATE TABLE IF NOT EXISTS student_badges (
		student_id TEXT NOT NULL,
		badge_id TEXT NOT NULL,
		awarded_at TEXT NOT NULL,
		points_awarded INTEGER NOT NULL DEFAULT 0,
		note TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (student_id, badge_id)
	);

	CREATE INDEX IF NOT EXISTS idx_student_badges_badge
		ON student_badges(badge_id);

	-- Activity counters feeding badge criteria
	CREATE TABLE IF NOT EXISTS student_activity (
		student_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (student_id, kind)
	);

	-- Level thresholds (optional; generated when empty)
	CREATE TABLE IF NOT EXISTS level_thresholds (
		level INTEGER PRIMARY KEY,
		min_lifetime INTEGER NOT NULL
	);

	-- Skill sprints
	CREATE TABLE IF NOT EXISTS skill_sprints (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		assigned_at TEXT NOT NULL,
		due_at TEXT NOT NULL,
		penalty_per_day INTEGER NOT NULL DEFAULT 0,
		reward_points INTEGER NOT NULL DEFAULT 0,
		charged_days INTEGER NOT NULL DEFAULT 0,
		completed_at TEXT,
		paid_points INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_skill_sprints_student
		ON skill_sprints(student_id);

	-- Skill results (skill_daily leaderboard)
	CREATE TABLE IF NOT EXISTS skill_results (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		skill_id TEXT NOT NULL,
		date_key TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_skill_results_skill_date
		ON skill_results(skill_id, date_key);

	-- Performance stats (performance_stat leaderboard)
	CREATE TABLE IF NOT EXISTS performance_stats (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		higher_is_better BOOLEAN NOT NULL DEFAULT TRUE,
		min_value TEXT
	);

	CREATE TABLE IF NOT EXISTS performance_stat_values (
		stat_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		value TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		PRIMARY KEY (stat_id, student_id)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand may use RFC3339.
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
