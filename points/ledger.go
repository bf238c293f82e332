/*
ledger.go - Append-only points log and the recompute engine

PURPOSE:
  The Ledger is the immutable source of truth for every point change.
  Balance and lifetime are never incremented in place: after every append the
  recompute engine re-derives them from the student's full log and writes the
  result to the denormalized totals. The log is the arena, the cached totals
  row is an index over it.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. ALL-OR-NOTHING: A multi-entry append commits every entry or none.
  3. RECOMPUTE BEFORE SUCCESS: Append returns only after totals are refreshed
     for every student it touched.
  4. NEVER ROLL BACK TO FIX A CACHE: If recompute fails after a successful
     append, the ledger stays as written; recompute is retried and a
     StaleTotalsError is returned if it still fails.

CONCURRENCY:
  Appends, spends and recomputes for the same student serialize on a
  per-student lock. A batch takes its students' locks in id order. Because
  each recompute reads the full log, the order in which two racing
  recomputes finish cannot corrupt the total.

BALANCE RULES:
  balance  = sum of all entries
  lifetime = sum of entries whose category counts toward lifetime
  level    = Leveler(lifetime)

SEE ALSO:
  - categories.go: Lifetime/weekly category configuration
  - store.go: Persistence interfaces
  - levels/: Level threshold calculator used as the Leveler
*/
package points

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"

	"github.com/warp/points-engine/metrics"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	store      LedgerStore
	categories CategoryConfig
	leveler    Leveler
	log        *log.Helper
	locks      *studentLocks

	// Now is the clock used to stamp entries and totals.
	Now func() time.Time

	// RecomputeAttempts bounds retries when a recompute fails after append.
	RecomputeAttempts int
	RetryBackoff      time.Duration

	hooksMu sync.RWMutex
	hooks   []func(ctx context.Context, t Totals)
}

// NewLedger creates a ledger. leveler may be nil, in which case every
// student stays at level 1.
func NewLedger(store LedgerStore, categories CategoryConfig, leveler Leveler, logger log.Logger) *Ledger {
	return &Ledger{
		store:             store,
		categories:        categories,
		leveler:           leveler,
		log:               LogHelper(logger, "points/ledger"),
		locks:             newStudentLocks(),
		Now:               time.Now,
		RecomputeAttempts: 3,
		RetryBackoff:      20 * time.Millisecond,
	}
}

func (l *Ledger) Categories() CategoryConfig { return l.categories }

// OnRecompute registers a callback run after every successful recompute.
// Used to invalidate read caches.
func (l *Ledger) OnRecompute(fn func(ctx context.Context, t Totals)) {
	l.hooksMu.Lock()
	defer l.hooksMu.Unlock()
	l.hooks = append(l.hooks, fn)
}

// Append writes entries in one transaction, then recomputes totals for every
// student touched. Totals are returned in student id order. The students'
// locks are held from the write through the recompute, so a concurrent Spend
// always checks against a balance that includes these entries.
func (l *Ledger) Append(ctx context.Context, entries []Entry) ([]Totals, error) {
	prepared, err := l.prepare(entries)
	if err != nil {
		return nil, err
	}
	ids := distinctStudents(prepared)
	unlock := l.locks.lockAll(ids)
	defer unlock()

	if err := l.store.AppendBatch(ctx, prepared); err != nil {
		l.log.WithContext(ctx).Errorf("append of %d entries failed: %v", len(prepared), err)
		return nil, Unavailable("append entries", err)
	}
	for _, e := range prepared {
		metrics.LedgerEntries.WithLabelValues(string(e.Category)).Inc()
	}

	var (
		results  []Totals
		firstErr error
	)
	for _, id := range ids {
		t, err := l.recomputeWithRetry(ctx, id)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, t)
	}
	return results, firstErr
}

// Spend appends a single negative entry only if the student's balance covers
// it. The balance check and the write happen under the student's lock.
func (l *Ledger) Spend(ctx context.Context, entry Entry) (Totals, error) {
	if entry.Points >= 0 {
		return Totals{}, invalid("points", "spend must be negative")
	}
	prepared, err := l.prepare([]Entry{entry})
	if err != nil {
		return Totals{}, err
	}
	id := prepared[0].StudentID

	unlock := l.locks.lock(id)
	defer unlock()

	// A replayed spend reports the duplicate, not the balance it already used.
	if key := prepared[0].IdempotencyKey; key != "" {
		used, err := l.store.Exists(ctx, key)
		if err != nil {
			return Totals{}, Unavailable("check idempotency key", err)
		}
		if used {
			return Totals{}, ErrDuplicateIdempotencyKey
		}
	}

	existing, err := l.store.Entries(ctx, id)
	if err != nil {
		return Totals{}, Unavailable("load entries", err)
	}
	balance, _ := l.categories.Sum(existing)
	if balance+prepared[0].Points < 0 {
		return Totals{}, &InsufficientBalanceError{
			StudentID: id,
			Available: balance,
			Requested: -prepared[0].Points,
		}
	}

	if err := l.store.AppendBatch(ctx, prepared); err != nil {
		return Totals{}, Unavailable("append spend", err)
	}
	metrics.LedgerEntries.WithLabelValues(string(prepared[0].Category)).Inc()

	return l.recomputeWithRetry(ctx, id)
}

// Recompute re-derives a student's totals from the full log and saves them.
// Safe to call repeatedly.
func (l *Ledger) Recompute(ctx context.Context, id StudentID) (Totals, error) {
	if id == "" {
		return Totals{}, invalid("student_id", "required")
	}
	unlock := l.locks.lock(id)
	defer unlock()
	return l.recomputeWithRetry(ctx, id)
}

// Entries returns a student's full log, oldest first.
func (l *Ledger) Entries(ctx context.Context, id StudentID) ([]Entry, error) {
	entries, err := l.store.Entries(ctx, id)
	if err != nil {
		return nil, Unavailable("load entries", err)
	}
	return entries, nil
}

// Totals returns the cached totals.
func (l *Ledger) Totals(ctx context.Context, id StudentID) (Totals, error) {
	t, err := l.store.Totals(ctx, id)
	if err != nil {
		return Totals{}, Unavailable("load totals", err)
	}
	return t, nil
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func (l *Ledger) recomputeWithRetry(ctx context.Context, id StudentID) (Totals, error) {
	attempts := l.RecomputeAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		t, err := l.recomputeLocked(ctx, id)
		if err == nil {
			return t, nil
		}
		lastErr = err
		metrics.RecomputeFailures.Inc()
		l.log.WithContext(ctx).Warnf("recompute %s attempt %d/%d failed: %v", id, attempt, attempts, err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			attempt = attempts
		case <-time.After(l.RetryBackoff * time.Duration(attempt)):
		}
	}

	l.log.WithContext(ctx).Errorf("totals for %s are stale after %d attempts: %v", id, attempts, lastErr)
	return Totals{}, &StaleTotalsError{StudentID: id, Err: lastErr}
}

func (l *Ledger) recomputeLocked(ctx context.Context, id StudentID) (Totals, error) {
	start := time.Now()

	entries, err := l.store.Entries(ctx, id)
	if err != nil {
		return Totals{}, err
	}
	balance, lifetime := l.categories.Sum(entries)

	level := 1
	if l.leveler != nil {
		level, err = l.leveler.LevelFor(ctx, lifetime)
		if err != nil {
			return Totals{}, err
		}
	}

	t := Totals{
		StudentID: id,
		Balance:   balance,
		Lifetime:  lifetime,
		Level:     level,
		UpdatedAt: l.Now().UTC(),
	}
	if err := l.store.SaveTotals(ctx, t); err != nil {
		return Totals{}, err
	}
	metrics.RecomputeDuration.Observe(time.Since(start).Seconds())

	l.hooksMu.RLock()
	hooks := l.hooks
	l.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(ctx, t)
	}
	return t, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (l *Ledger) prepare(entries []Entry) ([]Entry, error) {
	if len(entries) == 0 {
		return nil, invalid("entries", "at least one entry required")
	}

	now := l.Now().UTC()
	out := make([]Entry, len(entries))
	keys := make(map[string]bool)
	for i, e := range entries {
		switch {
		case e.StudentID == "":
			return nil, invalid("student_id", "required")
		case e.Points == 0:
			return nil, invalid("points", "must be non-zero")
		case e.Category == "":
			return nil, invalid("category", "required")
		}
		if e.IdempotencyKey != "" {
			if keys[e.IdempotencyKey] {
				return nil, ErrDuplicateIdempotencyKey
			}
			keys[e.IdempotencyKey] = true
		}
		if e.ID == "" {
			e.ID = EntryID(uuid.NewString())
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.SourceType == "" {
			e.SourceType = SourceManual
		}
		out[i] = e
	}
	return out, nil
}

func distinctStudents(entries []Entry) []StudentID {
	seen := make(map[StudentID]bool)
	var ids []StudentID
	for _, e := range entries {
		if !seen[e.StudentID] {
			seen[e.StudentID] = true
			ids = append(ids, e.StudentID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// studentLocks hands out one mutex per student, dropping it when unused.
type studentLocks struct {
	mu sync.Mutex
	m  map[StudentID]*studentLock
}

type studentLock struct {
	mu   sync.Mutex
	refs int
}

func newStudentLocks() *studentLocks {
	return &studentLocks{m: make(map[StudentID]*studentLock)}
}

func (s *studentLocks) lock(id StudentID) func() {
	s.mu.Lock()
	e := s.m[id]
	if e == nil {
		e = &studentLock{}
		s.m[id] = e
	}
	e.refs++
	s.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		s.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(s.m, id)
		}
		s.mu.Unlock()
	}
}

// lockAll locks ids in the order given. Callers pass them sorted so two
// overlapping batches cannot deadlock.
func (s *studentLocks) lockAll(ids []StudentID) func() {
	unlocks := make([]func(), 0, len(ids))
	for _, id := range ids {
		unlocks = append(unlocks, s.lock(id))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// LogHelper wraps a kratos logger with a module key. A nil logger falls back
// to the kratos default.
func LogHelper(logger log.Logger, module string) *log.Helper {
	if logger == nil {
		logger = log.DefaultLogger
	}
	return log.NewHelper(log.With(logger, "module", module))
}
