/*
store.go - Persistence interfaces for the ledger and its projections

PURPOSE:
  Defines the interface between the accounting logic and the database.
  The Store handles persistence while maintaining append-only semantics.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:        Ledger entry persistence (append batch, load, exists)
  TotalsStore:  Denormalized balance/lifetime/level per student
  Roster:       Read-only student lookup (external collaborator)
  Notifier:     Fire-and-forget notification writer (external collaborator)

APPEND-ONLY CONTRACT:
  - AppendBatch(): Atomic multi-entry write, all or nothing
  - NO Update() or Delete() methods exist for entries

IDEMPOTENCY:
  An entry may carry an idempotency key. If the key already exists the whole
  batch is rejected with ErrDuplicateIdempotencyKey.

IMPLEMENTATIONS:
  - store/sqlite: SQLite
  - points/store: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level ledger using Store
*/
package points

import "context"

// Store persists ledger entries. APPEND-ONLY.
type Store interface {
	// AppendBatch persists entries atomically. Either all succeed or none do.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Entries returns every entry for a student, oldest first.
	Entries(ctx context.Context, studentID StudentID) ([]Entry, error)

	// Exists checks if an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TotalsStore holds the cached projection written by the recompute engine.
type TotalsStore interface {
	SaveTotals(ctx context.Context, totals Totals) error

	// Totals returns ErrNotFound if nothing has been recorded for the student.
	Totals(ctx context.Context, studentID StudentID) (Totals, error)
}

// LedgerStore is what the Ledger needs.
type LedgerStore interface {
	Store
	TotalsStore
}

// Roster looks up students. Returns ErrNotFound for unknown ids.
type Roster interface {
	Student(ctx context.Context, id StudentID) (Student, error)
	Students(ctx context.Context) ([]Student, error)
}

// Notifier records a message for a student.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Leveler maps lifetime points to a level.
type Leveler interface {
	LevelFor(ctx context.Context, lifetime int64) (int, error)
}
