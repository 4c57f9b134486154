/*
store.go - Persistence interface for ledger entries

APPEND-ONLY CONTRACT:
  - Append(): single entry write, returns the entry with its Seq assigned
  - AppendBatch(): all-or-nothing multi-entry write
  - NO Update() or Delete() methods exist

ORDERING:
  Load and LoadRange return entries ordered by (Timestamp, Seq). Seq is
  assigned by the store and increases monotonically across all appends, so
  two entries with the same business timestamp keep insertion order.

IMPLEMENTATIONS:
  - commission/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - ledger.go: Validation and per-rep serialization on top of Store
*/
package commission

import (
	"context"
	"time"
)

// Store handles persistence of ledger entries.
// IMPORTANT: Store is APPEND-ONLY. Corrections are new Adjustment entries.
type Store interface {
	// Append persists an entry. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, tx Transaction) (Transaction, error)

	// AppendBatch persists entries atomically. Either all succeed or none do.
	AppendBatch(ctx context.Context, txs []Transaction) ([]Transaction, error)

	// Load returns every entry for a rep in ledger order.
	Load(ctx context.Context, repID RepID) ([]Transaction, error)

	// LoadRange returns entries with Timestamp in [from, to). A zero bound is open.
	LoadRange(ctx context.Context, repID RepID, from, to time.Time) ([]Transaction, error)

	// Exists checks if an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// InRange reports whether t falls in [from, to) with zero bounds open.
func InRange(t, from, to time.Time) bool {
	return Period{Start: from, End: to}.Contains(t)
}
