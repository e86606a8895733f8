/*
store.go - Persistence interface for ledger entries

PURPOSE:
  Defines the interface between the ledger and the database. The Store
  handles persistence while maintaining append-only semantics. Different
  implementations can use SQLite or in-memory storage.

APPEND-ONLY CONTRACT:
  - Append(): Single entry write
  - AppendBatch(): Atomic multi-entry write
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Every write may carry an idempotency key. If the key already exists, the
  write is rejected. A cashier double-clicking "post receipt" produces one
  receipt, not two.

ATOMIC BATCHES:
  Submitting a contract posts one charge per installment. AppendBatch
  ensures either the whole schedule is posted or none of it is.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite (also a TxStore)
  - generic/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level interface using Store
*/
package generic

import "context"

// =============================================================================
// STORE - Interface for entry persistence (append-only)
// =============================================================================

// Store handles persistence of ledger entries.
// Store is APPEND-ONLY. Corrections are made via reversal entries.
type Store interface {
	// Append persists an entry. Returns ErrDuplicateIdempotencyKey if the key exists.
	Append(ctx context.Context, e Entry) error

	// AppendBatch persists multiple entries atomically.
	AppendBatch(ctx context.Context, entries []Entry) error

	// Load returns all entries for an account, ordered by EffectiveAt.
	Load(ctx context.Context, accountID AccountID) ([]Entry, error)

	// Get returns a single entry by id.
	Get(ctx context.Context, id EntryID) (*Entry, error)

	// Exists checks if idempotency key already exists.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}

// TxStore wraps Store with transaction support. The contract ledger runs its
// overpayment check and receipt append in one transaction when given one.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. A non-nil error rolls back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
