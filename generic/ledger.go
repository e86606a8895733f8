/*
ledger.go - Append-only contract ledger

PURPOSE:
  The Ledger is the source of truth for what a tenant owes. Installment
  charges, payment receipts, adjustments and reversals are recorded here.
  The outstanding balance is always computed by replaying entries.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete.
  2. IMMUTABLE: Once written, entries cannot be modified
  3. IDEMPOTENT: Same idempotency key = same entry (no duplicates)
  4. REVERSIBLE ONCE: An entry can be reversed at most one time

CORRECTIONS:
  A receipt posted against the wrong contract is not edited. Instead a
  Reversal entry with the opposite sign is appended and the receipt is
  re-posted on the right contract. Both stay in the history.

EXAMPLE FLOW:
  1. Contract submitted, 4 quarterly installments: 4x EntryCharge +25,000
  2. First cheque clears: EntryReceipt -25,000
  3. Cheque bounces: EntryReversal +25,000

  Outstanding as of the second due date: 25,000 + 25,000 = 50,000
*/
package generic

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER - Append-only entry log
// =============================================================================

type Ledger interface {
	Append(ctx context.Context, e Entry) error
	AppendBatch(ctx context.Context, entries []Entry) error
	Entries(ctx context.Context, accountID AccountID) ([]Entry, error)

	// BalanceAt is the outstanding amount on the account at the given date.
	BalanceAt(ctx context.Context, accountID AccountID, at TimePoint, currency Currency) (Amount, error)

	// Reverse appends an entry that cancels the given one.
	Reverse(ctx context.Context, id EntryID, reason, actor string) (Entry, error)
}

// =============================================================================
// DEFAULT LEDGER - Implementation using Store
// =============================================================================

type DefaultLedger struct {
	Store Store
}

func NewLedger(store Store) *DefaultLedger {
	return &DefaultLedger{Store: store}
}

func (l *DefaultLedger) Append(ctx context.Context, e Entry) error {
	if e.IdempotencyKey != "" {
		exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateIdempotencyKey
		}
	}
	return l.Store.Append(ctx, e)
}

func (l *DefaultLedger) AppendBatch(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if e.IdempotencyKey != "" {
			exists, err := l.Store.Exists(ctx, e.IdempotencyKey)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateIdempotencyKey
			}
		}
	}
	return l.Store.AppendBatch(ctx, entries)
}

func (l *DefaultLedger) Entries(ctx context.Context, accountID AccountID) ([]Entry, error) {
	return l.Store.Load(ctx, accountID)
}

func (l *DefaultLedger) BalanceAt(ctx context.Context, accountID AccountID, at TimePoint, currency Currency) (Amount, error) {
	entries, err := l.Store.Load(ctx, accountID)
	if err != nil {
		return Amount{}, err
	}
	return Replay(entries, at, currency), nil
}

// Reverse appends a reversal for id. The reversal's idempotency key is
// derived from id, so a second reversal attempt fails with ErrAlreadyReversed.
func (l *DefaultLedger) Reverse(ctx context.Context, id EntryID, reason, actor string) (Entry, error) {
	orig, err := l.Store.Get(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if orig == nil {
		return Entry{}, ErrEntryNotFound
	}
	if orig.Type == EntryReversal {
		return Entry{}, fmt.Errorf("cannot reverse a reversal: %w", ErrAlreadyReversed)
	}

	rev := Entry{
		ID:             EntryID(string(id) + "-rev"),
		AccountID:      orig.AccountID,
		EffectiveAt:    Today(),
		Delta:          orig.Delta.Neg(),
		Type:           EntryReversal,
		ReferenceID:    string(id),
		Reason:         reason,
		IdempotencyKey: "reverse:" + string(id),
		CreatedBy:      actor,
		CreatedAt:      Today(),
	}
	if err := l.Append(ctx, rev); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return Entry{}, ErrAlreadyReversed
		}
		return Entry{}, err
	}
	return rev, nil
}

// Replay sums entries effective on or before at. Entries must be ordered
// by EffectiveAt.
func Replay(entries []Entry, at TimePoint, currency Currency) Amount {
	balance := Amount{Value: decimal.Zero, Currency: currency}
	for _, e := range entries {
		if e.EffectiveAt.After(at) {
			break
		}
		balance = balance.Add(e.Delta)
	}
	return balance
}

// Totals splits a replay into its charge and payment sides.
type Totals struct {
	Charged     decimal.Decimal
	Received    decimal.Decimal
	Adjusted    decimal.Decimal
	Outstanding decimal.Decimal
}

// Summarize folds all entries regardless of date. Reversals are attributed
// to the side of the entry they cancel via their sign.
func Summarize(entries []Entry) Totals {
	var t Totals
	for _, e := range entries {
		switch e.Type {
		case EntryCharge:
			t.Charged = t.Charged.Add(e.Delta.Value)
		case EntryReceipt:
			t.Received = t.Received.Add(e.Delta.Value.Neg())
		case EntryReversal:
			if e.Delta.IsPositive() {
				t.Received = t.Received.Sub(e.Delta.Value)
			} else {
				t.Charged = t.Charged.Add(e.Delta.Value)
			}
		default:
			t.Adjusted = t.Adjusted.Add(e.Delta.Value)
		}
		t.Outstanding = t.Outstanding.Add(e.Delta.Value)
	}
	return t
}
