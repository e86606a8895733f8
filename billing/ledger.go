/*
ledger.go - Contract ledger with billing rules

PURPOSE:
  Wraps the generic ledger with the rules that only make sense for lease
  billing. The generic ledger accepts any signed entry; a contract account
  must not.

INVARIANTS:
  1. Charges are positive, receipts are negative.
  2. One charge per installment: the idempotency key is derived from
     (contract, unit line, installment number). Additional charges get
     one charge each, keyed by their position on the form.
  3. A receipt never exceeds the outstanding amount of the account.
  4. Only receipts are reversed through this API. Charges are reversed
     by terminating the contract.

WHY A WRAPPER?
  The generic ledger does not know what an installment or a receipt is.
  It handles "+25,000" without knowing it must never be posted twice for
  installment #3.

CONCURRENCY:
  The overpayment check reads the account and then appends. PostReceipt
  holds a mutex across both so two cashiers cannot jointly overpay. When
  the store is a generic.TxStore the read and the append also share one
  database transaction.

EXAMPLE:
  cl := billing.NewContractLedger(store)

  entry, err := cl.PostReceipt(ctx, contract, billing.Receipt{
      Amount:         decimal.NewFromInt(25000),
      IdempotencyKey: "cheque-000123",
  })
  var over *generic.OverpaymentError
  if errors.As(err, &over) {
      fmt.Printf("only %s outstanding\n", over.Outstanding.Value)
  }

SEE ALSO:
  - generic/ledger.go: Base ledger
  - service.go: Uses ContractLedger
*/
package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRACT LEDGER - Wrapper with billing invariants
// =============================================================================

type ContractLedger struct {
	inner generic.Ledger
	store generic.Store
	mu    sync.Mutex
}

func NewContractLedger(store generic.Store) *ContractLedger {
	return &ContractLedger{
		inner: generic.NewLedger(store),
		store: store,
	}
}

// Receipt is a payment to post against a contract.
type Receipt struct {
	Amount         decimal.Decimal
	ReceivedAt     generic.TimePoint // defaults to today
	Reference      string            // cheque or transfer number
	Method         string
	IdempotencyKey string
	Actor          string
}

// Entries returns the contract's account history ordered by effective date.
func (l *ContractLedger) Entries(ctx context.Context, c Contract) ([]generic.Entry, error) {
	return l.inner.Entries(ctx, c.AccountID())
}

// Outstanding is the amount due and unpaid as of at.
func (l *ContractLedger) Outstanding(ctx context.Context, c Contract, at generic.TimePoint) (generic.Amount, error) {
	return l.inner.BalanceAt(ctx, c.AccountID(), at, c.Currency)
}

// PostReceipt appends a receipt entry. The receipt may not exceed what the
// contract still owes over its whole term, including installments not yet due.
func (l *ContractLedger) PostReceipt(ctx context.Context, c Contract, r Receipt) (generic.Entry, error) {
	if !r.Amount.IsPositive() {
		return generic.Entry{}, fmt.Errorf("%w: %w", generic.ErrInvalidAmount,
			&generic.FieldError{Field: "amount", Value: r.Amount.String(), Message: "must be positive"})
	}
	if strings.TrimSpace(r.IdempotencyKey) == "" {
		return generic.Entry{}, &generic.FieldError{Field: "idempotency_key", Message: "is required"}
	}
	if c.Status != StatusActive && c.Status != StatusTerminated {
		return generic.Entry{}, fmt.Errorf("posting receipt on %s contract: %w", c.Status, generic.ErrInvalidStatus)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	receivedAt := r.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = generic.Today()
	}
	amount := generic.RoundMoney(r.Amount)
	entry := generic.Entry{
		ID:             generic.EntryID(uuid.NewString()),
		AccountID:      c.AccountID(),
		EffectiveAt:    receivedAt,
		Delta:          generic.NewAmountFromDecimal(amount.Neg(), c.Currency),
		Type:           generic.EntryReceipt,
		ReferenceID:    r.Reference,
		Reason:         "payment received",
		IdempotencyKey: "receipt:" + c.ID + ":" + r.IdempotencyKey,
		Metadata: map[string]string{
			"contract_id": c.ID,
			"method":      r.Method,
		},
		CreatedBy: r.Actor,
		CreatedAt: generic.Today(),
	}

	post := func(store generic.Store) error {
		ledger := generic.NewLedger(store)
		entries, err := ledger.Entries(ctx, c.AccountID())
		if err != nil {
			return err
		}
		outstanding := generic.Summarize(entries).Outstanding
		if amount.GreaterThan(outstanding) {
			return &generic.OverpaymentError{
				AccountID:   c.AccountID(),
				Outstanding: generic.NewAmountFromDecimal(outstanding, c.Currency),
				Requested:   generic.NewAmountFromDecimal(amount, c.Currency),
			}
		}
		return ledger.Append(ctx, entry)
	}

	var err error
	if tx, ok := l.store.(generic.TxStore); ok {
		err = tx.WithTx(ctx, post)
	} else {
		err = post(l.store)
	}
	if err != nil {
		return generic.Entry{}, err
	}
	return entry, nil
}

// ReverseReceipt appends a reversal for a receipt entry.
func (l *ContractLedger) ReverseReceipt(ctx context.Context, id generic.EntryID, reason, actor string) (generic.Entry, error) {
	orig, err := l.store.Get(ctx, id)
	if err != nil {
		return generic.Entry{}, err
	}
	if orig == nil {
		return generic.Entry{}, generic.ErrEntryNotFound
	}
	if orig.Type != generic.EntryReceipt {
		return generic.Entry{}, &generic.FieldError{Field: "entry_id", Value: string(id), Message: "only receipts can be reversed"}
	}
	return l.inner.Reverse(ctx, id, reason, actor)
}

// =============================================================================
// ENTRY BUILDERS - Entries written together with a contract change
// =============================================================================

// metaCharge tags a charge entry posted for an additional charge.
const metaCharge = "charge"

// BuildCharges returns one charge per installment row and one per additional
// charge on the form, the latter effective at the contract start. The
// entries are not appended: the repository writes them in the same
// transaction as the contract.
func BuildCharges(c Contract, rows []Installment, actor string) []generic.Entry {
	now := generic.Today()
	charges := make([]generic.Entry, 0, len(rows)+len(c.Form.Charges))
	for _, row := range rows {
		if !row.Amount.IsPositive() {
			continue
		}
		effective := row.DueDate
		if effective.IsZero() {
			effective = c.StartDate
		}
		charges = append(charges, generic.Entry{
			ID:             generic.EntryID(uuid.NewString()),
			AccountID:      c.AccountID(),
			EffectiveAt:    effective,
			Delta:          generic.NewAmountFromDecimal(row.Amount, c.Currency),
			Type:           generic.EntryCharge,
			ReferenceID:    row.ID,
			Reason:         fmt.Sprintf("installment %d, unit %s", row.Number, row.UnitID),
			IdempotencyKey: chargeKey(c.ID, row.Line, row.Number),
			Metadata: map[string]string{
				"contract_id": c.ID,
				"unit_id":     row.UnitID,
				"installment": strconv.Itoa(row.Number),
			},
			CreatedBy: actor,
			CreatedAt: now,
		})
	}
	for i, ch := range c.Form.Charges {
		if !ch.Total.IsPositive() {
			continue
		}
		charges = append(charges, generic.Entry{
			ID:             generic.EntryID(uuid.NewString()),
			AccountID:      c.AccountID(),
			EffectiveAt:    c.StartDate,
			Delta:          generic.NewAmountFromDecimal(ch.Total, c.Currency),
			Type:           generic.EntryCharge,
			Reason:         ch.Description,
			IdempotencyKey: fmt.Sprintf("charge:%s:c%d", c.ID, i),
			Metadata: map[string]string{
				"contract_id": c.ID,
				metaCharge:    strconv.Itoa(i),
			},
			CreatedBy: actor,
			CreatedAt: now,
		})
	}
	return charges
}

func chargeKey(contractID string, line, number int) string {
	return fmt.Sprintf("charge:%s:%d:%d", contractID, line, number)
}

// ChargeReversalsAfter builds reversals for every charge effective after
// cutoff that has not been reversed yet.
func (l *ContractLedger) ChargeReversalsAfter(ctx context.Context, c Contract, cutoff generic.TimePoint, reason, actor string) ([]generic.Entry, error) {
	entries, err := l.inner.Entries(ctx, c.AccountID())
	if err != nil {
		return nil, err
	}

	var reversals []generic.Entry
	for _, e := range entries {
		if e.Type != generic.EntryCharge || !e.EffectiveAt.After(cutoff) {
			continue
		}
		key := "reverse:" + string(e.ID)
		done, err := l.store.Exists(ctx, key)
		if err != nil {
			return nil, err
		}
		if done {
			continue
		}
		reversals = append(reversals, generic.Entry{
			ID:             e.ID + "-rev",
			AccountID:      e.AccountID,
			EffectiveAt:    e.EffectiveAt,
			Delta:          e.Delta.Neg(),
			Type:           generic.EntryReversal,
			ReferenceID:    string(e.ID),
			Reason:         reason,
			IdempotencyKey: key,
			Metadata:       map[string]string{"contract_id": c.ID},
			CreatedBy:      actor,
			CreatedAt:      generic.Today(),
		})
	}
	return reversals, nil
}
