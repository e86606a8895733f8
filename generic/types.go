/*
Package generic provides the domain-agnostic core of the lease engine.

PURPOSE:
  This package contains the building blocks every lease feature sits on:
  calendar dates, date intervals, money amounts and the append-only ledger
  that records what a contract owes and what has been paid against it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A money value in a currency, backed by decimal.Decimal
  - Entry: An immutable ledger line (charge, receipt, reversal)
  - AccountID / EntryID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Entries are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Type Safety: Strong typing for IDs prevents mixing account/entry IDs
  4. Auditability: Every entry has reason, reference, and idempotency key

USAGE:
  amount := generic.NewAmountFromDecimal(decimal.NewFromInt(1500), generic.DefaultCurrency)
  entry := generic.Entry{
      AccountID: "contract-123",
      Delta:     amount,
      Type:      generic.EntryCharge,
  }

SEE ALSO:
  - period.go: Date intervals
  - ledger.go: Entry persistence and balance replay
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Money value with currency
// =============================================================================

// MoneyPlaces is the number of decimal places money is rounded to.
const MoneyPlaces = 2

type Currency string

const DefaultCurrency Currency = "AED"

type Amount struct {
	Value    decimal.Decimal
	Currency Currency
}

func NewAmountFromDecimal(value decimal.Decimal, currency Currency) Amount {
	return Amount{Value: value, Currency: currency}
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Positive returns d when it is > 0, otherwise zero. Calculators use it to
// collapse negative or missing inputs to the neutral value.
func Positive(d decimal.Decimal) decimal.Decimal {
	if d.IsPositive() {
		return d
	}
	return decimal.Zero
}

func (a Amount) Zero() Amount                 { return Amount{Value: decimal.Zero, Currency: a.Currency} }
func (a Amount) Add(b Amount) Amount          { return Amount{Value: a.Value.Add(b.Value), Currency: a.Currency} }
func (a Amount) Sub(b Amount) Amount          { return Amount{Value: a.Value.Sub(b.Value), Currency: a.Currency} }
func (a Amount) Mul(s decimal.Decimal) Amount { return Amount{Value: a.Value.Mul(s), Currency: a.Currency} }
func (a Amount) Neg() Amount                  { return Amount{Value: a.Value.Neg(), Currency: a.Currency} }
func (a Amount) Round() Amount                { return Amount{Value: RoundMoney(a.Value), Currency: a.Currency} }
func (a Amount) IsNegative() bool             { return a.Value.IsNegative() }
func (a Amount) IsZero() bool                 { return a.Value.IsZero() }
func (a Amount) IsPositive() bool             { return a.Value.IsPositive() }
func (a Amount) GreaterThan(b Amount) bool    { return a.Value.GreaterThan(b.Value) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// AccountID identifies a ledger account. One contract owns one account.
type AccountID string
type EntryID string

// =============================================================================
// ENTRY - Atomic change to an account balance
// =============================================================================

type EntryType string

const (
	EntryCharge     EntryType = "charge"     // Installment falling due (+)
	EntryReceipt    EntryType = "receipt"    // Payment received (-)
	EntryAdjustment EntryType = "adjustment" // Manual correction
	EntryReversal   EntryType = "reversal"   // Undo a previous entry
)

// Entry is one line in the ledger. Positive deltas increase what the
// tenant owes, negative deltas reduce it.
type Entry struct {
	ID             EntryID
	AccountID      AccountID
	EffectiveAt    TimePoint
	Delta          Amount
	Type           EntryType
	ReferenceID    string // installment number, receipt number, reversed entry id
	Reason         string
	IdempotencyKey string
	Metadata       map[string]string

	CreatedBy string
	CreatedAt TimePoint
}
