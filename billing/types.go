/*
Package billing turns calculated contract forms into persisted contracts
and keeps their payment position.

PURPOSE:
  The lease package computes what a contract costs. This package records
  it: a submitted form becomes a Contract, each installment of each unit
  becomes an Installment row plus a charge on the contract's ledger
  account, and receipts are posted against that account.

KEY CONCEPTS:
  - Contract: A submitted form with a status and a ledger account
  - Installment: One due amount of one unit, with a payment status
  - ContractLedger: The generic ledger with billing rules on top
  - Service: Orchestrates repository, ledger and calculators

LIFECYCLE:
  draft ──Activate──▶ active ──Terminate──▶ terminated

  Charges are posted when a contract becomes active. Terminating reverses
  every charge falling due after the termination date.

SEE ALSO:
  - lease/unit.go: Per-unit calculation
  - generic/ledger.go: The append-only ledger underneath
  - store/sqlite/sqlite.go: Repository implementation
*/
package billing

import (
	"context"
	"time"

	"github.com/leaseforge/lease-engine/generic"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CONTRACT
// =============================================================================

type ContractStatus string

const (
	StatusDraft      ContractStatus = "draft"
	StatusActive     ContractStatus = "active"
	StatusTerminated ContractStatus = "terminated"
)

func ParseContractStatus(s string) (ContractStatus, error) {
	switch ContractStatus(s) {
	case "":
		return StatusActive, nil
	case StatusDraft, StatusActive, StatusTerminated:
		return ContractStatus(s), nil
	}
	return "", &generic.FieldError{Field: "status", Value: s, Message: "must be draft, active or terminated"}
}

// Contract is a submitted contract form. Form always holds recalculated
// values; StartDate/EndDate span all of its units.
type Contract struct {
	ID           string
	Number       string
	CustomerID   string
	Status       ContractStatus
	Currency     generic.Currency
	StartDate    generic.TimePoint
	EndDate      generic.TimePoint
	TerminatedAt generic.TimePoint
	Form         lease.Form
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccountID is the ledger account holding the contract's charges and receipts.
func (c Contract) AccountID() generic.AccountID {
	return generic.AccountID("contract:" + c.ID)
}

// =============================================================================
// INSTALLMENT
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "pending"
	InstallmentOverdue InstallmentStatus = "overdue"
	InstallmentPaid    InstallmentStatus = "paid"
)

// Installment is one schedule entry of one unit, as persisted.
type Installment struct {
	ID         string
	ContractID string
	Line       int // index of the unit on the form
	UnitID     string
	Number     int
	DueDate    generic.TimePoint
	Amount     decimal.Decimal
	Paid       decimal.Decimal
	Status     InstallmentStatus
}

// Outstanding is what remains unpaid on the installment.
func (i Installment) Outstanding() decimal.Decimal {
	return generic.Positive(i.Amount.Sub(i.Paid))
}

// =============================================================================
// CUSTOMER
// =============================================================================

type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// =============================================================================
// REPOSITORY
// =============================================================================

// ListQuery selects one page of a listing. Sort must already be validated
// against the columns the repository allows.
type ListQuery struct {
	Search string
	Sort   string
	Desc   bool
	Limit  int
	Offset int
}

// Repository persists contracts, their installments and customers.
// Methods taking ledger entries write them in the same database
// transaction as the contract change.
type Repository interface {
	CreateContract(ctx context.Context, c Contract, rows []Installment, charges []generic.Entry) error
	UpdateContractStatus(ctx context.Context, c Contract, entries []generic.Entry) error
	GetContract(ctx context.Context, id string) (*Contract, error)
	ListContracts(ctx context.Context, q ListQuery) ([]Contract, int, error)
	ContractsByStatus(ctx context.Context, status ContractStatus) ([]Contract, error)

	Installments(ctx context.Context, contractID string) ([]Installment, error)
	SaveInstallmentStatuses(ctx context.Context, rows []Installment) error

	SaveCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	ListCustomers(ctx context.Context, q ListQuery) ([]Customer, int, error)
}
