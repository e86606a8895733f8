package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Service is the entry point for everything that changes a contract after
// it leaves the form.
type Service struct {
	repo   Repository
	ledger *ContractLedger
	logger zerolog.Logger
}

func NewService(repo Repository, store generic.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		ledger: NewContractLedger(store),
		logger: logger.With().Str("component", "billing").Logger(),
	}
}

// SubmitInput is a contract form ready to be persisted.
type SubmitInput struct {
	Number     string
	CustomerID string
	Status     ContractStatus // draft or active; empty means active
	Currency   generic.Currency
	Form       lease.Form
	Actor      string
}

// Calculate recalculates a form without persisting anything.
func (s *Service) Calculate(form lease.Form) (lease.Form, error) {
	return lease.RecalculateAll(form)
}

// Submit recalculates the form, validates it and stores the contract. An
// active contract gets its installment charges posted in the same write.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Contract, error) {
	if in.Status == "" {
		in.Status = StatusActive
	}
	if in.Status == StatusTerminated {
		return nil, fmt.Errorf("submitting a terminated contract: %w", generic.ErrInvalidStatus)
	}
	if err := s.requireCustomer(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	form, err := lease.RecalculateAll(in.Form)
	if err != nil {
		return nil, err
	}
	if err := validateForm(form); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c := Contract{
		ID:         uuid.NewString(),
		Number:     strings.TrimSpace(in.Number),
		CustomerID: in.CustomerID,
		Status:     in.Status,
		Currency:   in.Currency,
		Form:       form,
		CreatedBy:  in.Actor,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if c.Currency == "" {
		c.Currency = generic.DefaultCurrency
	}
	if c.Number == "" {
		c.Number = fmt.Sprintf("LC-%d-%s", now.Year(), strings.ToUpper(c.ID[:8]))
	}
	c.StartDate, c.EndDate = span(form.Units)

	rows := BuildInstallments(c)
	var charges []generic.Entry
	if c.Status == StatusActive {
		charges = BuildCharges(c, rows, in.Actor)
	}
	if err := s.repo.CreateContract(ctx, c, rows, charges); err != nil {
		return nil, fmt.Errorf("saving contract: %w", err)
	}

	s.logger.Info().
		Str("contract_id", c.ID).
		Str("number", c.Number).
		Str("status", string(c.Status)).
		Int("installments", len(rows)).
		Str("grand_total", form.Totals.GrandTotal.StringFixed(generic.MoneyPlaces)).
		Msg("contract submitted")
	return &c, nil
}

// Activate posts the charges of a draft contract and makes it active.
func (s *Service) Activate(ctx context.Context, id, actor string) (*Contract, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusDraft {
		return nil, fmt.Errorf("activating %s contract: %w", c.Status, generic.ErrInvalidStatus)
	}
	rows, err := s.repo.Installments(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	c.Status = StatusActive
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateContractStatus(ctx, *c, BuildCharges(*c, rows, actor)); err != nil {
		return nil, fmt.Errorf("activating contract: %w", err)
	}
	s.logger.Info().Str("contract_id", c.ID).Msg("contract activated")
	return c, nil
}

// Terminate ends an active contract at the given date. Charges falling due
// after that date are reversed and their installments cancelled.
func (s *Service) Terminate(ctx context.Context, id string, at generic.TimePoint, reason, actor string) (*Contract, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, fmt.Errorf("terminating %s contract: %w", c.Status, generic.ErrInvalidStatus)
	}
	if at.IsZero() {
		at = generic.Today()
	}
	if reason == "" {
		reason = "contract terminated"
	}

	reversals, err := s.ledger.ChargeReversalsAfter(ctx, *c, at, reason, actor)
	if err != nil {
		return nil, err
	}
	c.Status = StatusTerminated
	c.TerminatedAt = at
	c.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateContractStatus(ctx, *c, reversals); err != nil {
		return nil, fmt.Errorf("terminating contract: %w", err)
	}

	if _, err := s.RefreshContract(ctx, *c, generic.Today()); err != nil {
		s.logger.Warn().Err(err).Str("contract_id", c.ID).Msg("installment status refresh failed")
	}
	s.logger.Info().
		Str("contract_id", c.ID).
		Str("terminated_at", at.String()).
		Int("reversed_charges", len(reversals)).
		Msg("contract terminated")
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Contract, error) {
	c, err := s.repo.GetContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, generic.ErrContractNotFound
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]Contract, int, error) {
	return s.repo.ListContracts(ctx, q)
}

func (s *Service) Schedule(ctx context.Context, id string) ([]Installment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Installments(ctx, id)
}

// =============================================================================
// RECEIPTS
// =============================================================================

func (s *Service) PostReceipt(ctx context.Context, contractID string, r Receipt) (generic.Entry, error) {
	c, err := s.Get(ctx, contractID)
	if err != nil {
		return generic.Entry{}, err
	}
	entry, err := s.ledger.PostReceipt(ctx, *c, r)
	if err != nil {
		return generic.Entry{}, err
	}
	s.logger.Info().
		Str("contract_id", c.ID).
		Str("entry_id", string(entry.ID)).
		Str("amount", r.Amount.String()).
		Msg("receipt posted")

	if _, err := s.RefreshContract(ctx, *c, generic.Today()); err != nil {
		s.logger.Warn().Err(err).Str("contract_id", c.ID).Msg("installment status refresh failed")
	}
	return entry, nil
}

func (s *Service) ReverseReceipt(ctx context.Context, entryID generic.EntryID, reason, actor string) (generic.Entry, error) {
	rev, err := s.ledger.ReverseReceipt(ctx, entryID, reason, actor)
	if err != nil {
		return generic.Entry{}, err
	}
	s.logger.Info().Str("entry_id", string(entryID)).Str("reason", reason).Msg("receipt reversed")

	contractID := strings.TrimPrefix(string(rev.AccountID), "contract:")
	if c, err := s.Get(ctx, contractID); err == nil {
		if _, err := s.RefreshContract(ctx, *c, generic.Today()); err != nil {
			s.logger.Warn().Err(err).Str("contract_id", c.ID).Msg("installment status refresh failed")
		}
	}
	return rev, nil
}

// =============================================================================
// STATEMENT
// =============================================================================

// Statement is the payment position of a contract as of a date.
type Statement struct {
	Contract     Contract
	AsOf         generic.TimePoint
	Totals       generic.Totals // over the whole term
	DueToDate    decimal.Decimal
	Outstanding  decimal.Decimal // due to date minus received
	Entries      []generic.Entry
	Installments []Installment
}

func (s *Service) Statement(ctx context.Context, id string, asOf generic.TimePoint) (*Statement, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = generic.Today()
	}
	entries, err := s.ledger.Entries(ctx, *c)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.Installments(ctx, c.ID)
	if err != nil {
		return nil, err
	}

	totals := generic.Summarize(entries)
	st := &Statement{
		Contract:     *c,
		AsOf:         asOf,
		Totals:       totals,
		Outstanding:  generic.Replay(entries, asOf, c.Currency).Value,
		Entries:      entries,
		Installments: Allocate(rows, installmentReceipts(entries), asOf),
	}
	st.DueToDate = st.Outstanding.Add(totals.Received)
	return st, nil
}

// =============================================================================
// STATUS REFRESH - Used by the overdue scheduler
// =============================================================================

type RefreshResult struct {
	Contracts int
	Updated   int
	Overdue   int
	Paid      int
}

// RefreshContract reallocates receipts over the contract's installments and
// saves the rows whose status or paid amount changed.
func (s *Service) RefreshContract(ctx context.Context, c Contract, asOf generic.TimePoint) (RefreshResult, error) {
	entries, err := s.ledger.Entries(ctx, c)
	if err != nil {
		return RefreshResult{}, err
	}
	rows, err := s.repo.Installments(ctx, c.ID)
	if err != nil {
		return RefreshResult{}, err
	}

	next := rows
	if c.Status == StatusTerminated {
		next = cancelAfter(rows, c.TerminatedAt)
	}
	next = Allocate(next, installmentReceipts(entries), asOf)

	changed := changedRows(rows, next)
	if len(changed) > 0 {
		if err := s.repo.SaveInstallmentStatuses(ctx, changed); err != nil {
			return RefreshResult{}, fmt.Errorf("saving installment statuses: %w", err)
		}
	}
	return RefreshResult{
		Contracts: 1,
		Updated:   len(changed),
		Overdue:   countStatus(next, InstallmentOverdue),
		Paid:      countStatus(next, InstallmentPaid),
	}, nil
}

// RefreshAll runs RefreshContract for every active and terminated contract.
// A failing contract is logged and skipped.
func (s *Service) RefreshAll(ctx context.Context, asOf generic.TimePoint) (RefreshResult, error) {
	var total RefreshResult
	for _, status := range []ContractStatus{StatusActive, StatusTerminated} {
		contracts, err := s.repo.ContractsByStatus(ctx, status)
		if err != nil {
			return total, err
		}
		for _, c := range contracts {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			res, err := s.RefreshContract(ctx, c, asOf)
			if err != nil {
				s.logger.Error().Err(err).Str("contract_id", c.ID).Msg("refresh failed")
				continue
			}
			total.Contracts++
			total.Updated += res.Updated
			total.Overdue += res.Overdue
			total.Paid += res.Paid
		}
	}
	return total, nil
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (s *Service) CreateCustomer(ctx context.Context, c Customer) (*Customer, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, &generic.FieldError{Field: "name", Message: "is required"}
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return nil, &generic.FieldError{Field: "email", Value: c.Email, Message: "is not an email address"}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now().UTC()
	if err := s.repo.SaveCustomer(ctx, c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	c, err := s.repo.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, generic.ErrCustomerNotFound
	}
	return c, nil
}

func (s *Service) ListCustomers(ctx context.Context, q ListQuery) ([]Customer, int, error) {
	return s.repo.ListCustomers(ctx, q)
}

func (s *Service) requireCustomer(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return &generic.FieldError{Field: "customer_id", Message: "is required"}
	}
	_, err := s.GetCustomer(ctx, id)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

// BuildInstallments flattens the schedules of all units into rows.
func BuildInstallments(c Contract) []Installment {
	var rows []Installment
	for line, u := range c.Form.Units {
		for _, e := range u.Schedule {
			rows = append(rows, Installment{
				ID:         uuid.NewString(),
				ContractID: c.ID,
				Line:       line,
				UnitID:     u.UnitID,
				Number:     e.Number,
				DueDate:    e.DueDate,
				Amount:     e.Amount,
				Paid:       decimal.Zero,
				Status:     InstallmentPending,
			})
		}
	}
	return rows
}

// validateForm checks what the calculator tolerates but a stored contract
// may not: missing dates, no rent, no installments.
func validateForm(f lease.Form) error {
	if len(f.Units) == 0 {
		return &generic.FieldError{Field: "units", Message: "at least one unit is required"}
	}
	for i, u := range f.Units {
		field := func(name string) string { return fmt.Sprintf("units[%d].%s", i, name) }
		if u.FromDate.IsZero() {
			return &generic.FieldError{Field: field("from_date"), Message: "is required"}
		}
		if u.ToDate.IsZero() {
			return &generic.FieldError{Field: field("to_date"), Message: "is required"}
		}
		if u.ToDate.Before(u.FromDate) {
			return fmt.Errorf("%s: %w", field("to_date"), generic.ErrInvalidPeriod)
		}
		if !u.RentPerYear.IsPositive() {
			return &generic.FieldError{Field: field("rent_per_year"), Value: u.RentPerYear.String(), Message: "must be positive"}
		}
		if u.NoOfInstallments < 1 {
			return &generic.FieldError{Field: field("no_of_installments"), Value: fmt.Sprint(u.NoOfInstallments), Message: "must be at least 1"}
		}
		if u.NoOfInstallments > lease.MaxInstallments {
			return &generic.FieldError{Field: field("no_of_installments"), Value: fmt.Sprint(u.NoOfInstallments), Message: fmt.Sprintf("must not exceed %d", lease.MaxInstallments)}
		}
	}
	return nil
}

func span(units []lease.ContractUnit) (start, end generic.TimePoint) {
	for _, u := range units {
		if start.IsZero() || u.FromDate.Before(start) {
			start = u.FromDate
		}
		if end.IsZero() || u.ToDate.After(end) {
			end = u.ToDate
		}
	}
	return start, end
}
