/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Contract forms travel
  as factory.ContractJSON in both directions; everything else has its own
  DTO here so the billing and auth types can change without breaking
  clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  Amounts are strings with two decimals ("28824.66"). Clients must not
  parse them into floats for arithmetic.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/contract.go: ContractJSON type
*/
package api

import (
	"time"

	"github.com/leaseforge/lease-engine/auth"
	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/factory"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AUTH
// =============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UserDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role"`
}

type TokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         *UserDTO `json:"user,omitempty"`
}

func toTokenResponse(p *auth.TokenPair, u *auth.User) TokenResponse {
	resp := TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
	if u != nil {
		resp.User = &UserDTO{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
	}
	return resp
}

// =============================================================================
// FORM
// =============================================================================

// FormEditRequest is one field edit on a contract form. The form comes back
// recalculated; on failure it comes back unchanged with the error attached.
type FormEditRequest struct {
	Form  factory.ContractJSON `json:"form"`
	Field string               `json:"field"` // units[0].rent_per_month
	Value factory.Number       `json:"value"`
}

type FormEditResponse struct {
	Form  lease.Form `json:"form"`
	Error string     `json:"error,omitempty"`
}

// =============================================================================
// CONTRACTS
// =============================================================================

type ContractDTO struct {
	ID           string     `json:"id"`
	Number       string     `json:"number"`
	CustomerID   string     `json:"customer_id"`
	Status       string     `json:"status"`
	Currency     string     `json:"currency"`
	StartDate    string     `json:"start_date"`
	EndDate      string     `json:"end_date"`
	TerminatedAt string     `json:"terminated_at,omitempty"`
	GrandTotal   string     `json:"grand_total"`
	Form         lease.Form `json:"form"`
	CreatedBy    string     `json:"created_by,omitempty"`
	CreatedAt    string     `json:"created_at"`
	UpdatedAt    string     `json:"updated_at"`
}

// ContractSummaryDTO is a contract row in list responses.
type ContractSummaryDTO struct {
	ID         string `json:"id"`
	Number     string `json:"number"`
	CustomerID string `json:"customer_id"`
	Status     string `json:"status"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Units      int    `json:"units"`
	GrandTotal string `json:"grand_total"`
	Currency   string `json:"currency"`
}

type TerminateRequest struct {
	TerminatedAt string `json:"terminated_at"`
	Reason       string `json:"reason"`
}

func toContractDTO(c billing.Contract) ContractDTO {
	return ContractDTO{
		ID:           c.ID,
		Number:       c.Number,
		CustomerID:   c.CustomerID,
		Status:       string(c.Status),
		Currency:     string(c.Currency),
		StartDate:    c.StartDate.String(),
		EndDate:      c.EndDate.String(),
		TerminatedAt: c.TerminatedAt.String(),
		GrandTotal:   money(c.Form.Totals.GrandTotal),
		Form:         c.Form,
		CreatedBy:    c.CreatedBy,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    c.UpdatedAt.Format(time.RFC3339),
	}
}

func toContractSummaryDTO(c billing.Contract) ContractSummaryDTO {
	return ContractSummaryDTO{
		ID:         c.ID,
		Number:     c.Number,
		CustomerID: c.CustomerID,
		Status:     string(c.Status),
		StartDate:  c.StartDate.String(),
		EndDate:    c.EndDate.String(),
		Units:      len(c.Form.Units),
		GrandTotal: money(c.Form.Totals.GrandTotal),
		Currency:   string(c.Currency),
	}
}

// =============================================================================
// SCHEDULE / STATEMENT
// =============================================================================

type InstallmentDTO struct {
	ID          string `json:"id"`
	Line        int    `json:"line"`
	UnitID      string `json:"unit_id"`
	Number      int    `json:"installment_number"`
	DueDate     string `json:"due_date"`
	Amount      string `json:"amount"`
	Paid        string `json:"paid"`
	Outstanding string `json:"outstanding"`
	Status      string `json:"status"`
}

func toInstallmentDTOs(rows []billing.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, len(rows))
	for i, r := range rows {
		dtos[i] = InstallmentDTO{
			ID:          r.ID,
			Line:        r.Line,
			UnitID:      r.UnitID,
			Number:      r.Number,
			DueDate:     r.DueDate.String(),
			Amount:      money(r.Amount),
			Paid:        money(r.Paid),
			Outstanding: money(r.Outstanding()),
			Status:      string(r.Status),
		}
	}
	return dtos
}

// EntryDTO represents a ledger entry in API responses.
type EntryDTO struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	EffectiveAt string `json:"effective_at"`
	Amount      string `json:"amount"` // positive raises what is owed
	ReferenceID string `json:"reference_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Method      string `json:"method,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

func toEntryDTO(e generic.Entry) EntryDTO {
	return EntryDTO{
		ID:          string(e.ID),
		Type:        string(e.Type),
		EffectiveAt: e.EffectiveAt.String(),
		Amount:      money(e.Delta.Value),
		ReferenceID: e.ReferenceID,
		Reason:      e.Reason,
		Method:      e.Metadata["method"],
		CreatedBy:   e.CreatedBy,
	}
}

type StatementDTO struct {
	ContractID       string           `json:"contract_id"`
	Number           string           `json:"number"`
	Status           string           `json:"status"`
	Currency         string           `json:"currency"`
	AsOf             string           `json:"as_of"`
	Charged          string           `json:"charged"`
	Received         string           `json:"received"`
	Adjusted         string           `json:"adjusted"`
	TotalOutstanding string           `json:"total_outstanding"`
	DueToDate        string           `json:"due_to_date"`
	Outstanding      string           `json:"outstanding"`
	Entries          []EntryDTO       `json:"entries"`
	Installments     []InstallmentDTO `json:"installments"`
}

func toStatementDTO(st *billing.Statement) StatementDTO {
	entries := make([]EntryDTO, len(st.Entries))
	for i, e := range st.Entries {
		entries[i] = toEntryDTO(e)
	}
	return StatementDTO{
		ContractID:       st.Contract.ID,
		Number:           st.Contract.Number,
		Status:           string(st.Contract.Status),
		Currency:         string(st.Contract.Currency),
		AsOf:             st.AsOf.String(),
		Charged:          money(st.Totals.Charged),
		Received:         money(st.Totals.Received),
		Adjusted:         money(st.Totals.Adjusted),
		TotalOutstanding: money(st.Totals.Outstanding),
		DueToDate:        money(st.DueToDate),
		Outstanding:      money(st.Outstanding),
		Entries:          entries,
		Installments:     toInstallmentDTOs(st.Installments),
	}
}

// =============================================================================
// RECEIPTS
// =============================================================================

// ReceiptRequest posts a payment. The idempotency key may come in the body
// or in the Idempotency-Key header; the header wins.
type ReceiptRequest struct {
	Amount         factory.Number `json:"amount"`
	ReceivedAt     string         `json:"received_at,omitempty"`
	Reference      string         `json:"reference,omitempty"`
	Method         string         `json:"method,omitempty"` // cash, cheque, transfer
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// =============================================================================
// CUSTOMERS
// =============================================================================

type CustomerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateCustomerRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func toCustomerDTO(c billing.Customer) CustomerDTO {
	return CustomerDTO{
		ID:        c.ID,
		Name:      c.Name,
		Email:     c.Email,
		Phone:     c.Phone,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// ADMIN
// =============================================================================

type RefreshResultDTO struct {
	AsOf      string `json:"as_of"`
	Contracts int    `json:"contracts"`
	Updated   int    `json:"updated"`
	Overdue   int    `json:"overdue"`
	Paid      int    `json:"paid"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(generic.MoneyPlaces)
}
