/*
handlers.go - HTTP API handlers for the lease engine

PURPOSE:
  Exposes the contract calculator, contract billing and back-office auth
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to the lease, billing and auth packages.

ENDPOINTS:
  Auth (public):
    POST   /api/auth/login                  Email + password → token pair
    POST   /api/auth/refresh                Rotate refresh token
    POST   /api/auth/logout                 Revoke refresh token

  Form (calculator, no persistence):
    POST   /api/contracts/calculate         Recalculate a whole contract form
    POST   /api/forms/change                Apply one field edit to a form

  Contracts:
    GET    /api/contracts                   Paged list (page, per_page, sort, order, q)
    POST   /api/contracts                   Submit a contract
    GET    /api/contracts/{id}              Contract with its form
    GET    /api/contracts/{id}/schedule     Installments and their status
    GET    /api/contracts/{id}/statement    Ledger position (?as_of=YYYY-MM-DD)
    POST   /api/contracts/{id}/activate     Draft → active, posts charges
    POST   /api/contracts/{id}/terminate    Active → terminated
    POST   /api/contracts/{id}/receipts     Post a payment (idempotency key required)
    DELETE /api/receipts/{id}               Reverse a payment

  Customers:
    GET    /api/customers                   Paged list
    POST   /api/customers                   Create customer
    GET    /api/customers/{id}              Customer details

  Admin:
    POST   /api/admin/overdue/run           Refresh installment statuses now
    GET    /api/admin/overdue               Last scheduler run

REQUEST FLOW:
  1. Parse HTTP request
  2. Convert the body through factory or a DTO
  3. Call the service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Missing or invalid credentials
  - 404: Resource not found
  - 409: Conflict (idempotency, already reversed, lifecycle)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - listing.go: Pagination
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/leaseforge/lease-engine/auth"
	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/factory"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Billing   *billing.Service
	Auth      *auth.Service
	Factory   *factory.ContractFactory
	Binder    *lease.Binder
	Scheduler *OverdueScheduler // nil disables the admin overdue endpoints

	logger zerolog.Logger
}

// NewHandler creates a new handler.
func NewHandler(b *billing.Service, a *auth.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		Billing: b,
		Auth:    a,
		Factory: factory.NewContractFactory(),
		Binder:  lease.NewBinder(logger),
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, user, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair, user))
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	pair, err := h.Auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair, nil))
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.Auth.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the user behind the access token.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated", nil)
		return
	}
	writeJSON(w, http.StatusOK, UserDTO{ID: claims.UserID, Email: claims.Email, Role: claims.Role})
}

// =============================================================================
// FORM HANDLERS
// =============================================================================

// CalculateContract recalculates a contract form without storing it.
func (h *Handler) CalculateContract(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	form, err := h.Factory.ParseForm(body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, form)
}

// EditForm applies one field edit. A failed recalculation still answers 200
// with the form as it was before the edit, so the client can keep showing
// consistent values.
func (h *Handler) EditForm(w http.ResponseWriter, r *http.Request) {
	var req FormEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	in, err := h.Factory.FromJSON(req.Form)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	ref, value, err := h.Factory.ParseEdit(req.Field, req.Value)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	out, err := h.Binder.Apply(in.Form, ref, value)
	if err != nil {
		h.logger.Warn().Err(err).Str("field", ref.String()).Msg("form edit rejected, keeping previous values")
		writeJSON(w, http.StatusOK, FormEditResponse{Form: in.Form, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, FormEditResponse{Form: out})
}

// =============================================================================
// CONTRACT HANDLERS
// =============================================================================

func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	contracts, total, err := h.Billing.List(r.Context(), params.Query())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items := make([]ContractSummaryDTO, len(contracts))
	for i, c := range contracts {
		items[i] = toContractSummaryDTO(c)
	}
	writeJSON(w, http.StatusOK, NewPaginatedResult(items, params, total))
}

// CreateContract submits a contract form.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	in, err := h.Factory.ParseContract(body)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	in.Actor = actor(r)

	c, err := h.Billing.Submit(r.Context(), *in)
	if errors.Is(err, generic.ErrCustomerNotFound) {
		writeError(w, http.StatusBadRequest, "Unknown customer_id", err)
		return
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(*c))
}

func (h *Handler) GetContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Billing.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*c))
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Billing.Schedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInstallmentDTOs(rows))
}

func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	asOf, err := generic.ParseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}
	st, err := h.Billing.Statement(r.Context(), chi.URLParam(r, "id"), asOf)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatementDTO(st))
}

func (h *Handler) ActivateContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.Billing.Activate(r.Context(), chi.URLParam(r, "id"), actor(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*c))
}

func (h *Handler) TerminateContract(w http.ResponseWriter, r *http.Request) {
	var req TerminateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	at, err := generic.ParseDate(req.TerminatedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid terminated_at format (use YYYY-MM-DD)", err)
		return
	}
	c, err := h.Billing.Terminate(r.Context(), chi.URLParam(r, "id"), at, strings.TrimSpace(req.Reason), actor(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toContractDTO(*c))
}

// =============================================================================
// RECEIPT HANDLERS
// =============================================================================

// PostReceipt posts a payment against a contract. Replaying a request with
// the same idempotency key answers 409 without posting twice.
func (h *Handler) PostReceipt(w http.ResponseWriter, r *http.Request) {
	var req ReceiptRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	receivedAt, err := generic.ParseDate(req.ReceivedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid received_at format (use YYYY-MM-DD)", err)
		return
	}
	amount, err := h.Factory.ParseAmount(req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	entry, err := h.Billing.PostReceipt(r.Context(), chi.URLParam(r, "id"), billing.Receipt{
		Amount:         amount,
		ReceivedAt:     receivedAt,
		Reference:      strings.TrimSpace(req.Reference),
		Method:         strings.TrimSpace(req.Method),
		IdempotencyKey: key,
		Actor:          actor(r),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(entry))
}

// ReverseReceipt appends a reversal for a receipt (bounced cheque, typo).
func (h *Handler) ReverseReceipt(w http.ResponseWriter, r *http.Request) {
	reason := strings.TrimSpace(r.URL.Query().Get("reason"))
	if reason == "" {
		reason = "receipt reversed"
	}
	rev, err := h.Billing.ReverseReceipt(r.Context(), generic.EntryID(chi.URLParam(r, "id")), reason, actor(r))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(rev))
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)
	customers, total, err := h.Billing.ListCustomers(r.Context(), params.Query())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	items := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		items[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, NewPaginatedResult(items, params, total))
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Billing.CreateCustomer(r.Context(), billing.Customer{
		ID:    strings.TrimSpace(req.ID),
		Name:  req.Name,
		Email: strings.TrimSpace(req.Email),
		Phone: strings.TrimSpace(req.Phone),
	})
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(*c))
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Billing.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*c))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunOverdueCheck refreshes installment statuses now. ?as_of= runs the
// check for another day without touching the scheduler.
func (h *Handler) RunOverdueCheck(w http.ResponseWriter, r *http.Request) {
	asOf, err := generic.ParseDate(r.URL.Query().Get("as_of"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
		return
	}

	var res billing.RefreshResult
	switch {
	case !asOf.IsZero() || h.Scheduler == nil:
		if asOf.IsZero() {
			asOf = generic.Today()
		}
		res, err = h.Billing.RefreshAll(r.Context(), asOf)
	default:
		asOf = h.Scheduler.Now()
		res, err = h.Scheduler.RunNow(r.Context())
	}
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, RefreshResultDTO{
		AsOf:      asOf.String(),
		Contracts: res.Contracts,
		Updated:   res.Updated,
		Overdue:   res.Overdue,
		Paid:      res.Paid,
	})
}

func (h *Handler) GetOverdueStatus(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusNotFound, "Scheduler is not running", nil)
		return
	}
	last, res := h.Scheduler.LastRun()
	resp := map[string]any{
		"enabled":  h.Scheduler.Enabled,
		"interval": h.Scheduler.CheckInterval.String(),
		"next_run": h.Scheduler.GetNextRunTime().Format(time.RFC3339),
		"last_result": RefreshResultDTO{
			Contracts: res.Contracts,
			Updated:   res.Updated,
			Overdue:   res.Overdue,
			Paid:      res.Paid,
		},
	}
	if !last.IsZero() {
		resp["last_run"] = last.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a domain error to its status code. Internal
// errors are logged and their details withheld from the client.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var fieldErr *generic.FieldError
	switch {
	case generic.IsAuthError(err):
		writeError(w, http.StatusUnauthorized, "Authentication failed", err)
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrDuplicateIdempotencyKey):
		writeError(w, http.StatusConflict, "Already processed", err)
	case errors.Is(err, generic.ErrAlreadyReversed), errors.Is(err, generic.ErrInvalidStatus):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.As(err, &fieldErr):
		writeError(w, http.StatusBadRequest, "Invalid "+fieldErr.Field, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		h.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return nil, false
	}
	return body, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}
