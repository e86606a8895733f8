/*
handlers_test.go - HTTP tests for the API handlers

Tests drive the full router (auth, roles, rate limiting) over an in-memory
SQLite store:
- Login, refresh and logout
- Role checks on write endpoints
- Calculator and single field edits
- Contract submission, schedule, receipts, reversal and statement
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/leaseforge/lease-engine/auth"
	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/leaseforge/lease-engine/store/sqlite"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testPassword = "password-123"

const officeContractJSON = `{
	"customer_id": %q,
	"units": [{
		"unit_id": "OF-1203",
		"from_date": "2025-01-01",
		"to_date": "2025-12-31",
		"rent_per_month": "10000",
		"rent_free_from": "2025-01-01",
		"rent_free_to": "2025-01-31",
		"tax_percentage": 5,
		"no_of_installments": 4,
		"frequency": "quarterly"
	}]
}`

type testAPI struct {
	t       *testing.T
	store   *sqlite.Store
	handler *Handler
	router  http.Handler
}

func newTestAPI(t *testing.T, limiter *RateLimiter) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := zerolog.Nop()
	authSvc := auth.NewService(store, auth.NewJWTManager("handler-test-secret", 15*time.Minute, time.Hour), logger)
	h := NewHandler(billing.NewService(store, store, logger), authSvc, logger)

	ctx := context.Background()
	for _, role := range []string{auth.RoleAdmin, auth.RoleManager, auth.RoleCashier} {
		_, err := authSvc.CreateUser(ctx, role+"@example.com", role, testPassword, role)
		require.NoError(t, err)
	}

	return &testAPI{
		t:       t,
		store:   store,
		handler: h,
		router:  NewRouter(h, RouterConfig{AllowedOrigins: []string{"*"}, RateLimiter: limiter, Logger: logger}),
	}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(a.t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) login(role string) TokenResponse {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: role + "@example.com", Password: testPassword})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp TokenResponse
	decode(a.t, rec, &resp)
	return resp
}

func (a *testAPI) token(role string) string {
	return a.login(role).AccessToken
}

// customer creates a customer through the API and returns its id.
func (a *testAPI) customer(token string) string {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/api/customers", token, CreateCustomerRequest{Name: "Gulf Trading LLC", Email: "ap@gulf.example"})
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())
	var c CustomerDTO
	decode(a.t, rec, &c)
	return c.ID
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func officeJSON(customerID string) string {
	b, _ := json.Marshal(customerID)
	return string(bytes.Replace([]byte(officeContractJSON), []byte("%q"), b, 1))
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// =============================================================================
// AUTH
// =============================================================================

func TestHealth_IsPublic(t *testing.T) {
	a := newTestAPI(t, nil)
	rec := a.do(http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthFlow(t *testing.T) {
	a := newTestAPI(t, nil)

	rec := a.do(http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodGet, "/api/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "manager@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	tokens := a.login(auth.RoleManager)
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, int64(900), tokens.ExpiresIn)
	require.NotNil(t, tokens.User)
	assert.Equal(t, auth.RoleManager, tokens.User.Role)

	rec = a.do(http.MethodGet, "/api/me", tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me UserDTO
	decode(t, rec, &me)
	assert.Equal(t, "manager@example.com", me.Email)
	assert.Equal(t, auth.RoleManager, me.Role)

	rec = a.do(http.MethodPost, "/api/auth/refresh", "", RefreshRequest{RefreshToken: tokens.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var rotated TokenResponse
	decode(t, rec, &rotated)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	rec = a.do(http.MethodPost, "/api/auth/refresh", "", RefreshRequest{RefreshToken: tokens.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rotated refresh token must not be reusable")

	rec = a.do(http.MethodPost, "/api/auth/logout", "", RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = a.do(http.MethodPost, "/api/auth/refresh", "", RefreshRequest{RefreshToken: rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRoles(t *testing.T) {
	a := newTestAPI(t, nil)
	cashier := a.token(auth.RoleCashier)
	manager := a.token(auth.RoleManager)

	customerID := a.customer(manager)

	rec := a.do(http.MethodPost, "/api/contracts", cashier, officeJSON(customerID))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodPost, "/api/customers", cashier, CreateCustomerRequest{Name: "X"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, "/api/admin/scenarios", manager, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodGet, "/api/admin/scenarios", a.token(auth.RoleAdmin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Reading is open to every role.
	rec = a.do(http.MethodGet, "/api/contracts", cashier, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// FORM
// =============================================================================

func TestCalculateContract(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.token(auth.RoleCashier)

	rec := a.do(http.MethodPost, "/api/contracts/calculate", token, officeJSON(""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var form lease.Form
	decode(t, rec, &form)
	require.Len(t, form.Units, 1)
	u := form.Units[0]
	assertMoney(t, "120000", u.RentPerYear)
	assert.Equal(t, 365, u.TotalDays)
	assert.Len(t, u.Schedule, 4)
	assertMoney(t, "115298.63", form.Totals.GrandTotal)

	// Nothing is stored.
	contracts, total, err := a.store.ListContracts(context.Background(), billing.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, contracts)
	assert.Zero(t, total)

	rec = a.do(http.MethodPost, "/api/contracts/calculate", token, `{"units": [`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(http.MethodPost, "/api/contracts/calculate", token, `{"units":[{"no_of_installments":5000000}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_of_installments")
}

func TestEditForm(t *testing.T) {
	a := newTestAPI(t, nil)
	token := a.token(auth.RoleCashier)

	var formJSON json.RawMessage = []byte(officeJSON(""))
	edit := func(field string, value any) *httptest.ResponseRecorder {
		return a.do(http.MethodPost, "/api/forms/change", token, map[string]any{
			"form":  formJSON,
			"field": field,
			"value": value,
		})
	}

	t.Run("rent per month drives yearly rent", func(t *testing.T) {
		rec := edit("units[0].rent_per_month", 12000)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp FormEditResponse
		decode(t, rec, &resp)
		assert.Empty(t, resp.Error)
		assertMoney(t, "144000", resp.Form.Units[0].RentPerYear)
	})

	t.Run("failed edit keeps the previous form", func(t *testing.T) {
		rec := edit("units[3].rent_per_month", "12000")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var resp FormEditResponse
		decode(t, rec, &resp)
		assert.NotEmpty(t, resp.Error)
		require.Len(t, resp.Form.Units, 1)
		assertMoney(t, "10000", resp.Form.Units[0].RentPerMonth)
		assertMoney(t, "115298.63", resp.Form.Totals.GrandTotal)
	})

	t.Run("unparseable edit is a bad request", func(t *testing.T) {
		rec := edit("units[0].to_date", "31/12/2025")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = edit("rent", "1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// CONTRACTS AND RECEIPTS
// =============================================================================

func TestContractLifecycle(t *testing.T) {
	a := newTestAPI(t, nil)
	manager := a.token(auth.RoleManager)
	cashier := a.token(auth.RoleCashier)
	customerID := a.customer(manager)

	// Submit
	rec := a.do(http.MethodPost, "/api/contracts", manager, officeJSON(customerID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var contract ContractDTO
	decode(t, rec, &contract)
	assert.Equal(t, "active", contract.Status)
	assert.Equal(t, "115298.63", contract.GrandTotal)
	assert.Equal(t, "2025-01-01", contract.StartDate)
	assert.Equal(t, "manager@example.com", contract.CreatedBy)

	rec = a.do(http.MethodGet, "/api/contracts/"+contract.ID, cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(http.MethodGet, "/api/contracts/missing", cashier, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Schedule
	rec = a.do(http.MethodGet, "/api/contracts/"+contract.ID+"/schedule", cashier, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rows []InstallmentDTO
	decode(t, rec, &rows)
	require.Len(t, rows, 4)
	assert.Equal(t, "2025-01-01", rows[0].DueDate)
	assert.Equal(t, "28824.66", rows[0].Amount)
	assert.Equal(t, "28824.65", rows[3].Amount)

	// Receipt, then its replay
	receipt := ReceiptRequest{Amount: "30000", ReceivedAt: "2025-01-05", Reference: "CHQ-1", Method: "cheque"}
	post := func() *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(receipt))
		req := httptest.NewRequest(http.MethodPost, "/api/contracts/"+contract.ID+"/receipts", &buf)
		req.Header.Set("Authorization", "Bearer "+cashier)
		req.Header.Set("Idempotency-Key", "rcpt-1")
		out := httptest.NewRecorder()
		a.router.ServeHTTP(out, req)
		return out
	}
	rec = post()
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry EntryDTO
	decode(t, rec, &entry)
	assert.Equal(t, "cheque", entry.Method)
	assert.Equal(t, "cashier@example.com", entry.CreatedBy)

	rec = post()
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(http.MethodPost, "/api/contracts/"+contract.ID+"/receipts", cashier,
		ReceiptRequest{Amount: "30000", ReceivedAt: "2025-01-05"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "idempotency key is required")

	rec = a.do(http.MethodPost, "/api/contracts/"+contract.ID+"/receipts", cashier,
		ReceiptRequest{Amount: "abc", ReceivedAt: "2025-01-05", IdempotencyKey: "rcpt-2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Statement
	statement := func(query string) StatementDTO {
		rec := a.do(http.MethodGet, "/api/contracts/"+contract.ID+"/statement"+query, cashier, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st StatementDTO
		decode(t, rec, &st)
		return st
	}
	st := statement("?as_of=2025-05-01")
	assert.Equal(t, "57649.32", st.DueToDate)
	assert.Equal(t, "27649.32", st.Outstanding)
	assert.Equal(t, "30000.00", st.Received)

	rec = a.do(http.MethodGet, "/api/contracts/"+contract.ID+"/statement?as_of=May", cashier, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Reversal
	rec = a.do(http.MethodDelete, "/api/receipts/"+entry.ID+"?reason=bounced", cashier, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = a.do(http.MethodDelete, "/api/receipts/"+entry.ID+"?reason=bounced", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = a.do(http.MethodDelete, "/api/receipts/"+entry.ID, manager, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The reversal is dated today, so only a current statement sees it.
	st = statement("")
	assert.Equal(t, "115298.63", st.Outstanding)
	assert.Equal(t, "0.00", st.Received)

	// Terminate
	rec = a.do(http.MethodPost, "/api/contracts/"+contract.ID+"/terminate", manager,
		TerminateRequest{TerminatedAt: "2025-06-30", Reason: "break clause"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &contract)
	assert.Equal(t, "terminated", contract.Status)
	assert.Equal(t, "2025-06-30", contract.TerminatedAt)

	rec = a.do(http.MethodPost, "/api/contracts/"+contract.ID+"/terminate", manager,
		TerminateRequest{TerminatedAt: "2025-06-30"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateContract_Validation(t *testing.T) {
	a := newTestAPI(t, nil)
	manager := a.token(auth.RoleManager)

	rec := a.do(http.MethodPost, "/api/contracts", manager, officeJSON("nobody"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var errResp ErrorResponse
	decode(t, rec, &errResp)
	assert.Equal(t, "Unknown customer_id", errResp.Error)

	customerID := a.customer(manager)
	rec = a.do(http.MethodPost, "/api/contracts", manager, `{"customer_id": "`+customerID+`", "units": []}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	decode(t, rec, &errResp)
	assert.Equal(t, "Invalid units", errResp.Error)
}

func TestDraftActivation(t *testing.T) {
	a := newTestAPI(t, nil)
	manager := a.token(auth.RoleManager)
	customerID := a.customer(manager)

	body := bytes.Replace([]byte(officeJSON(customerID)), []byte(`"units"`), []byte(`"status": "draft", "units"`), 1)
	rec := a.do(http.MethodPost, "/api/contracts", manager, string(body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var contract ContractDTO
	decode(t, rec, &contract)
	assert.Equal(t, "draft", contract.Status)

	rec = a.do(http.MethodPost, "/api/contracts/"+contract.ID+"/activate", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &contract)
	assert.Equal(t, "active", contract.Status)

	rec = a.do(http.MethodPost, "/api/contracts/"+contract.ID+"/activate", manager, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListContracts_Pagination(t *testing.T) {
	a := newTestAPI(t, nil)
	manager := a.token(auth.RoleManager)
	customerID := a.customer(manager)

	for i := 0; i < 3; i++ {
		rec := a.do(http.MethodPost, "/api/contracts", manager, officeJSON(customerID))
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := a.do(http.MethodGet, "/api/contracts?page=2&per_page=2", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page PaginatedResult[ContractSummaryDTO]
	decode(t, rec, &page)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)
	assert.True(t, page.Pagination.HasPrev)
	assert.False(t, page.Pagination.HasNext)

	rec = a.do(http.MethodGet, "/api/contracts?per_page=500", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &page)
	assert.Equal(t, maxPerPage, page.Pagination.PerPage)
	assert.Len(t, page.Items, 3)
}

func TestCustomers(t *testing.T) {
	a := newTestAPI(t, nil)
	manager := a.token(auth.RoleManager)
	id := a.customer(manager)

	rec := a.do(http.MethodGet, "/api/customers/"+id, manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var c CustomerDTO
	decode(t, rec, &c)
	assert.Equal(t, "Gulf Trading LLC", c.Name)

	rec = a.do(http.MethodGet, "/api/customers/nobody", manager, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(http.MethodGet, "/api/customers?q=gulf", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page PaginatedResult[CustomerDTO]
	decode(t, rec, &page)
	assert.Equal(t, 1, page.Pagination.Total)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestRunOverdueCheck_AsOf(t *testing.T) {
	a := newTestAPI(t, nil)
	manager := a.token(auth.RoleManager)
	admin := a.token(auth.RoleAdmin)
	customerID := a.customer(manager)

	rec := a.do(http.MethodPost, "/api/contracts", manager, officeJSON(customerID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/api/admin/overdue/run?as_of=2025-05-01", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res RefreshResultDTO
	decode(t, rec, &res)
	assert.Equal(t, "2025-05-01", res.AsOf)
	assert.Equal(t, 1, res.Contracts)
	assert.Equal(t, 2, res.Overdue)

	rec = a.do(http.MethodGet, "/api/admin/overdue", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no scheduler configured")
}

// =============================================================================
// RATE LIMITING
// =============================================================================

func TestRateLimiter_Rejects(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	t.Cleanup(limiter.Stop)
	a := newTestAPI(t, limiter)

	for i := 0; i < 2; i++ {
		rec := a.do(http.MethodPost, "/api/auth/logout", "", "{}")
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}

	rec := a.do(http.MethodPost, "/api/auth/logout", "", "{}")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// All three came from the same address.
	assert.Equal(t, 1, limiter.Clients())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(RateLimiterConfig{EntryTTL: time.Nanosecond})
	defer limiter.Stop()

	limiter.getLimiter("ip:10.0.0.1")
	limiter.getLimiter("user:42")
	assert.Equal(t, 2, limiter.Clients())

	time.Sleep(time.Millisecond)
	limiter.cleanup()
	assert.Zero(t, limiter.Clients())

	limiter.Stop() // second Stop must not block
}
