package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/leaseforge/lease-engine/auth"
	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/generic"
	"github.com/leaseforge/lease-engine/lease"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func entry(id, account string, day int, amount int64, typ generic.EntryType) generic.Entry {
	return generic.Entry{
		ID:             generic.EntryID(id),
		AccountID:      generic.AccountID(account),
		EffectiveAt:    generic.NewTimePoint(2025, time.January, day),
		Delta:          generic.NewAmountFromDecimal(decimal.NewFromInt(amount), generic.DefaultCurrency),
		Type:           typ,
		IdempotencyKey: "key-" + id,
		Metadata:       map[string]string{"source": "test"},
	}
}

// =============================================================================
// LEDGER ENTRIES
// =============================================================================

func TestLedger_AppendLoadOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, entry("e2", "acct", 20, 100, generic.EntryCharge)))
	require.NoError(t, store.Append(ctx, entry("e1", "acct", 5, 100, generic.EntryCharge)))
	require.NoError(t, store.Append(ctx, entry("x1", "other", 1, 999, generic.EntryCharge)))

	entries, err := store.Load(ctx, "acct")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, generic.EntryID("e1"), entries[0].ID)
	assert.Equal(t, "2025-01-05", entries[0].EffectiveAt.String())
	assert.Equal(t, "test", entries[0].Metadata["source"])
	assert.Equal(t, generic.DefaultCurrency, entries[0].Delta.Currency)
}

func TestLedger_DuplicateIdempotencyKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := entry("e1", "acct", 1, 100, generic.EntryCharge)
	require.NoError(t, store.Append(ctx, e))

	e.ID = "e1-retry"
	assert.ErrorIs(t, store.Append(ctx, e), generic.ErrDuplicateIdempotencyKey)

	exists, err := store.Exists(ctx, "key-e1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestLedger_AppendBatchIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Append(ctx, entry("e1", "acct", 1, 100, generic.EntryCharge)))

	batch := []generic.Entry{
		entry("e2", "acct", 2, 100, generic.EntryCharge),
		entry("e1-dup", "acct", 3, 100, generic.EntryCharge),
	}
	batch[1].IdempotencyKey = "key-e1"
	assert.ErrorIs(t, store.AppendBatch(ctx, batch), generic.ErrDuplicateIdempotencyKey)

	entries, err := store.Load(ctx, "acct")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "e2 rolled back")
}

func TestLedger_GetMissingReturnsNil(t *testing.T) {
	store := newTestStore(t)
	got, err := store.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLedger_WithTxReadsOwnWrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx generic.Store) error {
		if err := tx.Append(ctx, entry("e1", "acct", 1, 100, generic.EntryCharge)); err != nil {
			return err
		}
		entries, err := tx.Load(ctx, "acct")
		if err != nil {
			return err
		}
		assert.Len(t, entries, 1)
		return errors.New("abort")
	})
	require.EqualError(t, err, "abort")

	entries, err := store.Load(ctx, "acct")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_ReverseThroughGenericLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	ledger := generic.NewLedger(store)

	require.NoError(t, ledger.Append(ctx, entry("r1", "acct", 1, -50, generic.EntryReceipt)))

	rev, err := ledger.Reverse(ctx, "r1", "bounced", "tester")
	require.NoError(t, err)
	assert.Equal(t, generic.EntryReversal, rev.Type)

	_, err = ledger.Reverse(ctx, "r1", "again", "tester")
	assert.ErrorIs(t, err, generic.ErrAlreadyReversed)

	balance, err := ledger.BalanceAt(ctx, "acct", generic.NewTimePoint(2100, 1, 1), generic.DefaultCurrency)
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

// =============================================================================
// CONTRACTS
// =============================================================================

func seedCustomer(t *testing.T, store *Store, id, name string) {
	t.Helper()
	require.NoError(t, store.SaveCustomer(context.Background(), billing.Customer{
		ID: id, Name: name, Email: id + "@example.com", CreatedAt: time.Now().UTC(),
	}))
}

func testContract(id, number, customerID string) billing.Contract {
	now := time.Now().UTC().Truncate(time.Second)
	unit, _ := lease.Recalculate(lease.ContractUnit{
		UnitID:           "U-" + id,
		FromDate:         generic.NewTimePoint(2025, 1, 1),
		ToDate:           generic.NewTimePoint(2025, 12, 31),
		RentPerYear:      decimal.NewFromInt(12000),
		NoOfInstallments: 2,
		Frequency:        lease.FrequencyBiAnnual,
	}, lease.FieldRentPerYear)
	form := lease.RecalculateTotals(lease.Form{Units: []lease.ContractUnit{unit}})
	return billing.Contract{
		ID:         id,
		Number:     number,
		CustomerID: customerID,
		Status:     billing.StatusActive,
		Currency:   generic.DefaultCurrency,
		StartDate:  unit.FromDate,
		EndDate:    unit.ToDate,
		Form:       form,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestContracts_CreateGetWithInstallmentsAndCharges(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCustomer(t, store, "cust-1", "Acme Trading")

	c := testContract("c1", "LC-1", "cust-1")
	rows := billing.BuildInstallments(c)
	charges := billing.BuildCharges(c, rows, "tester")
	require.NoError(t, store.CreateContract(ctx, c, rows, charges))

	got, err := store.GetContract(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "LC-1", got.Number)
	assert.Equal(t, billing.StatusActive, got.Status)
	assert.Equal(t, "2025-12-31", got.EndDate.String())
	assert.True(t, c.Form.Totals.GrandTotal.Equal(got.Form.Totals.GrandTotal))
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))

	inst, err := store.Installments(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, inst, 2)
	assert.Equal(t, "2025-07-01", inst[1].DueDate.String())
	assert.True(t, inst[1].Amount.Equal(decimal.NewFromInt(6000)))

	entries, err := store.Load(ctx, c.AccountID())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestContracts_DuplicateNumber(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCustomer(t, store, "cust-1", "Acme Trading")

	require.NoError(t, store.CreateContract(ctx, testContract("c1", "LC-1", "cust-1"), nil, nil))
	err := store.CreateContract(ctx, testContract("c2", "LC-1", "cust-1"), nil, nil)

	var fieldErr *generic.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, "number", fieldErr.Field)
}

func TestContracts_ListSearchSortPage(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCustomer(t, store, "cust-1", "Acme Trading")
	seedCustomer(t, store, "cust-2", "Blue Harbor")

	for i, n := range []string{"LC-3", "LC-1", "LC-2"} {
		cust := "cust-1"
		if i == 2 {
			cust = "cust-2"
		}
		require.NoError(t, store.CreateContract(ctx, testContract(n, n, cust), nil, nil))
	}

	page, total, err := store.ListContracts(ctx, billing.ListQuery{Sort: "number", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "LC-1", page[0].Number)
	assert.Equal(t, "LC-2", page[1].Number)

	page, _, err = store.ListContracts(ctx, billing.ListQuery{Sort: "number", Desc: true, Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "LC-1", page[0].Number)

	page, total, err = store.ListContracts(ctx, billing.ListQuery{Search: "harbor"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, page, 1)
	assert.Equal(t, "LC-2", page[0].Number)
}

func TestContracts_UpdateStatusAppendsEntries(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCustomer(t, store, "cust-1", "Acme Trading")

	c := testContract("c1", "LC-1", "cust-1")
	c.Status = billing.StatusDraft
	rows := billing.BuildInstallments(c)
	require.NoError(t, store.CreateContract(ctx, c, rows, nil))

	drafts, err := store.ContractsByStatus(ctx, billing.StatusDraft)
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	c.Status = billing.StatusActive
	require.NoError(t, store.UpdateContractStatus(ctx, c, billing.BuildCharges(c, rows, "tester")))

	active, err := store.ContractsByStatus(ctx, billing.StatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	entries, err := store.Load(ctx, c.AccountID())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	missing := testContract("nope", "LC-X", "cust-1")
	assert.ErrorIs(t, store.UpdateContractStatus(ctx, missing, nil), generic.ErrContractNotFound)
}

func TestInstallments_SaveStatuses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCustomer(t, store, "cust-1", "Acme Trading")

	c := testContract("c1", "LC-1", "cust-1")
	require.NoError(t, store.CreateContract(ctx, c, billing.BuildInstallments(c), nil))

	rows, err := store.Installments(ctx, "c1")
	require.NoError(t, err)
	rows[0].Status = billing.InstallmentPaid
	rows[0].Paid = rows[0].Amount
	require.NoError(t, store.SaveInstallmentStatuses(ctx, rows[:1]))

	rows, err = store.Installments(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, billing.InstallmentPaid, rows[0].Status)
	assert.True(t, rows[0].Paid.Equal(rows[0].Amount))
	assert.Equal(t, billing.InstallmentPending, rows[1].Status)
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func TestCustomers_SaveGetList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedCustomer(t, store, "cust-1", "Zeta Holdings")
	seedCustomer(t, store, "cust-2", "Acme Trading")

	got, err := store.GetCustomer(ctx, "cust-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Zeta Holdings", got.Name)

	missing, err := store.GetCustomer(ctx, "cust-9")
	require.NoError(t, err)
	assert.Nil(t, missing)

	list, total, err := store.ListCustomers(ctx, billing.ListQuery{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Acme Trading", list[0].Name, "default sort by name")

	list, total, err = store.ListCustomers(ctx, billing.ListQuery{Search: "ZETA"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "cust-1", list[0].ID)
}

// =============================================================================
// USERS AND TOKENS
// =============================================================================

func TestUsers_SaveAndLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u := auth.User{ID: "u1", Email: "cashier@example.com", Name: "Cashier", PasswordHash: "hash", Role: auth.RoleCashier, CreatedAt: time.Now().UTC()}
	require.NoError(t, store.SaveUser(ctx, u))

	byEmail, err := store.GetUserByEmail(ctx, "cashier@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, "u1", byEmail.ID)

	byID, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Cashier", byID.Name)

	none, err := store.GetUserByEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRefreshTokens_Revoke(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, auth.User{ID: "u1", Email: "a@example.com", PasswordHash: "h", Role: auth.RoleAdmin, CreatedAt: time.Now()}))

	tok := auth.RefreshToken{JTI: "j1", UserID: "u1", ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now()}
	require.NoError(t, store.SaveRefreshToken(ctx, tok))

	got, err := store.GetRefreshToken(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, got.Usable(time.Now()))

	first := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.RevokeRefreshToken(ctx, "j1", first))
	require.NoError(t, store.RevokeRefreshToken(ctx, "j1", first.Add(time.Hour)))

	got, err = store.GetRefreshToken(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, got.Usable(time.Now()))
	assert.True(t, got.RevokedAt.Equal(first))
}
