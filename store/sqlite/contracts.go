package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leaseforge/lease-engine/billing"
	"github.com/leaseforge/lease-engine/generic"
)

// =============================================================================
// CONTRACT STORE (billing.Repository interface)
// =============================================================================

const contractColumns = `c.id, c.number, c.customer_id, c.status, c.currency, c.start_date,
	c.end_date, c.terminated_at, c.form_json, c.created_by, c.created_at, c.updated_at`

// contractSortColumns maps listing sort keys to SQL expressions.
var contractSortColumns = map[string]string{
	"number":      "c.number",
	"customer":    "cu.name",
	"status":      "c.status",
	"start_date":  "c.start_date",
	"end_date":    "c.end_date",
	"grand_total": "CAST(c.grand_total AS REAL)",
	"created_at":  "c.created_at",
}

// CreateContract writes the contract, its installments and its charges in
// one transaction.
func (s *Store) CreateContract(ctx context.Context, c billing.Contract, rows []billing.Installment, charges []generic.Entry) error {
	formJSON, err := json.Marshal(c.Form)
	if err != nil {
		return fmt.Errorf("failed to encode contract form: %w", err)
	}

	return s.inTx(ctx, func(ts *txStore) error {
		_, err := ts.tx.ExecContext(ctx, `
			INSERT INTO contracts
			(id, number, customer_id, status, currency, start_date, end_date, terminated_at,
			 grand_total, form_json, created_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Number, c.CustomerID, c.Status, c.Currency,
			nullDate(c.StartDate), nullDate(c.EndDate), nullDate(c.TerminatedAt),
			c.Form.Totals.GrandTotal.String(), string(formJSON), c.CreatedBy,
			c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &generic.FieldError{Field: "number", Value: c.Number, Message: "contract number already exists"}
			}
			return fmt.Errorf("failed to save contract: %w", err)
		}

		for _, r := range rows {
			_, err := ts.tx.ExecContext(ctx, `
				INSERT INTO contract_installments
				(id, contract_id, line, unit_id, number, due_date, amount, paid, status)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.ContractID, r.Line, r.UnitID, r.Number, nullDate(r.DueDate),
				r.Amount.String(), r.Paid.String(), r.Status,
			)
			if err != nil {
				return fmt.Errorf("failed to save installment: %w", err)
			}
		}
		return ts.AppendBatch(ctx, charges)
	})
}

// UpdateContractStatus saves the contract's status fields and appends the
// given entries in one transaction.
func (s *Store) UpdateContractStatus(ctx context.Context, c billing.Contract, entries []generic.Entry) error {
	return s.inTx(ctx, func(ts *txStore) error {
		res, err := ts.tx.ExecContext(ctx,
			"UPDATE contracts SET status = ?, terminated_at = ?, updated_at = ? WHERE id = ?",
			c.Status, nullDate(c.TerminatedAt), c.UpdatedAt.Format(time.RFC3339), c.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update contract: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return generic.ErrContractNotFound
		}
		return ts.AppendBatch(ctx, entries)
	})
}

// GetContract retrieves a contract by ID, or nil if there is none.
func (s *Store) GetContract(ctx context.Context, id string) (*billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts, err := s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts c WHERE c.id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, nil
	}
	return &contracts[0], nil
}

// ListContracts returns one page of contracts and the total match count.
// Search matches the contract number and the customer name.
func (s *Store) ListContracts(ctx context.Context, q billing.ListQuery) ([]billing.Contract, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := `FROM contracts c LEFT JOIN customers cu ON cu.id = c.customer_id`
	var args []any
	if like := likePattern(q.Search); like != "" {
		where += ` WHERE c.number LIKE ? OR cu.name LIKE ? OR c.status LIKE ?`
		args = append(args, like, like, like)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count contracts: %w", err)
	}

	query := `SELECT ` + contractColumns + ` ` + where +
		orderBy(contractSortColumns, q.Sort, q.Desc, "c.created_at") +
		` LIMIT ? OFFSET ?`
	args = append(args, limitOrAll(q.Limit), q.Offset)

	contracts, err := s.queryContracts(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return contracts, total, nil
}

// ContractsByStatus returns every contract with the given status.
func (s *Store) ContractsByStatus(ctx context.Context, status billing.ContractStatus) ([]billing.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryContracts(ctx,
		`SELECT `+contractColumns+` FROM contracts c WHERE c.status = ? ORDER BY c.created_at`, status)
}

func (s *Store) queryContracts(ctx context.Context, query string, args ...any) ([]billing.Contract, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []billing.Contract
	for rows.Next() {
		var (
			c            billing.Contract
			startDate    sql.NullString
			endDate      sql.NullString
			terminatedAt sql.NullString
			formJSON     string
			createdBy    sql.NullString
			createdAt    string
			updatedAt    string
		)
		err := rows.Scan(&c.ID, &c.Number, &c.CustomerID, &c.Status, &c.Currency,
			&startDate, &endDate, &terminatedAt, &formJSON, &createdBy, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		if err := json.Unmarshal([]byte(formJSON), &c.Form); err != nil {
			return nil, fmt.Errorf("failed to decode form of contract %s: %w", c.ID, err)
		}
		c.StartDate = parseDate(startDate)
		c.EndDate = parseDate(endDate)
		c.TerminatedAt = parseDate(terminatedAt)
		c.CreatedBy = createdBy.String
		c.CreatedAt = parseTimestamp(createdAt)
		c.UpdatedAt = parseTimestamp(updatedAt)
		contracts = append(contracts, c)
	}
	return contracts, rows.Err()
}

// =============================================================================
// INSTALLMENT STORE
// =============================================================================

// Installments returns a contract's installments in due order.
func (s *Store) Installments(ctx context.Context, contractID string) ([]billing.Installment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, line, unit_id, number, due_date, amount, paid, status
		FROM contract_installments
		WHERE contract_id = ?
		ORDER BY due_date ASC, line ASC, number ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to query installments: %w", err)
	}
	defer rows.Close()

	var out []billing.Installment
	for rows.Next() {
		var (
			r       billing.Installment
			unitID  sql.NullString
			dueDate sql.NullString
			amount  string
			paid    string
		)
		if err := rows.Scan(&r.ID, &r.ContractID, &r.Line, &unitID, &r.Number, &dueDate, &amount, &paid, &r.Status); err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		r.UnitID = unitID.String
		r.DueDate = parseDate(dueDate)
		r.Amount = parseDecimal(amount)
		r.Paid = parseDecimal(paid)
		out = append(out, r)
	}
	return out, rows.Err()
}

// SaveInstallmentStatuses rewrites paid amount and status of the given rows.
func (s *Store) SaveInstallmentStatuses(ctx context.Context, rows []billing.Installment) error {
	return s.inTx(ctx, func(ts *txStore) error {
		for _, r := range rows {
			_, err := ts.tx.ExecContext(ctx,
				"UPDATE contract_installments SET paid = ?, status = ? WHERE id = ?",
				r.Paid.String(), r.Status, r.ID)
			if err != nil {
				return fmt.Errorf("failed to update installment %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// =============================================================================
// CUSTOMER STORE
// =============================================================================

var customerSortColumns = map[string]string{
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
}

// SaveCustomer creates or updates a customer.
func (s *Store) SaveCustomer(ctx context.Context, c billing.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, phone = excluded.phone`,
		c.ID, c.Name, nullString(c.Email), nullString(c.Phone), c.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by ID, or nil if there is none.
func (s *Store) GetCustomer(ctx context.Context, id string) (*billing.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers, err := s.queryCustomers(ctx,
		"SELECT id, name, email, phone, created_at FROM customers WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(customers) == 0 {
		return nil, nil
	}
	return &customers[0], nil
}

// ListCustomers returns one page of customers and the total match count.
func (s *Store) ListCustomers(ctx context.Context, q billing.ListQuery) ([]billing.Customer, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := "FROM customers"
	var args []any
	if like := likePattern(q.Search); like != "" {
		where += " WHERE name LIKE ? OR email LIKE ? OR phone LIKE ?"
		args = append(args, like, like, like)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count customers: %w", err)
	}

	query := "SELECT id, name, email, phone, created_at " + where +
		orderBy(customerSortColumns, q.Sort, q.Desc, "name") +
		" LIMIT ? OFFSET ?"
	args = append(args, limitOrAll(q.Limit), q.Offset)

	customers, err := s.queryCustomers(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return customers, total, nil
}

func (s *Store) queryCustomers(ctx context.Context, query string, args ...any) ([]billing.Customer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", err)
	}
	defer rows.Close()

	var customers []billing.Customer
	for rows.Next() {
		var (
			c         billing.Customer
			email     sql.NullString
			phone     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.Name, &email, &phone, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Email = email.String
		c.Phone = phone.String
		c.CreatedAt = parseTimestamp(createdAt)
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

// =============================================================================
// LISTING HELPERS
// =============================================================================

// orderBy builds an ORDER BY clause from a whitelisted sort key. Unknown
// keys fall back to the default column.
func orderBy(columns map[string]string, key string, desc bool, fallback string) string {
	col, ok := columns[key]
	if !ok {
		col = fallback
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", col, dir)
}

// limitOrAll turns a non-positive limit into SQLite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
