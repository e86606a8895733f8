/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface of the engine using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  generic.TxStore:    Ledger entry persistence
  billing.Repository: Contracts, installments, customers
  auth.UserStore:     Users and refresh tokens

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table is append-only:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries
  - Corrections via reversal entries only

KEY TABLES:
  ledger_entries:        Immutable ledger of charges, receipts, reversals
  customers:             Tenants
  contracts:             Submitted contract forms (form stored as JSON)
  contract_installments: One row per installment, with payment status
  users:                 Back-office users (bcrypt hashes)
  refresh_tokens:        Issued refresh tokens, revocable by jti

INDEXES:
  - idx_entries_account_date: Balance replay (hot path)
  - idx_installments_contract: Schedule and status refresh
  - idx_contracts_status: Overdue scheduler sweep

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so an
  in-memory database is shared by every query. In production with
  PostgreSQL, database-level concurrency control handles this instead.

USAGE:
  store, err := sqlite.New("./data/lease.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := generic.NewLedger(store)
  svc := billing.NewService(store, store, logger)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - generic/store.go: Ledger store interface
  - billing/types.go: Repository interface
  - auth/service.go: UserStore interface
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leaseforge/lease-engine/generic"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		effective_at TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		currency TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_account_date
		ON ledger_entries(account_id, effective_at);
	CREATE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(idempotency_key) WHERE idempotency_key IS NOT NULL;

	-- Customers
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		created_at TEXT NOT NULL
	);

	-- Contracts
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		status TEXT NOT NULL,
		currency TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		terminated_at TEXT,
		grand_total TEXT NOT NULL,
		form_json TEXT NOT NULL,
		created_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_status ON contracts(status);
	CREATE INDEX IF NOT EXISTS idx_contracts_customer ON contracts(customer_id);

	-- Installments (status is derived, rewritten by the overdue scheduler)
	CREATE TABLE IF NOT EXISTS contract_installments (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL REFERENCES contracts(id),
		line INTEGER NOT NULL,
		unit_id TEXT,
		number INTEGER NOT NULL,
		due_date TEXT,
		amount TEXT NOT NULL,
		paid TEXT NOT NULL DEFAULT '0',
		status TEXT NOT NULL,
		UNIQUE(contract_id, line, number)
	);

	CREATE INDEX IF NOT EXISTS idx_installments_contract
		ON contract_installments(contract_id, due_date);

	-- Users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Refresh tokens
	CREATE TABLE IF NOT EXISTS refresh_tokens (
		jti TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		expires_at TEXT NOT NULL,
		revoked_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user ON refresh_tokens(user_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER STORE (generic.Store interface)
// =============================================================================

const entryColumns = `id, account_id, effective_at, delta_value, currency, entry_type,
	reference_id, reason, idempotency_key, metadata_json, created_by, created_at`

// Append adds an entry to the ledger.
func (s *Store) Append(ctx context.Context, e generic.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEntry(ctx, s.db, e)
}

func appendEntry(ctx context.Context, q querier, e generic.Entry) error {
	metadataJSON, _ := json.Marshal(e.Metadata)

	createdAt := time.Now().UTC().Format(time.RFC3339)
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt.Time.Format(time.RFC3339)
	}

	query := `INSERT INTO ledger_entries (` + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.ExecContext(ctx, query,
		e.ID,
		e.AccountID,
		e.EffectiveAt.String(),
		e.Delta.Value.String(),
		e.Delta.Currency,
		e.Type,
		e.ReferenceID,
		e.Reason,
		nullString(e.IdempotencyKey),
		string(metadataJSON),
		e.CreatedBy,
		createdAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("%w: %w", generic.ErrEntryFailed, err)
	}
	return nil
}

// AppendBatch adds multiple entries atomically.
func (s *Store) AppendBatch(ctx context.Context, entries []generic.Entry) error {
	return s.inTx(ctx, func(ts *txStore) error { return ts.AppendBatch(ctx, entries) })
}

func checkBatchKeys(entries []generic.Entry) error {
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if seen[e.IdempotencyKey] {
			return generic.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}
	return nil
}

// Load returns all entries of an account.
func (s *Store) Load(ctx context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return loadEntries(ctx, s.db, accountID)
}

func loadEntries(ctx context.Context, q querier, accountID generic.AccountID) ([]generic.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries
		WHERE account_id = ?
		ORDER BY effective_at ASC, rowid ASC`
	return queryEntries(ctx, q, query, accountID)
}

// Get returns an entry by id, or nil if there is none.
func (s *Store) Get(ctx context.Context, id generic.EntryID) (*generic.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getEntry(ctx, s.db, id)
}

func getEntry(ctx context.Context, q querier, id generic.EntryID) (*generic.Entry, error) {
	entries, err := queryEntries(ctx, q, `SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// Exists checks if an idempotency key exists.
func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return keyExists(ctx, s.db, idempotencyKey)
}

func keyExists(ctx context.Context, q querier, idempotencyKey string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ledger_entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)

	return count > 0, err
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]generic.Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []generic.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (generic.Entry, error) {
	var (
		e              generic.Entry
		effectiveAt    string
		deltaValue     string
		currency       string
		referenceID    sql.NullString
		reason         sql.NullString
		idempotencyKey sql.NullString
		metadataJSON   sql.NullString
		createdBy      sql.NullString
		createdAt      string
	)

	err := rows.Scan(
		&e.ID, &e.AccountID, &effectiveAt, &deltaValue, &currency, &e.Type,
		&referenceID, &reason, &idempotencyKey, &metadataJSON, &createdBy, &createdAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.EffectiveAt, _ = generic.ParseDate(effectiveAt)
	e.Delta = generic.NewAmountFromDecimal(generic.MustParseDecimal(deltaValue), generic.Currency(currency))
	e.ReferenceID = referenceID.String
	e.Reason = reason.String
	e.IdempotencyKey = idempotencyKey.String
	e.CreatedBy = createdBy.String
	e.CreatedAt, _ = generic.ParseDate(createdAt)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
	}
	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Reads made
// through the Store passed to fn see the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	return s.inTx(ctx, func(ts *txStore) error { return fn(ts) })
}

// inTx holds the write lock for the whole transaction. fn must not call
// back into s.
func (s *Store) inTx(ctx context.Context, fn func(ts *txStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Append(ctx context.Context, e generic.Entry) error {
	return appendEntry(ctx, ts.tx, e)
}

func (ts *txStore) AppendBatch(ctx context.Context, entries []generic.Entry) error {
	if err := checkBatchKeys(entries); err != nil {
		return err
	}
	for _, e := range entries {
		if err := appendEntry(ctx, ts.tx, e); err != nil {
			return err
		}
	}
	return nil
}

func (ts *txStore) Load(ctx context.Context, accountID generic.AccountID) ([]generic.Entry, error) {
	return loadEntries(ctx, ts.tx, accountID)
}

func (ts *txStore) Get(ctx context.Context, id generic.EntryID) (*generic.Entry, error) {
	return getEntry(ctx, ts.tx, id)
}

func (ts *txStore) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return keyExists(ctx, ts.tx, idempotencyKey)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(tp generic.TimePoint) sql.NullString {
	return nullString(tp.String())
}

func parseDate(ns sql.NullString) generic.TimePoint {
	if !ns.Valid {
		return generic.TimePoint{}
	}
	tp, _ := generic.ParseDate(ns.String)
	return tp
}

func parseTimestamp(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	return generic.MustParseDecimal(s)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func likePattern(search string) string {
	search = strings.TrimSpace(search)
	if search == "" {
		return ""
	}
	return "%" + search + "%"
}
