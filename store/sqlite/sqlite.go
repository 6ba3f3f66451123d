/*
Package sqlite provides a SQLite-backed implementation of the billing and
claim storage interfaces.

PURPOSE:
  Implements billing.Store and insurance.ClaimStore on a single SQLite
  file. It is the default driver for a single clinic install; larger sites
  run store/postgres with the same semantics.

INTERFACES IMPLEMENTED:
  billing.Store:        Accounts, items, payments, account transactions
  insurance.ClaimStore: Claims with compare-and-set status updates

APPEND-ONLY ENFORCEMENT:
  - No DELETE statements anywhere
  - payments rows are never updated
  - billing_items rows only change status (pending, billed, voided)
  - Totals are never stored, the ledger derives them on every read

KEY TABLES:
  billing_accounts: One row per patient encounter
  billing_items:    Charges, in insertion order
  payments:         Money received, in insertion order
  claims:           Insurance claims against an account
  sequences:        Account number counter

CONCURRENCY:
  The pool is capped at one connection and WithAccountTx holds a mutex
  around BEGIN ... COMMIT, so at most one account transaction runs at a
  time and plain reads wait for it to finish. Every statement issued by a
  transaction callback goes through the *sql.Tx; calling the parent Store
  from inside a callback would wait on the only connection forever.

USAGE:
  store, err := sqlite.New("./data/billing.db")
  if err != nil {
      return err
  }
  defer store.Close()

  ledger := billing.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New(). Postgres uses the versioned migrator
  in store/postgres instead.

SEE ALSO:
  - billing/store.go: Store contract
  - insurance/store.go: ClaimStore contract
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
)

// Store implements billing.Store and insurance.ClaimStore using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: ":memory:" databases are per connection, and account
	// transactions must not interleave
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
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

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS billing_accounts (
		id TEXT PRIMARY KEY,
		account_no TEXT NOT NULL UNIQUE,
		patient_id TEXT NOT NULL,
		encounter_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at TEXT NOT NULL,
		closed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_patient
		ON billing_accounts(patient_id);
	CREATE INDEX IF NOT EXISTS idx_accounts_status
		ON billing_accounts(status);

	-- Charges. Amounts are minor units.
	CREATE TABLE IF NOT EXISTS billing_items (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES billing_accounts(id),
		item_type TEXT NOT NULL,
		code TEXT,
		description TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price INTEGER NOT NULL CHECK (unit_price >= 0),
		discount INTEGER NOT NULL DEFAULT 0 CHECK (discount >= 0),
		net INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		void_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_account
		ON billing_items(account_id);

	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES billing_accounts(id),
		amount INTEGER NOT NULL CHECK (amount > 0),
		method TEXT NOT NULL,
		reference_no TEXT,
		received_by TEXT,
		idempotency_key TEXT UNIQUE,
		claim_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_account
		ON payments(account_id);

	-- Insurance claims
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES billing_accounts(id),
		provider TEXT NOT NULL,
		policy_number TEXT NOT NULL,
		claim_number TEXT NOT NULL UNIQUE,
		claim_amount INTEGER NOT NULL CHECK (claim_amount > 0),
		approved_amount INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		rejection_reason TEXT,
		submission_date TEXT,
		approval_date TEXT,
		rejection_date TEXT,
		paid_date TEXT,
		payment_id TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_claims_invoice
		ON claims(invoice_id);
	CREATE INDEX IF NOT EXISTS idx_claims_status
		ON claims(status);

	CREATE TABLE IF NOT EXISTS sequences (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO sequences (name, value) VALUES ('account_no', 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// WithAccountTx runs fn inside a database transaction. Nothing fn wrote is
// kept unless it returns nil.
func (s *Store) WithAccountTx(ctx context.Context, id billing.AccountID, fn func(tx billing.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	ts := &txStore{queries: queries{q: sqlTx}}
	if _, err := ts.GetAccount(ctx, id); err != nil {
		return err
	}
	if err := fn(ts); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	queries
}

// WithAccountTx on a transaction joins it.
func (ts *txStore) WithAccountTx(ctx context.Context, id billing.AccountID, fn func(tx billing.Store) error) error {
	if _, err := ts.GetAccount(ctx, id); err != nil {
		return err
	}
	return fn(ts)
}

var (
	_ billing.Store        = (*Store)(nil)
	_ billing.Store        = (*txStore)(nil)
	_ insurance.ClaimStore = (*Store)(nil)
	_ insurance.ClaimStore = (*txStore)(nil)
)

// =============================================================================
// QUERIES - shared by the pooled store and transactions
// =============================================================================

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	q querier
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, account_no, patient_id, encounter_id, currency, status, created_at, closed_at`

func (s queries) CreateAccount(ctx context.Context, acct billing.Account) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO billing_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acct.ID,
		acct.AccountNo,
		acct.PatientID,
		acct.EncounterID,
		acct.Currency,
		acct.Status,
		formatTime(acct.CreatedAt),
		formatTimePtr(acct.ClosedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err, "account_no") {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateAccountNo, acct.AccountNo)
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (s queries) GetAccount(ctx context.Context, id billing.AccountID) (*billing.Account, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM billing_accounts WHERE id = ?`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s queries) ListAccounts(ctx context.Context, filter billing.AccountFilter) ([]billing.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM billing_accounts WHERE 1 = 1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.PatientID != "" {
		query += ` AND patient_id = ?`
		args = append(args, filter.PatientID)
	}
	query += ` ORDER BY rowid`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	accounts := []billing.Account{}
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

func (s queries) SetAccountStatus(ctx context.Context, id billing.AccountID, status billing.AccountStatus, at time.Time) error {
	var closedAt sql.NullString
	if status == billing.AccountClosed {
		closedAt = sql.NullString{String: formatTime(at), Valid: true}
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE billing_accounts SET status = ?, closed_at = COALESCE(?, closed_at) WHERE id = ?`,
		status, closedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return requireRow(res, billing.ErrAccountNotFound, string(id))
}

func (s queries) NextAccountNumber(ctx context.Context) (int64, error) {
	var next int64
	err := s.q.QueryRowContext(ctx,
		`UPDATE sequences SET value = value + 1 WHERE name = 'account_no' RETURNING value`,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate account number: %w", err)
	}
	return next, nil
}

func scanAccount(row scanner) (billing.Account, error) {
	var (
		acct      billing.Account
		createdAt string
		closedAt  sql.NullString
	)
	err := row.Scan(
		&acct.ID, &acct.AccountNo, &acct.PatientID, &acct.EncounterID,
		&acct.Currency, &acct.Status, &createdAt, &closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return acct, err
		}
		return acct, fmt.Errorf("failed to scan account: %w", err)
	}
	var times timeParser
	acct.CreatedAt = times.at("created_at", createdAt)
	acct.ClosedAt = times.ptr("closed_at", closedAt)
	if times.err != nil {
		return acct, fmt.Errorf("failed to scan account %s: %w", acct.ID, times.err)
	}
	return acct, nil
}

// =============================================================================
// ITEMS
// =============================================================================

const itemColumns = `id, account_id, item_type, code, description, quantity, unit_price, discount, net,
	status, void_reason, created_at, updated_at`

func (s queries) AppendItem(ctx context.Context, item billing.Item) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO billing_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.AccountID,
		item.Type,
		nullString(item.Code),
		item.Description,
		item.Quantity,
		item.UnitPrice.Int64(),
		item.Discount.Int64(),
		item.Net.Int64(),
		item.Status,
		nullString(item.VoidReason),
		formatTime(item.CreatedAt),
		formatTime(item.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append item: %w", err)
	}
	return nil
}

func (s queries) GetItem(ctx context.Context, id billing.ItemID) (*billing.Item, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM billing_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", billing.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s queries) SetItemStatus(ctx context.Context, id billing.ItemID, status billing.ItemStatus, reason string, at time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE billing_items
		SET status = ?, void_reason = COALESCE(?, void_reason), updated_at = ?
		WHERE id = ?`,
		status, nullString(reason), formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return requireRow(res, billing.ErrItemNotFound, string(id))
}

func (s queries) Items(ctx context.Context, accountID billing.AccountID) ([]billing.Item, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM billing_items WHERE account_id = ? ORDER BY rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []billing.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanItem(row scanner) (billing.Item, error) {
	var (
		item                 billing.Item
		code, voidReason     sql.NullString
		unitPrice, discount  int64
		net                  int64
		createdAt, updatedAt string
	)
	err := row.Scan(
		&item.ID, &item.AccountID, &item.Type, &code, &item.Description,
		&item.Quantity, &unitPrice, &discount, &net,
		&item.Status, &voidReason, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("failed to scan item: %w", err)
	}
	item.Code = code.String
	item.UnitPrice = billing.Money(unitPrice)
	item.Discount = billing.Money(discount)
	item.Net = billing.Money(net)
	item.VoidReason = voidReason.String
	var times timeParser
	item.CreatedAt = times.at("created_at", createdAt)
	item.UpdatedAt = times.at("updated_at", updatedAt)
	if times.err != nil {
		return item, fmt.Errorf("failed to scan item %s: %w", item.ID, times.err)
	}
	return item, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, account_id, amount, method, reference_no, received_by, idempotency_key, claim_id, created_at`

func (s queries) AppendPayment(ctx context.Context, p billing.Payment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID,
		p.AccountID,
		p.Amount.Int64(),
		p.Method,
		nullString(p.ReferenceNo),
		nullString(p.ReceivedBy),
		nullString(p.IdempotencyKey),
		nullString(p.ClaimID),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err, "idempotency_key") {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateIdempotencyKey, p.IdempotencyKey)
		}
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

func (s queries) PaymentByIdempotencyKey(ctx context.Context, key string) (*billing.Payment, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = ?`, key)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s queries) Payments(ctx context.Context, accountID billing.AccountID) ([]billing.Payment, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE account_id = ? ORDER BY rowid`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []billing.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(row scanner) (billing.Payment, error) {
	var (
		p                                     billing.Payment
		amount                                int64
		referenceNo, receivedBy, key, claimID sql.NullString
		createdAt                             string
	)
	err := row.Scan(
		&p.ID, &p.AccountID, &amount, &p.Method,
		&referenceNo, &receivedBy, &key, &claimID, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}
	p.Amount = billing.Money(amount)
	p.ReferenceNo = referenceNo.String
	p.ReceivedBy = receivedBy.String
	p.IdempotencyKey = key.String
	p.ClaimID = claimID.String
	var times timeParser
	p.CreatedAt = times.at("created_at", createdAt)
	if times.err != nil {
		return p, fmt.Errorf("failed to scan payment %s: %w", p.ID, times.err)
	}
	return p, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

const claimColumns = `id, invoice_id, provider, policy_number, claim_number, claim_amount, approved_amount,
	status, rejection_reason, submission_date, approval_date, rejection_date, paid_date, payment_id,
	created_at, updated_at`

func (s queries) CreateClaim(ctx context.Context, c insurance.Claim) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID,
		c.InvoiceID,
		c.Provider,
		c.PolicyNumber,
		c.ClaimNumber,
		c.ClaimAmount.Int64(),
		nullMoney(c.ApprovedAmount),
		c.Status,
		nullString(c.RejectionReason),
		formatTimePtr(c.SubmissionDate),
		formatTimePtr(c.ApprovalDate),
		formatTimePtr(c.RejectionDate),
		formatTimePtr(c.PaidDate),
		nullString(c.PaymentID),
		formatTime(c.CreatedAt),
		formatTime(c.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err, "claim_number") {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateClaimNumber, c.ClaimNumber)
		}
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

func (s queries) GetClaim(ctx context.Context, id insurance.ClaimID) (*insurance.Claim, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	c, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", billing.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s queries) ListClaims(ctx context.Context, status insurance.ClaimStatus) ([]insurance.Claim, error) {
	if status == "" {
		return s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims ORDER BY rowid`)
	}
	return s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE status = ? ORDER BY rowid`, status)
}

func (s queries) ClaimsByInvoice(ctx context.Context, invoiceID billing.AccountID) ([]insurance.Claim, error) {
	return s.queryClaims(ctx, `SELECT `+claimColumns+` FROM claims WHERE invoice_id = ? ORDER BY rowid`, invoiceID)
}

func (s queries) UpdateClaim(ctx context.Context, c insurance.Claim, expected insurance.ClaimStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE claims
		SET approved_amount = ?, status = ?, rejection_reason = ?,
		    submission_date = ?, approval_date = ?, rejection_date = ?, paid_date = ?,
		    payment_id = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		nullMoney(c.ApprovedAmount),
		c.Status,
		nullString(c.RejectionReason),
		formatTimePtr(c.SubmissionDate),
		formatTimePtr(c.ApprovalDate),
		formatTimePtr(c.RejectionDate),
		formatTimePtr(c.PaidDate),
		nullString(c.PaymentID),
		formatTime(c.UpdatedAt),
		c.ID,
		expected,
	)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if n == 1 {
		return nil
	}

	current, err := s.GetClaim(ctx, c.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: claim %s is %s, expected %s",
		billing.ErrConcurrentModification, c.ID, current.Status, expected)
}

func (s queries) queryClaims(ctx context.Context, query string, args ...any) ([]insurance.Claim, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	claims := []insurance.Claim{}
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func scanClaim(row scanner) (insurance.Claim, error) {
	var (
		c                                   insurance.Claim
		claimAmount                         int64
		approvedAmount                      sql.NullInt64
		rejectionReason, paymentID          sql.NullString
		submitted, approved, rejected, paid sql.NullString
		createdAt, updatedAt                string
	)
	err := row.Scan(
		&c.ID, &c.InvoiceID, &c.Provider, &c.PolicyNumber, &c.ClaimNumber,
		&claimAmount, &approvedAmount, &c.Status, &rejectionReason,
		&submitted, &approved, &rejected, &paid, &paymentID,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan claim: %w", err)
	}
	c.ClaimAmount = billing.Money(claimAmount)
	if approvedAmount.Valid {
		m := billing.Money(approvedAmount.Int64)
		c.ApprovedAmount = &m
	}
	c.RejectionReason = rejectionReason.String
	c.PaymentID = paymentID.String

	var times timeParser
	c.SubmissionDate = times.ptr("submission_date", submitted)
	c.ApprovalDate = times.ptr("approval_date", approved)
	c.RejectionDate = times.ptr("rejection_date", rejected)
	c.PaidDate = times.ptr("paid_date", paid)
	c.CreatedAt = times.at("created_at", createdAt)
	c.UpdatedAt = times.at("updated_at", updatedAt)
	if times.err != nil {
		return c, fmt.Errorf("failed to scan claim %s: %w", c.ID, times.err)
	}
	return c, nil
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

func nullMoney(m *billing.Money) sql.NullInt64 {
	if m == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: m.Int64(), Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// timeParser decodes stored timestamps and keeps the first failure, so a
// scan helper can check once after filling every column.
type timeParser struct {
	err error
}

func (p *timeParser) at(column, s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	return t
}

func (p *timeParser) ptr(column string, s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := p.at(column, s.String)
	return &t
}

func requireRow(res sql.Result, notFound error, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", notFound, id)
	}
	return nil
}

// isUniqueConstraintError reports whether err is a UNIQUE violation on column.
func isUniqueConstraintError(err error, column string) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return strings.Contains(sqliteErr.Error(), "."+column)
}
