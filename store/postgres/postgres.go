/*
Package postgres provides a PostgreSQL implementation of the billing and
claim storage interfaces on top of a pgx connection pool.

PURPOSE:
  Same contract as store/sqlite, for multi-instance deployments. Several
  billingd processes may share one database; serialization per account
  comes from the database, not from process memory.

CONCURRENCY:
  WithAccountTx opens a transaction and locks the account row with
  SELECT ... FOR UPDATE. Writers on the same account queue on that lock,
  writers on different accounts run in parallel. Reads outside a
  transaction run at READ COMMITTED and may be slightly stale.

  Claims use compare-and-set updates (WHERE status = expected) and never
  take the account lock unless they are settled through a payment.

SCHEMA:
  Managed by the Migrator in migrate.go. Run `billingd migrate up` before
  the first start.

SEE ALSO:
  - store/sqlite/sqlite.go: single-file equivalent
  - migrations/001_billing.sql
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
)

// Store implements billing.Store and insurance.ClaimStore over a pgx pool.
type Store struct {
	queries
	pool *pgxpool.Pool
}

// New wraps an open pool. The schema must already be migrated.
func New(pool *pgxpool.Pool) *Store {
	return &Store{queries: queries{q: pool}, pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WithAccountTx runs fn in a transaction holding the account row lock.
func (s *Store) WithAccountTx(ctx context.Context, id billing.AccountID, fn func(tx billing.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked string
	err = tx.QueryRow(ctx, `SELECT id FROM billing_accounts WHERE id = $1 FOR UPDATE`, string(id)).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}

	if err := fn(&txStore{queries: queries{q: tx}}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	queries
}

// WithAccountTx on a transaction joins it. The row lock for a second
// account is taken in the same transaction.
func (ts *txStore) WithAccountTx(ctx context.Context, id billing.AccountID, fn func(tx billing.Store) error) error {
	var locked string
	err := ts.q.QueryRow(ctx, `SELECT id FROM billing_accounts WHERE id = $1 FOR UPDATE`, string(id)).Scan(&locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
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
// QUERIES
// =============================================================================

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	q querier
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, account_no, patient_id, encounter_id, currency, status, created_at, closed_at`

func (s queries) CreateAccount(ctx context.Context, acct billing.Account) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO billing_accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(acct.ID), acct.AccountNo, acct.PatientID, acct.EncounterID,
		acct.Currency, string(acct.Status), acct.CreatedAt, acct.ClosedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "billing_accounts_account_no_key") {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateAccountNo, acct.AccountNo)
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s queries) GetAccount(ctx context.Context, id billing.AccountID) (*billing.Account, error) {
	acct, err := scanAccount(s.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM billing_accounts WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (s queries) ListAccounts(ctx context.Context, filter billing.AccountFilter) ([]billing.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM billing_accounts
		WHERE ($1::text = '' OR status = $1) AND ($2::text = '' OR patient_id = $2)
		ORDER BY seq`
	args := []any{string(filter.Status), filter.PatientID}
	if filter.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, filter.Limit)
	}

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
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
	var closedAt *time.Time
	if status == billing.AccountClosed {
		closedAt = &at
	}
	tag, err := s.q.Exec(ctx,
		`UPDATE billing_accounts SET status = $1, closed_at = COALESCE($2, closed_at) WHERE id = $3`,
		string(status), closedAt, string(id))
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", billing.ErrAccountNotFound, id)
	}
	return nil
}

func (s queries) NextAccountNumber(ctx context.Context) (int64, error) {
	var next int64
	if err := s.q.QueryRow(ctx, `SELECT nextval('billing_account_no_seq')`).Scan(&next); err != nil {
		return 0, fmt.Errorf("allocate account number: %w", err)
	}
	return next, nil
}

func scanAccount(row pgx.Row) (billing.Account, error) {
	var (
		acct       billing.Account
		id, status string
		closedAt   *time.Time
	)
	err := row.Scan(&id, &acct.AccountNo, &acct.PatientID, &acct.EncounterID,
		&acct.Currency, &status, &acct.CreatedAt, &closedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return acct, err
		}
		return acct, fmt.Errorf("scan account: %w", err)
	}
	acct.ID = billing.AccountID(id)
	acct.Status = billing.AccountStatus(status)
	acct.CreatedAt = acct.CreatedAt.UTC()
	if closedAt != nil {
		t := closedAt.UTC()
		acct.ClosedAt = &t
	}
	return acct, nil
}

// =============================================================================
// ITEMS
// =============================================================================

const itemColumns = `id, account_id, item_type, code, description, quantity, unit_price, discount, net,
	status, void_reason, created_at, updated_at`

func (s queries) AppendItem(ctx context.Context, item billing.Item) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO billing_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		string(item.ID), string(item.AccountID), string(item.Type), item.Code, item.Description,
		item.Quantity, item.UnitPrice.Int64(), item.Discount.Int64(), item.Net.Int64(),
		string(item.Status), item.VoidReason, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("append item: %w", err)
	}
	return nil
}

func (s queries) GetItem(ctx context.Context, id billing.ItemID) (*billing.Item, error) {
	item, err := scanItem(s.q.QueryRow(ctx, `SELECT `+itemColumns+` FROM billing_items WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", billing.ErrItemNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s queries) SetItemStatus(ctx context.Context, id billing.ItemID, status billing.ItemStatus, reason string, at time.Time) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE billing_items
		SET status = $1, void_reason = COALESCE(NULLIF($2, ''), void_reason), updated_at = $3
		WHERE id = $4`,
		string(status), reason, at, string(id))
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", billing.ErrItemNotFound, id)
	}
	return nil
}

func (s queries) Items(ctx context.Context, accountID billing.AccountID) ([]billing.Item, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+itemColumns+` FROM billing_items WHERE account_id = $1 ORDER BY seq`, string(accountID))
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
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

func scanItem(row pgx.Row) (billing.Item, error) {
	var (
		item                            billing.Item
		id, accountID, itemType, status string
		unitPrice, discount, net        int64
	)
	err := row.Scan(&id, &accountID, &itemType, &item.Code, &item.Description,
		&item.Quantity, &unitPrice, &discount, &net,
		&status, &item.VoidReason, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return item, err
		}
		return item, fmt.Errorf("scan item: %w", err)
	}
	item.ID = billing.ItemID(id)
	item.AccountID = billing.AccountID(accountID)
	item.Type = billing.ItemType(itemType)
	item.Status = billing.ItemStatus(status)
	item.UnitPrice = billing.Money(unitPrice)
	item.Discount = billing.Money(discount)
	item.Net = billing.Money(net)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return item, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

const paymentColumns = `id, account_id, amount, method, reference_no, received_by,
	COALESCE(idempotency_key, ''), claim_id, created_at`

func (s queries) AppendPayment(ctx context.Context, p billing.Payment) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO payments (id, account_id, amount, method, reference_no, received_by,
		                      idempotency_key, claim_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		string(p.ID), string(p.AccountID), p.Amount.Int64(), string(p.Method),
		p.ReferenceNo, p.ReceivedBy, p.IdempotencyKey, p.ClaimID, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "payments_idempotency_key_key") {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateIdempotencyKey, p.IdempotencyKey)
		}
		return fmt.Errorf("append payment: %w", err)
	}
	return nil
}

func (s queries) PaymentByIdempotencyKey(ctx context.Context, key string) (*billing.Payment, error) {
	p, err := scanPayment(s.q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s queries) Payments(ctx context.Context, accountID billing.AccountID) ([]billing.Payment, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE account_id = $1 ORDER BY seq`, string(accountID))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
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

func scanPayment(row pgx.Row) (billing.Payment, error) {
	var (
		p                     billing.Payment
		id, accountID, method string
		amount                int64
	)
	err := row.Scan(&id, &accountID, &amount, &method,
		&p.ReferenceNo, &p.ReceivedBy, &p.IdempotencyKey, &p.ClaimID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("scan payment: %w", err)
	}
	p.ID = billing.PaymentID(id)
	p.AccountID = billing.AccountID(accountID)
	p.Method = billing.PaymentMethod(method)
	p.Amount = billing.Money(amount)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

const claimColumns = `id, invoice_id, provider, policy_number, claim_number, claim_amount, approved_amount,
	status, rejection_reason, submission_date, approval_date, rejection_date, paid_date, payment_id,
	created_at, updated_at`

func (s queries) CreateClaim(ctx context.Context, c insurance.Claim) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		string(c.ID), string(c.InvoiceID), c.Provider, c.PolicyNumber, c.ClaimNumber,
		c.ClaimAmount.Int64(), moneyPtr(c.ApprovedAmount), string(c.Status), c.RejectionReason,
		c.SubmissionDate, c.ApprovalDate, c.RejectionDate, c.PaidDate, c.PaymentID,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "claims_claim_number_key") {
			return fmt.Errorf("%w: %s", billing.ErrDuplicateClaimNumber, c.ClaimNumber)
		}
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

func (s queries) GetClaim(ctx context.Context, id insurance.ClaimID) (*insurance.Claim, error) {
	c, err := scanClaim(s.q.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", billing.ErrClaimNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s queries) ListClaims(ctx context.Context, status insurance.ClaimStatus) ([]insurance.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE ($1::text = '' OR status = $1) ORDER BY seq`, string(status))
}

func (s queries) ClaimsByInvoice(ctx context.Context, invoiceID billing.AccountID) ([]insurance.Claim, error) {
	return s.queryClaims(ctx,
		`SELECT `+claimColumns+` FROM claims WHERE invoice_id = $1 ORDER BY seq`, string(invoiceID))
}

func (s queries) UpdateClaim(ctx context.Context, c insurance.Claim, expected insurance.ClaimStatus) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE claims
		SET approved_amount = $1, status = $2, rejection_reason = $3,
		    submission_date = $4, approval_date = $5, rejection_date = $6, paid_date = $7,
		    payment_id = $8, updated_at = $9
		WHERE id = $10 AND status = $11`,
		moneyPtr(c.ApprovedAmount), string(c.Status), c.RejectionReason,
		c.SubmissionDate, c.ApprovalDate, c.RejectionDate, c.PaidDate,
		c.PaymentID, c.UpdatedAt, string(c.ID), string(expected),
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	if tag.RowsAffected() == 1 {
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
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query claims: %w", err)
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

func scanClaim(row pgx.Row) (insurance.Claim, error) {
	var (
		c                                   insurance.Claim
		id, invoiceID, status               string
		claimAmount                         int64
		approvedAmount                      *int64
		submitted, approved, rejected, paid *time.Time
	)
	err := row.Scan(&id, &invoiceID, &c.Provider, &c.PolicyNumber, &c.ClaimNumber,
		&claimAmount, &approvedAmount, &status, &c.RejectionReason,
		&submitted, &approved, &rejected, &paid, &c.PaymentID,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("scan claim: %w", err)
	}
	c.ID = insurance.ClaimID(id)
	c.InvoiceID = billing.AccountID(invoiceID)
	c.Status = insurance.ClaimStatus(status)
	c.ClaimAmount = billing.Money(claimAmount)
	if approvedAmount != nil {
		m := billing.Money(*approvedAmount)
		c.ApprovedAmount = &m
	}
	c.SubmissionDate = utcPtr(submitted)
	c.ApprovalDate = utcPtr(approved)
	c.RejectionDate = utcPtr(rejected)
	c.PaidDate = utcPtr(paid)
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func moneyPtr(m *billing.Money) *int64 {
	if m == nil {
		return nil
	}
	v := m.Int64()
	return &v
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
