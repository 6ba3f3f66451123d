/*
store.go - Persistence interface for accounts, items and payments

PURPOSE:
  Abstracts storage so the ledger rules run unchanged against memory,
  SQLite or PostgreSQL.

APPEND-ONLY:
  Items and payments are never updated in amount and never deleted.
  The only updates are status changes (item void/bill, account close).

SERIALIZATION:
  WithAccountTx is the single writer gate per account. Everything the
  ledger does between reading the balance and appending a payment happens
  inside fn, against the Store passed to fn. Implementations:

    memory:   store-wide write lock + undo log
    sqlite:   store mutex + SQL transaction on a single connection
    postgres: SQL transaction + SELECT ... FOR UPDATE on the account row

  Calling WithAccountTx on the Store given to fn runs the nested fn in the
  same transaction.

LOOKUPS:
  GetAccount / GetItem return ErrAccountNotFound / ErrItemNotFound.
  PaymentByIdempotencyKey returns (nil, nil) when the key is unused.

IMPLEMENTATIONS:
  - billing/store/memory.go
  - store/sqlite/sqlite.go
  - store/postgres/postgres.go
*/
package billing

//go:generate mockgen -source=store.go -destination=store_mock.go -package=billing

import (
	"context"
	"time"
)

// Store handles persistence of accounts, items and payments.
type Store interface {
	CreateAccount(ctx context.Context, acct Account) error
	GetAccount(ctx context.Context, id AccountID) (*Account, error)
	ListAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	SetAccountStatus(ctx context.Context, id AccountID, status AccountStatus, at time.Time) error

	// NextAccountNumber returns the next value of a monotonically increasing sequence.
	NextAccountNumber(ctx context.Context) (int64, error)

	AppendItem(ctx context.Context, item Item) error
	GetItem(ctx context.Context, id ItemID) (*Item, error)
	SetItemStatus(ctx context.Context, id ItemID, status ItemStatus, reason string, at time.Time) error
	Items(ctx context.Context, accountID AccountID) ([]Item, error)

	AppendPayment(ctx context.Context, p Payment) error
	PaymentByIdempotencyKey(ctx context.Context, key string) (*Payment, error)
	Payments(ctx context.Context, accountID AccountID) ([]Payment, error)

	// WithAccountTx runs fn while holding the write lock of one account.
	// If fn returns an error every write made through tx is rolled back.
	WithAccountTx(ctx context.Context, id AccountID, fn func(tx Store) error) error
}
