/*
ledger.go - Billing ledger operations

PURPOSE:
  The Ledger is the only way accounts change. It validates requests, takes
  the account's write lock through Store.WithAccountTx, appends records and
  re-derives the account figures before committing.

DATA FLOW:
  ┌──────────────────────────────────────────────────────────────────┐
  │                                                                  │
  │  AddItem ──▶ validate ──▶ lock account ──▶ append ──▶ recompute  │
  │                                                                  │
  │  ApplyPayment ──▶ validate ──▶ lock account ──▶ recompute        │
  │                                    │                             │
  │                        amount <= balance ?                       │
  │                           │            │                         │
  │                          yes           no ──▶ OverpaymentError   │
  │                           │                                      │
  │                     append payment ──▶ recompute (balance >= 0)  │
  │                                                                  │
  └──────────────────────────────────────────────────────────────────┘

CONCURRENCY:
  Check-balance-then-append must be atomic per account, otherwise two
  cashiers could both pass amount <= balance against the same stale figure
  and jointly overpay. Every mutation runs inside WithAccountTx; readers do
  not lock and may see a slightly stale balance.

RECOMPUTATION:
  No figure is cached. recompute re-reads items and payments through the
  transaction's Store, so a writer always acts on committed state plus its
  own writes.

EXAMPLE:
  ledger := billing.NewLedger(store)

  acct, _ := ledger.OpenAccount(ctx, billing.OpenAccountRequest{PatientID: "p-1", EncounterID: "e-1"})
  ledger.AddItem(ctx, acct.ID, billing.ItemRequest{
      Type: billing.ItemConsultation, Description: "GP consult",
      Quantity: 1, UnitPrice: billing.KES.Major(1500),
  })
  ledger.ApplyPayment(ctx, acct.ID, billing.PaymentRequest{Amount: billing.KES.Major(1500), Method: billing.MethodMpesa})
  ledger.Close(ctx, acct.ID)

SEE ALSO:
  - account.go: Summarize
  - store.go: WithAccountTx contract
  - insurance/service.go: Settles claims through ApplyPaymentWith
*/
package billing

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Ledger applies billing operations against a Store.
type Ledger struct {
	Store    Store
	Currency Currency
	Logger   zerolog.Logger
	Now      func() time.Time
}

// NewLedger creates a ledger over store using KES and a no-op logger.
func NewLedger(store Store) *Ledger {
	return &Ledger{
		Store:    store,
		Currency: KES,
		Logger:   zerolog.Nop(),
		Now:      time.Now,
	}
}

func (l *Ledger) now() time.Time {
	if l.Now == nil {
		return time.Now().UTC()
	}
	return l.Now().UTC()
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// OpenAccount creates an open account for a patient encounter.
func (l *Ledger) OpenAccount(ctx context.Context, req OpenAccountRequest) (*Account, error) {
	patientID := strings.TrimSpace(req.PatientID)
	encounterID := strings.TrimSpace(req.EncounterID)
	if patientID == "" {
		return nil, &ValidationError{Field: "patient_id", Message: "is required"}
	}
	if encounterID == "" {
		return nil, &ValidationError{Field: "encounter_id", Message: "is required"}
	}

	now := l.now()
	accountNo := strings.TrimSpace(req.AccountNo)
	if accountNo == "" {
		seq, err := l.Store.NextAccountNumber(ctx)
		if err != nil {
			return nil, fmt.Errorf("allocating account number: %w", err)
		}
		accountNo = fmt.Sprintf("BA-%d-%06d", now.Year(), seq)
	}

	acct := Account{
		ID:          NewAccountID(),
		AccountNo:   accountNo,
		PatientID:   patientID,
		EncounterID: encounterID,
		Currency:    l.Currency.Code,
		Status:      AccountOpen,
		CreatedAt:   now,
	}
	if err := l.Store.CreateAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	l.Logger.Info().
		Str("account_id", string(acct.ID)).
		Str("account_no", acct.AccountNo).
		Str("patient_id", acct.PatientID).
		Msg("account opened")
	return &acct, nil
}

// Account returns an account with its derived figures.
func (l *Ledger) Account(ctx context.Context, id AccountID) (*AccountSnapshot, error) {
	acct, err := l.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	sum, _, _, err := l.read(ctx, *acct)
	if err != nil {
		return nil, err
	}
	return &AccountSnapshot{Account: *acct, Summary: sum}, nil
}

// Accounts lists accounts matching filter with their derived figures.
func (l *Ledger) Accounts(ctx context.Context, filter AccountFilter) ([]AccountSnapshot, error) {
	accounts, err := l.Store.ListAccounts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	snapshots := make([]AccountSnapshot, 0, len(accounts))
	for _, acct := range accounts {
		sum, _, _, err := l.read(ctx, acct)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, AccountSnapshot{Account: acct, Summary: sum})
	}
	return snapshots, nil
}

// Items returns every item on the account, voided ones included.
func (l *Ledger) Items(ctx context.Context, id AccountID) ([]Item, error) {
	if _, err := l.Store.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return l.Store.Items(ctx, id)
}

// Payments returns every payment on the account.
func (l *Ledger) Payments(ctx context.Context, id AccountID) ([]Payment, error) {
	if _, err := l.Store.GetAccount(ctx, id); err != nil {
		return nil, err
	}
	return l.Store.Payments(ctx, id)
}

// Invoice returns the reporting view of the account.
func (l *Ledger) Invoice(ctx context.Context, id AccountID) (*Invoice, error) {
	acct, err := l.Store.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	sum, items, payments, err := l.read(ctx, *acct)
	if err != nil {
		return nil, err
	}
	return &Invoice{
		AccountID:   acct.ID,
		InvoiceNo:   acct.AccountNo,
		PatientID:   acct.PatientID,
		EncounterID: acct.EncounterID,
		Currency:    acct.Currency,
		Total:       sum.Total,
		Paid:        sum.Paid,
		Balance:     sum.Balance,
		Status:      sum.InvoiceStatus(),
		Items:       items,
		Payments:    payments,
		IssuedAt:    l.now(),
	}, nil
}

// Close moves a settled account to closed. Further charges and payments
// are rejected afterwards.
func (l *Ledger) Close(ctx context.Context, id AccountID) (*AccountSnapshot, error) {
	var snap AccountSnapshot
	err := l.Store.WithAccountTx(ctx, id, func(tx Store) error {
		acct, err := tx.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		sum, err := l.recompute(ctx, tx, *acct)
		if err != nil {
			return err
		}
		if err := acct.canClose(sum); err != nil {
			return err
		}

		now := l.now()
		if err := tx.SetAccountStatus(ctx, id, AccountClosed, now); err != nil {
			return fmt.Errorf("closing account: %w", err)
		}
		acct.Status = AccountClosed
		acct.ClosedAt = &now
		snap = AccountSnapshot{Account: *acct, Summary: sum}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Logger.Info().
		Str("account_id", string(id)).
		Str("account_no", snap.AccountNo).
		Int64("total", snap.Total.Int64()).
		Msg("account closed")
	return &snap, nil
}

// =============================================================================
// ITEMS
// =============================================================================

// AddItem appends a charge to an open account.
func (l *Ledger) AddItem(ctx context.Context, id AccountID, req ItemRequest) (*Item, error) {
	item, err := NewItem(id, req, l.now())
	if err != nil {
		return nil, err
	}

	var sum Summary
	err = l.Store.WithAccountTx(ctx, id, func(tx Store) error {
		acct, err := l.openAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		before, err := l.recompute(ctx, tx, *acct)
		if err != nil {
			return err
		}
		if before.Total > math.MaxInt64-item.Net {
			return &ValidationError{Field: "unit_price", Message: "account total would exceed the largest representable amount"}
		}
		if err := tx.AppendItem(ctx, item); err != nil {
			return fmt.Errorf("appending item: %w", err)
		}
		sum, err = l.recompute(ctx, tx, *acct)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.Logger.Debug().
		Str("account_id", string(id)).
		Str("item_id", string(item.ID)).
		Int64("net", item.Net.Int64()).
		Int64("total", sum.Total.Int64()).
		Msg("item added")
	return &item, nil
}

// VoidItem voids a charge. It fails with ErrVoidWouldOverpay if the
// account would end up with more paid than charged.
func (l *Ledger) VoidItem(ctx context.Context, itemID ItemID, reason string) (*Item, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "is required"}
	}
	found, err := l.Store.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}

	var voided Item
	err = l.Store.WithAccountTx(ctx, found.AccountID, func(tx Store) error {
		acct, err := l.openAccount(ctx, tx, found.AccountID)
		if err != nil {
			return err
		}
		item, err := tx.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if err := item.transition(ItemVoided); err != nil {
			return err
		}
		before, err := l.recompute(ctx, tx, *acct)
		if err != nil {
			return err
		}
		if before.Balance.Sub(LineTotal(*item)).IsNegative() {
			return fmt.Errorf("%w: item %s is worth %d but only %d is outstanding",
				ErrVoidWouldOverpay, itemID, LineTotal(*item).Int64(), before.Balance.Int64())
		}

		now := l.now()
		if err := tx.SetItemStatus(ctx, itemID, ItemVoided, reason, now); err != nil {
			return fmt.Errorf("voiding item: %w", err)
		}
		if _, err := l.recompute(ctx, tx, *acct); err != nil {
			return err
		}
		voided = *item
		voided.Status = ItemVoided
		voided.VoidReason = reason
		voided.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Logger.Info().
		Str("account_id", string(voided.AccountID)).
		Str("item_id", string(itemID)).
		Str("reason", reason).
		Msg("item voided")
	return &voided, nil
}

// BillItems marks every pending item on the account as billed and
// returns how many changed.
func (l *Ledger) BillItems(ctx context.Context, id AccountID) (int, error) {
	billed := 0
	err := l.Store.WithAccountTx(ctx, id, func(tx Store) error {
		acct, err := l.openAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := l.recompute(ctx, tx, *acct); err != nil {
			return err
		}
		items, err := tx.Items(ctx, id)
		if err != nil {
			return fmt.Errorf("loading items: %w", err)
		}
		now := l.now()
		for _, item := range items {
			if item.Status != ItemPending {
				continue
			}
			if err := tx.SetItemStatus(ctx, item.ID, ItemBilled, "", now); err != nil {
				return fmt.Errorf("billing item %s: %w", item.ID, err)
			}
			billed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return billed, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// ApplyPayment records a payment of at most the outstanding balance.
func (l *Ledger) ApplyPayment(ctx context.Context, id AccountID, req PaymentRequest) (*Payment, error) {
	return l.ApplyPaymentWith(ctx, id, req, nil)
}

// ApplyPaymentWith is ApplyPayment with a hook that runs in the same
// account transaction after the payment is appended.
func (l *Ledger) ApplyPaymentWith(ctx context.Context, id AccountID, req PaymentRequest, hook PaymentHook) (*Payment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var (
		applied  Payment
		after    Summary
		replayed bool
	)
	err := l.Store.WithAccountTx(ctx, id, func(tx Store) error {
		if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
			prior, err := tx.PaymentByIdempotencyKey(ctx, key)
			if err != nil {
				return fmt.Errorf("checking idempotency key: %w", err)
			}
			if prior != nil {
				if !prior.sameAs(id, req) {
					return fmt.Errorf("%w: %s", ErrDuplicateIdempotencyKey, key)
				}
				applied = *prior
				applied.Replayed = true
				replayed = true
				return nil
			}
		}

		acct, err := l.openAccount(ctx, tx, id)
		if err != nil {
			return err
		}
		before, err := l.recompute(ctx, tx, *acct)
		if err != nil {
			return err
		}
		if req.Amount.GreaterThan(before.Balance) {
			return &OverpaymentError{AccountID: id, Requested: req.Amount, Balance: before.Balance}
		}

		p := newPayment(id, req, l.now())
		if err := tx.AppendPayment(ctx, p); err != nil {
			return fmt.Errorf("appending payment: %w", err)
		}
		after, err = l.recompute(ctx, tx, *acct)
		if err != nil {
			return err
		}
		if hook != nil {
			if err := hook(tx, &p); err != nil {
				return err
			}
		}
		applied = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	if replayed {
		l.Logger.Info().
			Str("account_id", string(id)).
			Str("payment_id", string(applied.ID)).
			Str("idempotency_key", applied.IdempotencyKey).
			Msg("payment replayed")
		return &applied, nil
	}

	evt := l.Logger.Info().
		Str("account_id", string(id)).
		Str("payment_id", string(applied.ID)).
		Str("method", string(applied.Method)).
		Int64("amount", applied.Amount.Int64()).
		Int64("balance", after.Balance.Int64())
	if after.Settled() {
		evt = evt.Bool("eligible_for_close", true)
	}
	evt.Msg("payment applied")
	return &applied, nil
}

// =============================================================================
// INTERNALS
// =============================================================================

// openAccount loads an account inside a transaction and requires it open.
func (l *Ledger) openAccount(ctx context.Context, tx Store, id AccountID) (*Account, error) {
	acct, err := tx.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if acct.Status == AccountClosed {
		return nil, fmt.Errorf("%w: %s", ErrAccountClosed, acct.AccountNo)
	}
	return acct, nil
}

// recompute re-derives the figures of acct inside a transaction. A broken
// invariant aborts the transaction.
func (l *Ledger) recompute(ctx context.Context, tx Store, acct Account) (Summary, error) {
	items, err := tx.Items(ctx, acct.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("loading items: %w", err)
	}
	payments, err := tx.Payments(ctx, acct.ID)
	if err != nil {
		return Summary{}, fmt.Errorf("loading payments: %w", err)
	}
	sum := Summarize(items, payments)
	if err := CheckInvariants(acct, sum); err != nil {
		l.reportViolation(err)
		return sum, err
	}
	return sum, nil
}

// read derives the figures of acct outside any transaction. Payments are
// loaded before items: a concurrent writer can then only make the result
// under-report what was paid, never over-report it. Violations are logged
// and the true figures returned.
func (l *Ledger) read(ctx context.Context, acct Account) (Summary, []Item, []Payment, error) {
	payments, err := l.Store.Payments(ctx, acct.ID)
	if err != nil {
		return Summary{}, nil, nil, fmt.Errorf("loading payments: %w", err)
	}
	items, err := l.Store.Items(ctx, acct.ID)
	if err != nil {
		return Summary{}, nil, nil, fmt.Errorf("loading items: %w", err)
	}
	sum := Summarize(items, payments)
	if err := CheckInvariants(acct, sum); err != nil {
		l.reportViolation(err)
	}
	return sum, items, payments, nil
}

func (l *Ledger) reportViolation(err error) {
	evt := l.Logger.Error().Err(err)
	if v, ok := err.(*InvariantViolationError); ok {
		evt = evt.
			Str("account_id", string(v.AccountID)).
			Int64("total", v.Summary.Total.Int64()).
			Int64("paid", v.Summary.Paid.Int64()).
			Int64("balance", v.Summary.Balance.Int64())
	}
	evt.Msg("ledger invariant violated")
}
