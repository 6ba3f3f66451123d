/*
account.go - Account figures derived from items and payments

PURPOSE:
  An account never stores its total, paid amount or balance. Summarize
  derives them from the append-only records every time:

    total   = Σ LineTotal(item)   over non-voided items
    paid    = Σ payment.Amount
    balance = total - paid

  Two reads of the same records always agree, and there is no cached
  figure for concurrent writers to disagree about.

INVARIANT:
  balance >= 0. The payment engine is the only gate that protects it.
  Observing a negative balance anywhere else means a bug; CheckInvariants
  reports it and the ledger logs it. Nothing here corrects it.

ACCOUNT LIFECYCLE:
  open ──close (balance == 0)──▶ closed

  Closing is explicit. Reaching a zero balance only makes an account
  eligible; a patient still in the ward may receive new charges.

SEE ALSO:
  - invoice.go: Status derived from a Summary
  - ledger.go: Recomputes after every mutation
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// Summary holds the derived figures of one account.
type Summary struct {
	Total        Money
	Paid         Money
	Balance      Money
	ItemCount    int // non-voided items
	PaymentCount int
}

// Summarize derives account figures from its items and payments.
func Summarize(items []Item, payments []Payment) Summary {
	var s Summary
	for _, item := range items {
		if item.Status == ItemVoided {
			continue
		}
		s.Total = s.Total.Add(LineTotal(item))
		s.ItemCount++
	}
	for _, p := range payments {
		s.Paid = s.Paid.Add(p.Amount)
		s.PaymentCount++
	}
	s.Balance = s.Total.Sub(s.Paid)
	return s
}

// Settled reports whether nothing is owed.
func (s Summary) Settled() bool {
	return s.Balance.IsZero()
}

// InvoiceStatus resolves the invoice status for these figures.
func (s Summary) InvoiceStatus() InvoiceStatus {
	return ResolveInvoiceStatus(s.Total, s.Paid)
}

// PaidRatio returns paid/total in [0, 1]. An account with nothing charged
// counts as fully paid, matching ResolveInvoiceStatus.
func (s Summary) PaidRatio() decimal.Decimal {
	if !s.Total.IsPositive() {
		return decimal.NewFromInt(1)
	}
	ratio := decimal.NewFromInt(int64(s.Paid)).Div(decimal.NewFromInt(int64(s.Total)))
	if ratio.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return ratio
}

// CheckInvariants returns an InvariantViolationError if the figures of acct
// are inconsistent.
func CheckInvariants(acct Account, s Summary) error {
	if s.Balance.IsNegative() {
		return &InvariantViolationError{AccountID: acct.ID, Summary: s, Reason: "negative balance"}
	}
	if acct.Status == AccountClosed && !s.Balance.IsZero() {
		return &InvariantViolationError{AccountID: acct.ID, Summary: s, Reason: "closed account with outstanding balance"}
	}
	return nil
}

// AccountSnapshot is an account together with its derived figures.
type AccountSnapshot struct {
	Account
	Summary
}

func (acct Account) canClose(s Summary) error {
	if acct.Status == AccountClosed {
		return &InvalidTransitionError{
			Entity: "account",
			ID:     string(acct.ID),
			From:   string(AccountClosed),
			To:     string(AccountClosed),
		}
	}
	if !s.Settled() {
		return &AccountNotSettledError{AccountID: acct.ID, Balance: s.Balance}
	}
	return nil
}
