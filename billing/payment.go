/*
payment.go - Payment validation and the idempotency rule

PURPOSE:
  Checks a payment request before it reaches the account lock, and decides
  whether a request carrying an idempotency key is a retry of an earlier
  payment.

PRECONDITIONS (checked here, no account state needed):
  amount > 0              else InvalidAmountError
  method is known         else ValidationError

PRECONDITIONS (checked under the account lock, see ledger.go):
  account is open         else ErrAccountClosed
  amount <= balance       else OverpaymentError

IDEMPOTENCY:
  Cashier terminals retry on timeouts. A request that repeats the key of an
  existing payment for the same account, amount and method returns that
  payment unchanged. The same key with different content is a client bug
  and fails with ErrDuplicateIdempotencyKey.
*/
package billing

import (
	"strings"
	"time"
)

func (req PaymentRequest) validate() error {
	if !req.Amount.IsPositive() {
		return &InvalidAmountError{Amount: req.Amount}
	}
	if !req.Method.Valid() {
		names := make([]string, len(PaymentMethods))
		for i, m := range PaymentMethods {
			names[i] = string(m)
		}
		return &ValidationError{Field: "method", Message: "must be one of " + strings.Join(names, ", ")}
	}
	return nil
}

// sameAs reports whether an existing payment is a replay of req.
func (p Payment) sameAs(accountID AccountID, req PaymentRequest) bool {
	return p.AccountID == accountID && p.Amount == req.Amount && p.Method == req.Method
}

func newPayment(accountID AccountID, req PaymentRequest, now time.Time) Payment {
	return Payment{
		ID:             NewPaymentID(),
		AccountID:      accountID,
		Amount:         req.Amount,
		Method:         req.Method,
		ReferenceNo:    strings.TrimSpace(req.ReferenceNo),
		ReceivedBy:     strings.TrimSpace(req.ReceivedBy),
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		ClaimID:        req.ClaimID,
		CreatedAt:      now,
	}
}

// PaymentHook runs inside the account transaction right after a payment is
// appended. Returning an error rolls back the payment.
type PaymentHook func(tx Store, p *Payment) error
