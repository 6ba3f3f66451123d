/*
errors.go - Centralized error types for the billing ledger

PURPOSE:
  All error kinds in one place. Every error here is recoverable by the
  caller: the operation that returned it did not apply, and the account or
  claim is exactly as it was before the call.

ERROR CATEGORIES:
  1. Input errors      - ValidationError, InvalidAmountError
  2. Rule violations   - OverpaymentError, AccountNotSettledError,
                         InvalidTransitionError, ErrAccountClosed
  3. Lookup errors     - ErrAccountNotFound, ErrItemNotFound, ErrClaimNotFound
  4. Store errors      - duplicates, ErrConcurrentModification
  5. Internal bugs     - InvariantViolationError (negative balance observed)

USAGE:
  Structured errors unwrap to a sentinel, so callers pick the depth they need:

    if errors.Is(err, billing.ErrOverpayment) { ... }

    var over *billing.OverpaymentError
    if errors.As(err, &over) {
        fmt.Printf("only %d outstanding\n", over.Balance)
    }

SEE ALSO:
  - api/handlers.go: Maps these helpers onto HTTP status codes
  - insurance/workflow.go: Uses InvalidTransitionError for claims
*/
package billing

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed item, payment, account or claim input.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidAmount is returned when a payment amount is zero or negative.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrOverpayment is returned when a payment exceeds the outstanding balance.
	ErrOverpayment = errors.New("payment exceeds outstanding balance")

	// ErrAccountNotSettled is returned when closing an account with a nonzero balance.
	ErrAccountNotSettled = errors.New("account not settled")

	// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrAccountClosed is returned when mutating a closed account.
	ErrAccountClosed = errors.New("account is closed")

	// ErrVoidWouldOverpay is returned when voiding an item would leave more
	// paid than charged.
	ErrVoidWouldOverpay = errors.New("void would leave account overpaid")

	ErrAccountNotFound = errors.New("account not found")
	ErrItemNotFound    = errors.New("item not found")
	ErrClaimNotFound   = errors.New("claim not found")

	// ErrDuplicateAccountNo is returned when an account number is already taken.
	ErrDuplicateAccountNo = errors.New("duplicate account number")

	// ErrDuplicateIdempotencyKey is returned when a payment key was already used
	// for a different payment. Reusing a key for the same payment is a retry
	// and returns the original payment instead.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	ErrDuplicateClaimNumber = errors.New("duplicate claim number")

	// ErrConcurrentModification is returned when a compare-and-set update lost a race.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvariantViolation marks an internal-consistency bug.
	ErrInvariantViolation = errors.New("ledger invariant violated")

	// ErrStoreRequired is returned when an operation requires a store capability
	// the configured store does not have.
	ErrStoreRequired = errors.New("operation requires extended store interface")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// InvalidAmountError reports a non-positive payment.
type InvalidAmountError struct {
	Amount Money
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount: %d minor units, must be positive", int64(e.Amount))
}

func (e *InvalidAmountError) Unwrap() error {
	return ErrInvalidAmount
}

// OverpaymentError reports a payment larger than the balance at validation time.
type OverpaymentError struct {
	AccountID AccountID
	Requested Money
	Balance   Money
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %d exceeds outstanding balance %d on account %s",
		int64(e.Requested), int64(e.Balance), e.AccountID)
}

func (e *OverpaymentError) Unwrap() error {
	return ErrOverpayment
}

// AccountNotSettledError reports a close attempt with money still owed.
type AccountNotSettledError struct {
	AccountID AccountID
	Balance   Money
}

func (e *AccountNotSettledError) Error() string {
	return fmt.Sprintf("account %s has outstanding balance %d", e.AccountID, int64(e.Balance))
}

func (e *AccountNotSettledError) Unwrap() error {
	return ErrAccountNotSettled
}

// InvalidTransitionError reports a rejected lifecycle change on an
// account, item or claim.
type InvalidTransitionError struct {
	Entity string // "account", "item", "claim"
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// InvariantViolationError reports a derived figure that broke a ledger
// invariant. It indicates a bug, not bad input.
type InvariantViolationError struct {
	AccountID AccountID
	Summary   Summary
	Reason    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated on account %s: %s (total %d, paid %d, balance %d)",
		e.AccountID, e.Reason, int64(e.Summary.Total), int64(e.Summary.Paid), int64(e.Summary.Balance))
}

func (e *InvariantViolationError) Unwrap() error {
	return ErrInvariantViolation
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to malformed client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsConflict returns true if the input was well formed but the current
// state of the account or claim does not allow the operation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrAccountNotSettled) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrAccountClosed) ||
		errors.Is(err, ErrVoidWouldOverpay) ||
		errors.Is(err, ErrDuplicateAccountNo) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrDuplicateClaimNumber) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrClaimNotFound)
}
