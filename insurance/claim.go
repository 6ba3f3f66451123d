/*
Package insurance implements the insurance claim workflow on top of the
billing ledger.

PURPOSE:
  A claim asks an insurer to reimburse (part of) an invoice. It references
  the invoice by id but is not owned by it: the claim has its own lifecycle,
  its own storage and its own concurrency rules.

CLAIM FLOW:
  ┌────────────────────────────────────────────────────────────────┐
  │                                                                │
  │  pending ──submit──▶ submitted ──approve──▶ approved ──▶ paid  │
  │                          │                                     │
  │                          └──reject──▶ rejected                 │
  │                                                                │
  └────────────────────────────────────────────────────────────────┘

  rejected and paid are terminal. No transition goes backwards.

INVARIANT:
  approved_amount, once set, is > 0 and <= claim_amount.

RELATION TO PAYMENTS:
  MarkPaid only moves the claim. Settle does the full job: it applies a
  method=insurance payment of the approved amount to the invoice's account
  and marks the claim paid, in one account transaction.

SEE ALSO:
  - workflow.go: Pure transition functions
  - service.go:  Persistence and settlement
  - billing/ledger.go: ApplyPaymentWith
*/
package insurance

import (
	"time"

	"github.com/warp/billing-ledger/billing"
)

const PrefixClaim = "clm"

type ClaimID string

type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimSubmitted ClaimStatus = "submitted"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimPaid      ClaimStatus = "paid"
)

// Claim is a reimbursement request against an invoice.
type Claim struct {
	ID        ClaimID
	InvoiceID billing.AccountID // the invoice is the reporting view of this account

	Provider     string
	PolicyNumber string
	ClaimNumber  string

	ClaimAmount    billing.Money
	ApprovedAmount *billing.Money // nil until approved

	Status          ClaimStatus
	RejectionReason string

	SubmissionDate *time.Time
	ApprovalDate   *time.Time
	RejectionDate  *time.Time
	PaidDate       *time.Time

	PaymentID string // payment that settled the claim

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ClaimRequest is the input for filing a new claim.
type ClaimRequest struct {
	InvoiceID    billing.AccountID
	Provider     string
	PolicyNumber string
	ClaimNumber  string // generated when empty
	ClaimAmount  billing.Money
}

func newClaimID() ClaimID {
	return ClaimID(billing.NewID(PrefixClaim))
}
