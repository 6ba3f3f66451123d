package insurance

import (
	"strings"
	"time"

	"github.com/warp/billing-ledger/billing"
)

// =============================================================================
// TRANSITIONS - Pure functions, the input claim is never modified
// =============================================================================

var transitions = map[ClaimStatus][]ClaimStatus{
	ClaimPending:   {ClaimSubmitted},
	ClaimSubmitted: {ClaimApproved, ClaimRejected},
	ClaimApproved:  {ClaimPaid},
}

// CanTransition reports whether a claim may move from s to next.
func (s ClaimStatus) CanTransition(next ClaimStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s ClaimStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

func guard(c Claim, next ClaimStatus) error {
	if !c.Status.CanTransition(next) {
		return &billing.InvalidTransitionError{
			Entity: "claim",
			ID:     string(c.ID),
			From:   string(c.Status),
			To:     string(next),
		}
	}
	return nil
}

// Submit moves a pending claim to submitted.
func Submit(c Claim, at time.Time) (Claim, error) {
	if err := guard(c, ClaimSubmitted); err != nil {
		return c, err
	}
	c.Status = ClaimSubmitted
	c.SubmissionDate = &at
	c.UpdatedAt = at
	return c, nil
}

// Approve moves a submitted claim to approved for at most the claimed amount.
func Approve(c Claim, amount billing.Money, at time.Time) (Claim, error) {
	if err := guard(c, ClaimApproved); err != nil {
		return c, err
	}
	if !amount.IsPositive() {
		return c, &billing.ValidationError{Field: "approved_amount", Message: "must be greater than zero"}
	}
	if amount.GreaterThan(c.ClaimAmount) {
		return c, &billing.ValidationError{Field: "approved_amount", Message: "must not exceed claim_amount"}
	}
	c.Status = ClaimApproved
	c.ApprovedAmount = &amount
	c.ApprovalDate = &at
	c.UpdatedAt = at
	return c, nil
}

// Reject moves a submitted claim to rejected.
func Reject(c Claim, reason string, at time.Time) (Claim, error) {
	if err := guard(c, ClaimRejected); err != nil {
		return c, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return c, &billing.ValidationError{Field: "reason", Message: "is required"}
	}
	c.Status = ClaimRejected
	c.RejectionReason = reason
	c.RejectionDate = &at
	c.UpdatedAt = at
	return c, nil
}

// MarkPaid moves an approved claim to paid.
func MarkPaid(c Claim, at time.Time) (Claim, error) {
	if err := guard(c, ClaimPaid); err != nil {
		return c, err
	}
	c.Status = ClaimPaid
	c.PaidDate = &at
	c.UpdatedAt = at
	return c, nil
}
