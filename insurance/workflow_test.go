package insurance_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
)

var now = time.Date(2026, time.April, 2, 14, 30, 0, 0, time.UTC)

func claimIn(status insurance.ClaimStatus) insurance.Claim {
	return insurance.Claim{
		ID:          "clm_test",
		Status:      status,
		ClaimAmount: billing.KES.Major(20000),
	}
}

func TestClaimStatus_Transitions(t *testing.T) {
	all := []insurance.ClaimStatus{
		insurance.ClaimPending,
		insurance.ClaimSubmitted,
		insurance.ClaimApproved,
		insurance.ClaimRejected,
		insurance.ClaimPaid,
	}
	allowed := map[[2]insurance.ClaimStatus]bool{
		{insurance.ClaimPending, insurance.ClaimSubmitted}:  true,
		{insurance.ClaimSubmitted, insurance.ClaimApproved}: true,
		{insurance.ClaimSubmitted, insurance.ClaimRejected}: true,
		{insurance.ClaimApproved, insurance.ClaimPaid}:      true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]insurance.ClaimStatus{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}

	assert.True(t, insurance.ClaimPaid.IsTerminal())
	assert.True(t, insurance.ClaimRejected.IsTerminal())
	assert.False(t, insurance.ClaimApproved.IsTerminal())
}

func TestSubmit(t *testing.T) {
	got, err := insurance.Submit(claimIn(insurance.ClaimPending), now)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimSubmitted, got.Status)
	require.NotNil(t, got.SubmissionDate)
	assert.Equal(t, now, *got.SubmissionDate)

	_, err = insurance.Submit(claimIn(insurance.ClaimSubmitted), now)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestApprove(t *testing.T) {
	// GIVEN: A submitted claim for 20,000
	// WHEN: Approving 18,000
	// THEN: Approved with the partial amount, and a second approve fails

	submitted := claimIn(insurance.ClaimSubmitted)

	approved, err := insurance.Approve(submitted, billing.KES.Major(18000), now)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAmount)
	assert.Equal(t, billing.KES.Major(18000), *approved.ApprovedAmount)
	assert.Nil(t, submitted.ApprovedAmount, "input claim is untouched")

	_, err = insurance.Approve(approved, billing.KES.Major(18000), now)
	var transition *billing.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, "approved", transition.From)
	assert.Equal(t, "approved", transition.To)
}

func TestApprove_AmountBounds(t *testing.T) {
	submitted := claimIn(insurance.ClaimSubmitted)

	for name, amount := range map[string]billing.Money{
		"zero":          0,
		"negative":      -1,
		"above claimed": billing.KES.Major(20000) + 1,
	} {
		t.Run(name, func(t *testing.T) {
			got, err := insurance.Approve(submitted, amount, now)
			var ve *billing.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "approved_amount", ve.Field)
			assert.Equal(t, insurance.ClaimSubmitted, got.Status)
		})
	}

	got, err := insurance.Approve(submitted, billing.KES.Major(20000), now)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimApproved, got.Status)
}

func TestReject(t *testing.T) {
	_, err := insurance.Reject(claimIn(insurance.ClaimSubmitted), " ", now)
	assert.ErrorIs(t, err, billing.ErrValidation)

	got, err := insurance.Reject(claimIn(insurance.ClaimSubmitted), "policy lapsed", now)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimRejected, got.Status)
	assert.Equal(t, "policy lapsed", got.RejectionReason)

	_, err = insurance.Submit(got, now)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition, "rejected is terminal")
}

func TestMarkPaid(t *testing.T) {
	_, err := insurance.MarkPaid(claimIn(insurance.ClaimSubmitted), now)
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)

	got, err := insurance.MarkPaid(claimIn(insurance.ClaimApproved), now)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimPaid, got.Status)
	require.NotNil(t, got.PaidDate)
}
