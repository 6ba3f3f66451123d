package insurance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/billing/store"
	"github.com/warp/billing-ledger/insurance"
)

type fixture struct {
	ledger  *billing.Ledger
	service *insurance.Service
	account *billing.Account
}

// newFixture opens an account charged the given amount in whole shillings.
func newFixture(t *testing.T, charged int64) fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()
	ledger := billing.NewLedger(mem)
	ledger.Now = func() time.Time { return now }
	service := insurance.NewService(mem, ledger)
	service.Now = ledger.Now

	acct, err := ledger.OpenAccount(ctx, billing.OpenAccountRequest{PatientID: "patient-9", EncounterID: "adm-9"})
	require.NoError(t, err)
	_, err = ledger.AddItem(ctx, acct.ID, billing.ItemRequest{
		Type:        billing.ItemProcedure,
		Description: "Appendectomy",
		Quantity:    1,
		UnitPrice:   billing.KES.Major(charged),
	})
	require.NoError(t, err)
	return fixture{ledger: ledger, service: service, account: acct}
}

func (f fixture) file(t *testing.T, amount int64) *insurance.Claim {
	t.Helper()
	c, err := f.service.File(context.Background(), insurance.ClaimRequest{
		InvoiceID:    f.account.ID,
		Provider:     "NHIF",
		PolicyNumber: "POL-123",
		ClaimAmount:  billing.KES.Major(amount),
	})
	require.NoError(t, err)
	return c
}

func (f fixture) approved(t *testing.T, claimed, approved int64) *insurance.Claim {
	t.Helper()
	ctx := context.Background()
	c := f.file(t, claimed)
	_, err := f.service.Submit(ctx, c.ID)
	require.NoError(t, err)
	c, err = f.service.Approve(ctx, c.ID, billing.KES.Major(approved))
	require.NoError(t, err)
	return c
}

func TestService_File(t *testing.T) {
	f := newFixture(t, 20000)

	c := f.file(t, 20000)
	assert.Equal(t, insurance.ClaimPending, c.Status)
	assert.Regexp(t, `^CLM-[0-9A-F]{12}$`, c.ClaimNumber)
	assert.Contains(t, string(c.ID), "clm_")

	stored, err := f.service.Get(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Equal(t, *c, *stored)
}

func TestService_File_Validation(t *testing.T) {
	f := newFixture(t, 20000)
	valid := insurance.ClaimRequest{
		InvoiceID: f.account.ID, Provider: "NHIF", PolicyNumber: "POL-1", ClaimAmount: 100,
	}

	tests := []struct {
		name      string
		mutate    func(r *insurance.ClaimRequest)
		wantField string
	}{
		{name: "no invoice", mutate: func(r *insurance.ClaimRequest) { r.InvoiceID = "" }, wantField: "invoice_id"},
		{name: "no provider", mutate: func(r *insurance.ClaimRequest) { r.Provider = "" }, wantField: "insurance_provider"},
		{name: "no policy", mutate: func(r *insurance.ClaimRequest) { r.PolicyNumber = " " }, wantField: "policy_number"},
		{name: "zero amount", mutate: func(r *insurance.ClaimRequest) { r.ClaimAmount = 0 }, wantField: "claim_amount"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.service.File(context.Background(), req)
			var ve *billing.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}

	req := valid
	req.InvoiceID = "acct_missing"
	_, err := f.service.File(context.Background(), req)
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)

	req = valid
	req.ClaimNumber = "CLM-FIXED"
	_, err = f.service.File(context.Background(), req)
	require.NoError(t, err)
	_, err = f.service.File(context.Background(), req)
	assert.ErrorIs(t, err, billing.ErrDuplicateClaimNumber)
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 20000)

	c := f.approved(t, 20000, 18000)
	assert.Equal(t, insurance.ClaimApproved, c.Status)

	_, err := f.service.Approve(ctx, c.ID, billing.KES.Major(18000))
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)

	paid, err := f.service.MarkPaid(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimPaid, paid.Status)

	// MarkPaid alone records no payment
	snap, err := f.ledger.Account(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(0), snap.Paid)

	byStatus, err := f.service.List(ctx, insurance.ClaimPaid)
	require.NoError(t, err)
	assert.Len(t, byStatus, 1)

	byInvoice, err := f.service.ForInvoice(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, byInvoice, 1)
}

func TestService_Reject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 20000)
	c := f.file(t, 20000)
	_, err := f.service.Submit(ctx, c.ID)
	require.NoError(t, err)

	rejected, err := f.service.Reject(ctx, c.ID, "not covered")
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimRejected, rejected.Status)

	_, _, err = f.service.Settle(ctx, c.ID, "clerk")
	assert.ErrorIs(t, err, billing.ErrInvalidTransition)
}

func TestService_Settle(t *testing.T) {
	// GIVEN: An account charged 20,000 and a claim approved for 18,000
	// WHEN: Settling the claim
	// THEN: An insurance payment of 18,000 lands and the claim is paid and linked

	ctx := context.Background()
	f := newFixture(t, 20000)
	c := f.approved(t, 20000, 18000)

	settled, payment, err := f.service.Settle(ctx, c.ID, "claims-desk")
	require.NoError(t, err)

	assert.Equal(t, insurance.ClaimPaid, settled.Status)
	assert.Equal(t, string(payment.ID), settled.PaymentID)
	assert.Equal(t, billing.MethodInsurance, payment.Method)
	assert.Equal(t, c.ClaimNumber, payment.ReferenceNo)
	assert.Equal(t, string(c.ID), payment.ClaimID)
	assert.Equal(t, billing.KES.Major(18000), payment.Amount)

	snap, err := f.ledger.Account(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.KES.Major(2000), snap.Balance)
	assert.Equal(t, billing.InvoicePartial, snap.InvoiceStatus())

	stored, err := f.service.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimPaid, stored.Status)
}

func TestService_Settle_OverpaymentRollsBackBoth(t *testing.T) {
	// GIVEN: The patient already paid 5,000 of 20,000 and the claim approved 18,000
	// WHEN: Settling
	// THEN: Overpayment; no payment recorded and the claim stays approved

	ctx := context.Background()
	f := newFixture(t, 20000)
	_, err := f.ledger.ApplyPayment(ctx, f.account.ID, billing.PaymentRequest{
		Amount: billing.KES.Major(5000), Method: billing.MethodCash,
	})
	require.NoError(t, err)
	c := f.approved(t, 20000, 18000)

	_, _, err = f.service.Settle(ctx, c.ID, "claims-desk")
	assert.ErrorIs(t, err, billing.ErrOverpayment)

	stored, err := f.service.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimApproved, stored.Status)
	assert.Empty(t, stored.PaymentID)

	payments, err := f.ledger.Payments(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestService_Settle_ConcurrentOnlyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 20000)
	c := f.approved(t, 20000, 10000)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.service.Settle(ctx, c.ID, "claims-desk")
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, billing.ErrInvalidTransition) && !errors.Is(err, billing.ErrConcurrentModification) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	snap, err := f.ledger.Account(ctx, f.account.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.KES.Major(10000), snap.Paid)
}

func TestService_ConcurrentTransitionsOnOneClaim(t *testing.T) {
	// GIVEN: A submitted claim
	// WHEN: Approve and reject race
	// THEN: Exactly one wins

	ctx := context.Background()
	f := newFixture(t, 20000)
	c := f.file(t, 20000)
	_, err := f.service.Submit(ctx, c.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.service.Approve(ctx, c.ID, billing.KES.Major(15000))
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.service.Reject(ctx, c.ID, "duplicate claim")
	}()
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	stored, err := f.service.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status == insurance.ClaimApproved || stored.Status == insurance.ClaimRejected)
}
