package sqlite_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
	"github.com/warp/billing-ledger/store/sqlite"
)

var now = time.Date(2026, time.May, 4, 8, 15, 0, 0, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newLedger(t *testing.T) (*billing.Ledger, *sqlite.Store) {
	t.Helper()
	s := newStore(t)
	l := billing.NewLedger(s)
	l.Now = func() time.Time { return now }
	return l, s
}

func open(t *testing.T, l *billing.Ledger) *billing.Account {
	t.Helper()
	acct, err := l.OpenAccount(context.Background(), billing.OpenAccountRequest{PatientID: "p-1", EncounterID: "e-1"})
	require.NoError(t, err)
	return acct
}

func charge(t *testing.T, l *billing.Ledger, id billing.AccountID, shillings int64) *billing.Item {
	t.Helper()
	item, err := l.AddItem(context.Background(), id, billing.ItemRequest{
		Type:        billing.ItemConsultation,
		Code:        "CONS-GP",
		Description: "GP consultation",
		Quantity:    1,
		UnitPrice:   billing.KES.Major(shillings),
	})
	require.NoError(t, err)
	return item
}

func TestStore_AccountRoundTrip(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()

	acct := open(t, l)
	assert.Equal(t, "BA-2026-000001", acct.AccountNo)

	got, err := s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, *acct, *got)

	_, err = s.GetAccount(ctx, "acct_missing")
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)

	dup := *acct
	dup.ID = billing.NewAccountID()
	assert.ErrorIs(t, s.CreateAccount(ctx, dup), billing.ErrDuplicateAccountNo)
}

func TestStore_NextAccountNumberIsMonotonic(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextAccountNumber(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestStore_LedgerScenario(t *testing.T) {
	// GIVEN: An account charged 5,000 and 2 x 1,500
	// WHEN: Paying 3,000 then 5,000 and closing
	// THEN: The figures match the in-memory store and the close persists

	l, s := newLedger(t)
	ctx := context.Background()
	acct := open(t, l)

	charge(t, l, acct.ID, 5000)
	_, err := l.AddItem(ctx, acct.ID, billing.ItemRequest{
		Type: billing.ItemLabTest, Description: "Full blood count", Quantity: 2, UnitPrice: billing.KES.Major(1500),
	})
	require.NoError(t, err)

	_, err = l.ApplyPayment(ctx, acct.ID, billing.PaymentRequest{Amount: billing.KES.Major(3000), Method: billing.MethodMpesa})
	require.NoError(t, err)
	snap, err := l.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.KES.Major(5000), snap.Balance)
	assert.Equal(t, billing.InvoicePartial, snap.InvoiceStatus())

	_, err = l.ApplyPayment(ctx, acct.ID, billing.PaymentRequest{Amount: billing.KES.Major(5001), Method: billing.MethodCash})
	assert.ErrorIs(t, err, billing.ErrOverpayment)

	_, err = l.ApplyPayment(ctx, acct.ID, billing.PaymentRequest{Amount: billing.KES.Major(5000), Method: billing.MethodCash})
	require.NoError(t, err)

	_, err = l.Close(ctx, acct.ID)
	require.NoError(t, err)

	stored, err := s.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.AccountClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	assert.True(t, now.Equal(*stored.ClosedAt))

	items, err := s.Items(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "CONS-GP", items[0].Code)
	assert.Equal(t, int64(2), items[1].Quantity)

	payments, err := s.Payments(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

func TestStore_TxRollback(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	acct := open(t, l)
	charge(t, l, acct.ID, 1000)

	boom := errors.New("hook failed")
	_, err := l.ApplyPaymentWith(ctx, acct.ID,
		billing.PaymentRequest{Amount: billing.KES.Major(1000), Method: billing.MethodCard},
		func(billing.Store, *billing.Payment) error { return boom })
	assert.ErrorIs(t, err, boom)

	payments, err := s.Payments(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestStore_ItemStatusAndVoid(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	acct := open(t, l)
	item := charge(t, l, acct.ID, 700)

	_, err := l.VoidItem(ctx, item.ID, "entered on wrong account")
	require.NoError(t, err)

	got, err := s.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.ItemVoided, got.Status)
	assert.Equal(t, "entered on wrong account", got.VoidReason)

	err = s.SetItemStatus(ctx, "item_missing", billing.ItemBilled, "", now)
	assert.ErrorIs(t, err, billing.ErrItemNotFound)
}

func TestStore_IdempotencyKey(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	acct := open(t, l)
	charge(t, l, acct.ID, 1000)

	req := billing.PaymentRequest{Amount: billing.KES.Major(400), Method: billing.MethodMpesa, IdempotencyKey: "mpesa-QWE123"}
	first, err := l.ApplyPayment(ctx, acct.ID, req)
	require.NoError(t, err)
	again, err := l.ApplyPayment(ctx, acct.ID, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	p, err := s.PaymentByIdempotencyKey(ctx, "mpesa-QWE123")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, first.ID, p.ID)

	p, err = s.PaymentByIdempotencyKey(ctx, "unused")
	require.NoError(t, err)
	assert.Nil(t, p)

	dup := *first
	dup.ID = billing.NewPaymentID()
	assert.ErrorIs(t, s.AppendPayment(ctx, dup), billing.ErrDuplicateIdempotencyKey)
}

func TestStore_ListAccountsFilter(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	a := open(t, l)
	open(t, l)
	_, err := l.Close(ctx, a.ID)
	require.NoError(t, err)

	stillOpen, err := s.ListAccounts(ctx, billing.AccountFilter{Status: billing.AccountOpen})
	require.NoError(t, err)
	assert.Len(t, stillOpen, 1)

	limited, err := s.ListAccounts(ctx, billing.AccountFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, a.ID, limited[0].ID)
}

func TestStore_ClaimsSettle(t *testing.T) {
	// GIVEN: A 20,000 invoice with a claim approved for 18,000
	// WHEN: Settling it through the sqlite transaction
	// THEN: Payment and claim update commit together

	l, s := newLedger(t)
	ctx := context.Background()
	acct := open(t, l)
	charge(t, l, acct.ID, 20000)

	svc := insurance.NewService(s, l)
	svc.Now = l.Now
	c, err := svc.File(ctx, insurance.ClaimRequest{
		InvoiceID: acct.ID, Provider: "AAR", PolicyNumber: "AAR-77", ClaimAmount: billing.KES.Major(20000),
	})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, c.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, c.ID, billing.KES.Major(18000))
	require.NoError(t, err)

	settled, payment, err := svc.Settle(ctx, c.ID, "claims-desk")
	require.NoError(t, err)

	stored, err := s.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimPaid, stored.Status)
	assert.Equal(t, string(payment.ID), stored.PaymentID)
	require.NotNil(t, stored.ApprovedAmount)
	assert.Equal(t, billing.KES.Major(18000), *stored.ApprovedAmount)
	assert.Equal(t, settled.PaymentID, stored.PaymentID)

	byInvoice, err := s.ClaimsByInvoice(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, byInvoice, 1)

	pending, err := s.ListClaims(ctx, insurance.ClaimPending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestStore_UpdateClaimCompareAndSet(t *testing.T) {
	l, s := newLedger(t)
	ctx := context.Background()
	acct := open(t, l)

	claim := insurance.Claim{
		ID: "clm_1", InvoiceID: acct.ID, Provider: "NHIF", PolicyNumber: "N-1", ClaimNumber: "CLM-1",
		ClaimAmount: 100, Status: insurance.ClaimPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateClaim(ctx, claim))
	sameNumber := claim
	sameNumber.ID = "clm_2"
	assert.ErrorIs(t, s.CreateClaim(ctx, sameNumber), billing.ErrDuplicateClaimNumber)

	submitted, err := insurance.Submit(claim, now)
	require.NoError(t, err)
	require.NoError(t, s.UpdateClaim(ctx, submitted, insurance.ClaimPending))

	err = s.UpdateClaim(ctx, submitted, insurance.ClaimPending)
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)

	missing := submitted
	missing.ID = "clm_missing"
	assert.ErrorIs(t, s.UpdateClaim(ctx, missing, insurance.ClaimPending), billing.ErrClaimNotFound)
}

func TestStore_ConcurrentPayments(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	acct := open(t, l)
	charge(t, l, acct.ID, 5000)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.ApplyPayment(ctx, acct.ID, billing.PaymentRequest{Amount: billing.KES.Major(1000), Method: billing.MethodCash})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	snap, err := l.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(0), snap.Balance)
}
