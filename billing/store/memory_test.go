package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/billing/store"
	"github.com/warp/billing-ledger/insurance"
)

var now = time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)

func seedAccount(t *testing.T, m *store.Memory, no string) billing.Account {
	t.Helper()
	acct := billing.Account{
		ID:          billing.NewAccountID(),
		AccountNo:   no,
		PatientID:   "p-1",
		EncounterID: "e-1",
		Currency:    "KES",
		Status:      billing.AccountOpen,
		CreatedAt:   now,
	}
	require.NoError(t, m.CreateAccount(context.Background(), acct))
	return acct
}

func line(accountID billing.AccountID, price billing.Money) billing.Item {
	return billing.Item{
		ID:          billing.NewItemID(),
		AccountID:   accountID,
		Type:        billing.ItemConsultation,
		Description: "GP consultation",
		Quantity:    1,
		UnitPrice:   price,
		Net:         price,
		Status:      billing.ItemPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestMemory_Accounts(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	acct := seedAccount(t, m, "BA-2026-000001")

	got, err := m.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct, *got)

	_, err = m.GetAccount(ctx, "acct_missing")
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)

	dup := acct
	dup.ID = billing.NewAccountID()
	assert.ErrorIs(t, m.CreateAccount(ctx, dup), billing.ErrDuplicateAccountNo)

	first, err := m.NextAccountNumber(ctx)
	require.NoError(t, err)
	second, err := m.NextAccountNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, first+1, second)
}

func TestMemory_WithAccountTxRollsBack(t *testing.T) {
	// GIVEN: An open account with one committed charge
	// WHEN: A transaction appends a charge and a payment, closes the account, then fails
	// THEN: Every write inside the transaction is undone

	m := store.NewMemory()
	ctx := context.Background()
	acct := seedAccount(t, m, "BA-2026-000001")
	kept := line(acct.ID, 1000)
	require.NoError(t, m.AppendItem(ctx, kept))

	boom := errors.New("boom")
	err := m.WithAccountTx(ctx, acct.ID, func(tx billing.Store) error {
		require.NoError(t, tx.AppendItem(ctx, line(acct.ID, 500)))
		require.NoError(t, tx.AppendPayment(ctx, billing.Payment{
			ID: billing.NewPaymentID(), AccountID: acct.ID, Amount: 1500,
			Method: billing.MethodCash, IdempotencyKey: "till-9", CreatedAt: now,
		}))
		require.NoError(t, tx.SetItemStatus(ctx, kept.ID, billing.ItemBilled, "", now))
		require.NoError(t, tx.SetAccountStatus(ctx, acct.ID, billing.AccountClosed, now))

		// Reads inside the transaction see its own writes
		items, err := tx.Items(ctx, acct.ID)
		require.NoError(t, err)
		assert.Len(t, items, 2)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	items, err := m.Items(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, kept.ID, items[0].ID)
	assert.Equal(t, billing.ItemPending, items[0].Status)

	payments, err := m.Payments(ctx, acct.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	p, err := m.PaymentByIdempotencyKey(ctx, "till-9")
	require.NoError(t, err)
	assert.Nil(t, p)

	got, err := m.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.AccountOpen, got.Status)
	assert.Nil(t, got.ClosedAt)
}

func TestMemory_WithAccountTxCommits(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	acct := seedAccount(t, m, "BA-2026-000001")

	err := m.WithAccountTx(ctx, acct.ID, func(tx billing.Store) error {
		return tx.AppendItem(ctx, line(acct.ID, 700))
	})
	require.NoError(t, err)

	items, err := m.Items(ctx, acct.ID)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMemory_WithAccountTxUnknownAccount(t *testing.T) {
	m := store.NewMemory()

	called := false
	err := m.WithAccountTx(context.Background(), "acct_missing", func(billing.Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, billing.ErrAccountNotFound)
	assert.False(t, called)
}

func TestMemory_AppendRejectsUnknownAccountAndDuplicateKey(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	acct := seedAccount(t, m, "BA-2026-000001")

	assert.ErrorIs(t, m.AppendItem(ctx, line("acct_missing", 100)), billing.ErrAccountNotFound)

	p := billing.Payment{ID: billing.NewPaymentID(), AccountID: acct.ID, Amount: 100, Method: billing.MethodMpesa, IdempotencyKey: "mpesa-1", CreatedAt: now}
	require.NoError(t, m.AppendPayment(ctx, p))
	p.ID = billing.NewPaymentID()
	assert.ErrorIs(t, m.AppendPayment(ctx, p), billing.ErrDuplicateIdempotencyKey)

	_, err := m.GetItem(ctx, "item_missing")
	assert.ErrorIs(t, err, billing.ErrItemNotFound)
}

func TestMemory_Claims(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	acct := seedAccount(t, m, "BA-2026-000001")
	other := seedAccount(t, m, "BA-2026-000002")

	claim := insurance.Claim{
		ID: "clm_1", InvoiceID: acct.ID, Provider: "NHIF", PolicyNumber: "N-1", ClaimNumber: "CLM-1",
		ClaimAmount: 100, Status: insurance.ClaimPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, m.CreateClaim(ctx, claim))

	sameNumber := claim
	sameNumber.ID = "clm_2"
	assert.ErrorIs(t, m.CreateClaim(ctx, sameNumber), billing.ErrDuplicateClaimNumber)

	elsewhere := claim
	elsewhere.ID, elsewhere.ClaimNumber, elsewhere.InvoiceID = "clm_3", "CLM-3", other.ID
	require.NoError(t, m.CreateClaim(ctx, elsewhere))

	byInvoice, err := m.ClaimsByInvoice(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, byInvoice, 1)
	assert.Equal(t, claim.ID, byInvoice[0].ID)

	// Compare-and-set on status
	submitted, err := insurance.Submit(claim, now)
	require.NoError(t, err)
	require.NoError(t, m.UpdateClaim(ctx, submitted, insurance.ClaimPending))
	assert.ErrorIs(t, m.UpdateClaim(ctx, submitted, insurance.ClaimPending), billing.ErrConcurrentModification)

	pending, err := m.ListClaims(ctx, insurance.ClaimPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, elsewhere.ID, pending[0].ID)

	all, err := m.ListClaims(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = m.GetClaim(ctx, "clm_missing")
	assert.ErrorIs(t, err, billing.ErrClaimNotFound)
}

func TestMemory_ClaimUpdateRollsBack(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	acct := seedAccount(t, m, "BA-2026-000001")

	claim := insurance.Claim{
		ID: "clm_1", InvoiceID: acct.ID, Provider: "AAR", PolicyNumber: "A-1", ClaimNumber: "CLM-1",
		ClaimAmount: 100, Status: insurance.ClaimPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, m.CreateClaim(ctx, claim))

	boom := errors.New("boom")
	err := m.WithAccountTx(ctx, acct.ID, func(tx billing.Store) error {
		claims, ok := tx.(insurance.ClaimStore)
		require.True(t, ok)
		submitted, err := insurance.Submit(claim, now)
		require.NoError(t, err)
		require.NoError(t, claims.UpdateClaim(ctx, submitted, insurance.ClaimPending))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := m.GetClaim(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimPending, got.Status)
}
