package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/warp/billing-ledger/billing"
)

func newMockLedger(t *testing.T) (*billing.Ledger, *billing.MockStore) {
	t.Helper()
	ctrl := gomock.NewController(t)
	mock := billing.NewMockStore(ctrl)
	ledger := billing.NewLedger(mock)
	ledger.Now = func() time.Time { return now }
	return ledger, mock
}

// runInline makes WithAccountTx call fn with the mock itself.
func runInline(mock *billing.MockStore) {
	mock.EXPECT().
		WithAccountTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ billing.AccountID, fn func(billing.Store) error) error {
			return fn(mock)
		})
}

func TestLedger_OpenAccount_SequenceFailure(t *testing.T) {
	ledger, mock := newMockLedger(t)
	boom := errors.New("sequence unavailable")

	mock.EXPECT().NextAccountNumber(gomock.Any()).Return(int64(0), boom)

	_, err := ledger.OpenAccount(context.Background(), billing.OpenAccountRequest{PatientID: "p", EncounterID: "e"})
	assert.ErrorIs(t, err, boom)
}

func TestLedger_OpenAccount_DuplicateFromStore(t *testing.T) {
	ledger, mock := newMockLedger(t)

	mock.EXPECT().NextAccountNumber(gomock.Any()).Return(int64(7), nil)
	mock.EXPECT().
		CreateAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, acct billing.Account) error {
			assert.Equal(t, "BA-2026-000007", acct.AccountNo)
			return billing.ErrDuplicateAccountNo
		})

	_, err := ledger.OpenAccount(context.Background(), billing.OpenAccountRequest{PatientID: "p", EncounterID: "e"})
	assert.ErrorIs(t, err, billing.ErrDuplicateAccountNo)
}

func TestLedger_ApplyPayment_InvalidAmountTouchesNothing(t *testing.T) {
	// GIVEN: A mock with no expectations
	// WHEN: Paying zero
	// THEN: Rejected before any store call

	ledger, _ := newMockLedger(t)

	_, err := ledger.ApplyPayment(context.Background(), "acct-1", billing.PaymentRequest{Method: billing.MethodCash})
	assert.ErrorIs(t, err, billing.ErrInvalidAmount)
}

func TestLedger_ApplyPayment_StoreReadFailure(t *testing.T) {
	ledger, mock := newMockLedger(t)
	boom := errors.New("disk gone")
	acct := &billing.Account{ID: "acct-1", AccountNo: "BA-2026-000001", Status: billing.AccountOpen}

	runInline(mock)
	mock.EXPECT().GetAccount(gomock.Any(), billing.AccountID("acct-1")).Return(acct, nil)
	mock.EXPECT().Items(gomock.Any(), billing.AccountID("acct-1")).Return(nil, boom)

	_, err := ledger.ApplyPayment(context.Background(), "acct-1", pay(100, billing.MethodCash))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "loading items")
}

func TestLedger_ApplyPayment_ReplayedFromStore(t *testing.T) {
	ledger, mock := newMockLedger(t)
	prior := &billing.Payment{
		ID:             "pay_1",
		AccountID:      "acct-1",
		Amount:         billing.KES.Major(100),
		Method:         billing.MethodCash,
		IdempotencyKey: "k-1",
	}

	runInline(mock)
	mock.EXPECT().PaymentByIdempotencyKey(gomock.Any(), "k-1").Return(prior, nil)

	req := pay(100, billing.MethodCash)
	req.IdempotencyKey = "k-1"
	got, err := ledger.ApplyPayment(context.Background(), "acct-1", req)
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentID("pay_1"), got.ID)
}

func TestLedger_Close_StoreWriteFailure(t *testing.T) {
	ledger, mock := newMockLedger(t)
	boom := errors.New("write failed")
	acct := &billing.Account{ID: "acct-1", Status: billing.AccountOpen}

	runInline(mock)
	mock.EXPECT().GetAccount(gomock.Any(), billing.AccountID("acct-1")).Return(acct, nil)
	mock.EXPECT().Items(gomock.Any(), gomock.Any()).Return(nil, nil)
	mock.EXPECT().Payments(gomock.Any(), gomock.Any()).Return(nil, nil)
	mock.EXPECT().SetAccountStatus(gomock.Any(), billing.AccountID("acct-1"), billing.AccountClosed, now).Return(boom)

	_, err := ledger.Close(context.Background(), "acct-1")
	assert.ErrorIs(t, err, boom)
}
