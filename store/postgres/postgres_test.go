package postgres_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/insurance"
	"github.com/warp/billing-ledger/store/postgres"
)

func TestLoadMigrations_Embedded(t *testing.T) {
	migrations, err := postgres.NewMigrator(nil, postgres.Migrations()).LoadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "001_billing.sql", migrations[0].Name)
	assert.Contains(t, migrations[0].SQL, "CREATE TABLE IF NOT EXISTS billing_accounts")
}

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	fsys := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"README.md":      {Data: []byte("not sql")},
		"draft.sql":      {Data: []byte("no version")},
		"abc_later.sql":  {Data: []byte("no number")},
	}

	migrations, err := postgres.NewMigrator(nil, fsys).LoadMigrations()
	require.NoError(t, err)

	require.Len(t, migrations, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{migrations[0].Version, migrations[1].Version, migrations[2].Version})
}

// =============================================================================
// INTEGRATION - needs BILLING_TEST_DATABASE_URL
// =============================================================================

func newStore(t *testing.T) *postgres.Store {
	t.Helper()
	url := os.Getenv("BILLING_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("BILLING_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, url, 10, 1)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = postgres.NewMigrator(pool, postgres.Migrations()).Up(ctx)
	require.NoError(t, err)
	return postgres.New(pool)
}

func TestPostgres_LedgerAndSettle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ledger := billing.NewLedger(s)

	acct, err := ledger.OpenAccount(ctx, billing.OpenAccountRequest{PatientID: "pg-patient", EncounterID: "pg-enc"})
	require.NoError(t, err)
	_, err = ledger.AddItem(ctx, acct.ID, billing.ItemRequest{
		Type: billing.ItemBedCharge, Description: "General ward bed day", Quantity: 3, UnitPrice: billing.KES.Major(3000),
	})
	require.NoError(t, err)

	svc := insurance.NewService(s, ledger)
	c, err := svc.File(ctx, insurance.ClaimRequest{
		InvoiceID: acct.ID, Provider: "NHIF", PolicyNumber: "N-99", ClaimAmount: billing.KES.Major(9000),
	})
	require.NoError(t, err)
	_, err = svc.Submit(ctx, c.ID)
	require.NoError(t, err)
	_, err = svc.Approve(ctx, c.ID, billing.KES.Major(6000))
	require.NoError(t, err)

	settled, payment, err := svc.Settle(ctx, c.ID, "claims-desk")
	require.NoError(t, err)
	assert.Equal(t, insurance.ClaimPaid, settled.Status)

	stored, err := s.GetClaim(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, string(payment.ID), stored.PaymentID)

	snap, err := ledger.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.KES.Major(3000), snap.Balance)
}

func TestPostgres_ConcurrentPaymentsNeverOverpay(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ledger := billing.NewLedger(s)

	acct, err := ledger.OpenAccount(ctx, billing.OpenAccountRequest{PatientID: "pg-patient", EncounterID: "pg-enc-2"})
	require.NoError(t, err)
	_, err = ledger.AddItem(ctx, acct.ID, billing.ItemRequest{
		Type: billing.ItemConsultation, Description: "GP consultation", Quantity: 1, UnitPrice: billing.KES.Major(5000),
	})
	require.NoError(t, err)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.ApplyPayment(ctx, acct.ID, billing.PaymentRequest{
				Amount: billing.KES.Major(1000), Method: billing.MethodCash,
			})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	snap, err := ledger.Account(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, billing.Money(0), snap.Balance)
}

func TestPostgres_Status(t *testing.T) {
	newStore(t)
	pool, err := postgres.NewPool(context.Background(), os.Getenv("BILLING_TEST_DATABASE_URL"), 2, 1)
	require.NoError(t, err)
	defer pool.Close()

	statuses, err := postgres.NewMigrator(pool, postgres.Migrations()).Status(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	assert.True(t, statuses[0].Applied)
	assert.NotNil(t, statuses[0].AppliedAt)
}
