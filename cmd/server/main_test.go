package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/config"
)

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	for _, cfg := range []config.Config{
		{StoreDriver: config.DriverMemory},
		{StoreDriver: config.DriverSQLite, SQLitePath: ":memory:"},
	} {
		t.Run(cfg.StoreDriver, func(t *testing.T) {
			st, err := openStore(ctx, &cfg)
			require.NoError(t, err)
			defer st.Close()

			require.NoError(t, st.Ping(ctx))

			ledger := billing.NewLedger(st)
			acct, err := ledger.OpenAccount(ctx, billing.OpenAccountRequest{PatientID: "p-1", EncounterID: "e-1"})
			require.NoError(t, err)
			snap, err := ledger.Account(ctx, acct.ID)
			require.NoError(t, err)
			assert.Equal(t, billing.AccountOpen, snap.Status)
		})
	}

	_, err := openStore(ctx, &config.Config{StoreDriver: "mongo"})
	assert.Error(t, err)
}

func TestLoadTariff(t *testing.T) {
	kes := &config.Config{CurrencyCode: "KES", CurrencyExponent: 2}
	prices, err := loadTariff(kes)
	require.NoError(t, err)
	_, ok := prices.Lookup("CONS-GP")
	assert.True(t, ok)

	ugx := &config.Config{CurrencyCode: "UGX", CurrencyExponent: 0}
	_, err = loadTariff(ugx)
	assert.ErrorContains(t, err, "TARIFF_FILE")

	path := filepath.Join(t.TempDir(), "ugx.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"Kampala","currency":"UGX",
		"services":[{"code":"CONS","type":"consultation","description":"Consultation","price":"50000"}]}`), 0o600))
	ugx.TariffFile = path
	prices, err = loadTariff(ugx)
	require.NoError(t, err)
	svc, ok := prices.Lookup("cons")
	require.True(t, ok)
	assert.Equal(t, billing.Money(50000), svc.Price)
}

func TestPrintAudit(t *testing.T) {
	start := time.Date(2026, 6, 1, 2, 0, 0, 0, time.UTC)

	var out bytes.Buffer
	err := printAudit(&out, billing.KES, &billing.AuditReport{StartedAt: start, FinishedAt: start.Add(time.Second), Accounts: 3})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "No invariant violations.")

	out.Reset()
	err = printAudit(&out, billing.KES, &billing.AuditReport{
		StartedAt:  start,
		FinishedAt: start,
		Accounts:   1,
		Violations: []billing.Violation{{
			AccountID: "acct_1",
			AccountNo: "BA-2026-000001",
			Status:    billing.AccountOpen,
			Summary:   billing.Summary{Total: 45000, Paid: 100000, Balance: -55000},
			Reason:    "negative balance",
		}},
	})
	assert.ErrorContains(t, err, "1 invariant violation")
	assert.Contains(t, out.String(), "BA-2026-000001")
	assert.Contains(t, out.String(), "-550.00")
}
