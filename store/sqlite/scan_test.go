package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
)

func TestStore_MalformedTimestampFailsScan(t *testing.T) {
	// GIVEN: An account whose created_at was written by something else
	// WHEN: Reading it back
	// THEN: The scan fails instead of yielding a zero time

	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	acct := billing.Account{
		ID: "acct_1", AccountNo: "BA-2026-000001", PatientID: "p-1", EncounterID: "e-1",
		Currency: "KES", Status: billing.AccountOpen, CreatedAt: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateAccount(ctx, acct))

	_, err = s.db.ExecContext(ctx, `UPDATE billing_accounts SET created_at = '04/05/2026' WHERE id = ?`, acct.ID)
	require.NoError(t, err)

	_, err = s.GetAccount(ctx, acct.ID)
	assert.ErrorContains(t, err, "created_at")
}

func TestTimeParser(t *testing.T) {
	var times timeParser

	at := times.at("created_at", "2026-05-04T08:15:00Z")
	assert.Equal(t, time.Date(2026, 5, 4, 8, 15, 0, 0, time.UTC), at)
	assert.Nil(t, times.ptr("closed_at", sql.NullString{}))
	require.NoError(t, times.err)

	times.ptr("paid_date", sql.NullString{String: "yesterday", Valid: true})
	times.at("updated_at", "also bad")
	assert.ErrorContains(t, times.err, "paid_date")
}
