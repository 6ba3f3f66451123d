package api

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/billing/store"
)

func newScheduler() *AuditScheduler {
	return NewAuditScheduler(billing.NewLedger(store.NewMemory()), zerolog.Nop())
}

func TestAuditScheduler_StartRunsImmediately(t *testing.T) {
	s := newScheduler()
	s.Interval = time.Hour

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return len(s.Runs()) == 1 }, 2*time.Second, 10*time.Millisecond)
	run := s.Runs()[0]
	assert.Equal(t, TriggerScheduled, run.Trigger)
	assert.Equal(t, AuditCompleted, run.Status)
	assert.False(t, s.NextRunTime().IsZero())
}

func TestAuditScheduler_NextRunTimeFollowsTicker(t *testing.T) {
	s := newScheduler()
	s.Interval = time.Hour

	before := time.Now()
	s.Start()
	defer s.Stop()
	after := time.Now()

	next := s.NextRunTime()
	assert.False(t, next.Before(before.Add(time.Hour)))
	assert.False(t, next.After(after.Add(time.Hour)))

	// Stays put between ticks instead of sliding with the clock
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, next, s.NextRunTime())
}

func TestAuditScheduler_Ticks(t *testing.T) {
	s := newScheduler()
	s.Interval = 5 * time.Millisecond

	s.Start()
	require.Eventually(t, func() bool { return len(s.Runs()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	// Stopped: no more runs, and Stop is idempotent
	n := len(s.Runs())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(s.Runs()))
	s.Stop()
	assert.True(t, s.NextRunTime().IsZero())
}

func TestAuditScheduler_DisabledWithZeroInterval(t *testing.T) {
	s := newScheduler()
	s.Interval = 0

	s.Start()
	s.Stop()

	assert.Empty(t, s.Runs())
}

func TestAuditScheduler_KeepsBoundedHistory(t *testing.T) {
	s := newScheduler()
	s.MaxRuns = 2

	first := s.RunNow(context.Background(), TriggerManual)
	s.RunNow(context.Background(), TriggerManual)
	last := s.RunNow(context.Background(), TriggerManual)

	runs := s.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, last.ID, runs[0].ID)
	for _, run := range runs {
		assert.NotEqual(t, first.ID, run.ID)
	}
}

func TestAuditScheduler_FailedRun(t *testing.T) {
	s := newScheduler()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// GIVEN: an account so the audit loop checks the context
	_, err := s.Ledger.OpenAccount(context.Background(), billing.OpenAccountRequest{PatientID: "p", EncounterID: "e"})
	require.NoError(t, err)

	run := s.RunNow(ctx, TriggerManual)
	assert.Equal(t, AuditFailed, run.Status)
	assert.NotEmpty(t, run.Error)
	assert.Nil(t, run.Report)
}
