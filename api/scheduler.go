/*
scheduler.go - Periodic ledger consistency audit

PURPOSE:
  Periodically re-derives every account and reports invariant violations
  (a negative balance means a bug or an out-of-band write). Nothing is
  corrected; the run history is exposed to operators.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Runs once immediately on start
  - Keeps the last MaxRuns runs in memory, newest first
  - Manual runs (POST /api/admin/audit) are recorded the same way

CONFIGURATION:
  - Interval: How often to audit (default: 1 hour, 0 disables the loop)

USAGE:
  scheduler := NewAuditScheduler(ledger, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - billing/audit.go: Ledger.Audit
  - handlers.go: TriggerAudit, ListAuditRuns
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/warp/billing-ledger/billing"
)

const (
	AuditRunning   = "running"
	AuditCompleted = "completed"
	AuditFailed    = "failed"

	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
)

// AuditRun records one audit execution.
type AuditRun struct {
	ID         string
	Trigger    string
	Status     string
	Error      string
	Report     *billing.AuditReport
	StartedAt  time.Time
	FinishedAt *time.Time
}

// AuditScheduler runs Ledger.Audit on an interval.
type AuditScheduler struct {
	Ledger   *billing.Ledger
	Logger   zerolog.Logger
	Interval time.Duration
	MaxRuns  int

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.RWMutex
	runs   []AuditRun
	next   time.Time // guarded by runsMu; written by the loop
}

// NewAuditScheduler creates a scheduler with an hourly interval.
func NewAuditScheduler(ledger *billing.Ledger, logger zerolog.Logger) *AuditScheduler {
	return &AuditScheduler{
		Ledger:   ledger,
		Logger:   logger.With().Str("component", "audit").Logger(),
		Interval: time.Hour,
		MaxRuns:  50,
	}
}

// Start begins the background loop. It is a no-op when Interval is zero
// or the scheduler is already running.
func (s *AuditScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.Logger.Info().Msg("audit scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.setNext(time.Now().Add(s.Interval))
	s.wg.Add(1)

	go s.run(s.ticker, s.stop, s.Interval)

	s.Logger.Info().Dur("interval", s.Interval).Msg("audit scheduler started")
}

// Stop stops the loop and waits for an in-flight audit to finish.
func (s *AuditScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.setNext(time.Time{})
	s.Logger.Info().Msg("audit scheduler stopped")
}

func (s *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}, interval time.Duration) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.RunNow(ctx, TriggerScheduled)

	for {
		select {
		case tick := <-ticker.C:
			s.setNext(tick.Add(interval))
			s.RunNow(ctx, TriggerScheduled)
		case <-stop:
			return
		}
	}
}

// RunNow performs one audit and records it.
func (s *AuditScheduler) RunNow(ctx context.Context, trigger string) AuditRun {
	run := AuditRun{
		ID:        uuid.NewString(),
		Trigger:   trigger,
		Status:    AuditRunning,
		StartedAt: time.Now().UTC(),
	}

	report, err := s.Ledger.Audit(ctx)
	finished := time.Now().UTC()
	run.FinishedAt = &finished

	switch {
	case err != nil:
		run.Status = AuditFailed
		run.Error = err.Error()
		s.Logger.Error().Err(err).Str("run_id", run.ID).Str("trigger", trigger).Msg("audit failed")
	default:
		run.Status = AuditCompleted
		run.Report = report
		evt := s.Logger.Info()
		if !report.Clean() {
			evt = s.Logger.Warn()
		}
		evt.Str("run_id", run.ID).
			Str("trigger", trigger).
			Int("accounts", report.Accounts).
			Int("violations", len(report.Violations)).
			Msg("audit completed")
	}

	s.record(run)
	return run
}

func (s *AuditScheduler) record(run AuditRun) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()

	s.runs = append([]AuditRun{run}, s.runs...)
	if limit := s.MaxRuns; limit > 0 && len(s.runs) > limit {
		s.runs = s.runs[:limit]
	}
}

// Runs returns recorded runs, newest first.
func (s *AuditScheduler) Runs() []AuditRun {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()

	out := make([]AuditRun, len(s.runs))
	copy(out, s.runs)
	return out
}

func (s *AuditScheduler) setNext(t time.Time) {
	s.runsMu.Lock()
	defer s.runsMu.Unlock()
	s.next = t
}

// NextRunTime returns when the ticker fires next, one interval after the
// start or the last tick. It is the zero time when the loop is not running.
func (s *AuditScheduler) NextRunTime() time.Time {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	return s.next
}
