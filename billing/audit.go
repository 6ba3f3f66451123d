package billing

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// AUDIT - Re-derive every account and report broken invariants
// =============================================================================

// Violation is one account whose figures break a ledger invariant.
type Violation struct {
	AccountID AccountID
	AccountNo string
	Status    AccountStatus
	Summary   Summary
	Reason    string
}

// AuditReport is the outcome of one consistency scan.
type AuditReport struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Accounts   int
	Violations []Violation
}

// Clean reports whether the scan found nothing.
func (r AuditReport) Clean() bool {
	return len(r.Violations) == 0
}

// Audit recomputes every account from its records. Violations are logged
// and returned for investigation, never corrected.
func (l *Ledger) Audit(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{StartedAt: l.now()}

	accounts, err := l.Store.ListAccounts(ctx, AccountFilter{})
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// read logs each violation it finds
		sum, _, _, err := l.read(ctx, acct)
		if err != nil {
			return nil, fmt.Errorf("auditing account %s: %w", acct.ID, err)
		}
		report.Accounts++

		var violation *InvariantViolationError
		if errors.As(CheckInvariants(acct, sum), &violation) {
			report.Violations = append(report.Violations, Violation{
				AccountID: acct.ID,
				AccountNo: acct.AccountNo,
				Status:    acct.Status,
				Summary:   sum,
				Reason:    violation.Reason,
			})
		}
	}
	report.FinishedAt = l.now()

	l.Logger.Info().
		Int("accounts", report.Accounts).
		Int("violations", len(report.Violations)).
		Dur("took", report.FinishedAt.Sub(report.StartedAt)).
		Msg("ledger audit finished")
	return report, nil
}
