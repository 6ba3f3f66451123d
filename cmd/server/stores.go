package main

import (
	"context"
	"fmt"
	"io"

	"github.com/warp/billing-ledger/billing"
	"github.com/warp/billing-ledger/billing/store"
	"github.com/warp/billing-ledger/config"
	"github.com/warp/billing-ledger/insurance"
	"github.com/warp/billing-ledger/store/postgres"
	"github.com/warp/billing-ledger/store/sqlite"
	"github.com/warp/billing-ledger/tariff"
)

// ledgerStore is what every driver provides: accounts, items and payments
// plus claims, sharing one account transaction.
type ledgerStore interface {
	billing.Store
	insurance.ClaimStore
}

// openedStore adds uniform Close and Ping to whichever driver is in use.
type openedStore struct {
	ledgerStore
	close func()
	ping  func(ctx context.Context) error
}

func (s *openedStore) Close() { s.close() }

func (s *openedStore) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func openStore(ctx context.Context, cfg *config.Config) (*openedStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return &openedStore{ledgerStore: store.NewMemory(), close: func() {}}, nil

	case config.DriverSQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite %s: %w", cfg.SQLitePath, err)
		}
		return &openedStore{ledgerStore: s, close: func() { _ = s.Close() }, ping: s.Ping}, nil

	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		statuses, err := postgres.NewMigrator(pool, postgres.Migrations()).Status(ctx)
		if err != nil {
			pool.Close()
			return nil, err
		}
		pending := 0
		for _, s := range statuses {
			if !s.Applied {
				pending++
			}
		}
		if pending > 0 {
			pool.Close()
			return nil, fmt.Errorf("%d pending migration(s): run billingd migrate up", pending)
		}
		s := postgres.New(pool)
		return &openedStore{ledgerStore: s, close: s.Close, ping: s.Ping}, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// loadTariff returns the configured price list. The built-in list is
// priced in KES, so other currencies need TARIFF_FILE.
func loadTariff(cfg *config.Config) (*tariff.Tariff, error) {
	currency := cfg.Currency()
	if cfg.TariffFile != "" {
		return tariff.Load(cfg.TariffFile, currency)
	}
	if currency != billing.KES {
		return nil, fmt.Errorf("TARIFF_FILE is required for currency %s", currency.Code)
	}
	return tariff.Default(), nil
}

// printAudit writes the report and returns an error when it is not clean.
func printAudit(w io.Writer, currency billing.Currency, report *billing.AuditReport) error {
	fmt.Fprintf(w, "Audited %d account(s) in %s\n", report.Accounts, report.FinishedAt.Sub(report.StartedAt))
	if report.Clean() {
		fmt.Fprintln(w, "No invariant violations.")
		return nil
	}

	fmt.Fprintf(w, "%-16s %-30s %-8s %14s %14s %14s  %s\n", "ACCOUNT NO", "ID", "STATUS", "TOTAL", "PAID", "BALANCE", "REASON")
	for _, v := range report.Violations {
		fmt.Fprintf(w, "%-16s %-30s %-8s %14s %14s %14s  %s\n",
			v.AccountNo, v.AccountID, v.Status,
			currency.Format(v.Summary.Total),
			currency.Format(v.Summary.Paid),
			currency.Format(v.Summary.Balance),
			v.Reason)
	}
	return fmt.Errorf("%d invariant violation(s) found", len(report.Violations))
}
