package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// auditJob periodically recomputes every balance and pool from the txn log
// and alerts operators on any discrepancy. The check is read-only.
func (a *App) auditJob(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Audit.Interval.Duration
	a.logger.InfoContext(ctx, "ledger audit job started",
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		found, err := deps.Auditor.Check(ctx)
		if err != nil {
			a.logger.ErrorContext(ctx, "ledger audit failed",
				slog.String("error", err.Error()),
			)
			continue
		}
		if len(found) == 0 {
			continue
		}

		// Discrepancies are already logged by the auditor; page operators too.
		message := fmt.Sprintf("%d ledger discrepancies found, first: %s %s (expected %.6f, actual %.6f)",
			len(found), found[0].Kind, found[0].ID, found[0].Expected, found[0].Actual)
		if err := deps.Notifier.NotifyAll(ctx, "Ledger audit discrepancy", message); err != nil {
			a.logger.WarnContext(ctx, "audit alert delivery failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// archiveJob periodically exports ledger history older than the retention
// window to cold storage.
func (a *App) archiveJob(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour
	a.logger.InfoContext(ctx, "archive job started",
		slog.Duration("interval", interval),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		before := time.Now().UTC().Add(-retention)

		txns, err := deps.Archiver.ArchiveTxns(ctx, before)
		if err != nil {
			a.logger.ErrorContext(ctx, "txn archive failed",
				slog.String("error", err.Error()),
			)
			continue
		}
		bets, err := deps.Archiver.ArchiveBets(ctx, before)
		if err != nil {
			a.logger.ErrorContext(ctx, "bet archive failed",
				slog.String("error", err.Error()),
			)
			continue
		}

		if txns > 0 || bets > 0 {
			a.logger.InfoContext(ctx, "archive cycle complete",
				slog.Int64("txns", txns),
				slog.Int64("bets", bets),
				slog.Time("before", before),
			)
		}
	}
}
