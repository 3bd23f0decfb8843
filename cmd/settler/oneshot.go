package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"navLedger/internal/redemption"
)

func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runNav(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		_, failed, err := a.nav.UpdateAllPoolNavs(ctx)
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d pool(s) failed nav update", failed)
		}
		return nil
	})
}

func runFees(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		results, failed, err := a.fees.AccrueManagementFees(ctx)
		if err != nil {
			return err
		}
		for _, res := range results {
			a.logger.Info("fee accrued",
				zap.String("pool", res.PoolName),
				zap.String("fee_type", res.FeeType),
				zap.String("amount", res.Amount.String()),
				zap.String("period", res.Period),
			)
		}
		if failed > 0 {
			return fmt.Errorf("%d pool(s) failed fee accrual", failed)
		}
		return nil
	})
}

func runSettle(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		_, err := a.orch.RunSettlementCycle(ctx)
		return err
	})
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		report, err := a.queue.Reconcile(ctx, a.cfg.ProcessingStaleAfter, a.executor.Lookup)
		if err != nil {
			return err
		}
		a.logger.Info("reconcile complete",
			zap.Int("checked", report.Checked),
			zap.Int("resolved", len(report.Resolved)),
			zap.Int("unresolved", report.Unresolved),
		)
		return nil
	})
}

func runCleanupSwaps(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		_, err := a.orch.CleanupStaleSwaps(ctx)
		return err
	})
}

func runRetry(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		_, err := a.queue.Retry(ctx, args[0], a.executor.Lookup)
		if errors.Is(err, redemption.ErrAlreadySettled) {
			return nil
		}
		return err
	})
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if a.pg == nil {
			return fmt.Errorf("migrate requires store %q", "postgres")
		}
		if err := a.pg.Migrate(ctx); err != nil {
			return err
		}
		a.logger.Info("migrations applied")
		return nil
	})
}
