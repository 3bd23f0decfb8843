package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"navLedger/internal/metrics"
	"navLedger/internal/scheduler"
	"navLedger/internal/settlement"
)

func runServe(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		report, err := a.queue.Reconcile(ctx, a.cfg.ProcessingStaleAfter, a.executor.Lookup)
		if err != nil {
			a.logger.Warn("startup reconcile failed", zap.Error(err))
		} else if report.Checked > 0 {
			a.logger.Info("startup reconcile",
				zap.Int("checked", report.Checked),
				zap.Int("resolved", len(report.Resolved)),
				zap.Int("unresolved", report.Unresolved),
			)
		}

		var runs scheduler.RunStore = &scheduler.DBRunStore{Store: a.ledger}
		if a.cfg.RunState != "" {
			runs = &scheduler.FileRunStore{Path: a.cfg.RunState}
		}
		sched := scheduler.New(runs, a.logger.Named("scheduler"))
		if err := a.registerJobs(sched); err != nil {
			return err
		}

		var srv *http.Server
		if a.cfg.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			srv = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.logger.Error("metrics server failed", zap.Error(err))
				}
			}()
			a.logger.Info("metrics listening", zap.String("addr", a.cfg.MetricsAddr))
		}

		sched.Start(a.cfg.RunOnStart)
		a.logger.Info("settler running",
			zap.Bool("nav", a.cfg.NavEnabled),
			zap.Bool("fees", a.cfg.FeeEnabled),
			zap.Bool("settlement", a.cfg.SettlementEnabled),
		)

		<-ctx.Done()
		a.logger.Info("shutting down, waiting for running jobs")
		sched.Stop()
		if srv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		return nil
	})
}

func (a *app) registerJobs(sched *scheduler.Scheduler) error {
	if a.cfg.NavEnabled {
		err := sched.Add(scheduler.Job{
			Name:     "nav",
			Interval: a.cfg.NavInterval,
			Run: func(ctx context.Context) (scheduler.Outcome, error) {
				results, failed, err := a.nav.UpdateAllPoolNavs(ctx)
				return scheduler.Outcome{Processed: len(results), Failed: failed}, err
			},
		})
		if err != nil {
			return err
		}
	}
	if a.cfg.FeeEnabled {
		err := sched.Add(scheduler.Job{
			Name:     "fees",
			Interval: a.cfg.FeeInterval,
			Run: func(ctx context.Context) (scheduler.Outcome, error) {
				results, failed, err := a.fees.AccrueManagementFees(ctx)
				return scheduler.Outcome{Processed: len(results), Failed: failed}, err
			},
		})
		if err != nil {
			return err
		}
	}
	if a.cfg.SettlementEnabled {
		err := sched.Add(scheduler.Job{
			Name:     "settlement",
			Interval: a.cfg.SettlementInterval,
			Run: func(ctx context.Context) (scheduler.Outcome, error) {
				results, err := a.orch.RunSettlementCycle(ctx)
				if errors.Is(err, settlement.ErrCycleInProgress) {
					return scheduler.Outcome{}, nil
				}
				out := scheduler.Outcome{Processed: len(results)}
				for _, res := range results {
					if res.Error != "" {
						out.Failed++
					}
				}
				return out, err
			},
		})
		if err != nil {
			return err
		}
	}
	return nil
}
