// Package settlement drives redemption settlement cycles: promote, select a
// capped FIFO batch, execute entries one at a time, then clean up stale swaps.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"navLedger/internal/chain"
	"navLedger/internal/fixedpoint"
	"navLedger/internal/metrics"
	"navLedger/internal/model"
	"navLedger/internal/redemption"
)

const (
	defaultBatchSize      = 10
	defaultSwapStaleAfter = 30 * time.Minute
)

// ErrCycleInProgress is returned when a cycle is started while another is
// still running.
var ErrCycleInProgress = errors.New("settlement cycle already running")

// SwapCleaner marks abandoned swap requests.
type SwapCleaner interface {
	MarkStaleSwaps(ctx context.Context, cutoff time.Time, at time.Time) ([]string, error)
}

type Config struct {
	MaxBatchSize   int
	SwapStaleAfter time.Duration
	// ReconcileAfter resolves PROCESSING entries older than this at the
	// start of each cycle. Zero disables it.
	ReconcileAfter time.Duration
}

// Orchestrator is the Settlement Orchestrator. One cycle runs at a time; the
// relayer nonce sequence depends on it.
type Orchestrator struct {
	queue    *redemption.Queue
	swaps    SwapCleaner
	executor chain.Executor
	sink     ResultSink
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
	running  atomic.Bool
}

func NewOrchestrator(queue *redemption.Queue, swaps SwapCleaner, executor chain.Executor, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = defaultBatchSize
	}
	if cfg.SwapStaleAfter <= 0 {
		cfg.SwapStaleAfter = defaultSwapStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		queue:    queue,
		swaps:    swaps,
		executor: executor,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// WithSink attaches an audit sink for results.
func (o *Orchestrator) WithSink(sink ResultSink) *Orchestrator {
	o.sink = sink
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Running reports whether a cycle is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// RunSettlementCycle settles up to MaxBatchSize eligible entries, oldest
// eligible first, and returns one result per attempted entry. Entry failures
// are recorded in the results and never abort the batch. Cancelling ctx stops
// the cycle between entries; the entry in flight always finishes.
func (o *Orchestrator) RunSettlementCycle(ctx context.Context) ([]model.SettlementResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrCycleInProgress
	}
	defer o.running.Store(false)

	start := time.Now()
	defer func() { metrics.SettlementCycle(time.Since(start)) }()

	o.reconcile(ctx)
	results, err := o.settleBatch(ctx)
	o.cleanup(ctx)

	if o.sink != nil && len(results) > 0 {
		if sinkErr := o.sink.PutResults(results); sinkErr != nil {
			o.logger.Warn("write settlement results failed", zap.Error(sinkErr))
		}
	}
	o.logSummary(results, time.Since(start))
	return results, err
}

func (o *Orchestrator) settleBatch(ctx context.Context) ([]model.SettlementResult, error) {
	if _, err := o.queue.PromoteEligible(ctx, o.now().UTC()); err != nil {
		o.logger.Warn("promote eligible redemptions failed", zap.Error(err))
	}

	eligible, err := o.queue.GetEligibleRedemptions(ctx)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return []model.SettlementResult{}, nil
	}

	if err := o.executor.Validate(); err != nil {
		o.logger.Warn("settlement skipped: executor not ready",
			zap.String("mode", o.executor.Mode()),
			zap.Int("eligible", len(eligible)),
			zap.Error(err),
		)
		return []model.SettlementResult{}, nil
	}

	batch := SelectBatch(eligible, o.cfg.MaxBatchSize)
	results := make([]model.SettlementResult, 0, len(batch))
	blocked := make(map[string]bool)
	for i, entry := range batch {
		if ctx.Err() != nil {
			o.logger.Info("settlement cycle interrupted", zap.Int("remaining", len(batch)-i))
			break
		}
		if blocked[entry.PoolID] {
			o.logger.Info("redemption deferred behind unsettled entry",
				zap.String("entry_id", entry.ID),
				zap.String("pool_id", entry.PoolID),
			)
			continue
		}

		res, err := o.queue.ProcessSettlement(context.WithoutCancel(ctx), entry.ID, o.executor.Execute)
		if err != nil {
			if res.EntryID == "" {
				res = model.SettlementResult{EntryID: entry.ID, PoolID: entry.PoolID, Shares: entry.Shares, Status: entry.Status}
			}
			res.Error = err.Error()
			o.logger.Error("settlement entry error", zap.String("entry_id", entry.ID), zap.Error(err))
			// A head that did not reach a terminal state holds its pool.
			if !res.Status.Terminal() {
				blocked[entry.PoolID] = true
			}
		}
		metrics.Settlement(string(res.Status))
		o.logResult(res)
		results = append(results, res)
	}
	return results, nil
}

func (o *Orchestrator) reconcile(ctx context.Context) {
	if o.cfg.ReconcileAfter <= 0 {
		return
	}
	report, err := o.queue.Reconcile(context.WithoutCancel(ctx), o.cfg.ReconcileAfter, o.executor.Lookup)
	if err != nil {
		o.logger.Warn("reconcile processing redemptions failed", zap.Error(err))
		return
	}
	if report.Checked > 0 {
		o.logger.Info("processing redemptions reconciled",
			zap.Int("checked", report.Checked),
			zap.Int("resolved", len(report.Resolved)),
			zap.Int("unresolved", report.Unresolved),
		)
	}
}

// CleanupStaleSwaps marks PENDING/EXECUTING swaps older than the liveness
// threshold as STALE.
func (o *Orchestrator) CleanupStaleSwaps(ctx context.Context) (int, error) {
	now := o.now().UTC()
	ids, err := o.swaps.MarkStaleSwaps(ctx, now.Add(-o.cfg.SwapStaleAfter), now)
	if err != nil {
		return 0, fmt.Errorf("mark stale swaps: %w", err)
	}
	metrics.StaleSwaps(len(ids))
	if len(ids) > 0 {
		o.logger.Info("stale swaps cleaned", zap.Int("count", len(ids)), zap.Strings("ids", ids))
	}
	return len(ids), nil
}

func (o *Orchestrator) cleanup(ctx context.Context) {
	if _, err := o.CleanupStaleSwaps(context.WithoutCancel(ctx)); err != nil {
		o.logger.Warn("stale swap cleanup failed", zap.Error(err))
	}
}

func (o *Orchestrator) logResult(res model.SettlementResult) {
	fields := []zap.Field{
		zap.String("entry_id", res.EntryID),
		zap.String("pool", res.PoolName),
		zap.String("shares", fixedpoint.Format(res.Shares)),
		zap.String("status", string(res.Status)),
		zap.Bool("executed", res.Executed),
	}
	if res.TxHash != "" {
		fields = append(fields, zap.String("tx_hash", res.TxHash))
	}
	if res.Amount != nil {
		fields = append(fields, zap.String("amount", fixedpoint.Format(res.Amount)))
	}
	if res.Error != "" {
		fields = append(fields, zap.String("error", res.Error))
		o.logger.Warn("redemption not settled", fields...)
		return
	}
	o.logger.Info("redemption processed", fields...)
}

func (o *Orchestrator) logSummary(results []model.SettlementResult, elapsed time.Duration) {
	settled, failed := 0, 0
	for _, res := range results {
		switch res.Status {
		case model.RedemptionSettled:
			settled++
		case model.RedemptionFailed:
			failed++
		}
	}
	o.logger.Info("settlement cycle complete",
		zap.String("mode", o.executor.Mode()),
		zap.Int("processed", len(results)),
		zap.Int("settled", settled),
		zap.Int("failed", failed),
		zap.Duration("elapsed", elapsed),
	)
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
