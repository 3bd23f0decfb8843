// Package redemption owns the redemption queue state machine:
// PENDING -> ELIGIBLE -> PROCESSING -> SETTLED | FAILED.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"navLedger/internal/chain"
	"navLedger/internal/model"
	"navLedger/internal/storage"
)

const defaultExecTimeout = 2 * time.Minute

// ErrInvalidRequest is returned for malformed enqueue requests.
var ErrInvalidRequest = errors.New("invalid redemption request")

// ErrAlreadySettled is returned by Retry when the entry's transaction turns
// out to have succeeded on chain.
var ErrAlreadySettled = errors.New("redemption already settled on chain")

// Store is the ledger surface the queue needs.
type Store interface {
	GetPool(ctx context.Context, id string) (model.Pool, error)
	UpdateInvestmentStatus(ctx context.Context, id string, status model.InvestmentStatus, txHash string) error
	storage.RedemptionStore
}

// ExecuteFunc performs the on-chain redemption for one entry.
type ExecuteFunc func(ctx context.Context, req chain.ExecuteRequest) (chain.ExecuteResult, error)

// LookupFunc reports the receipt state of a submitted transaction.
type LookupFunc func(ctx context.Context, txHash string) (chain.ReceiptStatus, error)

// Queue is the Redemption Queue Component.
type Queue struct {
	store       Store
	logger      *zap.Logger
	execTimeout time.Duration
	now         func() time.Time
}

func NewQueue(store Store, execTimeout time.Duration, logger *zap.Logger) *Queue {
	if execTimeout <= 0 {
		execTimeout = defaultExecTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{store: store, logger: logger, execTimeout: execTimeout, now: time.Now}
}

func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// EnqueueRequest asks for shares of a pool to be redeemed.
type EnqueueRequest struct {
	ID              string
	UserID          string
	PoolID          string
	InvestorAddress string
	InvestmentID    string
	Shares          *big.Int
	RequestedAt     time.Time
}

// Enqueue appends a PENDING entry at the tail of the pool's queue. The entry
// becomes eligible once the pool lockup has elapsed.
func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (model.RedemptionQueueEntry, error) {
	if req.PoolID == "" || req.UserID == "" {
		return model.RedemptionQueueEntry{}, fmt.Errorf("%w: pool and user are required", ErrInvalidRequest)
	}
	if req.Shares == nil || req.Shares.Sign() <= 0 {
		return model.RedemptionQueueEntry{}, fmt.Errorf("%w: shares must be positive", ErrInvalidRequest)
	}
	if !common.IsHexAddress(req.InvestorAddress) {
		return model.RedemptionQueueEntry{}, fmt.Errorf("%w: investor address %q", ErrInvalidRequest, req.InvestorAddress)
	}
	pool, err := q.store.GetPool(ctx, req.PoolID)
	if err != nil {
		return model.RedemptionQueueEntry{}, fmt.Errorf("get pool %s: %w", req.PoolID, err)
	}
	if pool.Status == model.PoolClosed {
		return model.RedemptionQueueEntry{}, fmt.Errorf("%w: pool %s is closed", ErrInvalidRequest, pool.ID)
	}

	requestedAt := req.RequestedAt
	if requestedAt.IsZero() {
		requestedAt = q.now()
	}
	requestedAt = requestedAt.UTC()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	entry, err := q.store.EnqueueRedemption(ctx, model.RedemptionQueueEntry{
		ID:              id,
		UserID:          req.UserID,
		PoolID:          req.PoolID,
		InvestorAddress: common.HexToAddress(req.InvestorAddress).Hex(),
		InvestmentID:    req.InvestmentID,
		Shares:          new(big.Int).Set(req.Shares),
		Status:          model.RedemptionPending,
		RequestedAt:     requestedAt,
		EligibleAt:      requestedAt.Add(pool.Lockup()),
	})
	if err != nil {
		return model.RedemptionQueueEntry{}, fmt.Errorf("enqueue redemption: %w", err)
	}
	q.logger.Info("redemption queued",
		zap.String("entry_id", entry.ID),
		zap.String("pool", entry.PoolID),
		zap.Int64("position", entry.QueuePosition),
		zap.Time("eligible_at", entry.EligibleAt),
	)
	return entry, nil
}

// PromoteEligible moves PENDING entries whose lockup has elapsed to ELIGIBLE.
// Each pool is walked in queue order and promotion stops at the first entry
// still locked, so eligible entries always precede pending ones.
func (q *Queue) PromoteEligible(ctx context.Context, now time.Time) (int, error) {
	pending, err := q.store.ListRedemptions(ctx, model.RedemptionPending)
	if err != nil {
		return 0, fmt.Errorf("list pending redemptions: %w", err)
	}

	promoted := 0
	blocked := make(map[string]bool)
	for _, entry := range pending {
		if blocked[entry.PoolID] {
			continue
		}
		if entry.EligibleAt.After(now) {
			blocked[entry.PoolID] = true
			continue
		}
		err := q.store.TransitionRedemption(ctx, entry.ID,
			[]model.RedemptionStatus{model.RedemptionPending}, model.RedemptionEligible, now)
		if errors.Is(err, storage.ErrConflict) {
			continue
		}
		if err != nil {
			return promoted, fmt.Errorf("promote %s: %w", entry.ID, err)
		}
		promoted++
	}
	if promoted > 0 {
		q.logger.Info("redemptions eligible", zap.Int("promoted", promoted))
	}
	return promoted, nil
}

// GetEligibleRedemptions returns ELIGIBLE entries ordered by pool, then
// queue position.
func (q *Queue) GetEligibleRedemptions(ctx context.Context) ([]model.RedemptionQueueEntry, error) {
	entries, err := q.store.ListRedemptions(ctx, model.RedemptionEligible)
	if err != nil {
		return nil, fmt.Errorf("list eligible redemptions: %w", err)
	}
	return entries, nil
}

// ProcessSettlement claims the entry with a status compare-and-set, runs
// execute once, and records the outcome. If the claim fails the entry's
// current recorded result is returned and execute is not called.
func (q *Queue) ProcessSettlement(ctx context.Context, entryID string, execute ExecuteFunc) (model.SettlementResult, error) {
	entry, err := q.store.GetRedemption(ctx, entryID)
	if err != nil {
		return model.SettlementResult{}, fmt.Errorf("get redemption %s: %w", entryID, err)
	}
	pool, err := q.store.GetPool(ctx, entry.PoolID)
	if err != nil {
		return resultFrom(entry, ""), fmt.Errorf("get pool %s: %w", entry.PoolID, err)
	}

	err = q.store.TransitionRedemption(ctx, entry.ID,
		[]model.RedemptionStatus{model.RedemptionPending, model.RedemptionEligible},
		model.RedemptionProcessing, q.now().UTC())
	if errors.Is(err, storage.ErrConflict) {
		current, getErr := q.store.GetRedemption(ctx, entry.ID)
		if getErr != nil {
			return resultFrom(entry, pool.Name), fmt.Errorf("reload redemption %s: %w", entry.ID, getErr)
		}
		q.logger.Debug("redemption already claimed", zap.String("entry_id", entry.ID), zap.String("status", string(current.Status)))
		return resultFrom(current, pool.Name), nil
	}
	if err != nil {
		return resultFrom(entry, pool.Name), fmt.Errorf("claim redemption %s: %w", entry.ID, err)
	}

	// From here on the entry is PROCESSING; finish the bookkeeping even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)

	var (
		mu        sync.Mutex
		submitted string
	)
	onSubmitted := func(txHash string) {
		mu.Lock()
		submitted = txHash
		mu.Unlock()
		if err := q.store.RecordSubmission(ctx, entry.ID, txHash); err != nil {
			q.logger.Warn("record submission failed", zap.String("entry_id", entry.ID), zap.String("tx_hash", txHash), zap.Error(err))
		}
	}

	var (
		res     chain.ExecuteResult
		execErr error
	)
	if !common.IsHexAddress(entry.InvestorAddress) {
		execErr = fmt.Errorf("invalid investor address %q", entry.InvestorAddress)
	} else {
		res, execErr = q.execute(ctx, execute, chain.ExecuteRequest{
			ChainPoolID: pool.ChainPoolID,
			Investor:    common.HexToAddress(entry.InvestorAddress),
			Shares:      entry.Shares,
			NavPerShare: pool.NavPerShare,
			OnSubmitted: onSubmitted,
		})
	}

	now := q.now().UTC()
	var outcome storage.RedemptionOutcome
	if execErr != nil {
		mu.Lock()
		outcome = storage.RedemptionOutcome{Status: model.RedemptionFailed, TxHash: submitted, Error: execErr.Error()}
		mu.Unlock()
	} else {
		outcome = storage.RedemptionOutcome{Status: model.RedemptionSettled, TxHash: res.TxHash, Amount: res.Amount, SettledAt: &now}
	}

	if err := q.store.CompleteRedemption(ctx, entry.ID, outcome); err != nil {
		q.logger.Error("record settlement outcome failed",
			zap.String("entry_id", entry.ID),
			zap.String("status", string(outcome.Status)),
			zap.String("tx_hash", outcome.TxHash),
			zap.Error(err),
		)
		stuck := resultFrom(entry, pool.Name)
		stuck.Status = model.RedemptionProcessing
		stuck.Executed = true
		stuck.TxHash = outcome.TxHash
		return stuck, fmt.Errorf("complete redemption %s: %w", entry.ID, err)
	}
	q.settleInvestment(ctx, entry, outcome)

	result := model.SettlementResult{
		EntryID:   entry.ID,
		PoolID:    entry.PoolID,
		PoolName:  pool.Name,
		Shares:    entry.Shares,
		Status:    outcome.Status,
		TxHash:    outcome.TxHash,
		Amount:    outcome.Amount,
		Error:     outcome.Error,
		Executed:  true,
		SettledAt: outcome.SettledAt,
	}
	return result, nil
}

// execute runs fn under the hard per-entry timeout. A call that outlives the
// deadline is abandoned and reported as chain.ErrExecutionTimeout.
func (q *Queue) execute(ctx context.Context, fn ExecuteFunc, req chain.ExecuteRequest) (chain.ExecuteResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, q.execTimeout)
	defer cancel()

	type outcome struct {
		res chain.ExecuteResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		res, err := fn(execCtx, req)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err == nil && o.res.TxHash == "" {
			return chain.ExecuteResult{}, errors.New("executor returned no transaction hash")
		}
		return o.res, o.err
	case <-execCtx.Done():
		return chain.ExecuteResult{}, chain.ErrExecutionTimeout
	}
}

func (q *Queue) settleInvestment(ctx context.Context, entry model.RedemptionQueueEntry, outcome storage.RedemptionOutcome) {
	if entry.InvestmentID == "" {
		return
	}
	status := model.InvestmentConfirmed
	if outcome.Status == model.RedemptionFailed {
		status = model.InvestmentFailed
	}
	if err := q.store.UpdateInvestmentStatus(ctx, entry.InvestmentID, status, outcome.TxHash); err != nil {
		q.logger.Warn("update investment status failed",
			zap.String("entry_id", entry.ID),
			zap.String("investment", entry.InvestmentID),
			zap.Error(err),
		)
	}
}

// Retry returns a FAILED entry to PENDING at its original queue position.
// Retries are an operator decision and never happen automatically.
//
// An entry that carries a tx hash is checked on chain first. A successful
// receipt settles the entry from that receipt and returns ErrAlreadySettled;
// only a missing hash, a reverted receipt or an unmined hash is requeued.
func (q *Queue) Retry(ctx context.Context, entryID string, lookup LookupFunc) (model.RedemptionQueueEntry, error) {
	entry, err := q.store.GetRedemption(ctx, entryID)
	if err != nil {
		return model.RedemptionQueueEntry{}, fmt.Errorf("get redemption %s: %w", entryID, err)
	}
	if entry.Status != model.RedemptionFailed {
		return entry, fmt.Errorf("retry redemption %s: status %s: %w", entryID, entry.Status, storage.ErrConflict)
	}

	if entry.TxHash != "" {
		status, err := lookup(ctx, entry.TxHash)
		if err != nil {
			return entry, fmt.Errorf("look up %s for redemption %s: %w", entry.TxHash, entryID, err)
		}
		if status.Found && status.Success {
			return q.settleFromReceipt(ctx, entry, status)
		}
		q.logger.Warn("requeueing redemption with prior submission",
			zap.String("entry_id", entry.ID),
			zap.String("tx_hash", entry.TxHash),
			zap.Bool("mined", status.Found),
		)
	}

	err = q.store.TransitionRedemption(ctx, entryID,
		[]model.RedemptionStatus{model.RedemptionFailed}, model.RedemptionPending, q.now().UTC())
	if err != nil {
		return model.RedemptionQueueEntry{}, fmt.Errorf("retry redemption %s: %w", entryID, err)
	}
	entry, err = q.store.GetRedemption(ctx, entryID)
	if err != nil {
		return model.RedemptionQueueEntry{}, err
	}
	if entry.InvestmentID != "" {
		if err := q.store.UpdateInvestmentStatus(ctx, entry.InvestmentID, model.InvestmentPending, ""); err != nil {
			q.logger.Warn("reset investment status failed", zap.String("investment", entry.InvestmentID), zap.Error(err))
		}
	}
	q.logger.Info("redemption requeued", zap.String("entry_id", entry.ID), zap.Int64("position", entry.QueuePosition))
	return entry, nil
}

// settleFromReceipt moves a FAILED entry whose transaction was mined after
// all to SETTLED.
func (q *Queue) settleFromReceipt(ctx context.Context, entry model.RedemptionQueueEntry, status chain.ReceiptStatus) (model.RedemptionQueueEntry, error) {
	now := q.now().UTC()
	err := q.store.TransitionRedemption(ctx, entry.ID,
		[]model.RedemptionStatus{model.RedemptionFailed}, model.RedemptionProcessing, now)
	if err != nil {
		return entry, fmt.Errorf("claim redemption %s: %w", entry.ID, err)
	}
	outcome := storage.RedemptionOutcome{Status: model.RedemptionSettled, TxHash: entry.TxHash, Amount: status.Amount, SettledAt: &now}
	if err := q.store.CompleteRedemption(ctx, entry.ID, outcome); err != nil {
		return entry, fmt.Errorf("complete redemption %s: %w", entry.ID, err)
	}
	q.settleInvestment(ctx, entry, outcome)

	settled, err := q.store.GetRedemption(ctx, entry.ID)
	if err != nil {
		return entry, err
	}
	q.logger.Warn("retry refused: transaction already mined",
		zap.String("entry_id", entry.ID),
		zap.String("tx_hash", entry.TxHash),
	)
	return settled, ErrAlreadySettled
}

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Checked    int
	Resolved   []model.SettlementResult
	Unresolved int
}

// Reconcile resolves PROCESSING entries claimed more than olderThan ago.
// Entries with a recorded tx hash are settled from the receipt; entries
// without one never reached the chain and are failed. Receipts that cannot
// be found are left PROCESSING.
func (q *Queue) Reconcile(ctx context.Context, olderThan time.Duration, lookup LookupFunc) (ReconcileReport, error) {
	entries, err := q.store.ListRedemptions(ctx, model.RedemptionProcessing)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("list processing redemptions: %w", err)
	}

	now := q.now().UTC()
	cutoff := now.Add(-olderThan)
	var report ReconcileReport
	for _, entry := range entries {
		if entry.ProcessingAt != nil && entry.ProcessingAt.After(cutoff) {
			continue
		}
		report.Checked++

		var outcome storage.RedemptionOutcome
		if entry.TxHash == "" {
			outcome = storage.RedemptionOutcome{Status: model.RedemptionFailed, Error: "interrupted before submission"}
		} else {
			status, err := lookup(ctx, entry.TxHash)
			if err != nil {
				report.Unresolved++
				q.logger.Warn("reconcile lookup failed", zap.String("entry_id", entry.ID), zap.String("tx_hash", entry.TxHash), zap.Error(err))
				continue
			}
			switch {
			case !status.Found:
				report.Unresolved++
				q.logger.Warn("reconcile receipt not found", zap.String("entry_id", entry.ID), zap.String("tx_hash", entry.TxHash))
				continue
			case status.Success:
				settledAt := now
				outcome = storage.RedemptionOutcome{Status: model.RedemptionSettled, TxHash: entry.TxHash, Amount: status.Amount, SettledAt: &settledAt}
			default:
				outcome = storage.RedemptionOutcome{Status: model.RedemptionFailed, TxHash: entry.TxHash, Error: chain.ErrReverted.Error()}
			}
		}

		if err := q.store.CompleteRedemption(ctx, entry.ID, outcome); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				continue
			}
			return report, fmt.Errorf("complete redemption %s: %w", entry.ID, err)
		}
		q.settleInvestment(ctx, entry, outcome)
		report.Resolved = append(report.Resolved, model.SettlementResult{
			EntryID:   entry.ID,
			PoolID:    entry.PoolID,
			Shares:    entry.Shares,
			Status:    outcome.Status,
			TxHash:    outcome.TxHash,
			Amount:    outcome.Amount,
			Error:     outcome.Error,
			SettledAt: outcome.SettledAt,
		})
		q.logger.Info("redemption reconciled",
			zap.String("entry_id", entry.ID),
			zap.String("status", string(outcome.Status)),
			zap.String("tx_hash", outcome.TxHash),
		)
	}
	return report, nil
}

func resultFrom(entry model.RedemptionQueueEntry, poolName string) model.SettlementResult {
	return model.SettlementResult{
		EntryID:   entry.ID,
		PoolID:    entry.PoolID,
		PoolName:  poolName,
		Shares:    entry.Shares,
		Status:    entry.Status,
		TxHash:    entry.TxHash,
		Amount:    entry.Amount,
		Error:     entry.Error,
		SettledAt: entry.SettledAt,
	}
}
