// Package storage defines the Ledger Store consumed by the accrual and
// settlement components. Every write is atomic at row granularity; status
// changes on queue entries are compare-and-set.
package storage

import (
	"context"
	"math/big"
	"time"

	"navLedger/internal/model"
)

// PoolStore persists pools.
type PoolStore interface {
	GetPool(ctx context.Context, id string) (model.Pool, error)
	ListPools(ctx context.Context, status model.PoolStatus) ([]model.Pool, error)
	// UpdatePoolNav writes the new NAV only if last_nav_update still equals
	// expectedLast. Returns ErrConflict otherwise.
	UpdatePoolNav(ctx context.Context, id string, nav int64, at time.Time, expectedLast time.Time) error
}

// InvestmentStore reads investment records and applies settlement transitions.
type InvestmentStore interface {
	ListConfirmedInvestments(ctx context.Context, userID, poolID string, typ model.InvestmentType) ([]model.Investment, error)
	// PoolShareSupply returns confirmed INVEST shares minus confirmed REDEEM shares.
	PoolShareSupply(ctx context.Context, poolID string) (*big.Int, error)
	UpdateInvestmentStatus(ctx context.Context, id string, status model.InvestmentStatus, txHash string) error
}

// RedemptionStore persists the redemption queue.
type RedemptionStore interface {
	// EnqueueRedemption assigns the next queue position for the pool and
	// stores the entry. The stored entry is returned.
	EnqueueRedemption(ctx context.Context, entry model.RedemptionQueueEntry) (model.RedemptionQueueEntry, error)
	GetRedemption(ctx context.Context, id string) (model.RedemptionQueueEntry, error)
	// ListRedemptions returns entries in the given status ordered by
	// pool_id, queue_position.
	ListRedemptions(ctx context.Context, status model.RedemptionStatus) ([]model.RedemptionQueueEntry, error)
	// TransitionRedemption moves an entry to next only if its current status
	// is one of from. Returns ErrConflict when the compare fails.
	TransitionRedemption(ctx context.Context, id string, from []model.RedemptionStatus, next model.RedemptionStatus, at time.Time) error
	// RecordSubmission stores the broadcast tx hash on a PROCESSING entry.
	RecordSubmission(ctx context.Context, id string, txHash string) error
	// CompleteRedemption moves a PROCESSING entry to SETTLED or FAILED.
	CompleteRedemption(ctx context.Context, id string, outcome RedemptionOutcome) error
}

// RedemptionOutcome carries the terminal fields written by CompleteRedemption.
type RedemptionOutcome struct {
	Status    model.RedemptionStatus
	TxHash    string
	Amount    *big.Int
	Error     string
	SettledAt *time.Time
}

// SwapStore persists pool-to-pool swap requests.
type SwapStore interface {
	CreateSwap(ctx context.Context, swap model.SwapRequest) error
	GetSwap(ctx context.Context, id string) (model.SwapRequest, error)
	// MarkStaleSwaps flips PENDING/EXECUTING swaps created before cutoff to
	// STALE and returns the affected ids.
	MarkStaleSwaps(ctx context.Context, cutoff time.Time, at time.Time) ([]string, error)
}

// FeeStore persists fee accrual events.
type FeeStore interface {
	// RecordFeeAccrual inserts the accrual and advances the pool's period
	// marker in one transaction. Returns ErrDuplicateKey when the period was
	// already accrued.
	RecordFeeAccrual(ctx context.Context, accrual model.FeeAccrual) error
	ListFeeAccruals(ctx context.Context, poolID string) ([]model.FeeAccrual, error)
}

// JobRunStore persists scheduler run metadata.
type JobRunStore interface {
	SaveJobRun(ctx context.Context, run model.JobRun) error
	LastJobRun(ctx context.Context, job string) (model.JobRun, bool, error)
}

// Ledger is the full set of stores used by the engine.
type Ledger interface {
	PoolStore
	InvestmentStore
	RedemptionStore
	SwapStore
	FeeStore
	JobRunStore
}
