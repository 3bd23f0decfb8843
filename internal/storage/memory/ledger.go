// Package memory is an in-process implementation of storage.Ledger. A single
// mutex serializes all access, which gives every method the row-level
// atomicity the Postgres store provides.
package memory

import (
	"context"
	"math/big"
	"slices"
	"sort"
	"sync"
	"time"

	"navLedger/internal/model"
	"navLedger/internal/storage"
)

// Ledger keeps all entities in maps keyed by id.
type Ledger struct {
	mu          sync.Mutex
	pools       map[string]model.Pool
	investments map[string]model.Investment
	redemptions map[string]model.RedemptionQueueEntry
	swaps       map[string]model.SwapRequest
	fees        []model.FeeAccrual
	jobRuns     []model.JobRun
	positions   map[string]int64
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

func NewLedger() *Ledger {
	return &Ledger{
		pools:       make(map[string]model.Pool),
		investments: make(map[string]model.Investment),
		redemptions: make(map[string]model.RedemptionQueueEntry),
		swaps:       make(map[string]model.SwapRequest),
		positions:   make(map[string]int64),
	}
}

// PutPool inserts or replaces a pool.
func (l *Ledger) PutPool(pool model.Pool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pools[pool.ID] = pool
}

// PutInvestment inserts or replaces an investment record.
func (l *Ledger) PutInvestment(inv model.Investment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv.Shares = cloneInt(inv.Shares)
	l.investments[inv.ID] = inv
}

func (l *Ledger) GetPool(_ context.Context, id string) (model.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pool, ok := l.pools[id]
	if !ok {
		return model.Pool{}, storage.ErrNotFound
	}
	return pool, nil
}

func (l *Ledger) ListPools(_ context.Context, status model.PoolStatus) ([]model.Pool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Pool, 0, len(l.pools))
	for _, pool := range l.pools {
		if status != "" && pool.Status != status {
			continue
		}
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (l *Ledger) UpdatePoolNav(_ context.Context, id string, nav int64, at time.Time, expectedLast time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pool, ok := l.pools[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !pool.LastNavUpdate.Equal(expectedLast) {
		return storage.ErrConflict
	}
	pool.NavPerShare = nav
	pool.LastNavUpdate = at
	l.pools[id] = pool
	return nil
}

func (l *Ledger) ListConfirmedInvestments(_ context.Context, userID, poolID string, typ model.InvestmentType) ([]model.Investment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Investment, 0)
	for _, inv := range l.investments {
		if inv.UserID != userID || inv.PoolID != poolID || inv.Type != typ || inv.Status != model.InvestmentConfirmed {
			continue
		}
		inv.Shares = cloneInt(inv.Shares)
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (l *Ledger) PoolShareSupply(_ context.Context, poolID string) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	supply := new(big.Int)
	for _, inv := range l.investments {
		if inv.PoolID != poolID || inv.Status != model.InvestmentConfirmed || inv.Shares == nil {
			continue
		}
		switch inv.Type {
		case model.InvestmentInvest:
			supply.Add(supply, inv.Shares)
		case model.InvestmentRedeem:
			supply.Sub(supply, inv.Shares)
		}
	}
	return supply, nil
}

func (l *Ledger) UpdateInvestmentStatus(_ context.Context, id string, status model.InvestmentStatus, txHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, ok := l.investments[id]
	if !ok {
		return storage.ErrNotFound
	}
	inv.Status = status
	if txHash != "" {
		inv.TxHash = txHash
	}
	l.investments[id] = inv
	return nil
}

// GetInvestment returns a copy of an investment record.
func (l *Ledger) GetInvestment(id string) (model.Investment, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inv, ok := l.investments[id]
	return inv, ok
}

func (l *Ledger) EnqueueRedemption(_ context.Context, entry model.RedemptionQueueEntry) (model.RedemptionQueueEntry, error) {
	if entry.ID == "" || entry.PoolID == "" {
		return model.RedemptionQueueEntry{}, storage.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.redemptions[entry.ID]; exists {
		return model.RedemptionQueueEntry{}, storage.ErrDuplicateKey
	}
	l.positions[entry.PoolID]++
	entry.QueuePosition = l.positions[entry.PoolID]
	entry.Shares = cloneInt(entry.Shares)
	l.redemptions[entry.ID] = entry
	return cloneEntry(entry), nil
}

func (l *Ledger) GetRedemption(_ context.Context, id string) (model.RedemptionQueueEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.redemptions[id]
	if !ok {
		return model.RedemptionQueueEntry{}, storage.ErrNotFound
	}
	return cloneEntry(entry), nil
}

func (l *Ledger) ListRedemptions(_ context.Context, status model.RedemptionStatus) ([]model.RedemptionQueueEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.RedemptionQueueEntry, 0)
	for _, entry := range l.redemptions {
		if entry.Status != status {
			continue
		}
		out = append(out, cloneEntry(entry))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PoolID != out[j].PoolID {
			return out[i].PoolID < out[j].PoolID
		}
		return out[i].QueuePosition < out[j].QueuePosition
	})
	return out, nil
}

func (l *Ledger) TransitionRedemption(_ context.Context, id string, from []model.RedemptionStatus, next model.RedemptionStatus, at time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.redemptions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if !slices.Contains(from, entry.Status) {
		return storage.ErrConflict
	}
	entry.Status = next
	switch next {
	case model.RedemptionProcessing:
		ts := at
		entry.ProcessingAt = &ts
	case model.RedemptionPending:
		entry.ProcessingAt = nil
		entry.SettledAt = nil
		entry.Amount = nil
		entry.Error = ""
	}
	l.redemptions[id] = entry
	return nil
}

func (l *Ledger) RecordSubmission(_ context.Context, id string, txHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.redemptions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if entry.Status != model.RedemptionProcessing {
		return storage.ErrConflict
	}
	entry.TxHash = txHash
	l.redemptions[id] = entry
	return nil
}

func (l *Ledger) CompleteRedemption(_ context.Context, id string, outcome storage.RedemptionOutcome) error {
	if !outcome.Status.Terminal() {
		return storage.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.redemptions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if entry.Status != model.RedemptionProcessing {
		return storage.ErrConflict
	}
	entry.Status = outcome.Status
	if outcome.TxHash != "" {
		entry.TxHash = outcome.TxHash
	}
	entry.Amount = cloneInt(outcome.Amount)
	entry.Error = outcome.Error
	entry.SettledAt = outcome.SettledAt
	l.redemptions[id] = entry
	return nil
}

func (l *Ledger) CreateSwap(_ context.Context, swap model.SwapRequest) error {
	if swap.ID == "" {
		return storage.ErrInvalidInput
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.swaps[swap.ID]; exists {
		return storage.ErrDuplicateKey
	}
	swap.Shares = cloneInt(swap.Shares)
	l.swaps[swap.ID] = swap
	return nil
}

func (l *Ledger) GetSwap(_ context.Context, id string) (model.SwapRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	swap, ok := l.swaps[id]
	if !ok {
		return model.SwapRequest{}, storage.ErrNotFound
	}
	return swap, nil
}

func (l *Ledger) MarkStaleSwaps(_ context.Context, cutoff time.Time, at time.Time) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]string, 0)
	for id, swap := range l.swaps {
		if !swap.Status.Live() || !swap.CreatedAt.Before(cutoff) {
			continue
		}
		swap.Status = model.SwapStale
		swap.UpdatedAt = at
		l.swaps[id] = swap
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Ledger) RecordFeeAccrual(_ context.Context, accrual model.FeeAccrual) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	pool, ok := l.pools[accrual.PoolID]
	if !ok {
		return storage.ErrNotFound
	}
	for _, existing := range l.fees {
		if existing.PoolID == accrual.PoolID && existing.FeeType == accrual.FeeType && existing.Period == accrual.Period {
			return storage.ErrDuplicateKey
		}
	}
	accrual.Amount = cloneInt(accrual.Amount)
	accrual.TVL = cloneInt(accrual.TVL)
	l.fees = append(l.fees, accrual)
	pool.LastFeePeriod = accrual.Period
	l.pools[pool.ID] = pool
	return nil
}

func (l *Ledger) ListFeeAccruals(_ context.Context, poolID string) ([]model.FeeAccrual, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.FeeAccrual, 0)
	for _, accrual := range l.fees {
		if poolID != "" && accrual.PoolID != poolID {
			continue
		}
		out = append(out, accrual)
	}
	return out, nil
}

func (l *Ledger) SaveJobRun(_ context.Context, run model.JobRun) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.jobRuns = append(l.jobRuns, run)
	return nil
}

func (l *Ledger) LastJobRun(_ context.Context, job string) (model.JobRun, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.jobRuns) - 1; i >= 0; i-- {
		if l.jobRuns[i].Job == job {
			return l.jobRuns[i], true, nil
		}
	}
	return model.JobRun{}, false, nil
}

func cloneInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func cloneEntry(entry model.RedemptionQueueEntry) model.RedemptionQueueEntry {
	entry.Shares = cloneInt(entry.Shares)
	entry.Amount = cloneInt(entry.Amount)
	return entry
}
