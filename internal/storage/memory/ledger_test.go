package memory

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"navLedger/internal/model"
	"navLedger/internal/storage"
)

func TestEnqueueAssignsIncreasingPositionsPerPool(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	a, err := l.EnqueueRedemption(ctx, model.RedemptionQueueEntry{ID: "a", PoolID: "p1", Shares: big.NewInt(1)})
	require.NoError(t, err)
	b, err := l.EnqueueRedemption(ctx, model.RedemptionQueueEntry{ID: "b", PoolID: "p1", Shares: big.NewInt(1)})
	require.NoError(t, err)
	c, err := l.EnqueueRedemption(ctx, model.RedemptionQueueEntry{ID: "c", PoolID: "p2", Shares: big.NewInt(1)})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.QueuePosition)
	assert.Equal(t, int64(2), b.QueuePosition)
	assert.Equal(t, int64(1), c.QueuePosition)

	_, err = l.EnqueueRedemption(ctx, model.RedemptionQueueEntry{ID: "a", PoolID: "p1"})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestTransitionRedemptionCompareAndSet(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	_, err := l.EnqueueRedemption(ctx, model.RedemptionQueueEntry{ID: "a", PoolID: "p1", Status: model.RedemptionEligible})
	require.NoError(t, err)

	from := []model.RedemptionStatus{model.RedemptionPending, model.RedemptionEligible}
	require.NoError(t, l.TransitionRedemption(ctx, "a", from, model.RedemptionProcessing, time.Now()))
	assert.ErrorIs(t, l.TransitionRedemption(ctx, "a", from, model.RedemptionProcessing, time.Now()), storage.ErrConflict)
	assert.ErrorIs(t, l.TransitionRedemption(ctx, "missing", from, model.RedemptionProcessing, time.Now()), storage.ErrNotFound)

	require.NoError(t, l.CompleteRedemption(ctx, "a", storage.RedemptionOutcome{Status: model.RedemptionSettled, TxHash: "0x1"}))
	assert.ErrorIs(t, l.CompleteRedemption(ctx, "a", storage.RedemptionOutcome{Status: model.RedemptionFailed}), storage.ErrConflict)

	got, err := l.GetRedemption(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionSettled, got.Status)
	assert.Equal(t, "0x1", got.TxHash)
}

func TestRequeueKeepsTxHash(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	_, err := l.EnqueueRedemption(ctx, model.RedemptionQueueEntry{ID: "a", PoolID: "p1", Status: model.RedemptionEligible})
	require.NoError(t, err)

	require.NoError(t, l.TransitionRedemption(ctx, "a", []model.RedemptionStatus{model.RedemptionEligible}, model.RedemptionProcessing, time.Now()))
	require.NoError(t, l.RecordSubmission(ctx, "a", "0xfeed"))
	require.NoError(t, l.CompleteRedemption(ctx, "a", storage.RedemptionOutcome{Status: model.RedemptionFailed, Error: "execution timeout"}))
	require.NoError(t, l.TransitionRedemption(ctx, "a", []model.RedemptionStatus{model.RedemptionFailed}, model.RedemptionPending, time.Now()))

	got, err := l.GetRedemption(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.RedemptionPending, got.Status)
	assert.Equal(t, "0xfeed", got.TxHash)
	assert.Empty(t, got.Error)
	assert.Nil(t, got.ProcessingAt)
}

func TestUpdatePoolNavRequiresExpectedTimestamp(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	last := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l.PutPool(model.Pool{ID: "p1", NavPerShare: 100, LastNavUpdate: last})

	assert.ErrorIs(t, l.UpdatePoolNav(ctx, "p1", 200, last.Add(time.Hour), last.Add(time.Minute)), storage.ErrConflict)
	require.NoError(t, l.UpdatePoolNav(ctx, "p1", 200, last.Add(time.Hour), last))

	pool, err := l.GetPool(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), pool.NavPerShare)
}

func TestRecordFeeAccrualIsUniquePerPeriod(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.PutPool(model.Pool{ID: "p1"})

	accrual := model.FeeAccrual{ID: "f1", PoolID: "p1", FeeType: model.FeeTypeManagement, Period: "2026-01-01T00:00:00Z", Amount: big.NewInt(5)}
	require.NoError(t, l.RecordFeeAccrual(ctx, accrual))
	accrual.ID = "f2"
	assert.ErrorIs(t, l.RecordFeeAccrual(ctx, accrual), storage.ErrDuplicateKey)

	pool, err := l.GetPool(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01T00:00:00Z", pool.LastFeePeriod)
}

func TestPoolShareSupplyNetsRedemptions(t *testing.T) {
	l := NewLedger()
	l.PutInvestment(model.Investment{ID: "i1", PoolID: "p1", Type: model.InvestmentInvest, Status: model.InvestmentConfirmed, Shares: big.NewInt(100)})
	l.PutInvestment(model.Investment{ID: "i2", PoolID: "p1", Type: model.InvestmentInvest, Status: model.InvestmentPending, Shares: big.NewInt(50)})
	l.PutInvestment(model.Investment{ID: "r1", PoolID: "p1", Type: model.InvestmentRedeem, Status: model.InvestmentConfirmed, Shares: big.NewInt(30)})
	l.PutInvestment(model.Investment{ID: "i3", PoolID: "p2", Type: model.InvestmentInvest, Status: model.InvestmentConfirmed, Shares: big.NewInt(7)})

	supply, err := l.PoolShareSupply(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), supply.Int64())
}
