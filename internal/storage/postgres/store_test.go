package postgres

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"navLedger/internal/model"
	"navLedger/internal/storage"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrations must be idempotent")
	return store
}

func TestStoreLedgerLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertPool(ctx, model.Pool{
		ID:            "pool-a",
		ChainPoolID:   7,
		Name:          "Treasury Bills",
		Status:        model.PoolActive,
		YieldRateBps:  500,
		NavPerShare:   100000000,
		LastNavUpdate: base,
		LockupSeconds: 3600,
	}))

	t.Run("nav compare-and-set", func(t *testing.T) {
		assert.ErrorIs(t, store.UpdatePoolNav(ctx, "pool-a", 1, base, base.Add(time.Second)), storage.ErrConflict)
		require.NoError(t, store.UpdatePoolNav(ctx, "pool-a", 100013680, base.Add(24*time.Hour), base))
		pool, err := store.GetPool(ctx, "pool-a")
		require.NoError(t, err)
		assert.Equal(t, int64(100013680), pool.NavPerShare)
		assert.True(t, pool.LastNavUpdate.Equal(base.Add(24*time.Hour)))

		_, err = store.GetPool(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("investments", func(t *testing.T) {
		price := int64(110000000)
		require.NoError(t, store.InsertInvestment(ctx, model.Investment{
			ID: "inv-1", UserID: "u1", PoolID: "pool-a", Type: model.InvestmentInvest,
			Shares: big.NewInt(500), SharePriceAtPurchase: &price, Status: model.InvestmentConfirmed, CreatedAt: base,
		}))
		require.NoError(t, store.InsertInvestment(ctx, model.Investment{
			ID: "red-1", UserID: "u1", PoolID: "pool-a", Type: model.InvestmentRedeem,
			Shares: big.NewInt(100), Status: model.InvestmentConfirmed, CreatedAt: base,
		}))

		invs, err := store.ListConfirmedInvestments(ctx, "u1", "pool-a", model.InvestmentInvest)
		require.NoError(t, err)
		require.Len(t, invs, 1)
		require.NotNil(t, invs[0].SharePriceAtPurchase)
		assert.Equal(t, price, *invs[0].SharePriceAtPurchase)

		supply, err := store.PoolShareSupply(ctx, "pool-a")
		require.NoError(t, err)
		assert.Equal(t, int64(400), supply.Int64())
	})

	t.Run("redemption queue", func(t *testing.T) {
		var wg sync.WaitGroup
		ids := []string{"r1", "r2", "r3", "r4"}
		for _, id := range ids {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := store.EnqueueRedemption(ctx, model.RedemptionQueueEntry{
					ID: id, UserID: "u1", PoolID: "pool-a", InvestorAddress: "0x01",
					Shares: big.NewInt(10), Status: model.RedemptionPending,
					RequestedAt: base, EligibleAt: base,
				})
				assert.NoError(t, err)
			}(id)
		}
		wg.Wait()

		pending, err := store.ListRedemptions(ctx, model.RedemptionPending)
		require.NoError(t, err)
		require.Len(t, pending, 4)
		for i, entry := range pending {
			assert.Equal(t, int64(i+1), entry.QueuePosition)
		}

		from := []model.RedemptionStatus{model.RedemptionPending, model.RedemptionEligible}
		require.NoError(t, store.TransitionRedemption(ctx, "r1", from, model.RedemptionProcessing, base))
		assert.ErrorIs(t, store.TransitionRedemption(ctx, "r1", from, model.RedemptionProcessing, base), storage.ErrConflict)
		assert.ErrorIs(t, store.TransitionRedemption(ctx, "nope", from, model.RedemptionProcessing, base), storage.ErrNotFound)

		require.NoError(t, store.RecordSubmission(ctx, "r1", "0xabc"))
		settledAt := base.Add(time.Minute)
		require.NoError(t, store.CompleteRedemption(ctx, "r1", storage.RedemptionOutcome{
			Status: model.RedemptionSettled, Amount: big.NewInt(11), SettledAt: &settledAt,
		}))

		got, err := store.GetRedemption(ctx, "r1")
		require.NoError(t, err)
		assert.Equal(t, model.RedemptionSettled, got.Status)
		assert.Equal(t, "0xabc", got.TxHash)
		assert.Equal(t, int64(11), got.Amount.Int64())
		require.NotNil(t, got.ProcessingAt)
	})

	t.Run("swaps", func(t *testing.T) {
		require.NoError(t, store.CreateSwap(ctx, model.SwapRequest{ID: "s-old", Status: model.SwapExecuting, CreatedAt: base}))
		require.NoError(t, store.CreateSwap(ctx, model.SwapRequest{ID: "s-done", Status: model.SwapCompleted, CreatedAt: base}))
		require.NoError(t, store.CreateSwap(ctx, model.SwapRequest{ID: "s-new", Status: model.SwapPending, CreatedAt: base.Add(2 * time.Hour)}))

		ids, err := store.MarkStaleSwaps(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"s-old"}, ids)

		ids, err = store.MarkStaleSwaps(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, ids)

		swap, err := store.GetSwap(ctx, "s-done")
		require.NoError(t, err)
		assert.Equal(t, model.SwapCompleted, swap.Status)
	})

	t.Run("fee accruals", func(t *testing.T) {
		accrual := model.FeeAccrual{
			ID: "f1", PoolID: "pool-a", FeeType: model.FeeTypeManagement, Period: "2026-03-01T00:00:00Z",
			TVL: big.NewInt(1000), RateBps: 200, Amount: big.NewInt(5), AccruedAt: base,
		}
		require.NoError(t, store.RecordFeeAccrual(ctx, accrual))
		accrual.ID = "f2"
		assert.ErrorIs(t, store.RecordFeeAccrual(ctx, accrual), storage.ErrDuplicateKey)

		pool, err := store.GetPool(ctx, "pool-a")
		require.NoError(t, err)
		assert.Equal(t, "2026-03-01T00:00:00Z", pool.LastFeePeriod)

		fees, err := store.ListFeeAccruals(ctx, "pool-a")
		require.NoError(t, err)
		require.Len(t, fees, 1)
		assert.Equal(t, int64(5), fees[0].Amount.Int64())
	})

	t.Run("job runs", func(t *testing.T) {
		_, ok, err := store.LastJobRun(ctx, "settlement")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SaveJobRun(ctx, model.JobRun{ID: "j1", Job: "settlement", StartedAt: base, FinishedAt: base, Processed: 2}))
		require.NoError(t, store.SaveJobRun(ctx, model.JobRun{ID: "j2", Job: "settlement", StartedAt: base.Add(time.Hour), FinishedAt: base.Add(time.Hour), Failed: 1}))

		run, ok, err := store.LastJobRun(ctx, "settlement")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "j2", run.ID)
		assert.Equal(t, 1, run.Failed)
	})
}
