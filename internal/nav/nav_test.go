package nav

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/model"
	"navLedger/internal/storage/memory"
)

var navEpoch = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestService(ledger *memory.Ledger, now *time.Time) *Service {
	return NewService(ledger, nil).WithClock(func() time.Time { return *now })
}

func activePool(id string, bps int64) model.Pool {
	return model.Pool{
		ID:            id,
		Name:          "Pool " + id,
		Status:        model.PoolActive,
		YieldRateBps:  bps,
		NavPerShare:   fixedpoint.Scale,
		LastNavUpdate: navEpoch,
	}
}

func TestHourlyRate(t *testing.T) {
	require.Equal(t, int64(570), HourlyRate(500).Int64())
	require.Equal(t, int64(1712), HourlyRate(1500).Int64())
	require.Equal(t, int64(0), HourlyRate(0).Int64())
}

func TestUpdatePoolNavAccruesWholeHours(t *testing.T) {
	cases := []struct {
		bps        int64
		wantNav    int64
		wantGrowth int64
	}{
		{bps: 500, wantNav: 100_013_680, wantGrowth: 13_680},
		{bps: 1500, wantNav: 100_041_088, wantGrowth: 41_088},
	}
	for _, tc := range cases {
		ledger := memory.NewLedger()
		ledger.PutPool(activePool("p1", tc.bps))
		now := navEpoch.Add(24*time.Hour + 30*time.Minute)
		svc := newTestService(ledger, &now)

		res, err := svc.UpdatePoolNav(context.Background(), "p1")
		require.NoError(t, err)
		require.NotNil(t, res)
		require.Equal(t, int64(24), res.HoursElapsed)
		require.Equal(t, tc.wantNav, res.NewNav)
		require.Equal(t, tc.wantGrowth, res.GrowthAmount)
		require.Equal(t, fixedpoint.Scale, res.PreviousNav)

		pool, err := ledger.GetPool(context.Background(), "p1")
		require.NoError(t, err)
		require.Equal(t, tc.wantNav, pool.NavPerShare)
		require.True(t, pool.LastNavUpdate.Equal(now))
	}
}

func TestUpdatePoolNavSkips(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	ledger.PutPool(activePool("fresh", 500))
	paused := activePool("paused", 500)
	paused.Status = model.PoolPaused
	ledger.PutPool(paused)
	now := navEpoch.Add(59 * time.Minute)
	svc := newTestService(ledger, &now)

	res, err := svc.UpdatePoolNav(ctx, "fresh")
	require.NoError(t, err)
	require.Nil(t, res)
	pool, _ := ledger.GetPool(ctx, "fresh")
	require.True(t, pool.LastNavUpdate.Equal(navEpoch))

	now = navEpoch.Add(48 * time.Hour)
	res, err = svc.UpdatePoolNav(ctx, "paused")
	require.NoError(t, err)
	require.Nil(t, res)
	pool, _ = ledger.GetPool(ctx, "paused")
	require.Equal(t, fixedpoint.Scale, pool.NavPerShare)
}

func TestUpdatePoolNavBaselinesMissingMarker(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	pool := activePool("p1", 500)
	pool.LastNavUpdate = time.Time{}
	ledger.PutPool(pool)
	now := navEpoch
	svc := newTestService(ledger, &now)

	res, err := svc.UpdatePoolNav(ctx, "p1")
	require.NoError(t, err)
	require.Nil(t, res)
	stored, _ := ledger.GetPool(ctx, "p1")
	require.Equal(t, fixedpoint.Scale, stored.NavPerShare)
	require.True(t, stored.LastNavUpdate.Equal(now))
}

func TestSecondRunInSameHourIsNoop(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	ledger.PutPool(activePool("p1", 500))
	now := navEpoch.Add(3 * time.Hour)
	svc := newTestService(ledger, &now)

	first, _, err := svc.UpdateAllPoolNavs(ctx)
	require.NoError(t, err)
	require.Len(t, first, 1)

	results, failed, err := svc.UpdateAllPoolNavs(ctx)
	require.NoError(t, err)
	require.Zero(t, failed)
	require.Empty(t, results)
}

func TestNavIsMonotonic(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	ledger.PutPool(activePool("p1", 800))
	now := navEpoch
	svc := newTestService(ledger, &now)

	last := fixedpoint.Scale
	for i := 0; i < 10; i++ {
		now = now.Add(time.Duration(i+1) * time.Hour)
		res, err := svc.UpdatePoolNav(ctx, "p1")
		require.NoError(t, err)
		require.NotNil(t, res)
		require.GreaterOrEqual(t, res.NewNav, last)
		last = res.NewNav
	}
}

func TestAccrueRejectsDecrease(t *testing.T) {
	_, _, err := Accrue(fixedpoint.Scale, -500, 24)
	require.ErrorIs(t, err, ErrNavDecrease)
}

func TestUpdatePoolNavRejectsNonPositiveNav(t *testing.T) {
	ctx := context.Background()
	for _, stored := range []int64{0, -5} {
		ledger := memory.NewLedger()
		pool := activePool("p1", 500)
		pool.NavPerShare = stored
		ledger.PutPool(pool)
		now := navEpoch.Add(24 * time.Hour)
		svc := newTestService(ledger, &now)

		res, err := svc.UpdatePoolNav(ctx, "p1")
		require.ErrorIs(t, err, ErrInvalidNav)
		require.Nil(t, res)

		got, err := ledger.GetPool(ctx, "p1")
		require.NoError(t, err)
		require.Equal(t, stored, got.NavPerShare)
		require.True(t, got.LastNavUpdate.Equal(navEpoch))
	}
}

func TestUpdateAllPoolNavsContinuesPastFailure(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	ledger.PutPool(activePool("a", 500))
	bad := activePool("b", -100)
	ledger.PutPool(bad)
	ledger.PutPool(activePool("c", 1500))
	now := navEpoch.Add(24 * time.Hour)
	svc := newTestService(ledger, &now)

	results, failed, err := svc.UpdateAllPoolNavs(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, failed)
	require.Len(t, results, 2)
	require.Equal(t, "a", results[0].PoolID)
	require.Equal(t, "c", results[1].PoolID)
}

func TestCalculateCurrentValue(t *testing.T) {
	shares := big.NewInt(100 * fixedpoint.Scale)
	v := CalculateCurrentValue(shares, 110_000_000, fixedpoint.Scale)
	require.Equal(t, big.NewInt(100*fixedpoint.Scale), v.CostBasis)
	require.Equal(t, big.NewInt(110*fixedpoint.Scale), v.CurrentValue)
	require.Equal(t, big.NewInt(10*fixedpoint.Scale), v.UnrealizedGain)
}

func TestWeightedAveragePurchaseNav(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	ledger.PutPool(activePool("p1", 500))
	price := int64(120_000_000)
	ledger.PutInvestment(model.Investment{
		ID: "i1", UserID: "u1", PoolID: "p1", Type: model.InvestmentInvest,
		Shares: big.NewInt(100), Status: model.InvestmentConfirmed,
	})
	ledger.PutInvestment(model.Investment{
		ID: "i2", UserID: "u1", PoolID: "p1", Type: model.InvestmentInvest,
		Shares: big.NewInt(100), SharePriceAtPurchase: &price, Status: model.InvestmentConfirmed,
	})
	ledger.PutInvestment(model.Investment{
		ID: "i3", UserID: "u1", PoolID: "p1", Type: model.InvestmentInvest,
		Shares: big.NewInt(500), Status: model.InvestmentPending,
	})
	svc := NewService(ledger, nil)

	avg, err := svc.GetWeightedAveragePurchaseNav(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, int64(110_000_000), avg)

	avg, err = svc.GetWeightedAveragePurchaseNav(ctx, "nobody", "p1")
	require.NoError(t, err)
	require.Equal(t, fixedpoint.Scale, avg)
}

func TestPositionValueNetsRedemptions(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewLedger()
	pool := activePool("p1", 500)
	pool.NavPerShare = 110_000_000
	ledger.PutPool(pool)
	ledger.PutInvestment(model.Investment{
		ID: "i1", UserID: "u1", PoolID: "p1", Type: model.InvestmentInvest,
		Shares: big.NewInt(100 * fixedpoint.Scale), Status: model.InvestmentConfirmed,
	})
	ledger.PutInvestment(model.Investment{
		ID: "r1", UserID: "u1", PoolID: "p1", Type: model.InvestmentRedeem,
		Shares: big.NewInt(40 * fixedpoint.Scale), Status: model.InvestmentConfirmed,
	})
	svc := NewService(ledger, nil)

	v, err := svc.PositionValue(ctx, "u1", "p1")
	require.NoError(t, err)
	require.Equal(t, big.NewInt(60*fixedpoint.Scale), v.Shares)
	require.Equal(t, big.NewInt(66*fixedpoint.Scale), v.CurrentValue)
	require.Equal(t, big.NewInt(6*fixedpoint.Scale), v.UnrealizedGain)
}
