package nav

import (
	"context"
	"fmt"
	"math/big"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/model"
)

// CalculateCurrentValue values shares at currentNav against a purchaseNav
// cost basis.
func CalculateCurrentValue(shares *big.Int, currentNav, purchaseNav int64) model.PositionValue {
	shares = fixedpoint.OrZero(shares)
	costBasis := fixedpoint.MulScaled(shares, big.NewInt(purchaseNav))
	currentValue := fixedpoint.MulScaled(shares, big.NewInt(currentNav))
	return model.PositionValue{
		Shares:         new(big.Int).Set(shares),
		CostBasis:      costBasis,
		CurrentValue:   currentValue,
		UnrealizedGain: new(big.Int).Sub(currentValue, costBasis),
	}
}

// GetWeightedAveragePurchaseNav averages SharePriceAtPurchase weighted by
// shares over the user's confirmed INVEST records. A missing price counts as
// 1.0. With no records the result is 1.0.
func (s *Service) GetWeightedAveragePurchaseNav(ctx context.Context, userID, poolID string) (int64, error) {
	invs, err := s.store.ListConfirmedInvestments(ctx, userID, poolID, model.InvestmentInvest)
	if err != nil {
		return 0, fmt.Errorf("list investments: %w", err)
	}
	return weightedAverageNav(invs)
}

func weightedAverageNav(invs []model.Investment) (int64, error) {
	totalShares := new(big.Int)
	totalCost := new(big.Int)
	for _, inv := range invs {
		if inv.Shares == nil || inv.Shares.Sign() <= 0 {
			continue
		}
		price := fixedpoint.Scale
		if inv.SharePriceAtPurchase != nil {
			price = *inv.SharePriceAtPurchase
		}
		totalShares.Add(totalShares, inv.Shares)
		totalCost.Add(totalCost, new(big.Int).Mul(inv.Shares, big.NewInt(price)))
	}
	if totalShares.Sign() == 0 {
		return fixedpoint.Scale, nil
	}
	avg := new(big.Int).Quo(totalCost, totalShares)
	if !avg.IsInt64() {
		return 0, fmt.Errorf("weighted nav overflow: %s", avg)
	}
	return avg.Int64(), nil
}

// PositionValue values a user's net confirmed shares in a pool at the pool's
// current NAV against the weighted average purchase NAV.
func (s *Service) PositionValue(ctx context.Context, userID, poolID string) (model.PositionValue, error) {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return model.PositionValue{}, fmt.Errorf("get pool %s: %w", poolID, err)
	}
	invested, err := s.store.ListConfirmedInvestments(ctx, userID, poolID, model.InvestmentInvest)
	if err != nil {
		return model.PositionValue{}, fmt.Errorf("list investments: %w", err)
	}
	redeemed, err := s.store.ListConfirmedInvestments(ctx, userID, poolID, model.InvestmentRedeem)
	if err != nil {
		return model.PositionValue{}, fmt.Errorf("list redemptions: %w", err)
	}

	purchaseNav, err := weightedAverageNav(invested)
	if err != nil {
		return model.PositionValue{}, err
	}
	shares := new(big.Int)
	for _, inv := range invested {
		shares.Add(shares, fixedpoint.OrZero(inv.Shares))
	}
	for _, inv := range redeemed {
		shares.Sub(shares, fixedpoint.OrZero(inv.Shares))
	}
	if shares.Sign() < 0 {
		shares.SetInt64(0)
	}
	return CalculateCurrentValue(shares, pool.NavPerShare, purchaseNav), nil
}
