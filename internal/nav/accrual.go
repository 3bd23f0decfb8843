// Package nav advances pool share prices over time from their annual yield
// rate and values investor positions against the current NAV.
package nav

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/metrics"
	"navLedger/internal/model"
	"navLedger/internal/storage"
)

const (
	bpsDenominator = 10_000
	daysPerYear    = 365
	hoursPerDay    = 24
)

// ErrNavDecrease is returned when an accrual would lower the NAV.
var ErrNavDecrease = errors.New("nav would decrease")

// ErrInvalidNav is returned for a stored NAV that is zero or negative.
var ErrInvalidNav = errors.New("stored nav is not positive")

// Store is the ledger surface the NAV component reads and writes.
type Store interface {
	GetPool(ctx context.Context, id string) (model.Pool, error)
	ListPools(ctx context.Context, status model.PoolStatus) ([]model.Pool, error)
	UpdatePoolNav(ctx context.Context, id string, nav int64, at time.Time, expectedLast time.Time) error
	ListConfirmedInvestments(ctx context.Context, userID, poolID string, typ model.InvestmentType) ([]model.Investment, error)
}

// Service is the NAV Accrual Component.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// HourlyRate converts an annual rate in basis points into a per-hour
// fixed-point rate: bps * SCALE / 10000 / 365 / 24, with integer division at
// each step.
func HourlyRate(yieldRateBps int64) *big.Int {
	rate := new(big.Int).Mul(big.NewInt(yieldRateBps), fixedpoint.ScaleBig())
	rate.Quo(rate, big.NewInt(bpsDenominator))
	rate.Quo(rate, big.NewInt(daysPerYear))
	rate.Quo(rate, big.NewInt(hoursPerDay))
	return rate
}

// Accrue returns the NAV after whole hours of growth at yieldRateBps.
func Accrue(previousNav int64, yieldRateBps int64, hours int64) (newNav int64, growth int64, err error) {
	totalGrowth := new(big.Int).Mul(HourlyRate(yieldRateBps), big.NewInt(hours))
	growthAmount := fixedpoint.MulScaled(big.NewInt(previousNav), totalGrowth)
	next := new(big.Int).Add(big.NewInt(previousNav), growthAmount)
	if !next.IsInt64() || !growthAmount.IsInt64() {
		return 0, 0, fmt.Errorf("nav overflow: previous %d, growth %s", previousNav, growthAmount)
	}
	if next.Int64() < previousNav {
		return 0, 0, fmt.Errorf("%w: %d -> %d", ErrNavDecrease, previousNav, next.Int64())
	}
	return next.Int64(), growthAmount.Int64(), nil
}

// UpdatePoolNav accrues one pool. It returns nil with no mutation when the
// pool is not ACTIVE or less than one hour has elapsed.
func (s *Service) UpdatePoolNav(ctx context.Context, poolID string) (*model.NavUpdateResult, error) {
	pool, err := s.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, fmt.Errorf("get pool %s: %w", poolID, err)
	}
	return s.updatePool(ctx, pool)
}

func (s *Service) updatePool(ctx context.Context, pool model.Pool) (*model.NavUpdateResult, error) {
	if pool.Status != model.PoolActive {
		s.logger.Debug("nav skip inactive pool", zap.String("pool", pool.ID), zap.String("status", string(pool.Status)))
		metrics.NavUpdate("skipped")
		return nil, nil
	}

	now := s.now().UTC()
	if pool.LastNavUpdate.IsZero() || pool.LastNavUpdate.Unix() <= 0 {
		if err := s.store.UpdatePoolNav(ctx, pool.ID, pool.NavPerShare, now, pool.LastNavUpdate); err != nil {
			return nil, fmt.Errorf("baseline nav %s: %w", pool.ID, err)
		}
		s.logger.Info("nav baseline set", zap.String("pool", pool.ID), zap.Time("at", now))
		metrics.NavUpdate("skipped")
		return nil, nil
	}

	hours := int64(now.Sub(pool.LastNavUpdate) / time.Hour)
	if hours < 1 {
		metrics.NavUpdate("skipped")
		return nil, nil
	}

	previous := pool.NavPerShare
	if previous <= 0 {
		s.logger.Error("nav update rejected: invalid stored nav",
			zap.String("pool", pool.ID),
			zap.Int64("previous_nav", previous),
		)
		metrics.NavUpdate("rejected")
		return nil, fmt.Errorf("pool %s: %w", pool.ID, ErrInvalidNav)
	}
	newNav, growth, err := Accrue(previous, pool.YieldRateBps, hours)
	if err != nil {
		s.logger.Error("nav update rejected",
			zap.String("pool", pool.ID),
			zap.Int64("previous_nav", previous),
			zap.Int64("yield_rate_bps", pool.YieldRateBps),
			zap.Int64("hours", hours),
			zap.Error(err),
		)
		metrics.NavUpdate("rejected")
		return nil, err
	}

	if err := s.store.UpdatePoolNav(ctx, pool.ID, newNav, now, pool.LastNavUpdate); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// another writer accrued this pool first
			s.logger.Info("nav update superseded", zap.String("pool", pool.ID))
			metrics.NavUpdate("skipped")
			return nil, nil
		}
		metrics.NavUpdate("error")
		return nil, fmt.Errorf("persist nav %s: %w", pool.ID, err)
	}

	metrics.NavUpdate("applied")
	return &model.NavUpdateResult{
		PoolID:       pool.ID,
		PoolName:     pool.Name,
		PreviousNav:  previous,
		NewNav:       newNav,
		HoursElapsed: hours,
		GrowthAmount: growth,
		UpdatedAt:    now,
	}, nil
}

// UpdateAllPoolNavs accrues every ACTIVE pool independently. Per-pool
// failures are logged and counted; they never stop the loop.
func (s *Service) UpdateAllPoolNavs(ctx context.Context) ([]model.NavUpdateResult, int, error) {
	pools, err := s.store.ListPools(ctx, model.PoolActive)
	if err != nil {
		return nil, 0, fmt.Errorf("list active pools: %w", err)
	}

	results := make([]model.NavUpdateResult, 0, len(pools))
	failed := 0
	for _, pool := range pools {
		if ctx.Err() != nil {
			break
		}
		res, err := s.updatePool(ctx, pool)
		if err != nil {
			failed++
			s.logger.Warn("nav update failed", zap.String("pool", pool.ID), zap.Error(err))
			continue
		}
		if res == nil {
			continue
		}
		results = append(results, *res)
		s.logger.Info("nav updated",
			zap.String("pool", res.PoolName),
			zap.String("previous_nav", fixedpoint.FormatInt(res.PreviousNav)),
			zap.String("new_nav", fixedpoint.FormatInt(res.NewNav)),
			zap.Int64("hours", res.HoursElapsed),
		)
	}

	s.logger.Info("nav cycle complete",
		zap.Int("pools", len(pools)),
		zap.Int("updated", len(results)),
		zap.Int("failed", failed),
	)
	return results, failed, nil
}
