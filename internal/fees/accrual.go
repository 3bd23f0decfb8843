// Package fees accrues management fees per pool once per fee period.
package fees

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/metrics"
	"navLedger/internal/model"
	"navLedger/internal/storage"
)

const secondsPerYear = 365 * 86400

// Store is the ledger surface the fee component needs.
type Store interface {
	ListPools(ctx context.Context, status model.PoolStatus) ([]model.Pool, error)
	PoolShareSupply(ctx context.Context, poolID string) (*big.Int, error)
	RecordFeeAccrual(ctx context.Context, accrual model.FeeAccrual) error
}

// Config controls fee accrual.
type Config struct {
	// Interval is the fee period length.
	Interval time.Duration
	// DefaultBps applies to pools without their own management fee rate.
	DefaultBps int64
}

// Service is the Fee Accrual Component.
type Service struct {
	store  Store
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

func NewService(store Store, cfg Config, logger *zap.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, cfg: cfg, logger: logger, now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// PeriodKey names the fee period containing t.
func PeriodKey(t time.Time, interval time.Duration) string {
	return t.UTC().Truncate(interval).Format(time.RFC3339)
}

// ManagementFee is tvl * bps * period / (10000 * 365d), floored.
func ManagementFee(tvl *big.Int, bps int64, period time.Duration) *big.Int {
	fee := new(big.Int).Mul(fixedpoint.OrZero(tvl), big.NewInt(bps))
	fee.Mul(fee, big.NewInt(int64(period/time.Second)))
	return fee.Quo(fee, big.NewInt(10_000*secondsPerYear))
}

// AccrueManagementFees charges every ACTIVE pool for the current period.
// Pools already charged for the period are skipped, so repeated calls within
// one period are no-ops.
func (s *Service) AccrueManagementFees(ctx context.Context) ([]model.FeeAccrualResult, int, error) {
	pools, err := s.store.ListPools(ctx, model.PoolActive)
	if err != nil {
		return nil, 0, fmt.Errorf("list active pools: %w", err)
	}

	now := s.now().UTC()
	period := PeriodKey(now, s.cfg.Interval)
	results := make([]model.FeeAccrualResult, 0, len(pools))
	failed := 0

	for _, pool := range pools {
		if ctx.Err() != nil {
			break
		}
		res, err := s.accruePool(ctx, pool, period, now)
		if err != nil {
			failed++
			metrics.FeeAccrual("error")
			s.logger.Warn("fee accrual failed", zap.String("pool", pool.ID), zap.String("period", period), zap.Error(err))
			continue
		}
		if res != nil {
			results = append(results, *res)
		}
	}

	s.logger.Info("fee cycle complete",
		zap.String("period", period),
		zap.Int("pools", len(pools)),
		zap.Int("accrued", len(results)),
		zap.Int("failed", failed),
	)
	return results, failed, nil
}

func (s *Service) accruePool(ctx context.Context, pool model.Pool, period string, now time.Time) (*model.FeeAccrualResult, error) {
	if pool.LastFeePeriod == period {
		metrics.FeeAccrual("skipped")
		return nil, nil
	}

	bps := pool.ManagementFeeBps
	if bps <= 0 {
		bps = s.cfg.DefaultBps
	}
	supply, err := s.store.PoolShareSupply(ctx, pool.ID)
	if err != nil {
		return nil, fmt.Errorf("share supply: %w", err)
	}
	tvl := fixedpoint.MulScaled(supply, big.NewInt(pool.NavPerShare))
	amount := ManagementFee(tvl, bps, s.cfg.Interval)

	err = s.store.RecordFeeAccrual(ctx, model.FeeAccrual{
		ID:        uuid.NewString(),
		PoolID:    pool.ID,
		FeeType:   model.FeeTypeManagement,
		Period:    period,
		TVL:       tvl,
		RateBps:   bps,
		Amount:    amount,
		AccruedAt: now,
	})
	if errors.Is(err, storage.ErrDuplicateKey) {
		metrics.FeeAccrual("skipped")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("record accrual: %w", err)
	}

	metrics.FeeAccrual("applied")
	s.logger.Info("management fee accrued",
		zap.String("pool", pool.Name),
		zap.String("period", period),
		zap.String("tvl", fixedpoint.Format(tvl)),
		zap.String("fee", fixedpoint.Format(amount)),
	)
	return &model.FeeAccrualResult{
		PoolID:   pool.ID,
		PoolName: pool.Name,
		FeeType:  model.FeeTypeManagement,
		Amount:   amount,
		Period:   period,
	}, nil
}
