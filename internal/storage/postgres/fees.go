package postgres

import (
	"context"
	"fmt"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/model"
	"navLedger/internal/storage"
)

func (s *Store) RecordFeeAccrual(ctx context.Context, accrual model.FeeAccrual) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fee accrual: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO fee_accruals (id, pool_id, fee_type, period, tvl, rate_bps, amount, accrued_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::numeric, $8)
	`,
		accrual.ID,
		accrual.PoolID,
		accrual.FeeType,
		accrual.Period,
		numericText(accrual.TVL),
		accrual.RateBps,
		numericText(accrual.Amount),
		accrual.AccruedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert fee accrual: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE pools SET last_fee_period = $2, updated_at = now() WHERE id = $1
	`, accrual.PoolID, accrual.Period)
	if err != nil {
		return fmt.Errorf("advance fee period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit fee accrual: %w", err)
	}
	return nil
}

func (s *Store) ListFeeAccruals(ctx context.Context, poolID string) ([]model.FeeAccrual, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pool_id, fee_type, period, tvl::text, rate_bps, amount::text, accrued_at
		FROM fee_accruals
		WHERE $1 = '' OR pool_id = $1
		ORDER BY accrued_at, id
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("list fee accruals: %w", err)
	}
	defer rows.Close()

	out := make([]model.FeeAccrual, 0)
	for rows.Next() {
		var (
			accrual model.FeeAccrual
			tvl     string
			amount  string
		)
		if err := rows.Scan(&accrual.ID, &accrual.PoolID, &accrual.FeeType, &accrual.Period, &tvl, &accrual.RateBps, &amount, &accrual.AccruedAt); err != nil {
			return nil, fmt.Errorf("scan fee accrual: %w", err)
		}
		if accrual.TVL, err = fixedpoint.ParseInt(tvl); err != nil {
			return nil, err
		}
		if accrual.Amount, err = fixedpoint.ParseInt(amount); err != nil {
			return nil, err
		}
		out = append(out, accrual)
	}
	return out, rows.Err()
}
