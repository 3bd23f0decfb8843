package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"navLedger/internal/model"
	"navLedger/internal/storage"
)

const poolColumns = `
	id, chain_pool_id, name, status, yield_rate_bps, nav_per_share, last_nav_update,
	min_investment::text, max_investment::text, lockup_seconds, management_fee_bps,
	last_fee_period, created_at`

// UpsertPool inserts or updates pool configuration. NAV and period markers
// are only written on insert.
func (s *Store) UpsertPool(ctx context.Context, pool model.Pool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pools (
			id, chain_pool_id, name, status, yield_rate_bps, nav_per_share, last_nav_update,
			min_investment, max_investment, lockup_seconds, management_fee_bps, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10, $11, now(), now())
		ON CONFLICT (id)
		DO UPDATE SET
			chain_pool_id = EXCLUDED.chain_pool_id,
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			yield_rate_bps = EXCLUDED.yield_rate_bps,
			min_investment = EXCLUDED.min_investment,
			max_investment = EXCLUDED.max_investment,
			lockup_seconds = EXCLUDED.lockup_seconds,
			management_fee_bps = EXCLUDED.management_fee_bps,
			updated_at = now()
	`,
		pool.ID,
		int64(pool.ChainPoolID),
		pool.Name,
		string(pool.Status),
		pool.YieldRateBps,
		pool.NavPerShare,
		pool.LastNavUpdate,
		orZeroText(pool.MinInvestment),
		orZeroText(pool.MaxInvestment),
		pool.LockupSeconds,
		pool.ManagementFeeBps,
	)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

func (s *Store) GetPool(ctx context.Context, id string) (model.Pool, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+poolColumns+` FROM pools WHERE id = $1`, id)
	pool, err := scanPool(row)
	if err != nil {
		if isNoRows(err) {
			return model.Pool{}, storage.ErrNotFound
		}
		return model.Pool{}, fmt.Errorf("get pool: %w", err)
	}
	return pool, nil
}

func (s *Store) ListPools(ctx context.Context, status model.PoolStatus) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+poolColumns+`
		FROM pools
		WHERE $1 = '' OR status = $1
		ORDER BY id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}
	defer rows.Close()

	out := make([]model.Pool, 0)
	for rows.Next() {
		pool, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		out = append(out, pool)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePoolNav(ctx context.Context, id string, nav int64, at time.Time, expectedLast time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pools
		SET nav_per_share = $2, last_nav_update = $3, updated_at = now()
		WHERE id = $1 AND last_nav_update = $4
	`, id, nav, at, expectedLast)
	if err != nil {
		return fmt.Errorf("update pool nav: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetPool(ctx, id); err != nil {
			return err
		}
		return storage.ErrConflict
	}
	return nil
}

func scanPool(row pgx.Row) (model.Pool, error) {
	var (
		pool        model.Pool
		chainPoolID int64
		status      string
	)
	err := row.Scan(
		&pool.ID,
		&chainPoolID,
		&pool.Name,
		&status,
		&pool.YieldRateBps,
		&pool.NavPerShare,
		&pool.LastNavUpdate,
		&pool.MinInvestment,
		&pool.MaxInvestment,
		&pool.LockupSeconds,
		&pool.ManagementFeeBps,
		&pool.LastFeePeriod,
		&pool.CreatedAt,
	)
	if err != nil {
		return model.Pool{}, err
	}
	pool.ChainPoolID = uint64(chainPoolID)
	pool.Status = model.PoolStatus(status)
	return pool, nil
}

func orZeroText(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
