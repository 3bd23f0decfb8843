package postgres

import (
	"context"
	"fmt"
	"time"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/model"
	"navLedger/internal/storage"
)

func (s *Store) CreateSwap(ctx context.Context, swap model.SwapRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO swap_requests (id, user_id, from_pool_id, to_pool_id, shares, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $7)
	`,
		swap.ID,
		swap.UserID,
		swap.FromPoolID,
		swap.ToPoolID,
		numericText(swap.Shares),
		string(swap.Status),
		swap.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("create swap: %w", err)
	}
	return nil
}

func (s *Store) GetSwap(ctx context.Context, id string) (model.SwapRequest, error) {
	var (
		swap   model.SwapRequest
		shares string
		status string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, from_pool_id, to_pool_id, shares::text, status, created_at, updated_at
		FROM swap_requests
		WHERE id = $1
	`, id).Scan(&swap.ID, &swap.UserID, &swap.FromPoolID, &swap.ToPoolID, &shares, &status, &swap.CreatedAt, &swap.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return model.SwapRequest{}, storage.ErrNotFound
		}
		return model.SwapRequest{}, fmt.Errorf("get swap: %w", err)
	}
	swap.Status = model.SwapStatus(status)
	if swap.Shares, err = fixedpoint.ParseInt(shares); err != nil {
		return model.SwapRequest{}, err
	}
	return swap, nil
}

func (s *Store) MarkStaleSwaps(ctx context.Context, cutoff time.Time, at time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE swap_requests
		SET status = 'STALE', updated_at = $2
		WHERE status IN ('PENDING', 'EXECUTING') AND created_at < $1
		RETURNING id
	`, cutoff, at)
	if err != nil {
		return nil, fmt.Errorf("mark stale swaps: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan swap id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
