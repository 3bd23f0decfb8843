package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/model"
	"navLedger/internal/storage"
)

const redemptionColumns = `
	id, user_id, pool_id, investor_address, investment_id, shares::text, queue_position,
	status, requested_at, eligible_at, processing_at, settled_at, tx_hash, amount::text, error`

func (s *Store) EnqueueRedemption(ctx context.Context, entry model.RedemptionQueueEntry) (model.RedemptionQueueEntry, error) {
	if entry.ID == "" || entry.PoolID == "" {
		return model.RedemptionQueueEntry{}, storage.ErrInvalidInput
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.RedemptionQueueEntry{}, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback(ctx)

	// The upsert takes a row lock on the pool's counter, so positions are
	// handed out in commit order.
	var position int64
	err = tx.QueryRow(ctx, `
		INSERT INTO redemption_positions (pool_id, last_position)
		VALUES ($1, 1)
		ON CONFLICT (pool_id) DO UPDATE
		SET last_position = redemption_positions.last_position + 1
		RETURNING last_position
	`, entry.PoolID).Scan(&position)
	if err != nil {
		return model.RedemptionQueueEntry{}, fmt.Errorf("next queue position: %w", err)
	}
	entry.QueuePosition = position

	_, err = tx.Exec(ctx, `
		INSERT INTO redemption_queue (
			id, user_id, pool_id, investor_address, investment_id, shares, queue_position,
			status, requested_at, eligible_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, now())
	`,
		entry.ID,
		entry.UserID,
		entry.PoolID,
		entry.InvestorAddress,
		entry.InvestmentID,
		numericText(entry.Shares),
		entry.QueuePosition,
		string(entry.Status),
		entry.RequestedAt,
		entry.EligibleAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return model.RedemptionQueueEntry{}, storage.ErrDuplicateKey
		}
		return model.RedemptionQueueEntry{}, fmt.Errorf("insert redemption: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.RedemptionQueueEntry{}, fmt.Errorf("commit enqueue: %w", err)
	}
	return entry, nil
}

func (s *Store) GetRedemption(ctx context.Context, id string) (model.RedemptionQueueEntry, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+redemptionColumns+` FROM redemption_queue WHERE id = $1`, id)
	entry, err := scanRedemption(row)
	if err != nil {
		if isNoRows(err) {
			return model.RedemptionQueueEntry{}, storage.ErrNotFound
		}
		return model.RedemptionQueueEntry{}, fmt.Errorf("get redemption: %w", err)
	}
	return entry, nil
}

func (s *Store) ListRedemptions(ctx context.Context, status model.RedemptionStatus) ([]model.RedemptionQueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+redemptionColumns+`
		FROM redemption_queue
		WHERE status = $1
		ORDER BY pool_id, queue_position
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list redemptions: %w", err)
	}
	defer rows.Close()

	out := make([]model.RedemptionQueueEntry, 0)
	for rows.Next() {
		entry, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan redemption: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) TransitionRedemption(ctx context.Context, id string, from []model.RedemptionStatus, next model.RedemptionStatus, at time.Time) error {
	fromText := make([]string, 0, len(from))
	for _, status := range from {
		fromText = append(fromText, string(status))
	}

	var query string
	switch next {
	case model.RedemptionProcessing:
		query = `
			UPDATE redemption_queue
			SET status = $2, processing_at = $3, updated_at = now()
			WHERE id = $1 AND status = ANY($4)`
	case model.RedemptionPending:
		query = `
			UPDATE redemption_queue
			SET status = $2, processing_at = NULL, settled_at = NULL, amount = NULL,
				error = '', updated_at = $3
			WHERE id = $1 AND status = ANY($4)`
	default:
		query = `
			UPDATE redemption_queue
			SET status = $2, updated_at = $3
			WHERE id = $1 AND status = ANY($4)`
	}

	tag, err := s.pool.Exec(ctx, query, id, string(next), at, fromText)
	if err != nil {
		return fmt.Errorf("transition redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Store) RecordSubmission(ctx context.Context, id string, txHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE redemption_queue
		SET tx_hash = $2, updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'
	`, id, txHash)
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Store) CompleteRedemption(ctx context.Context, id string, outcome storage.RedemptionOutcome) error {
	if !outcome.Status.Terminal() {
		return storage.ErrInvalidInput
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE redemption_queue
		SET status = $2,
			tx_hash = CASE WHEN $3 = '' THEN tx_hash ELSE $3 END,
			amount = $4::numeric,
			error = $5,
			settled_at = $6,
			updated_at = now()
		WHERE id = $1 AND status = 'PROCESSING'
	`,
		id,
		string(outcome.Status),
		outcome.TxHash,
		nullableNumericText(outcome.Amount),
		outcome.Error,
		outcome.SettledAt,
	)
	if err != nil {
		return fmt.Errorf("complete redemption: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missOrConflict(ctx, id)
	}
	return nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM redemption_queue WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check redemption: %w", err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return storage.ErrConflict
}

func scanRedemption(row pgx.Row) (model.RedemptionQueueEntry, error) {
	var (
		entry  model.RedemptionQueueEntry
		shares string
		status string
		amount *string
	)
	err := row.Scan(
		&entry.ID,
		&entry.UserID,
		&entry.PoolID,
		&entry.InvestorAddress,
		&entry.InvestmentID,
		&shares,
		&entry.QueuePosition,
		&status,
		&entry.RequestedAt,
		&entry.EligibleAt,
		&entry.ProcessingAt,
		&entry.SettledAt,
		&entry.TxHash,
		&amount,
		&entry.Error,
	)
	if err != nil {
		return model.RedemptionQueueEntry{}, err
	}
	entry.Status = model.RedemptionStatus(status)
	if entry.Shares, err = fixedpoint.ParseInt(shares); err != nil {
		return model.RedemptionQueueEntry{}, err
	}
	if entry.Amount, err = parseNullableNumeric(amount); err != nil {
		return model.RedemptionQueueEntry{}, err
	}
	return entry, nil
}
