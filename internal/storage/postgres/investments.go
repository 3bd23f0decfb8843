package postgres

import (
	"context"
	"fmt"
	"math/big"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/model"
	"navLedger/internal/storage"
)

// InsertInvestment stores an investment record.
func (s *Store) InsertInvestment(ctx context.Context, inv model.Investment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO investments (
			id, user_id, pool_id, type, shares, share_price_at_purchase, status, tx_hash, created_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
	`,
		inv.ID,
		inv.UserID,
		inv.PoolID,
		string(inv.Type),
		numericText(inv.Shares),
		inv.SharePriceAtPurchase,
		string(inv.Status),
		inv.TxHash,
		inv.CreatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert investment: %w", err)
	}
	return nil
}

func (s *Store) ListConfirmedInvestments(ctx context.Context, userID, poolID string, typ model.InvestmentType) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, pool_id, type, shares::text, share_price_at_purchase, status, tx_hash, created_at
		FROM investments
		WHERE user_id = $1 AND pool_id = $2 AND type = $3 AND status = 'CONFIRMED'
		ORDER BY created_at, id
	`, userID, poolID, string(typ))
	if err != nil {
		return nil, fmt.Errorf("list investments: %w", err)
	}
	defer rows.Close()

	out := make([]model.Investment, 0)
	for rows.Next() {
		var (
			inv    model.Investment
			typ    string
			status string
			shares string
		)
		if err := rows.Scan(&inv.ID, &inv.UserID, &inv.PoolID, &typ, &shares, &inv.SharePriceAtPurchase, &status, &inv.TxHash, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan investment: %w", err)
		}
		inv.Type = model.InvestmentType(typ)
		inv.Status = model.InvestmentStatus(status)
		if inv.Shares, err = fixedpoint.ParseInt(shares); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) PoolShareSupply(ctx context.Context, poolID string) (*big.Int, error) {
	var text string
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(CASE WHEN type = 'INVEST' THEN shares ELSE -shares END), 0)::text
		FROM investments
		WHERE pool_id = $1 AND status = 'CONFIRMED'
	`, poolID).Scan(&text)
	if err != nil {
		return nil, fmt.Errorf("pool share supply: %w", err)
	}
	return fixedpoint.ParseInt(text)
}

func (s *Store) UpdateInvestmentStatus(ctx context.Context, id string, status model.InvestmentStatus, txHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE investments
		SET status = $2, tx_hash = CASE WHEN $3 = '' THEN tx_hash ELSE $3 END
		WHERE id = $1
	`, id, string(status), txHash)
	if err != nil {
		return fmt.Errorf("update investment status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}
