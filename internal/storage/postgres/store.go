package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"navLedger/internal/fixedpoint"
	"navLedger/internal/storage"
	"navLedger/internal/storage/postgres/migrations"
)

const pgErrUniqueViolation = "23505"

// Store provides Postgres persistence for the ledger.
type Store struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ storage.Ledger = (*Store)(nil)

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate applies the embedded schema files in lexical order. The files are
// idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	names, err := migrations.Files()
	if err != nil {
		return err
	}
	for _, name := range names {
		sql, err := migrations.Read(name)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
	}
	return nil
}

func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func numericText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nullableNumericText(v *big.Int) *string {
	if v == nil {
		return nil
	}
	text := v.String()
	return &text
}

func parseNullableNumeric(text *string) (*big.Int, error) {
	if text == nil {
		return nil, nil
	}
	return fixedpoint.ParseInt(*text)
}
