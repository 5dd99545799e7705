package postgres

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements store.Store on a pgx pool.
type Store struct{ DB *pgxpool.Pool }

func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{}, fn)
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly}, fn)
}

func (s *Store) run(ctx context.Context, opts pgx.TxOptions, fn func(store.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// repo serves every store interface from one pgx transaction.
type repo struct{ q pgx.Tx }

// Savepoint uses pgx pseudo nested transactions (SAVEPOINT / ROLLBACK TO).
func (r *repo) Savepoint(ctx context.Context, fn func(store.Tx) error) error {
	sp, err := r.q.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(&repo{q: sp}); err != nil {
		_ = sp.Rollback(ctx)
		return err
	}
	return sp.Commit(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
