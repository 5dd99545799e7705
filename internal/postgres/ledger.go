package postgres

import (
	"context"
	"errors"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/jackc/pgx/v5"
)

const ledgerCols = `owner_email, remaining, granted, updated_at`

func scanLedger(row pgx.Row) (store.RewardLedger, error) {
	var l store.RewardLedger
	err := row.Scan(&l.OwnerEmail, &l.Remaining, &l.Granted, &l.UpdatedAt)
	return l, err
}

func (r *repo) ensureLedger(ctx context.Context, email string) error {
	_, err := r.q.Exec(ctx, `INSERT INTO reward_ledgers(owner_email) VALUES ($1) ON CONFLICT DO NOTHING`, email)
	return err
}

func (r *repo) GetOrCreateLedger(ctx context.Context, email string) (store.RewardLedger, error) {
	l, err := scanLedger(r.q.QueryRow(ctx, `SELECT `+ledgerCols+` FROM reward_ledgers WHERE owner_email=$1`, email))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return store.RewardLedger{}, err
	}
	if err := r.ensureLedger(ctx, email); err != nil {
		return store.RewardLedger{}, err
	}
	return scanLedger(r.q.QueryRow(ctx, `SELECT `+ledgerCols+` FROM reward_ledgers WHERE owner_email=$1`, email))
}

// LockLedger takes the row lock that serializes accrual and draws for one user.
func (r *repo) LockLedger(ctx context.Context, email string) (store.RewardLedger, error) {
	if err := r.ensureLedger(ctx, email); err != nil {
		return store.RewardLedger{}, err
	}
	return scanLedger(r.q.QueryRow(ctx, `SELECT `+ledgerCols+` FROM reward_ledgers WHERE owner_email=$1 FOR UPDATE`, email))
}

func (r *repo) AddChances(ctx context.Context, email string, n int64) (store.RewardLedger, error) {
	return scanLedger(r.q.QueryRow(ctx, `
		INSERT INTO reward_ledgers(owner_email, remaining, granted) VALUES ($1, $2, $2)
		ON CONFLICT (owner_email) DO UPDATE SET
			remaining  = reward_ledgers.remaining + EXCLUDED.remaining,
			granted    = reward_ledgers.granted + EXCLUDED.granted,
			updated_at = clock_timestamp()
		RETURNING `+ledgerCols, email, n))
}

// TakeChance relies on the conditional update holding the row lock: a second
// concurrent caller blocks, then sees remaining=0 and gets no row back.
func (r *repo) TakeChance(ctx context.Context, email string) (store.RewardLedger, bool, error) {
	if err := r.ensureLedger(ctx, email); err != nil {
		return store.RewardLedger{}, false, err
	}
	l, err := scanLedger(r.q.QueryRow(ctx, `
		UPDATE reward_ledgers SET remaining = remaining - 1, updated_at = clock_timestamp()
		WHERE owner_email=$1 AND remaining > 0
		RETURNING `+ledgerCols, email))
	if errors.Is(err, pgx.ErrNoRows) {
		cur, err := scanLedger(r.q.QueryRow(ctx, `SELECT `+ledgerCols+` FROM reward_ledgers WHERE owner_email=$1`, email))
		return cur, false, err
	}
	if err != nil {
		return store.RewardLedger{}, false, err
	}
	return l, true, nil
}
