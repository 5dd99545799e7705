package postgres

import (
	"context"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/google/uuid"
)

func (r *repo) AddEntry(ctx context.Context, e *store.CollectionEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO collection_entries(id, owner_email, product_id, name, price, description, brand, image, source)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING added_at`,
		e.ID, e.OwnerEmail, e.ProductID, e.Name, e.Price, e.Description, e.Brand, e.Image, string(e.Source),
	).Scan(&e.AddedAt)
}

func (r *repo) ListEntries(ctx context.Context, email string) ([]store.CollectionEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, owner_email, product_id, name, price, description, brand, image, source, added_at
		FROM collection_entries WHERE owner_email=$1
		ORDER BY added_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.CollectionEntry
	for rows.Next() {
		var (
			e   store.CollectionEntry
			src string
		)
		if err := rows.Scan(&e.ID, &e.OwnerEmail, &e.ProductID, &e.Name, &e.Price, &e.Description,
			&e.Brand, &e.Image, &src, &e.AddedAt); err != nil {
			return nil, err
		}
		e.Source = store.Source(src)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) CountEntries(ctx context.Context, email string) (int64, error) {
	var n int64
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM collection_entries WHERE owner_email=$1`, email).Scan(&n)
	return n, err
}

func (r *repo) HasEntry(ctx context.Context, email, productID string) (bool, error) {
	var ok bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM collection_entries WHERE owner_email=$1 AND product_id=$2)`,
		email, productID).Scan(&ok)
	return ok, err
}

func (r *repo) RemoveEntries(ctx context.Context, email, productID string) (int64, error) {
	ct, err := r.q.Exec(ctx, `DELETE FROM collection_entries WHERE owner_email=$1 AND product_id=$2`, email, productID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
