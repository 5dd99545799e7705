package postgres

import (
	"context"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const productCols = `id, name, brand, description, price, visible, donation, images, created_at, updated_at`

func scanProduct(row pgx.Row) (store.Product, error) {
	var p store.Product
	err := row.Scan(&p.ID, &p.Name, &p.Brand, &p.Description, &p.Price, &p.Visible, &p.Donation,
		&p.Images, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectProducts(rows pgx.Rows) ([]store.Product, error) {
	defer rows.Close()
	var out []store.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) GetProduct(ctx context.Context, id string) (store.Product, error) {
	p, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	return p, notFound(err)
}

func (r *repo) CreateProduct(ctx context.Context, p *store.Product) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO products(id, name, brand, description, price, visible, donation, images)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.Brand, p.Description, p.Price, p.Visible, p.Donation, p.Images,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repo) UpdateProduct(ctx context.Context, p store.Product) error {
	if p.Images == nil {
		p.Images = []string{}
	}
	ct, err := r.q.Exec(ctx, `
		UPDATE products SET name=$2, brand=$3, description=$4, price=$5, images=$6, updated_at=now()
		WHERE id=$1`, p.ID, p.Name, p.Brand, p.Description, p.Price, p.Images)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return store.ErrNotFound
	}
	return nil
}

func (r *repo) HideProducts(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ct, err := r.q.Exec(ctx, `
		UPDATE products SET visible=false, updated_at=now()
		WHERE id = ANY($1) AND visible`, ids)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (r *repo) ListOnSale(ctx context.Context) ([]store.Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE visible AND NOT donation ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

// LockDrawCandidates skips rows another draw already holds, so concurrent
// draws never settle on the same product.
func (r *repo) LockDrawCandidates(ctx context.Context, ceiling int64) ([]store.Product, error) {
	rows, err := r.q.Query(ctx, `SELECT `+productCols+` FROM products
		WHERE visible AND NOT donation AND price <= $1
		ORDER BY id
		FOR UPDATE SKIP LOCKED`, ceiling)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (r *repo) EnsureDonationProduct(ctx context.Context) (store.Product, error) {
	p := store.DonationProduct()
	p.ID = uuid.NewString()
	if _, err := r.q.Exec(ctx, `
		INSERT INTO products(id, name, brand, price, visible, donation)
		VALUES ($1,$2,$3,$4,$5,true)
		ON CONFLICT DO NOTHING`, p.ID, p.Name, p.Brand, p.Price, p.Visible); err != nil {
		return store.Product{}, err
	}
	out, err := scanProduct(r.q.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE donation`))
	return out, notFound(err)
}
