package postgres

import (
	"context"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const donationCols = `id, product_id, donor_email, amount, count, user_name, user_brand, user_image, created_at`

func scanDonation(row pgx.Row) (store.Donation, error) {
	var d store.Donation
	err := row.Scan(&d.ID, &d.ProductID, &d.DonorEmail, &d.Amount, &d.Count,
		&d.UserName, &d.UserBrand, &d.UserImage, &d.CreatedAt)
	return d, err
}

func (r *repo) AddDonation(ctx context.Context, d *store.Donation) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return r.q.QueryRow(ctx, `
		INSERT INTO donations(id, product_id, donor_email, amount, count, user_name, user_brand, user_image)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		d.ID, d.ProductID, d.DonorEmail, d.Amount, d.Count, d.UserName, d.UserBrand, d.UserImage,
	).Scan(&d.CreatedAt)
}

func (r *repo) GetDonation(ctx context.Context, id string) (store.Donation, error) {
	d, err := scanDonation(r.q.QueryRow(ctx, `SELECT `+donationCols+` FROM donations WHERE id=$1`, id))
	return d, notFound(err)
}

func (r *repo) ListDonationsByDonor(ctx context.Context, email string) ([]store.Donation, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+donationCols+` FROM donations WHERE donor_email=$1
		ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
