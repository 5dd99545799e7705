// Package donations records monetary gifts against the donation sentinel and
// serves each donor's history.
package donations

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"go.uber.org/zap"
)

var ErrInvalidDonation = errors.New("invalid donation")

type DonationInput struct {
	DonorEmail string `json:"-"`
	Amount     int64  `json:"amount"`
	Count      int    `json:"count"`
	UserName   string `json:"user_name"`
	UserBrand  string `json:"user_brand"`
	UserImage  string `json:"user_image"`
}

// HistoryItem is one donation as its donor sees it. Name and Brand fall back
// to the sentinel's label when the donor left them empty.
type HistoryItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Brand     string    `json:"brand"`
	Amount    int64     `json:"amount"`
	Count     int       `json:"count"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Service struct {
	Store store.Store
	Log   *zap.Logger
}

func (s *Service) log() *zap.Logger { return observability.Logger(s.Log) }

// knownDonor accepts a bare, well-formed address. Identity comes from the
// gateway, so anything else cannot name a member.
func knownDonor(email string) bool {
	if email == "" || strings.TrimSpace(email) != email {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (in DonationInput) validate() error {
	if !knownDonor(in.DonorEmail) {
		return fmt.Errorf("%w: donor %q", orders.ErrInvalidReference, in.DonorEmail)
	}
	if in.Amount < 1 {
		return fmt.Errorf("%w: amount must be at least 1", ErrInvalidDonation)
	}
	if in.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1", ErrInvalidDonation)
	}
	return nil
}

// Donate records in against the donation sentinel, creating the sentinel if
// the catalogue was never bootstrapped.
func (s *Service) Donate(ctx context.Context, in DonationInput) (store.Donation, error) {
	if err := in.validate(); err != nil {
		return store.Donation{}, err
	}
	d := store.Donation{
		DonorEmail: in.DonorEmail,
		Amount:     in.Amount,
		Count:      in.Count,
		UserName:   strings.TrimSpace(in.UserName),
		UserBrand:  strings.TrimSpace(in.UserBrand),
		UserImage:  strings.TrimSpace(in.UserImage),
	}
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.EnsureDonationProduct(ctx)
		if err != nil {
			return fmt.Errorf("ensure donation product: %w", err)
		}
		d.ProductID = p.ID
		return tx.AddDonation(ctx, &d)
	})
	if err != nil {
		return store.Donation{}, err
	}
	s.log().Info("donation recorded",
		zap.String("donation_id", d.ID), zap.String("email", d.DonorEmail),
		zap.Int64("amount", d.Amount), zap.Int("count", d.Count))
	return d, nil
}

// GetDonationHistory lists the donor's donations newest first.
func (s *Service) GetDonationHistory(ctx context.Context, email string) ([]HistoryItem, error) {
	var ds []store.Donation
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		ds, err = tx.ListDonationsByDonor(ctx, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	label := store.DonationProduct()
	out := make([]HistoryItem, 0, len(ds))
	for _, d := range ds {
		out = append(out, HistoryItem{
			ID:        d.ID,
			Name:      orDefault(d.UserName, label.Name),
			Brand:     orDefault(d.UserBrand, label.Brand),
			Amount:    d.Amount,
			Count:     d.Count,
			Image:     d.UserImage,
			CreatedAt: d.CreatedAt,
		})
	}
	return out, nil
}

// Get returns one donation. Other donors' records are reported as not found.
func (s *Service) Get(ctx context.Context, email, id string) (store.Donation, error) {
	var d store.Donation
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		d, err = tx.GetDonation(ctx, id)
		return err
	})
	if err != nil {
		return store.Donation{}, err
	}
	if d.DonorEmail != email {
		return store.Donation{}, store.ErrNotFound
	}
	return d, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
