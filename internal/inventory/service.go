package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"go.uber.org/zap"
)

var (
	ErrInvalidProduct = errors.New("invalid product")
	ErrDonationLocked = errors.New("donation product cannot be edited")
)

type ProductInput struct {
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Description string   `json:"description"`
	Price       int64    `json:"price"`
	Images      []string `json:"images"`
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProduct)
	}
	if in.Price < 0 {
		return fmt.Errorf("%w: price must not be negative", ErrInvalidProduct)
	}
	return nil
}

// Service is the catalogue surface: registration, edits and the on-sale list.
type Service struct {
	Store store.Store
	Log   *zap.Logger
}

// Bootstrap creates the donation sentinel if it does not exist yet.
func (s *Service) Bootstrap(ctx context.Context) (store.Product, error) {
	var p store.Product
	err := s.Store.InTx(ctx, func(tx store.Tx) (err error) {
		p, err = tx.EnsureDonationProduct(ctx)
		return err
	})
	if err != nil {
		return store.Product{}, fmt.Errorf("ensure donation product: %w", err)
	}
	observability.Logger(s.Log).Info("donation product ready", zap.String("product_id", p.ID))
	return p, nil
}

func (s *Service) Register(ctx context.Context, in ProductInput) (store.Product, error) {
	if err := in.validate(); err != nil {
		return store.Product{}, err
	}
	p := store.Product{
		Name:        in.Name,
		Brand:       in.Brand,
		Description: in.Description,
		Price:       in.Price,
		Visible:     true,
		Images:      in.Images,
	}
	if err := s.Store.InTx(ctx, func(tx store.Tx) error { return tx.CreateProduct(ctx, &p) }); err != nil {
		return store.Product{}, err
	}
	observability.Logger(s.Log).Info("product registered", zap.String("product_id", p.ID), zap.Int64("price", p.Price))
	return p, nil
}

// Edit changes descriptive fields and price. Visibility is untouched and
// historical order lines keep their own snapshot.
func (s *Service) Edit(ctx context.Context, id string, in ProductInput) (store.Product, error) {
	if err := in.validate(); err != nil {
		return store.Product{}, err
	}
	var out store.Product
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		cur, err := tx.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if cur.Donation {
			return ErrDonationLocked
		}
		cur.Name, cur.Brand, cur.Description, cur.Price, cur.Images = in.Name, in.Brand, in.Description, in.Price, in.Images
		if err := tx.UpdateProduct(ctx, cur); err != nil {
			return err
		}
		out, err = tx.GetProduct(ctx, id)
		return err
	})
	return out, err
}

func (s *Service) Get(ctx context.Context, id string) (store.Product, error) {
	var p store.Product
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		p, err = tx.GetProduct(ctx, id)
		return err
	})
	return p, err
}

func (s *Service) ListOnSale(ctx context.Context) ([]store.Product, error) {
	var out []store.Product
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		out, err = tx.ListOnSale(ctx)
		return err
	})
	return out, err
}

// Hide moves products to HIDDEN inside an existing transaction. Only products
// whose visibility allows the move are touched; unknown ids are skipped.
func Hide(ctx context.Context, inv store.InventoryStore, ids []string) (int64, error) {
	var movable []string
	for _, id := range dedupe(ids) {
		p, err := inv.GetProduct(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("load product %s: %w", id, err)
		}
		if CanTransition(VisibilityOf(p), Hidden) {
			movable = append(movable, id)
		}
	}
	if len(movable) == 0 {
		return 0, nil
	}
	n, err := inv.HideProducts(ctx, movable)
	if err != nil {
		return 0, fmt.Errorf("hide products: %w", err)
	}
	return n, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
