// Package collection manages each user's keepsake list. Purchases, reward
// draws and manual saves all enter it through Enroll.
package collection

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-gift-mall/internal/observability"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"go.uber.org/zap"
)

var (
	ErrInvalidEntry   = errors.New("invalid collection entry")
	ErrUnknownProduct = errors.New("unknown product")
)

// Acquisition describes an item about to enter a collection.
type Acquisition struct {
	OwnerEmail  string
	ProductID   string
	Name        string
	Price       int64
	Description string
	Brand       string
	Image       string
	Donation    bool
	Source      store.Source
}

// FromLine uses the order-time snapshot, not the live product.
func FromLine(owner string, l store.OrderLine) Acquisition {
	return Acquisition{
		OwnerEmail: owner,
		ProductID:  l.ProductID,
		Name:       l.Name,
		Price:      l.UnitPrice,
		Image:      l.Image,
		Donation:   l.Donation,
		Source:     store.SourcePurchase,
	}
}

func FromProduct(owner string, p store.Product, src store.Source) Acquisition {
	return Acquisition{
		OwnerEmail:  owner,
		ProductID:   p.ID,
		Name:        p.Name,
		Price:       p.Price,
		Description: p.Description,
		Brand:       p.Brand,
		Image:       p.FirstImage(),
		Donation:    p.Donation,
		Source:      src,
	}
}

// Enroll stores a. Donation items are skipped: enrolled is false and nothing is written.
func Enroll(ctx context.Context, cs store.CollectionStore, a Acquisition) (entry store.CollectionEntry, enrolled bool, err error) {
	if a.Donation {
		return store.CollectionEntry{}, false, nil
	}
	if a.OwnerEmail == "" || a.ProductID == "" {
		return store.CollectionEntry{}, false, fmt.Errorf("%w: owner and product are required", ErrInvalidEntry)
	}
	if !a.Source.Valid() {
		return store.CollectionEntry{}, false, fmt.Errorf("%w: source %q", ErrInvalidEntry, a.Source)
	}

	entry = store.CollectionEntry{
		OwnerEmail:  a.OwnerEmail,
		ProductID:   a.ProductID,
		Name:        a.Name,
		Price:       a.Price,
		Description: a.Description,
		Brand:       a.Brand,
		Image:       a.Image,
		Source:      a.Source,
	}
	if err := cs.AddEntry(ctx, &entry); err != nil {
		return store.CollectionEntry{}, false, fmt.Errorf("add collection entry: %w", err)
	}
	return entry, true, nil
}

type Service struct {
	Store store.Store
	Log   *zap.Logger
}

// Add saves a product to the owner's collection by hand.
func (s *Service) Add(ctx context.Context, email, productID string) (store.CollectionEntry, error) {
	var entry store.CollectionEntry
	err := s.Store.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
		}
		if err != nil {
			return err
		}
		var ok bool
		entry, ok, err = Enroll(ctx, tx, FromProduct(email, p, store.SourceManual))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: donation item cannot be collected", ErrInvalidEntry)
		}
		return nil
	})
	if err != nil {
		return store.CollectionEntry{}, err
	}
	observability.Logger(s.Log).Info("collection entry added",
		zap.String("email", email), zap.String("product_id", productID), zap.String("source", string(entry.Source)))
	return entry, nil
}

func (s *Service) Remove(ctx context.Context, email, productID string) (int64, error) {
	var n int64
	err := s.Store.InTx(ctx, func(tx store.Tx) (err error) {
		n, err = tx.RemoveEntries(ctx, email, productID)
		return err
	})
	if err != nil {
		return 0, err
	}
	observability.Logger(s.Log).Info("collection entry removed",
		zap.String("email", email), zap.String("product_id", productID), zap.Int64("removed", n))
	return n, nil
}

func (s *Service) List(ctx context.Context, email string) ([]store.CollectionEntry, error) {
	var out []store.CollectionEntry
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		out, err = tx.ListEntries(ctx, email)
		return err
	})
	return out, err
}

func (s *Service) Count(ctx context.Context, email string) (int64, error) {
	var n int64
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		n, err = tx.CountEntries(ctx, email)
		return err
	})
	return n, err
}

func (s *Service) Has(ctx context.Context, email, productID string) (bool, error) {
	var ok bool
	err := s.Store.View(ctx, func(tx store.Tx) (err error) {
		ok, err = tx.HasEntry(ctx, email, productID)
		return err
	})
	return ok, err
}
