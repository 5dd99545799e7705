// Package store defines the persistence contracts shared by the order, reward,
// collection and donation workflows. Implementations live in postgres and
// memstore (in-process, used by tests and local runs).
package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("not found")
	ErrReadOnly = errors.New("write attempted in read-only transaction")
	// ErrDuplicateReceipt is returned when a receipt id is already bound to another order.
	ErrDuplicateReceipt = errors.New("receipt already attached to an order")
)

const donationLabel = "donation"

// DonationProduct is the template for the donation sentinel. Its unit price
// is 1 so an order line's quantity carries the donated amount.
func DonationProduct() Product {
	return Product{
		Name:     donationLabel,
		Brand:    donationLabel,
		Price:    1,
		Visible:  false,
		Donation: true,
	}
}

type InventoryStore interface {
	GetProduct(ctx context.Context, id string) (Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p Product) error
	// HideProducts flips visible products to hidden and reports how many changed.
	HideProducts(ctx context.Context, ids []string) (int64, error)
	ListOnSale(ctx context.Context) ([]Product, error)
	// LockDrawCandidates returns visible, non-donation products priced at or
	// below ceiling, locked for the rest of the transaction.
	LockDrawCandidates(ctx context.Context, ceiling int64) ([]Product, error)
	// EnsureDonationProduct creates the donation sentinel once and returns it.
	EnsureDonationProduct(ctx context.Context) (Product, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	GetOrderByReceipt(ctx context.Context, receiptID string) (Order, error)
	// ListOrdersByOwner returns orders newest first.
	ListOrdersByOwner(ctx context.Context, email string) ([]Order, error)
	AttachReceipt(ctx context.Context, orderID, receiptID string) error
	// LifetimeTotal sums price*quantity over every non-donation line the owner ever ordered.
	LifetimeTotal(ctx context.Context, email string) (int64, error)
}

type CollectionStore interface {
	AddEntry(ctx context.Context, e *CollectionEntry) error
	// ListEntries returns entries newest first.
	ListEntries(ctx context.Context, email string) ([]CollectionEntry, error)
	CountEntries(ctx context.Context, email string) (int64, error)
	HasEntry(ctx context.Context, email, productID string) (bool, error)
	RemoveEntries(ctx context.Context, email, productID string) (int64, error)
}

type LedgerStore interface {
	GetOrCreateLedger(ctx context.Context, email string) (RewardLedger, error)
	// LockLedger is GetOrCreateLedger holding the row until the transaction ends.
	LockLedger(ctx context.Context, email string) (RewardLedger, error)
	// AddChances raises remaining and granted by n.
	AddChances(ctx context.Context, email string, n int64) (RewardLedger, error)
	// TakeChance decrements remaining when positive. ok is false when nothing was left.
	TakeChance(ctx context.Context, email string) (l RewardLedger, ok bool, err error)
}

type DonationStore interface {
	AddDonation(ctx context.Context, d *Donation) error
	GetDonation(ctx context.Context, id string) (Donation, error)
	// ListDonationsByDonor returns donations newest first.
	ListDonationsByDonor(ctx context.Context, email string) ([]Donation, error)
}

// Tx is a unit of work spanning every store.
type Tx interface {
	InventoryStore
	OrderStore
	CollectionStore
	LedgerStore
	DonationStore
	// Savepoint runs fn in a nested scope; an error from fn undoes only fn's writes.
	Savepoint(ctx context.Context, fn func(Tx) error) error
}

type Store interface {
	// InTx commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error
	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error
}
