// Package memstore is an in-process store.Store. Transactions are serialized
// by a single mutex and committed by swapping in a modified copy of the state.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/google/uuid"
)

type state struct {
	products  map[string]store.Product
	orders    map[string]store.Order
	entries   []store.CollectionEntry
	ledgers   map[string]store.RewardLedger
	donations []store.Donation
	seq       int64
}

func newState() *state {
	return &state{
		products: map[string]store.Product{},
		orders:   map[string]store.Order{},
		ledgers:  map[string]store.RewardLedger{},
	}
}

func (s *state) clone() *state {
	c := &state{
		products:  make(map[string]store.Product, len(s.products)),
		orders:    make(map[string]store.Order, len(s.orders)),
		entries:   append([]store.CollectionEntry(nil), s.entries...),
		ledgers:   make(map[string]store.RewardLedger, len(s.ledgers)),
		donations: append([]store.Donation(nil), s.donations...),
		seq:       s.seq,
	}
	for k, p := range s.products {
		p.Images = append([]string(nil), p.Images...)
		c.products[k] = p
	}
	for k, o := range s.orders {
		o.Lines = append([]store.OrderLine(nil), o.Lines...)
		c.orders[k] = o
	}
	for k, l := range s.ledgers {
		c.ledgers[k] = l
	}
	return c
}

type Store struct {
	mu  sync.RWMutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock replaces the time source.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.st, now: s.now, readOnly: true})
}

type tx struct {
	st       *state
	now      func() time.Time
	readOnly bool
}

func (t *tx) stamp() time.Time {
	t.st.seq++
	// seq keeps timestamps distinct when the clock is frozen
	return t.now().UTC().Add(time.Duration(t.st.seq) * time.Microsecond)
}

func (t *tx) Savepoint(ctx context.Context, fn func(store.Tx) error) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	snap := t.st.clone()
	if err := fn(t); err != nil {
		*t.st = *snap
		return err
	}
	return nil
}

// ---- inventory ----

func (t *tx) GetProduct(_ context.Context, id string) (store.Product, error) {
	p, ok := t.st.products[id]
	if !ok {
		return store.Product{}, store.ErrNotFound
	}
	p.Images = append([]string(nil), p.Images...)
	return p, nil
}

func (t *tx) CreateProduct(_ context.Context, p *store.Product) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	ts := t.stamp()
	p.CreatedAt, p.UpdatedAt = ts, ts
	cp := *p
	cp.Images = append([]string(nil), p.Images...)
	t.st.products[p.ID] = cp
	return nil
}

func (t *tx) UpdateProduct(_ context.Context, p store.Product) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	cur, ok := t.st.products[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Name, cur.Brand, cur.Description, cur.Price = p.Name, p.Brand, p.Description, p.Price
	cur.Images = append([]string(nil), p.Images...)
	cur.UpdatedAt = t.stamp()
	t.st.products[p.ID] = cur
	return nil
}

func (t *tx) HideProducts(_ context.Context, ids []string) (int64, error) {
	if t.readOnly {
		return 0, store.ErrReadOnly
	}
	var n int64
	for _, id := range ids {
		p, ok := t.st.products[id]
		if !ok || !p.Visible {
			continue
		}
		p.Visible = false
		p.UpdatedAt = t.stamp()
		t.st.products[id] = p
		n++
	}
	return n, nil
}

func (t *tx) ListOnSale(_ context.Context) ([]store.Product, error) {
	return t.filterProducts(func(p store.Product) bool { return p.Visible && !p.Donation }), nil
}

func (t *tx) LockDrawCandidates(_ context.Context, ceiling int64) ([]store.Product, error) {
	return t.filterProducts(func(p store.Product) bool {
		return p.Visible && !p.Donation && p.Price <= ceiling
	}), nil
}

func (t *tx) filterProducts(keep func(store.Product) bool) []store.Product {
	var out []store.Product
	for _, p := range t.st.products {
		if keep(p) {
			p.Images = append([]string(nil), p.Images...)
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *tx) EnsureDonationProduct(ctx context.Context) (store.Product, error) {
	for _, p := range t.st.products {
		if p.Donation {
			return p, nil
		}
	}
	if t.readOnly {
		return store.Product{}, store.ErrReadOnly
	}
	p := store.DonationProduct()
	if err := t.CreateProduct(ctx, &p); err != nil {
		return store.Product{}, err
	}
	return p, nil
}

// ---- orders ----

func (t *tx) CreateOrder(_ context.Context, o *store.Order) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	if o.ReceiptID != "" {
		for _, x := range t.st.orders {
			if x.ReceiptID == o.ReceiptID {
				return store.ErrDuplicateReceipt
			}
		}
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.OrderedAt.IsZero() {
		o.OrderedAt = t.stamp()
	}
	cp := *o
	cp.Lines = append([]store.OrderLine(nil), o.Lines...)
	t.st.orders[o.ID] = cp
	return nil
}

func (t *tx) GetOrder(_ context.Context, id string) (store.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return store.Order{}, store.ErrNotFound
	}
	o.Lines = append([]store.OrderLine(nil), o.Lines...)
	return o, nil
}

func (t *tx) GetOrderByReceipt(_ context.Context, receiptID string) (store.Order, error) {
	if receiptID == "" {
		return store.Order{}, store.ErrNotFound
	}
	for _, o := range t.st.orders {
		if o.ReceiptID == receiptID {
			o.Lines = append([]store.OrderLine(nil), o.Lines...)
			return o, nil
		}
	}
	return store.Order{}, store.ErrNotFound
}

func (t *tx) ListOrdersByOwner(_ context.Context, email string) ([]store.Order, error) {
	var out []store.Order
	for _, o := range t.st.orders {
		if o.OwnerEmail == email {
			o.Lines = append([]store.OrderLine(nil), o.Lines...)
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderedAt.After(out[j].OrderedAt) })
	return out, nil
}

func (t *tx) AttachReceipt(_ context.Context, orderID, receiptID string) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	o, ok := t.st.orders[orderID]
	if !ok {
		return store.ErrNotFound
	}
	if o.ReceiptID == receiptID {
		return nil
	}
	if o.ReceiptID != "" {
		return store.ErrDuplicateReceipt
	}
	for _, x := range t.st.orders {
		if x.ReceiptID == receiptID {
			return store.ErrDuplicateReceipt
		}
	}
	o.ReceiptID = receiptID
	t.st.orders[orderID] = o
	return nil
}

func (t *tx) LifetimeTotal(_ context.Context, email string) (int64, error) {
	var total int64
	for _, o := range t.st.orders {
		if o.OwnerEmail == email {
			total += o.PurchaseTotal()
		}
	}
	return total, nil
}

// ---- collection ----

func (t *tx) AddEntry(_ context.Context, e *store.CollectionEntry) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.AddedAt = t.stamp()
	t.st.entries = append(t.st.entries, *e)
	return nil
}

func (t *tx) ListEntries(_ context.Context, email string) ([]store.CollectionEntry, error) {
	var out []store.CollectionEntry
	for i := len(t.st.entries) - 1; i >= 0; i-- {
		if e := t.st.entries[i]; e.OwnerEmail == email {
			out = append(out, e)
		}
	}
	return out, nil
}

func (t *tx) CountEntries(_ context.Context, email string) (int64, error) {
	var n int64
	for _, e := range t.st.entries {
		if e.OwnerEmail == email {
			n++
		}
	}
	return n, nil
}

func (t *tx) HasEntry(_ context.Context, email, productID string) (bool, error) {
	for _, e := range t.st.entries {
		if e.OwnerEmail == email && e.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) RemoveEntries(_ context.Context, email, productID string) (int64, error) {
	if t.readOnly {
		return 0, store.ErrReadOnly
	}
	kept := t.st.entries[:0]
	var n int64
	for _, e := range t.st.entries {
		if e.OwnerEmail == email && e.ProductID == productID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	t.st.entries = kept
	return n, nil
}

// ---- ledger ----

func (t *tx) GetOrCreateLedger(_ context.Context, email string) (store.RewardLedger, error) {
	if l, ok := t.st.ledgers[email]; ok {
		return l, nil
	}
	if t.readOnly {
		// nothing persisted yet, report the lazy default
		return store.RewardLedger{OwnerEmail: email}, nil
	}
	l := store.RewardLedger{OwnerEmail: email, UpdatedAt: t.stamp()}
	t.st.ledgers[email] = l
	return l, nil
}

// LockLedger needs no extra locking: the whole transaction holds the store mutex.
func (t *tx) LockLedger(ctx context.Context, email string) (store.RewardLedger, error) {
	if t.readOnly {
		return store.RewardLedger{}, store.ErrReadOnly
	}
	return t.GetOrCreateLedger(ctx, email)
}

func (t *tx) AddChances(ctx context.Context, email string, n int64) (store.RewardLedger, error) {
	if t.readOnly {
		return store.RewardLedger{}, store.ErrReadOnly
	}
	l, err := t.GetOrCreateLedger(ctx, email)
	if err != nil {
		return store.RewardLedger{}, err
	}
	l.Remaining += n
	l.Granted += n
	l.UpdatedAt = t.stamp()
	t.st.ledgers[email] = l
	return l, nil
}

func (t *tx) TakeChance(ctx context.Context, email string) (store.RewardLedger, bool, error) {
	if t.readOnly {
		return store.RewardLedger{}, false, store.ErrReadOnly
	}
	l, err := t.GetOrCreateLedger(ctx, email)
	if err != nil {
		return store.RewardLedger{}, false, err
	}
	if l.Remaining <= 0 {
		return l, false, nil
	}
	l.Remaining--
	l.UpdatedAt = t.stamp()
	t.st.ledgers[email] = l
	return l, true, nil
}

// ---- donations ----

func (t *tx) AddDonation(_ context.Context, d *store.Donation) error {
	if t.readOnly {
		return store.ErrReadOnly
	}
	if _, ok := t.st.products[d.ProductID]; !ok {
		return store.ErrNotFound
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = t.stamp()
	t.st.donations = append(t.st.donations, *d)
	return nil
}

func (t *tx) GetDonation(_ context.Context, id string) (store.Donation, error) {
	for _, d := range t.st.donations {
		if d.ID == id {
			return d, nil
		}
	}
	return store.Donation{}, store.ErrNotFound
}

func (t *tx) ListDonationsByDonor(_ context.Context, email string) ([]store.Donation, error) {
	var out []store.Donation
	for i := len(t.st.donations) - 1; i >= 0; i-- {
		if d := t.st.donations[i]; d.DonorEmail == email {
			out = append(out, d)
		}
	}
	return out, nil
}
