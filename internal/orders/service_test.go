package orders

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/ariefcatur/go-gift-mall/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAccruer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeAccruer) Reconcile(_ context.Context, email string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, email)
	if f.err != nil {
		return 0, f.err
	}
	return 2, nil
}

type published struct {
	topic, eventType, key string
	payload               any
}

type fakeBus struct {
	mu   sync.Mutex
	sent []published
}

func (b *fakeBus) Publish(_ context.Context, topic, eventType, key string, payload any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, published{topic, eventType, key, payload})
	return nil
}

type mapReceipts struct {
	mu sync.Mutex
	m  map[string]string
}

func (r *mapReceipts) Lookup(_ context.Context, receiptID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.m[receiptID]
	return id, ok
}

func (r *mapReceipts) Remember(_ context.Context, receiptID, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.m == nil {
		r.m = map[string]string{}
	}
	r.m[receiptID] = orderID
	return nil
}

type fakeVerifier struct {
	ok  bool
	err error
}

func (v fakeVerifier) Verify(context.Context, string) (bool, error) { return v.ok, v.err }

// failingStore makes AddEntry fail for one product, inside savepoints as well.
type failingStore struct {
	store.Store
	product string
}

func (s failingStore) InTx(ctx context.Context, fn func(store.Tx) error) error {
	return s.Store.InTx(ctx, func(tx store.Tx) error { return fn(failingTx{tx, s.product}) })
}

type failingTx struct {
	store.Tx
	product string
}

func (t failingTx) AddEntry(ctx context.Context, e *store.CollectionEntry) error {
	if e.ProductID == t.product {
		return errors.New("disk full")
	}
	return t.Tx.AddEntry(ctx, e)
}

func (t failingTx) Savepoint(ctx context.Context, fn func(store.Tx) error) error {
	return t.Tx.Savepoint(ctx, func(sp store.Tx) error { return fn(failingTx{sp, t.product}) })
}

type fixture struct {
	st       *memstore.Store
	svc      *Service
	rewards  *fakeAccruer
	bus      *fakeBus
	donation store.Product
	a, b     store.Product
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{st: memstore.New(), rewards: &fakeAccruer{}, bus: &fakeBus{}}
	f.a = store.Product{Name: "A", Brand: "Acme", Price: 10000, Visible: true, Images: []string{"a1.png", "a2.png"}}
	f.b = store.Product{Name: "B", Brand: "Acme", Price: 15000, Visible: true}
	require.NoError(t, f.st.InTx(ctx, func(tx store.Tx) (err error) {
		if f.donation, err = tx.EnsureDonationProduct(ctx); err != nil {
			return err
		}
		if err = tx.CreateProduct(ctx, &f.a); err != nil {
			return err
		}
		return tx.CreateProduct(ctx, &f.b)
	}))
	f.svc = &Service{Store: f.st, Rewards: f.rewards, Receipts: &mapReceipts{}, Events: f.bus}
	return f
}

func (f *fixture) product(t *testing.T, id string) store.Product {
	t.Helper()
	var p store.Product
	require.NoError(t, f.st.View(context.Background(), func(tx store.Tx) (err error) {
		p, err = tx.GetProduct(context.Background(), id)
		return err
	}))
	return p
}

func (f *fixture) entries(t *testing.T, email string) []store.CollectionEntry {
	t.Helper()
	var out []store.CollectionEntry
	require.NoError(t, f.st.View(context.Background(), func(tx store.Tx) (err error) {
		out, err = tx.ListEntries(context.Background(), email)
		return err
	}))
	return out
}

func TestPlaceOrder_PurchaseScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sum, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
		OwnerEmail: "u@x.io",
		Lines:      []LineInput{{ProductID: f.a.ID, Quantity: 1}, {ProductID: f.b.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sum.OrderID)
	assert.Equal(t, int64(25000), sum.Total)
	assert.Equal(t, int64(2), sum.ChancesGranted)
	assert.False(t, sum.Existing)
	assert.Equal(t, "a1.png", sum.Lines[0].Image)

	assert.False(t, f.product(t, f.a.ID).Visible)
	assert.False(t, f.product(t, f.b.ID).Visible)

	entries := f.entries(t, "u@x.io")
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, store.SourcePurchase, e.Source)
	}

	assert.Equal(t, []string{"u@x.io"}, f.rewards.calls)
	require.Len(t, f.bus.sent, 1)
	assert.Equal(t, TopicOrderPlaced, f.bus.sent[0].topic)
	assert.Equal(t, sum.OrderID, f.bus.sent[0].key)
	payload := f.bus.sent[0].payload.(OrderPlacedPayload)
	assert.Equal(t, int64(25000), payload.PurchaseTotal)

	total, err := f.svc.LifetimeTotal(ctx, "u@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(25000), total)
}

func TestPlaceOrder_SnapshotSurvivesProductEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", Lines: []LineInput{{ProductID: f.a.ID, Quantity: 2}}})
	require.NoError(t, err)

	require.NoError(t, f.st.InTx(ctx, func(tx store.Tx) error {
		p, err := tx.GetProduct(ctx, f.a.ID)
		if err != nil {
			return err
		}
		p.Name, p.Price, p.Images = "A renamed", 99999, []string{"new.png"}
		return tx.UpdateProduct(ctx, p)
	}))

	hist, err := f.svc.GetOrderHistory(ctx, "u@x.io")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	line := hist[0].Lines[0]
	assert.Equal(t, "A", line.Name)
	assert.Equal(t, int64(10000), line.UnitPrice)
	assert.Equal(t, "a1.png", line.Image)
	assert.Equal(t, int64(20000), hist[0].Total)
}

func TestPlaceOrder_DonationLine(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sum, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
		OwnerEmail: "u@x.io",
		Lines:      []LineInput{{ProductID: f.a.ID, Quantity: 1}, {ProductID: f.donation.ID, Quantity: 5000}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), sum.Total)

	entries := f.entries(t, "u@x.io")
	require.Len(t, entries, 1, "donation never enters the collection")
	assert.Equal(t, f.a.ID, entries[0].ProductID)

	total, err := f.svc.LifetimeTotal(ctx, "u@x.io")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), total, "donation excluded from lifetime spend")

	hist, err := f.svc.GetOrderHistory(ctx, "u@x.io")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Len(t, hist[0].Lines, 1)
	assert.Equal(t, int64(10000), hist[0].Total)
}

func TestPlaceOrder_DonationOnlySkipsAccrual(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", Lines: []LineInput{{ProductID: f.donation.ID, Quantity: 20000}}})
	require.NoError(t, err)
	assert.Empty(t, f.rewards.calls)
	assert.Empty(t, f.entries(t, "u@x.io"))
}

func TestPlaceOrder_EnrollmentFailureDoesNotFailOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.svc.Store = failingStore{Store: f.st, product: f.a.ID}

	sum, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
		OwnerEmail: "u@x.io",
		Lines:      []LineInput{{ProductID: f.a.ID, Quantity: 1}, {ProductID: f.b.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sum.OrderID)

	entries := f.entries(t, "u@x.io")
	require.Len(t, entries, 1)
	assert.Equal(t, f.b.ID, entries[0].ProductID)
	assert.False(t, f.product(t, f.a.ID).Visible, "order and hide still committed")
}

func TestPlaceOrder_AccrualFailureDoesNotFailOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.rewards.err = errors.New("ledger unavailable")

	sum, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", Lines: []LineInput{{ProductID: f.a.ID, Quantity: 1}}})
	require.NoError(t, err)
	assert.Zero(t, sum.ChancesGranted)
	assert.Len(t, f.bus.sent, 1, "event still published for later reconciliation")
}

func TestPlaceOrder_RejectsBadInputWithoutSideEffects(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		lines   func(f *fixture) []LineInput
		wantErr error
	}{
		{
			name: "unknown product",
			lines: func(f *fixture) []LineInput {
				return []LineInput{{ProductID: f.a.ID, Quantity: 1}, {ProductID: "missing", Quantity: 1}}
			},
			wantErr: ErrInvalidReference,
		},
		{
			name:    "zero quantity",
			lines:   func(f *fixture) []LineInput { return []LineInput{{ProductID: f.a.ID, Quantity: 0}} },
			wantErr: ErrInvalidQuantity,
		},
		{
			name:    "no lines",
			lines:   func(*fixture) []LineInput { return nil },
			wantErr: ErrEmptyOrder,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", Lines: tc.lines(f)})
			require.ErrorIs(t, err, tc.wantErr)

			assert.True(t, f.product(t, f.a.ID).Visible)
			assert.Empty(t, f.entries(t, "u@x.io"))
			hist, err := f.svc.GetOrderHistory(ctx, "u@x.io")
			require.NoError(t, err)
			assert.Empty(t, hist)
			assert.Empty(t, f.rewards.calls)
			assert.Empty(t, f.bus.sent)
		})
	}
}

func TestPlaceOrder_ReceiptIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	in := PlaceOrderInput{OwnerEmail: "u@x.io", ReceiptID: "rcpt-1", Lines: []LineInput{{ProductID: f.a.ID, Quantity: 1}}}

	first, err := f.svc.PlaceOrder(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(ctx, in)
	require.NoError(t, err)

	assert.True(t, second.Existing)
	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Len(t, f.rewards.calls, 1)
	assert.Len(t, f.entries(t, "u@x.io"), 1)

	// without the cache the database still answers
	f.svc.Receipts = nil
	third, err := f.svc.PlaceOrder(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, first.OrderID, third.OrderID)
}

func TestPlaceOrder_ReceiptOfAnotherUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := PlaceOrderInput{OwnerEmail: "u@x.io", ReceiptID: "rcpt-2", Lines: []LineInput{{ProductID: f.a.ID, Quantity: 1}}}
	_, err := f.svc.PlaceOrder(ctx, owner)
	require.NoError(t, err)

	for _, receipts := range []ReceiptIndex{f.svc.Receipts, nil} {
		f.svc.Receipts = receipts
		sum, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{
			OwnerEmail: "other@x.io",
			ReceiptID:  "rcpt-2",
			Lines:      []LineInput{{ProductID: f.b.ID, Quantity: 1}},
		})
		require.ErrorIs(t, err, store.ErrDuplicateReceipt)
		assert.Empty(t, sum.OrderID)
	}

	assert.Empty(t, f.entries(t, "other@x.io"))
	assert.Equal(t, []string{"u@x.io"}, f.rewards.calls)
}

func TestConfirmReceipt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// an order recorded before its products were hidden
	require.NoError(t, f.st.InTx(ctx, func(tx store.Tx) error {
		return tx.CreateOrder(ctx, &store.Order{
			OwnerEmail: "u@x.io",
			ReceiptID:  "rcpt-9",
			Lines:      []store.OrderLine{{ProductID: f.a.ID, Name: "A", Quantity: 1, UnitPrice: 10000}},
		})
	}))

	n, err := f.svc.ConfirmReceipt(ctx, "rcpt-9")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = f.svc.ConfirmReceipt(ctx, "rcpt-9")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, f.product(t, f.a.ID).Visible)

	_, err = f.svc.ConfirmReceipt(ctx, "unknown")
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestAttachReceipt_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	sum, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", Lines: []LineInput{{ProductID: f.a.ID, Quantity: 1}}})
	require.NoError(t, err)

	err = f.svc.AttachReceipt(ctx, "other@x.io", sum.OrderID, "rcpt-2")
	assert.ErrorIs(t, err, ErrInvalidReference)

	require.NoError(t, f.svc.AttachReceipt(ctx, "u@x.io", sum.OrderID, "rcpt-2"))
	id, ok := f.svc.Receipts.Lookup(ctx, "rcpt-2")
	assert.True(t, ok)
	assert.Equal(t, sum.OrderID, id)
}

func TestVerifyAndConfirm(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", ReceiptID: "rcpt-3", Lines: []LineInput{{ProductID: f.b.ID, Quantity: 1}}})
	require.NoError(t, err)

	f.svc.Payments = fakeVerifier{ok: false}
	_, err = f.svc.VerifyAndConfirm(ctx, "rcpt-3")
	assert.ErrorIs(t, err, ErrPaymentNotVerified)

	f.svc.Payments = fakeVerifier{err: errors.New("timeout")}
	_, err = f.svc.VerifyAndConfirm(ctx, "rcpt-3")
	assert.Error(t, err)

	f.svc.Payments = fakeVerifier{ok: true}
	_, err = f.svc.VerifyAndConfirm(ctx, "rcpt-3")
	require.NoError(t, err)
	assert.Equal(t, TopicReceiptConfirmed, f.bus.sent[len(f.bus.sent)-1].topic)
}

func TestGetOrderHistory_NewestFirst(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", Lines: []LineInput{{ProductID: f.a.ID, Quantity: 1}}})
	require.NoError(t, err)
	second, err := f.svc.PlaceOrder(ctx, PlaceOrderInput{OwnerEmail: "u@x.io", Lines: []LineInput{{ProductID: f.b.ID, Quantity: 1}}})
	require.NoError(t, err)

	hist, err := f.svc.GetOrderHistory(ctx, "u@x.io")
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, second.OrderID, hist[0].OrderID)
	assert.Equal(t, first.OrderID, hist[1].OrderID)
}
