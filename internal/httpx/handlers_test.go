package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ariefcatur/go-gift-mall/internal/collection"
	"github.com/ariefcatur/go-gift-mall/internal/donations"
	"github.com/ariefcatur/go-gift-mall/internal/inventory"
	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/ariefcatur/go-gift-mall/internal/rewards"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/ariefcatur/go-gift-mall/internal/store/memstore"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]bool

func (v stubVerifier) Verify(_ context.Context, receiptID string) (bool, error) {
	return v[receiptID], nil
}

type app struct {
	router *chi.Mux
	st     *memstore.Store
}

func newApp(t *testing.T) *app {
	t.Helper()
	st := memstore.New()
	inv := &inventory.Service{Store: st}
	_, err := inv.Bootstrap(context.Background())
	require.NoError(t, err)

	rw := &rewards.Service{Store: st, Pick: func(int) int { return 0 }}
	ord := &orders.Service{Store: st, Rewards: rw, Payments: stubVerifier{"r-1": true}}

	r := NewRouter(nil)
	(&OrdersHandler{Orders: ord}).Register(r)
	(&RewardsHandler{Rewards: rw}).Register(r)
	(&CollectionHandler{Collection: &collection.Service{Store: st}}).Register(r)
	(&ProductsHandler{Inventory: inv}).Register(r)
	(&DonationsHandler{Donations: &donations.Service{Store: st}}).Register(r)
	return &app{router: r, st: st}
}

func (a *app) do(t *testing.T, method, path, email, roles string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if email != "" {
		req.Header.Set(HeaderUserEmail, email)
	}
	if roles != "" {
		req.Header.Set(HeaderUserRoles, roles)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func (a *app) createProduct(t *testing.T, name string, price int64) store.Product {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/products", "admin@x.io", "USER,ADMIN", inventory.ProductInput{Name: name, Brand: "Acme", Price: price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[store.Product](t, rec)
}

func TestHealthz(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestIdentityRequired(t *testing.T) {
	a := newApp(t)

	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/rewards/chances", "", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/orders/history", "", "", nil).Code)
	assert.Equal(t, http.StatusForbidden,
		a.do(t, http.MethodPost, "/rewards/admin/chances", "u@x.io", "USER", GrantChancesReq{Email: "u@x.io", Count: 1}).Code)
	assert.Equal(t, http.StatusForbidden,
		a.do(t, http.MethodPost, "/products", "u@x.io", "", inventory.ProductInput{Name: "x", Price: 1}).Code)
}

func TestOrderToDrawFlow(t *testing.T) {
	a := newApp(t)
	pa := a.createProduct(t, "A", 10000)
	pb := a.createProduct(t, "B", 15000)
	prize := a.createProduct(t, "Prize", 5000)

	rec := a.do(t, http.MethodGet, "/products", "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]store.Product](t, rec), 3)

	rec = a.do(t, http.MethodPost, "/orders", "u@x.io", "", PlaceOrderReq{
		ReceiptID: "r-1",
		Lines:     []orders.LineInput{{ProductID: pa.ID, Quantity: 1}, {ProductID: pb.ID, Quantity: 1}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sum := decodeBody[orders.Summary](t, rec)
	assert.Equal(t, int64(25000), sum.Total)
	assert.Equal(t, int64(2), sum.ChancesGranted)

	rec = a.do(t, http.MethodPost, "/orders", "u@x.io", "", PlaceOrderReq{
		ReceiptID: "r-1",
		Lines:     []orders.LineInput{{ProductID: pa.ID, Quantity: 1}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[orders.Summary](t, rec).Existing)

	rec = a.do(t, http.MethodGet, "/rewards/chances", "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ch := decodeBody[chancesResp](t, rec)
	assert.Equal(t, int64(2), ch.Remaining)
	assert.Equal(t, int64(25000), ch.Lifetime)
	assert.Equal(t, int64(5000), ch.ToNextChance)

	rec = a.do(t, http.MethodPost, "/rewards/draw", "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeBody[rewards.DrawResult](t, rec)
	assert.Equal(t, prize.ID, res.Product.ID)
	assert.Equal(t, store.SourceRandomBox, res.Entry.Source)

	rec = a.do(t, http.MethodPost, "/rewards/draw", "u@x.io", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/collection/count", "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(3), decodeBody[map[string]int64](t, rec)["count"])

	rec = a.do(t, http.MethodGet, "/orders/history", "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]orders.Summary](t, rec), 1)

	rec = a.do(t, http.MethodGet, "/payments/verify/r-1", "", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/payments/verify/unpaid", "", "", nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
}

func TestOrderErrors(t *testing.T) {
	a := newApp(t)
	p := a.createProduct(t, "A", 1000)

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "unknown product", body: PlaceOrderReq{Lines: []orders.LineInput{{ProductID: "nope", Quantity: 1}}}, want: http.StatusBadRequest},
		{name: "zero quantity", body: PlaceOrderReq{Lines: []orders.LineInput{{ProductID: p.ID, Quantity: 0}}}, want: http.StatusBadRequest},
		{name: "no lines", body: PlaceOrderReq{}, want: http.StatusBadRequest},
		{name: "bad json", body: "not an object", want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := a.do(t, http.MethodPost, "/orders", "u@x.io", "", tc.body)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestRewardsUseAndAdminGrant(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/rewards/use", "u@x.io", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/rewards/admin/chances", "admin@x.io", "admin", GrantChancesReq{Email: "u@x.io", Count: 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/rewards/admin/chances", "admin@x.io", "admin", GrantChancesReq{Email: "u@x.io", Count: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/rewards/use", "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeBody[map[string]int64](t, rec)["remaining"])
}

func TestCollectionRoutes(t *testing.T) {
	a := newApp(t)
	p := a.createProduct(t, "Mug", 3000)

	rec := a.do(t, http.MethodPost, "/collection", "u@x.io", "", AddEntryReq{ProductID: p.ID})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, store.SourceManual, decodeBody[store.CollectionEntry](t, rec).Source)

	rec = a.do(t, http.MethodPost, "/collection", "u@x.io", "", AddEntryReq{ProductID: "missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/collection/"+p.ID, "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[map[string]bool](t, rec)["exists"])

	rec = a.do(t, http.MethodGet, "/collection/", "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]store.CollectionEntry](t, rec), 1)

	rec = a.do(t, http.MethodDelete, "/collection/"+p.ID, "u@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decodeBody[map[string]int64](t, rec)["removed"])
}

func TestProductsAdminEdit(t *testing.T) {
	a := newApp(t)
	p := a.createProduct(t, "Lamp", 2000)

	rec := a.do(t, http.MethodPut, "/products/"+p.ID, "admin@x.io", "ADMIN", inventory.ProductInput{Name: "Lamp XL", Price: 2500})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2500), decodeBody[store.Product](t, rec).Price)

	rec = a.do(t, http.MethodPut, "/products/missing", "admin@x.io", "ADMIN", inventory.ProductInput{Name: "x", Price: 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/products/"+p.ID, "", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Lamp XL", decodeBody[store.Product](t, rec).Name)
}

func TestDonationRoutes(t *testing.T) {
	a := newApp(t)

	rec := a.do(t, http.MethodPost, "/donations", "d@x.io", "", map[string]any{"amount": 5000, "count": 2, "user_name": "Winter Fund"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decodeBody[store.Donation](t, rec)
	assert.Equal(t, "d@x.io", d.DonorEmail)

	rec = a.do(t, http.MethodPost, "/donations", "d@x.io", "", map[string]any{"amount": 0, "count": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/donations", "not-an-email", "", map[string]any{"amount": 10, "count": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/donations/history", "d@x.io", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody[[]donations.HistoryItem](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "Winter Fund", items[0].Name)

	rec = a.do(t, http.MethodGet, "/donations/"+d.ID, "d@x.io", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = a.do(t, http.MethodGet, "/donations/"+d.ID, "other@x.io", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodGet, "/donations/donor/d@x.io", "other@x.io", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = a.do(t, http.MethodGet, "/donations/donor/d@x.io", "admin@x.io", "ADMIN", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]donations.HistoryItem](t, rec), 1)
}
