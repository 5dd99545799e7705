package donations

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-gift-mall/internal/orders"
	"github.com/ariefcatur/go-gift-mall/internal/store"
	"github.com/ariefcatur/go-gift-mall/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDonate_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		in      DonationInput
		wantErr error
	}{
		{name: "ok", in: DonationInput{DonorEmail: "d@x.io", Amount: 5000, Count: 1}},
		{name: "missing donor", in: DonationInput{Amount: 5000, Count: 1}, wantErr: orders.ErrInvalidReference},
		{name: "malformed donor", in: DonationInput{DonorEmail: "not-an-email", Amount: 5000, Count: 1}, wantErr: orders.ErrInvalidReference},
		{name: "display name", in: DonationInput{DonorEmail: "Dee <d@x.io>", Amount: 5000, Count: 1}, wantErr: orders.ErrInvalidReference},
		{name: "zero amount", in: DonationInput{DonorEmail: "d@x.io", Count: 1}, wantErr: ErrInvalidDonation},
		{name: "zero count", in: DonationInput{DonorEmail: "d@x.io", Amount: 5000}, wantErr: ErrInvalidDonation},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			st := memstore.New()
			svc := &Service{Store: st}

			d, err := svc.Donate(ctx, tc.in)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Empty(t, history(t, svc, tc.in.DonorEmail))
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, d.ID)
			assert.False(t, d.CreatedAt.IsZero())
		})
	}
}

func history(t *testing.T, svc *Service, email string) []HistoryItem {
	t.Helper()
	items, err := svc.GetDonationHistory(context.Background(), email)
	require.NoError(t, err)
	return items
}

func TestDonate_RecordsAgainstSentinel(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	var sentinel store.Product
	require.NoError(t, st.InTx(ctx, func(tx store.Tx) (err error) {
		sentinel, err = tx.EnsureDonationProduct(ctx)
		return err
	}))
	svc := &Service{Store: st}

	d, err := svc.Donate(ctx, DonationInput{
		DonorEmail: "d@x.io", Amount: 20000, Count: 2,
		UserName: " Winter Fund ", UserBrand: "Dee & Co", UserImage: "fund.png",
	})
	require.NoError(t, err)
	assert.Equal(t, sentinel.ID, d.ProductID)
	assert.Equal(t, "Winter Fund", d.UserName)

	got, err := svc.Get(ctx, "d@x.io", d.ID)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = svc.Get(ctx, "other@x.io", d.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	// donations never count towards lifetime spend
	require.NoError(t, st.View(ctx, func(tx store.Tx) error {
		total, err := tx.LifetimeTotal(ctx, "d@x.io")
		assert.Zero(t, total)
		return err
	}))
}

func TestDonate_CreatesSentinelWhenMissing(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	svc := &Service{Store: st}

	first, err := svc.Donate(ctx, DonationInput{DonorEmail: "d@x.io", Amount: 1, Count: 1})
	require.NoError(t, err)
	second, err := svc.Donate(ctx, DonationInput{DonorEmail: "e@x.io", Amount: 1, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, first.ProductID, second.ProductID)

	var p store.Product
	require.NoError(t, st.View(ctx, func(tx store.Tx) (err error) {
		p, err = tx.GetProduct(ctx, first.ProductID)
		return err
	}))
	assert.True(t, p.Donation)
	assert.False(t, p.Visible)
}

func TestGetDonationHistory(t *testing.T) {
	ctx := context.Background()
	svc := &Service{Store: memstore.New()}

	_, err := svc.Donate(ctx, DonationInput{DonorEmail: "d@x.io", Amount: 1000, Count: 1})
	require.NoError(t, err)
	_, err = svc.Donate(ctx, DonationInput{DonorEmail: "e@x.io", Amount: 7000, Count: 1})
	require.NoError(t, err)
	_, err = svc.Donate(ctx, DonationInput{DonorEmail: "d@x.io", Amount: 3000, Count: 3, UserName: "Spring", UserBrand: "Dee", UserImage: "s.png"})
	require.NoError(t, err)

	items := history(t, svc, "d@x.io")
	require.Len(t, items, 2)

	assert.Equal(t, "Spring", items[0].Name)
	assert.Equal(t, "Dee", items[0].Brand)
	assert.Equal(t, int64(3000), items[0].Amount)
	assert.Equal(t, 3, items[0].Count)
	assert.Equal(t, "s.png", items[0].Image)

	label := store.DonationProduct()
	assert.Equal(t, label.Name, items[1].Name)
	assert.Equal(t, label.Brand, items[1].Brand)
	assert.Equal(t, int64(1000), items[1].Amount)
	assert.True(t, items[0].CreatedAt.After(items[1].CreatedAt))

	assert.Empty(t, history(t, svc, "nobody@x.io"))
}
