package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"auction-engine/internal/repository"
	"auction-engine/internal/repository/ledgertest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...repository.Option) repository.Ledger {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "auction.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_Ledger(t *testing.T) {
	ledgertest.Run(t, newTestStore)
}

func TestStore_ReopenKeepsState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "auction.db")

	store, err := New(ctx, path)
	require.NoError(t, err)
	p := ledgertest.Seed(t, store, ledgertest.NewProduct("seller", "99.99"))
	ledgertest.Commit(t, store, ledgertest.NewBid(p.ProductID, "b1", "100.01"))
	require.NoError(t, store.Close())

	reopened, err := New(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetProduct(ctx, p.ProductID)
	require.NoError(t, err)
	require.Equal(t, "100.01", got.CurrentHighestBid.StringFixed(2))
	require.Equal(t, "99.99", got.StartingBid.StringFixed(2))

	winning, err := reopened.GetWinningBid(ctx, p.ProductID)
	require.NoError(t, err)
	require.Equal(t, "b1", winning.BidderID)
}

func TestCents(t *testing.T) {
	tests := []struct {
		in    string
		cents int64
	}{
		{"0.01", 1},
		{"100", 10000},
		{"100.5", 10050},
		{"99999999.99", 9999999999},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d := decimal.RequireFromString(tt.in)
			require.Equal(t, tt.cents, toCents(d))
			require.True(t, fromCents(tt.cents).Equal(d))
		})
	}
}

func TestDSN(t *testing.T) {
	got := dsn("/tmp/a.db", repository.DefaultLockTimeout)
	require.Contains(t, got, "/tmp/a.db?")
	require.Contains(t, got, "_txlock=immediate")
	require.Contains(t, got, "busy_timeout%285000%29")
	require.Contains(t, got, "foreign_keys%281%29")
}
