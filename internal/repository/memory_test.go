package repository_test

import (
	"context"
	"testing"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/internal/repository/ledgertest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newMemoryLedger(t *testing.T, opts ...repository.Option) repository.Ledger {
	return repository.NewMemoryRepo(opts...)
}

func TestMemoryRepo_Ledger(t *testing.T) {
	ledgertest.Run(t, newMemoryLedger)
}

func TestMemoryRepo_CreateProduct(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()

	tests := []struct {
		name        string
		mutate      func(p *model.Product)
		expectedErr error
	}{
		{
			name:        "missing_id",
			mutate:      func(p *model.Product) { p.ProductID = "" },
			expectedErr: biddingerrors.ErrInvalidProduct,
		},
		{
			name:        "duplicate_id",
			mutate:      func(p *model.Product) { p.ProductID = "dup" },
			expectedErr: biddingerrors.ErrStorage,
		},
	}

	require.NoError(t, repo.CreateProduct(ctx, withID(ledgertest.NewProduct("seller", "10"), "dup")))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ledgertest.NewProduct("seller", "10")
			tt.mutate(&p)
			err := repo.CreateProduct(ctx, p)
			require.ErrorIs(t, err, tt.expectedErr)
		})
	}
}

func TestMemoryRepo_WritesRequireLock(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	p := ledgertest.Seed(t, repo, ledgertest.NewProduct("seller", "10"))

	err := repo.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.CreateBid(ctx, ledgertest.NewBid(p.ProductID, "b1", "20"))
	})
	require.ErrorIs(t, err, biddingerrors.ErrStorage)

	err = repo.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		return tx.UpdateHighestBid(ctx, p.ProductID, decimal.NewFromInt(20))
	})
	require.ErrorIs(t, err, biddingerrors.ErrStorage)

	got, err := repo.GetProduct(ctx, p.ProductID)
	require.NoError(t, err)
	require.True(t, got.CurrentHighestBid.Equal(decimal.NewFromInt(10)))
}

func TestMemoryRepo_StagedWritesVisibleInsideTx(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepo()
	p := ledgertest.Seed(t, repo, ledgertest.NewProduct("seller", "10"))

	err := repo.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		_, err := tx.GetProductForUpdate(ctx, p.ProductID)
		require.NoError(t, err)
		require.NoError(t, tx.CreateBid(ctx, ledgertest.NewBid(p.ProductID, "b1", "42")))
		require.NoError(t, tx.UpdateHighestBid(ctx, p.ProductID, decimal.NewFromInt(42)))

		highest, err := tx.MaxBidAmount(ctx, p.ProductID)
		require.NoError(t, err)
		require.True(t, highest.Decimal.Equal(decimal.NewFromInt(42)))

		again, err := tx.GetProductForUpdate(ctx, p.ProductID)
		require.NoError(t, err)
		require.True(t, again.CurrentHighestBid.Equal(decimal.NewFromInt(42)))

		outside, err := repo.GetProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.True(t, outside.CurrentHighestBid.Equal(decimal.NewFromInt(10)))
		return nil
	})
	require.NoError(t, err)
}

func withID(p model.Product, id string) model.Product {
	p.ProductID = id
	return p
}
