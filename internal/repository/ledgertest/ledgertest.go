// Package ledgertest holds the behavioural checks every repository.Ledger
// implementation must pass. Backend packages call Run from their own tests.
package ledgertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Factory builds a fresh, empty ledger for a single test.
type Factory func(t *testing.T, opts ...repository.Option) repository.Ledger

var errAbort = errors.New("abort")

// NewProduct returns a product owned by sellerID with the given starting bid.
func NewProduct(sellerID, startingBid string) model.Product {
	start := decimal.RequireFromString(startingBid)
	return model.Product{
		ProductID:         uuid.NewString(),
		SellerID:          sellerID,
		Title:             "Vintage camera",
		Description:       "Rangefinder, 1962",
		Location:          "Taipei",
		StartingBid:       start,
		CurrentHighestBid: start,
		CreatedAt:         time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewBid returns an unsaved bid on productID.
func NewBid(productID, bidderID, amount string) model.Bid {
	return model.Bid{
		BidID:     uuid.NewString(),
		ProductID: productID,
		BidderID:  bidderID,
		Amount:    decimal.RequireFromString(amount),
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// Seed stores product and fails the test on error.
func Seed(t *testing.T, l repository.Ledger, product model.Product) model.Product {
	t.Helper()
	require.NoError(t, l.CreateProduct(context.Background(), product))
	return product
}

// Commit records bid and raises the product's highest bid in one transaction.
func Commit(t *testing.T, l repository.Ledger, bid model.Bid) {
	t.Helper()
	err := l.WithinTx(context.Background(), func(ctx context.Context, tx repository.LedgerTx) error {
		if _, err := tx.GetProductForUpdate(ctx, bid.ProductID); err != nil {
			return err
		}
		if err := tx.CreateBid(ctx, bid); err != nil {
			return err
		}
		return tx.UpdateHighestBid(ctx, bid.ProductID, bid.Amount)
	})
	require.NoError(t, err)
}

// Run executes the full ledger contract against newLedger.
func Run(t *testing.T, newLedger Factory) {
	t.Run("catalog", func(t *testing.T) { testCatalog(t, newLedger) })
	t.Run("transactions", func(t *testing.T) { testTransactions(t, newLedger) })
	t.Run("locking", func(t *testing.T) { testLocking(t, newLedger) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newLedger) })
	t.Run("reads", func(t *testing.T) { testReads(t, newLedger) })
}

func testCatalog(t *testing.T, newLedger Factory) {
	ctx := context.Background()
	l := newLedger(t)

	p1 := Seed(t, l, NewProduct("seller1", "100"))
	p2 := Seed(t, l, NewProduct("seller2", "25.50"))
	p3 := Seed(t, l, NewProduct("seller1", "0.01"))

	got, err := l.GetProduct(ctx, p2.ProductID)
	require.NoError(t, err)
	require.Equal(t, p2.ProductID, got.ProductID)
	require.Equal(t, "seller2", got.SellerID)
	require.Equal(t, p2.Title, got.Title)
	require.True(t, got.StartingBid.Equal(decimal.RequireFromString("25.50")))
	require.True(t, got.CurrentHighestBid.Equal(got.StartingBid))

	_, err = l.GetProduct(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)

	all, err := l.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, p1.ProductID, all[0].ProductID)
	require.Equal(t, p3.ProductID, all[2].ProductID)

	mine, err := l.ListProductsBySeller(ctx, "seller1")
	require.NoError(t, err)
	require.Len(t, mine, 2)

	none, err := l.ListProductsBySeller(ctx, "nobody")
	require.NoError(t, err)
	require.Empty(t, none)
}

func testTransactions(t *testing.T, newLedger Factory) {
	ctx := context.Background()

	t.Run("missing_product_is_not_found", func(t *testing.T) {
		l := newLedger(t)
		err := l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
			_, err := tx.GetProductForUpdate(ctx, "missing")
			return err
		})
		require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)
	})

	t.Run("max_bid_empty_then_committed", func(t *testing.T) {
		l := newLedger(t)
		p := Seed(t, l, NewProduct("seller", "100"))

		err := l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
			_, err := tx.GetProductForUpdate(ctx, p.ProductID)
			require.NoError(t, err)
			highest, err := tx.MaxBidAmount(ctx, p.ProductID)
			require.NoError(t, err)
			require.False(t, highest.Valid)
			return nil
		})
		require.NoError(t, err)

		Commit(t, l, NewBid(p.ProductID, "b1", "150"))
		Commit(t, l, NewBid(p.ProductID, "b2", "151.25"))

		err = l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
			product, err := tx.GetProductForUpdate(ctx, p.ProductID)
			require.NoError(t, err)
			require.True(t, product.CurrentHighestBid.Equal(decimal.RequireFromString("151.25")))
			highest, err := tx.MaxBidAmount(ctx, p.ProductID)
			require.NoError(t, err)
			require.True(t, highest.Valid)
			require.True(t, highest.Decimal.Equal(decimal.RequireFromString("151.25")), "got %s", highest.Decimal)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("rollback_discards_both_writes", func(t *testing.T) {
		l := newLedger(t)
		p := Seed(t, l, NewProduct("seller", "100"))

		err := l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
			_, err := tx.GetProductForUpdate(ctx, p.ProductID)
			require.NoError(t, err)
			require.NoError(t, tx.CreateBid(ctx, NewBid(p.ProductID, "b1", "500")))
			require.NoError(t, tx.UpdateHighestBid(ctx, p.ProductID, decimal.RequireFromString("500")))
			return errAbort
		})
		require.ErrorIs(t, err, errAbort)

		got, err := l.GetProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.True(t, got.CurrentHighestBid.Equal(decimal.RequireFromString("100")))

		bids, err := l.GetBidsByProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.Empty(t, bids)
	})

	t.Run("commit_persists_bid_and_highest", func(t *testing.T) {
		l := newLedger(t)
		p := Seed(t, l, NewProduct("seller", "100"))
		bid := NewBid(p.ProductID, "b1", "120.10")
		Commit(t, l, bid)

		got, err := l.GetProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.True(t, got.CurrentHighestBid.Equal(bid.Amount))

		bids, err := l.GetBidsByProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.Len(t, bids, 1)
		require.Equal(t, bid.BidID, bids[0].BidID)
		require.Equal(t, "b1", bids[0].BidderID)
		require.True(t, bids[0].Amount.Equal(bid.Amount))
	})
}

func testLocking(t *testing.T, newLedger Factory) {
	ctx := context.Background()

	t.Run("same_product_waits_for_holder", func(t *testing.T) {
		l := newLedger(t)
		p := Seed(t, l, NewProduct("seller", "100"))

		locked := make(chan struct{})
		proceed := make(chan struct{})
		first := make(chan error, 1)

		go func() {
			first <- l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
				if _, err := tx.GetProductForUpdate(ctx, p.ProductID); err != nil {
					return err
				}
				close(locked)
				<-proceed
				if err := tx.CreateBid(ctx, NewBid(p.ProductID, "b1", "150")); err != nil {
					return err
				}
				return tx.UpdateHighestBid(ctx, p.ProductID, decimal.RequireFromString("150"))
			})
		}()
		<-locked

		observed := make(chan decimal.NullDecimal, 1)
		second := make(chan error, 1)
		go func() {
			second <- l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
				if _, err := tx.GetProductForUpdate(ctx, p.ProductID); err != nil {
					return err
				}
				highest, err := tx.MaxBidAmount(ctx, p.ProductID)
				observed <- highest
				return err
			})
		}()

		select {
		case <-observed:
			t.Fatal("second transaction read the product while it was locked")
		case <-time.After(100 * time.Millisecond):
		}

		close(proceed)
		require.NoError(t, <-first)

		select {
		case highest := <-observed:
			require.True(t, highest.Valid)
			require.True(t, highest.Decimal.Equal(decimal.RequireFromString("150")))
		case <-time.After(5 * time.Second):
			t.Fatal("second transaction never acquired the lock")
		}
		require.NoError(t, <-second)
	})

	t.Run("different_products_proceed_independently", func(t *testing.T) {
		l := newLedger(t)
		pa := Seed(t, l, NewProduct("seller", "100"))
		pb := Seed(t, l, NewProduct("seller", "100"))

		locked := make(chan struct{})
		proceed := make(chan struct{})
		held := make(chan error, 1)
		go func() {
			held <- l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
				if _, err := tx.GetProductForUpdate(ctx, pa.ProductID); err != nil {
					return err
				}
				close(locked)
				<-proceed
				return nil
			})
		}()
		<-locked

		done := make(chan struct{})
		go func() {
			defer close(done)
			Commit(t, l, NewBid(pb.ProductID, "b1", "200"))
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("transaction on another product was blocked")
		}

		close(proceed)
		require.NoError(t, <-held)
	})

	t.Run("lock_wait_is_bounded", func(t *testing.T) {
		l := newLedger(t, repository.WithLockTimeout(50*time.Millisecond))
		p := Seed(t, l, NewProduct("seller", "100"))

		locked := make(chan struct{})
		proceed := make(chan struct{})
		held := make(chan error, 1)
		go func() {
			held <- l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
				if _, err := tx.GetProductForUpdate(ctx, p.ProductID); err != nil {
					return err
				}
				close(locked)
				<-proceed
				return nil
			})
		}()
		<-locked

		err := l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
			_, err := tx.GetProductForUpdate(ctx, p.ProductID)
			return err
		})
		require.ErrorIs(t, err, biddingerrors.ErrLockTimeout)

		close(proceed)
		require.NoError(t, <-held)
	})

	t.Run("cancelled_waiter_leaves_no_trace", func(t *testing.T) {
		l := newLedger(t)
		p := Seed(t, l, NewProduct("seller", "100"))

		locked := make(chan struct{})
		proceed := make(chan struct{})
		held := make(chan error, 1)
		go func() {
			held <- l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
				if _, err := tx.GetProductForUpdate(ctx, p.ProductID); err != nil {
					return err
				}
				close(locked)
				<-proceed
				return nil
			})
		}()
		<-locked

		waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		err := l.WithinTx(waitCtx, func(ctx context.Context, tx repository.LedgerTx) error {
			if _, err := tx.GetProductForUpdate(ctx, p.ProductID); err != nil {
				return err
			}
			if err := tx.CreateBid(ctx, NewBid(p.ProductID, "late", "900")); err != nil {
				return err
			}
			return tx.UpdateHighestBid(ctx, p.ProductID, decimal.RequireFromString("900"))
		})
		require.Error(t, err)

		close(proceed)
		require.NoError(t, <-held)

		bids, err := l.GetBidsByProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.Empty(t, bids)
	})

	t.Run("concurrent_increments_are_serialized", func(t *testing.T) {
		l := newLedger(t)
		p := Seed(t, l, NewProduct("seller", "0.01"))

		const workers = 20
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := l.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
					product, err := tx.GetProductForUpdate(ctx, p.ProductID)
					if err != nil {
						return err
					}
					next := product.CurrentHighestBid.Add(decimal.NewFromInt(1))
					if err := tx.CreateBid(ctx, NewBid(p.ProductID, fmt.Sprintf("bidder-%d", i), next.String())); err != nil {
						return err
					}
					return tx.UpdateHighestBid(ctx, p.ProductID, next)
				})
				require.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := l.GetProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.True(t, got.CurrentHighestBid.Equal(decimal.RequireFromString("20.01")), "got %s", got.CurrentHighestBid)

		bids, err := l.GetBidsByProduct(ctx, p.ProductID)
		require.NoError(t, err)
		require.Len(t, bids, workers)
	})
}

func testDelete(t *testing.T, newLedger Factory) {
	ctx := context.Background()
	l := newLedger(t)

	p := Seed(t, l, NewProduct("seller", "100"))
	other := Seed(t, l, NewProduct("seller", "100"))
	Commit(t, l, NewBid(p.ProductID, "b1", "150"))
	Commit(t, l, NewBid(other.ProductID, "b1", "110"))

	err := l.DeleteProduct(ctx, p.ProductID, "intruder")
	require.ErrorIs(t, err, biddingerrors.ErrForbidden)

	err = l.DeleteProduct(ctx, "missing", "seller")
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)

	require.NoError(t, l.DeleteProduct(ctx, p.ProductID, "seller"))

	_, err = l.GetProduct(ctx, p.ProductID)
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)
	_, err = l.GetBidsByProduct(ctx, p.ProductID)
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)

	products, err := l.GetProductsByBidder(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, other.ProductID, products[0].ProductID)
}

func testReads(t *testing.T, newLedger Factory) {
	ctx := context.Background()
	l := newLedger(t)

	p := Seed(t, l, NewProduct("seller", "100"))
	empty := Seed(t, l, NewProduct("seller", "100"))
	second := Seed(t, l, NewProduct("seller", "5"))

	b1 := NewBid(p.ProductID, "alice", "120")
	b2 := NewBid(p.ProductID, "bob", "130.5")
	b3 := NewBid(p.ProductID, "alice", "999.99")
	for _, b := range []model.Bid{b1, b2, b3} {
		Commit(t, l, b)
	}
	Commit(t, l, NewBid(second.ProductID, "alice", "6"))

	bids, err := l.GetBidsByProduct(ctx, p.ProductID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	require.Equal(t, b3.BidID, bids[0].BidID)
	require.Equal(t, b2.BidID, bids[1].BidID)
	require.Equal(t, b1.BidID, bids[2].BidID)

	winning, err := l.GetWinningBid(ctx, p.ProductID)
	require.NoError(t, err)
	require.Equal(t, b3.BidID, winning.BidID)
	require.True(t, winning.Amount.Equal(decimal.RequireFromString("999.99")))

	_, err = l.GetWinningBid(ctx, empty.ProductID)
	require.ErrorIs(t, err, biddingerrors.ErrNoBids)
	_, err = l.GetWinningBid(ctx, "missing")
	require.ErrorIs(t, err, biddingerrors.ErrProductNotFound)

	noBids, err := l.GetBidsByProduct(ctx, empty.ProductID)
	require.NoError(t, err)
	require.Empty(t, noBids)

	aliceProducts, err := l.GetProductsByBidder(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, aliceProducts, 2)

	_, err = l.GetProductsByBidder(ctx, "nobody")
	require.ErrorIs(t, err, biddingerrors.ErrUserNoBids)
}
