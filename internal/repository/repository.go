package repository

import (
	"context"
	"time"

	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// DefaultLockTimeout bounds how long a transaction waits for a product lock.
const DefaultLockTimeout = 5 * time.Second

// Ledger is the durable store for products and bids.
// Bid state changes happen only inside WithinTx.
type Ledger interface {
	// WithinTx runs fn in a transaction. It commits when fn returns nil and rolls back
	// otherwise. Locks taken through the LedgerTx are held until WithinTx returns.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error

	CreateProduct(ctx context.Context, product model.Product) error
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListProductsBySeller(ctx context.Context, sellerID string) ([]model.Product, error)
	// DeleteProduct removes a product and its bids. Only the seller may delete.
	DeleteProduct(ctx context.Context, productID, sellerID string) error

	// GetBidsByProduct returns bids ordered by amount descending, then creation time.
	GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, productID string) (model.Bid, error)
	GetProductsByBidder(ctx context.Context, bidderID string) ([]model.Product, error)

	Close() error
}

// LedgerTx is the set of operations available inside a ledger transaction.
type LedgerTx interface {
	// GetProductForUpdate returns the product and holds its exclusive lock until the
	// transaction ends.
	GetProductForUpdate(ctx context.Context, productID string) (model.Product, error)
	// MaxBidAmount returns the highest recorded bid amount; Valid is false when none exist.
	MaxBidAmount(ctx context.Context, productID string) (decimal.NullDecimal, error)
	CreateBid(ctx context.Context, bid model.Bid) error
	UpdateHighestBid(ctx context.Context, productID string, amount decimal.Decimal) error
}

// Options holds settings shared by the ledger implementations.
type Options struct {
	LockTimeout time.Duration
}

// Option configures a ledger implementation.
type Option func(*Options)

// WithLockTimeout sets the maximum wait for a product lock.
func WithLockTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.LockTimeout = d
	}
}

// ApplyOptions resolves opts over the defaults.
func ApplyOptions(opts ...Option) Options {
	o := Options{LockTimeout: DefaultLockTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
