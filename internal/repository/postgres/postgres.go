// Package postgres implements repository.Ledger on PostgreSQL. Product locks are row
// locks taken with SELECT ... FOR UPDATE, so several server processes can share one
// database.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// lock_not_available, raised when lock_timeout expires.
const codeLockNotAvailable = "55P03"

var _ repository.Ledger = (*Store)(nil)

// Store implements repository.Ledger using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
	opts repository.Options
}

// New connects to databaseURL, verifies the connection and applies the schema.
func New(ctx context.Context, databaseURL string, opts ...repository.Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping db: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: apply schema: %w", err)
	}

	return &Store{pool: pool, opts: repository.ApplyOptions(opts...)}, nil
}

// Close closes all pooled connections.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// WithinTx runs fn inside a database transaction with lock_timeout set for its duration.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) (err error) {
	pgTx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			pgTx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(ctx, &ledgerTx{tx: pgTx}); err != nil {
		return err
	}

	if err = pgTx.Commit(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("postgres: commit: %w: %w", biddingerrors.ErrStorage, err)
	}
	return nil
}

func (s *Store) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres: begin transaction: %w: %w", biddingerrors.ErrStorage, err)
	}

	timeout := fmt.Sprintf("%dms", s.opts.LockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		tx.Rollback(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("postgres: set lock timeout: %w: %w", biddingerrors.ErrStorage, err)
	}
	return tx, nil
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t *ledgerTx) GetProductForUpdate(ctx context.Context, productID string) (model.Product, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, productID)
	p, err := scanProduct(row)
	if err != nil {
		return model.Product{}, fmt.Errorf("postgres: lock product %s: %w", productID, mapError(err, biddingerrors.ErrProductNotFound))
	}
	return p, nil
}

func (t *ledgerTx) MaxBidAmount(ctx context.Context, productID string) (decimal.NullDecimal, error) {
	var amount *string
	err := t.tx.QueryRow(ctx, `SELECT MAX(amount)::text FROM bids WHERE product_id = $1`, productID).Scan(&amount)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("postgres: max bid for product %s: %w", productID, mapError(err, nil))
	}
	if amount == nil {
		return decimal.NullDecimal{}, nil
	}

	d, err := decimal.NewFromString(*amount)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("postgres: parse max bid %q: %w: %w", *amount, biddingerrors.ErrStorage, err)
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}, nil
}

func (t *ledgerTx) CreateBid(ctx context.Context, b model.Bid) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO bids (id, product_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5)`,
		b.BidID, b.ProductID, b.BidderID, b.Amount.String(), b.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert bid %s: %w", b.BidID, mapError(err, nil))
	}
	return nil
}

func (t *ledgerTx) UpdateHighestBid(ctx context.Context, productID string, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE products SET current_highest_bid = $1::numeric WHERE id = $2`,
		amount.String(), productID,
	)
	if err != nil {
		return fmt.Errorf("postgres: update product %s: %w", productID, mapError(err, nil))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return nil
}

// mapError translates driver errors into ledger sentinels. notFound is returned for
// pgx.ErrNoRows when non-nil.
func mapError(err error, notFound error) error {
	if notFound != nil && errors.Is(err, pgx.ErrNoRows) {
		return notFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeLockNotAvailable {
		return fmt.Errorf("%w: %w", biddingerrors.ErrLockTimeout, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", biddingerrors.ErrStorage, err)
}
