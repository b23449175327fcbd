// Package sqlite provides a SQLite-backed implementation of repository.Ledger.
//
// Product locks live in process; SQLite itself only sees the short write
// transaction issued at commit, so bids on different products never wait on
// each other for longer than a single flush.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/lockmap"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)
)

var _ repository.Ledger = (*Store)(nil)

// Store implements repository.Ledger on a single SQLite database file.
type Store struct {
	db    *sql.DB
	locks *lockmap.Map
	opts  repository.Options
}

// New opens (creating if needed) the database at dbPath and runs migrations.
func New(ctx context.Context, dbPath string, opts ...repository.Option) (*Store, error) {
	o := repository.ApplyOptions(opts...)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sqlite: create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath, o.LockTimeout))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping database: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: run migrations: %w", err)
	}

	return &Store{db: db, locks: lockmap.New(), opts: o}, nil
}

// dsn applies the pragmas to every pooled connection. _txlock=immediate takes the
// writer lock at BEGIN so a flush never fails halfway on a lock upgrade.
func dsn(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_txlock", "immediate")
	return path + "?" + q.Encode()
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithinTx runs fn holding product locks in process and flushes its writes in one
// SQLite transaction when fn returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.LedgerTx) error) error {
	tx := &ledgerTx{
		store:   s,
		held:    make(map[string]func()),
		highest: make(map[string]decimal.Decimal),
	}
	defer tx.releaseAll()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit(ctx)
}

func (s *Store) lockProduct(ctx context.Context, productID string) (func(), error) {
	release, err := s.locks.Acquire(ctx, productID, s.opts.LockTimeout)
	if errors.Is(err, lockmap.ErrWaitTimeout) {
		return nil, biddingerrors.ErrLockTimeout
	}
	return release, err
}

type ledgerTx struct {
	store   *Store
	held    map[string]func()
	staged  []model.Bid
	highest map[string]decimal.Decimal
}

func (tx *ledgerTx) GetProductForUpdate(ctx context.Context, productID string) (model.Product, error) {
	if _, ok := tx.held[productID]; !ok {
		release, err := tx.store.lockProduct(ctx, productID)
		if err != nil {
			return model.Product{}, fmt.Errorf("sqlite: lock product %s: %w", productID, err)
		}
		tx.held[productID] = release
	}

	product, err := tx.store.GetProduct(ctx, productID)
	if err != nil {
		tx.held[productID]()
		delete(tx.held, productID)
		return model.Product{}, err
	}
	if amount, ok := tx.highest[productID]; ok {
		product.CurrentHighestBid = amount
	}
	return product, nil
}

func (tx *ledgerTx) MaxBidAmount(ctx context.Context, productID string) (decimal.NullDecimal, error) {
	var cents sql.NullInt64
	err := tx.store.db.QueryRowContext(ctx,
		`SELECT MAX(amount_cents) FROM bids WHERE product_id = ?`, productID,
	).Scan(&cents)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("sqlite: max bid for product %s: %w: %w", productID, biddingerrors.ErrStorage, err)
	}

	var highest decimal.NullDecimal
	if cents.Valid {
		highest = decimal.NullDecimal{Decimal: fromCents(cents.Int64), Valid: true}
	}
	for _, b := range tx.staged {
		if b.ProductID == productID && (!highest.Valid || b.Amount.GreaterThan(highest.Decimal)) {
			highest = decimal.NullDecimal{Decimal: b.Amount, Valid: true}
		}
	}
	return highest, nil
}

func (tx *ledgerTx) CreateBid(_ context.Context, bid model.Bid) error {
	if _, ok := tx.held[bid.ProductID]; !ok {
		return fmt.Errorf("sqlite: record bid for product %s: %w - product not locked", bid.ProductID, biddingerrors.ErrStorage)
	}
	tx.staged = append(tx.staged, bid)
	return nil
}

func (tx *ledgerTx) UpdateHighestBid(_ context.Context, productID string, amount decimal.Decimal) error {
	if _, ok := tx.held[productID]; !ok {
		return fmt.Errorf("sqlite: update highest bid for product %s: %w - product not locked", productID, biddingerrors.ErrStorage)
	}
	tx.highest[productID] = amount
	return nil
}

// commit runs detached from ctx: once writes start they either all land or none do.
func (tx *ledgerTx) commit(ctx context.Context) (err error) {
	if len(tx.staged) == 0 && len(tx.highest) == 0 {
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	sqlTx, err := tx.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin transaction: %w: %w", biddingerrors.ErrStorage, err)
	}
	defer func() {
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	for _, b := range tx.staged {
		_, err = sqlTx.ExecContext(ctx,
			`INSERT INTO bids (id, product_id, bidder_id, amount_cents, created_at) VALUES (?, ?, ?, ?, ?)`,
			b.BidID, b.ProductID, b.BidderID, toCents(b.Amount), b.CreatedAt.UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert bid %s: %w: %w", b.BidID, biddingerrors.ErrStorage, err)
		}
	}

	for productID, amount := range tx.highest {
		_, err = sqlTx.ExecContext(ctx,
			`UPDATE products SET current_highest_bid_cents = ? WHERE id = ?`,
			toCents(amount), productID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: update product %s: %w: %w", productID, biddingerrors.ErrStorage, err)
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w: %w", biddingerrors.ErrStorage, err)
	}
	return nil
}

func (tx *ledgerTx) releaseAll() {
	for id, release := range tx.held {
		release()
		delete(tx.held, id)
	}
}

func toCents(d decimal.Decimal) int64 {
	return d.Round(2).Shift(2).IntPart()
}

func fromCents(c int64) decimal.Decimal {
	return decimal.New(c, -2)
}
