package postgres

import (
	"context"
	"fmt"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const productColumns = `id, seller_id, title, description, location, image_url,
	starting_bid::text, current_highest_bid::text, created_at`

const bidColumns = `id, product_id, bidder_id, amount::text, created_at`

func scanProduct(row pgx.Row) (model.Product, error) {
	var (
		p                 model.Product
		starting, highest string
	)
	err := row.Scan(&p.ProductID, &p.SellerID, &p.Title, &p.Description, &p.Location, &p.ImageURL,
		&starting, &highest, &p.CreatedAt)
	if err != nil {
		return model.Product{}, err
	}
	if p.StartingBid, err = decimal.NewFromString(starting); err != nil {
		return model.Product{}, err
	}
	if p.CurrentHighestBid, err = decimal.NewFromString(highest); err != nil {
		return model.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var (
		b      model.Bid
		amount string
	)
	if err := row.Scan(&b.BidID, &b.ProductID, &b.BidderID, &amount, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return model.Bid{}, err
	}
	b.Amount = d
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

// CreateProduct inserts a new product.
func (s *Store) CreateProduct(ctx context.Context, p model.Product) error {
	if p.ProductID == "" {
		return fmt.Errorf("postgres: create product: %w - missing product id", biddingerrors.ErrInvalidProduct)
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO products (id, seller_id, title, description, location, image_url,
			starting_bid, current_highest_bid, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9)`,
		p.ProductID, p.SellerID, p.Title, p.Description, p.Location, p.ImageURL,
		p.StartingBid.String(), p.CurrentHighestBid.String(), p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create product %s: %w", p.ProductID, mapError(err, nil))
	}
	return nil
}

// GetProduct retrieves a product by id.
func (s *Store) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	p, err := scanProduct(s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID))
	if err != nil {
		return model.Product{}, fmt.Errorf("postgres: get product %s: %w", productID, mapError(err, biddingerrors.ErrProductNotFound))
	}
	return p, nil
}

// ListProducts returns all products in creation order.
func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY seq`)
}

// ListProductsBySeller returns the products sellerID has listed.
func (s *Store) ListProductsBySeller(ctx context.Context, sellerID string) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE seller_id = $1 ORDER BY seq`, sellerID)
}

// DeleteProduct locks the product row, checks ownership and deletes it. Bids go with
// it through ON DELETE CASCADE.
func (s *Store) DeleteProduct(ctx context.Context, productID, sellerID string) (err error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	var owner string
	err = tx.QueryRow(ctx, `SELECT seller_id FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&owner)
	if err != nil {
		return fmt.Errorf("postgres: delete product %s: %w", productID, mapError(err, biddingerrors.ErrProductNotFound))
	}
	if owner != sellerID {
		err = fmt.Errorf("postgres: delete product %s: %w", productID, biddingerrors.ErrForbidden)
		return err
	}

	ctx = context.WithoutCancel(ctx)
	if _, err = tx.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID); err != nil {
		return fmt.Errorf("postgres: delete product %s: %w", productID, mapError(err, nil))
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: delete product %s: commit: %w", productID, mapError(err, nil))
	}
	return nil
}

// GetBidsByProduct returns bids highest first; equal amounts keep commit order.
func (s *Store) GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error) {
	if err := s.productExists(ctx, productID); err != nil {
		return nil, fmt.Errorf("postgres: get bids for product %s: %w", productID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE product_id = $1
		ORDER BY amount DESC, created_at ASC, seq ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get bids for product %s: %w", productID, mapError(err, nil))
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bid: %w", mapError(err, nil))
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate bids: %w", mapError(err, nil))
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for a product.
func (s *Store) GetWinningBid(ctx context.Context, productID string) (model.Bid, error) {
	if err := s.productExists(ctx, productID); err != nil {
		return model.Bid{}, fmt.Errorf("postgres: get winning bid for product %s: %w", productID, err)
	}

	b, err := scanBid(s.pool.QueryRow(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE product_id = $1
		ORDER BY amount DESC, created_at ASC, seq ASC
		LIMIT 1`, productID))
	if err != nil {
		return model.Bid{}, fmt.Errorf("postgres: get winning bid for product %s: %w", productID, mapError(err, biddingerrors.ErrNoBids))
	}
	return b, nil
}

// GetProductsByBidder returns every product bidderID has bid on.
func (s *Store) GetProductsByBidder(ctx context.Context, bidderID string) ([]model.Product, error) {
	products, err := s.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE id IN (SELECT product_id FROM bids WHERE bidder_id = $1)
		ORDER BY seq`, bidderID)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("postgres: get products for bidder %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}
	return products, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query products: %w", mapError(err, nil))
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", mapError(err, nil))
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate products: %w", mapError(err, nil))
	}
	return products, nil
}

func (s *Store) productExists(ctx context.Context, productID string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)`, productID).Scan(&exists)
	if err != nil {
		return mapError(err, nil)
	}
	if !exists {
		return biddingerrors.ErrProductNotFound
	}
	return nil
}
