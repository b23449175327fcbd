package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
)

const productColumns = `id, seller_id, title, description, location, image_url,
	starting_bid_cents, current_highest_bid_cents, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (model.Product, error) {
	var (
		p                     model.Product
		startCents, highCents int64
		createdAt             int64
	)
	err := row.Scan(&p.ProductID, &p.SellerID, &p.Title, &p.Description, &p.Location, &p.ImageURL,
		&startCents, &highCents, &createdAt)
	if err != nil {
		return model.Product{}, err
	}
	p.StartingBid = fromCents(startCents)
	p.CurrentHighestBid = fromCents(highCents)
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	return p, nil
}

// CreateProduct inserts a new product.
func (s *Store) CreateProduct(ctx context.Context, p model.Product) error {
	if p.ProductID == "" {
		return fmt.Errorf("sqlite: create product: %w - missing product id", biddingerrors.ErrInvalidProduct)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ProductID, p.SellerID, p.Title, p.Description, p.Location, p.ImageURL,
		toCents(p.StartingBid), toCents(p.CurrentHighestBid), p.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: create product %s: %w: %w", p.ProductID, biddingerrors.ErrStorage, err)
	}
	return nil
}

// GetProduct retrieves a product by id.
func (s *Store) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, productID)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Product{}, fmt.Errorf("sqlite: get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("sqlite: get product %s: %w: %w", productID, biddingerrors.ErrStorage, err)
	}
	return p, nil
}

// ListProducts returns all products in creation order.
func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products ORDER BY rowid`)
}

// ListProductsBySeller returns the products sellerID has listed.
func (s *Store) ListProductsBySeller(ctx context.Context, sellerID string) ([]model.Product, error) {
	return s.queryProducts(ctx, `SELECT `+productColumns+` FROM products WHERE seller_id = ? ORDER BY rowid`, sellerID)
}

// DeleteProduct removes the product and, through the foreign key, its bids.
func (s *Store) DeleteProduct(ctx context.Context, productID, sellerID string) error {
	release, err := s.lockProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("sqlite: delete product %s: %w", productID, err)
	}
	defer release()

	p, err := s.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p.SellerID != sellerID {
		return fmt.Errorf("sqlite: delete product %s: %w", productID, biddingerrors.ErrForbidden)
	}

	if _, err := s.db.ExecContext(context.WithoutCancel(ctx), `DELETE FROM products WHERE id = ?`, productID); err != nil {
		return fmt.Errorf("sqlite: delete product %s: %w: %w", productID, biddingerrors.ErrStorage, err)
	}
	return nil
}

// GetProductsByBidder returns every product bidderID has bid on.
func (s *Store) GetProductsByBidder(ctx context.Context, bidderID string) ([]model.Product, error) {
	products, err := s.queryProducts(ctx, `
		SELECT `+productColumns+` FROM products
		WHERE id IN (SELECT product_id FROM bids WHERE bidder_id = ?)
		ORDER BY rowid`, bidderID)
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("sqlite: get products for bidder %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}
	return products, nil
}

func (s *Store) queryProducts(ctx context.Context, query string, args ...any) ([]model.Product, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query products: %w: %w", biddingerrors.ErrStorage, err)
	}
	defer rows.Close()

	products := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan product: %w: %w", biddingerrors.ErrStorage, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate products: %w: %w", biddingerrors.ErrStorage, err)
	}
	return products, nil
}

func (s *Store) productExists(ctx context.Context, productID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ?`, productID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return biddingerrors.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %w", biddingerrors.ErrStorage, err)
	}
	return nil
}
