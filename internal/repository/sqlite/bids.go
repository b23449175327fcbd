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

const bidColumns = `id, product_id, bidder_id, amount_cents, created_at`

func scanBid(row rowScanner) (model.Bid, error) {
	var (
		b         model.Bid
		cents     int64
		createdAt int64
	)
	if err := row.Scan(&b.BidID, &b.ProductID, &b.BidderID, &cents, &createdAt); err != nil {
		return model.Bid{}, err
	}
	b.Amount = fromCents(cents)
	b.CreatedAt = time.Unix(0, createdAt).UTC()
	return b, nil
}

// GetBidsByProduct returns bids highest first; equal amounts keep commit order.
func (s *Store) GetBidsByProduct(ctx context.Context, productID string) ([]model.Bid, error) {
	if err := s.productExists(ctx, productID); err != nil {
		return nil, fmt.Errorf("sqlite: get bids for product %s: %w", productID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE product_id = ?
		ORDER BY amount_cents DESC, created_at ASC, rowid ASC`, productID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get bids for product %s: %w: %w", productID, biddingerrors.ErrStorage, err)
	}
	defer rows.Close()

	bids := make([]model.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan bid: %w: %w", biddingerrors.ErrStorage, err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate bids: %w: %w", biddingerrors.ErrStorage, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for a product.
func (s *Store) GetWinningBid(ctx context.Context, productID string) (model.Bid, error) {
	if err := s.productExists(ctx, productID); err != nil {
		return model.Bid{}, fmt.Errorf("sqlite: get winning bid for product %s: %w", productID, err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE product_id = ?
		ORDER BY amount_cents DESC, created_at ASC, rowid ASC
		LIMIT 1`, productID)
	b, err := scanBid(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("sqlite: get winning bid for product %s: %w", productID, biddingerrors.ErrNoBids)
	}
	if err != nil {
		return model.Bid{}, fmt.Errorf("sqlite: get winning bid for product %s: %w: %w", productID, biddingerrors.ErrStorage, err)
	}
	return b, nil
}
