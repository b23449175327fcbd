package bidding

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/metrics"
	model "auction-engine/internal/models"
	"auction-engine/internal/repository"
	"auction-engine/utils"

	"github.com/shopspring/decimal"
)

// PlaceBidResult is the outcome of a decided bid. When Accepted is false the bid was
// too low and MinRequired holds the amount it had to exceed.
type PlaceBidResult struct {
	Accepted    bool
	Bid         model.Bid
	MinRequired decimal.Decimal
}

// BiddingService coordinates bid acceptance and product listings over a Ledger
type BiddingService struct {
	repo    repository.Ledger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithMetrics records bid outcomes on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BiddingService) {
		s.metrics = m
	}
}

// WithClock overrides the time source used for CreatedAt stamps
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) {
		s.now = now
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.Ledger, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid decides a bid on productID while holding the product's lock. A bid that
// does not beat the current minimum is reported in the result, not as an error.
func (s *BiddingService) PlaceBid(ctx context.Context, productID, bidderID string, amount decimal.Decimal) (result PlaceBidResult, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveBid(outcome(result, err), time.Since(start))
	}()

	if productID == "" || bidderID == "" {
		return PlaceBidResult{}, fmt.Errorf("service: %w - missing productID or bidderID", biddingerrors.ErrInvalidBid)
	}
	if err := ValidateAmount(amount); err != nil {
		return PlaceBidResult{}, fmt.Errorf("service: %w", err)
	}

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx repository.LedgerTx) error {
		product, err := tx.GetProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		// The lock is held; finish the transaction even if the caller goes away.
		ctx = context.WithoutCancel(ctx)

		highest, err := tx.MaxBidAmount(ctx, productID)
		if err != nil {
			return err
		}

		minimum := MinimumAcceptableBid(product, highest)
		if !IsAcceptable(amount, minimum) {
			result = PlaceBidResult{MinRequired: minimum}
			return nil
		}

		bid := model.Bid{
			BidID:     utils.GenerateID(),
			ProductID: productID,
			BidderID:  bidderID,
			Amount:    amount,
			CreatedAt: s.now(),
		}
		if err := tx.CreateBid(ctx, bid); err != nil {
			return err
		}
		if err := tx.UpdateHighestBid(ctx, productID, amount); err != nil {
			return err
		}

		result = PlaceBidResult{Accepted: true, Bid: bid, MinRequired: minimum}
		return nil
	})
	if err != nil {
		return PlaceBidResult{}, fmt.Errorf("service: failed to place bid on product %s by user %s: %w", productID, bidderID, err)
	}

	return result, nil
}

func outcome(result PlaceBidResult, err error) string {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case result.Accepted:
		return metrics.OutcomeAccepted
	default:
		return metrics.OutcomeRejected
	}
}

// CreateProduct lists a new product for sellerID
func (s *BiddingService) CreateProduct(ctx context.Context, sellerID string, input model.ProductInput) (model.Product, error) {
	if sellerID == "" {
		return model.Product{}, fmt.Errorf("service: %w - missing sellerID", biddingerrors.ErrInvalidProduct)
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return model.Product{}, fmt.Errorf("service: %w - title is required", biddingerrors.ErrInvalidProduct)
	}
	if err := ValidateAmount(input.StartingBid); err != nil {
		return model.Product{}, fmt.Errorf("service: %w - starting bid: %w", biddingerrors.ErrInvalidProduct, err)
	}

	product := model.Product{
		ProductID:         utils.GenerateID(),
		SellerID:          sellerID,
		Title:             title,
		Description:       input.Description,
		Location:          input.Location,
		ImageURL:          input.ImageURL,
		StartingBid:       input.StartingBid,
		CurrentHighestBid: input.StartingBid,
		CreatedAt:         s.now(),
	}

	if err := s.repo.CreateProduct(ctx, product); err != nil {
		return model.Product{}, fmt.Errorf("service: failed to create product for seller %s: %w", sellerID, err)
	}
	return product, nil
}

// GetProduct returns a product. Its CurrentHighestBid is advisory.
func (s *BiddingService) GetProduct(ctx context.Context, productID string) (model.Product, error) {
	if productID == "" {
		return model.Product{}, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidProduct)
	}

	product, err := s.repo.GetProduct(ctx, productID)
	if err != nil {
		return model.Product{}, fmt.Errorf("service: failed to get product %s: %w", productID, err)
	}
	return product, nil
}

// ListProducts returns every listed product
func (s *BiddingService) ListProducts(ctx context.Context) ([]model.Product, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list products: %w", err)
	}
	return products, nil
}

// ListProductsBySeller returns the products a seller has listed
func (s *BiddingService) ListProductsBySeller(ctx context.Context, sellerID string) ([]model.Product, error) {
	if sellerID == "" {
		return nil, fmt.Errorf("service: %w - empty seller ID", biddingerrors.ErrInvalidProduct)
	}

	products, err := s.repo.ListProductsBySeller(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list products for seller %s: %w", sellerID, err)
	}
	return products, nil
}

// DeleteProduct removes a product and its bids. Only the seller may delete it.
func (s *BiddingService) DeleteProduct(ctx context.Context, productID, sellerID string) error {
	if productID == "" || sellerID == "" {
		return fmt.Errorf("service: %w - missing productID or sellerID", biddingerrors.ErrInvalidProduct)
	}

	if err := s.repo.DeleteProduct(ctx, productID, sellerID); err != nil {
		return fmt.Errorf("service: failed to delete product %s: %w", productID, err)
	}
	return nil
}

// GetBidsForProduct returns all bids for a product, highest first
func (s *BiddingService) GetBidsForProduct(ctx context.Context, productID string) ([]model.Bid, error) {
	if productID == "" {
		return nil, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidBid)
	}

	bids, err := s.repo.GetBidsByProduct(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for product %s: %w", productID, err)
	}
	return bids, nil
}

// GetWinningBid returns the highest bid for a product
func (s *BiddingService) GetWinningBid(ctx context.Context, productID string) (model.Bid, error) {
	if productID == "" {
		return model.Bid{}, fmt.Errorf("service: %w - empty product ID", biddingerrors.ErrInvalidBid)
	}

	winningBid, err := s.repo.GetWinningBid(ctx, productID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("service: failed to get winning bid for product %s: %w", productID, err)
	}
	return winningBid, nil
}

// GetProductsByBidder returns all products a user has placed bids on
func (s *BiddingService) GetProductsByBidder(ctx context.Context, bidderID string) ([]model.Product, error) {
	if bidderID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	products, err := s.repo.GetProductsByBidder(ctx, bidderID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get products for user %s: %w", bidderID, err)
	}
	return products, nil
}
