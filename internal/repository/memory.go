package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/lockmap"
	model "auction-engine/internal/models"
	"auction-engine/internal/syncutils"

	"github.com/shopspring/decimal"
)

// MemoryRepo is a concurrency-safe in-memory implementation of Ledger.
// Each product has its own lock; transactions stage writes and apply them on commit.
type MemoryRepo struct {
	mu           syncutils.RWMutex
	products     map[string]model.Product // key: productID -> value: product
	order        []string                 // productIDs in creation order
	bids         map[string][]model.Bid   // key: productID -> value: bids in commit order
	userProducts map[string][]string      // key: bidderID -> value: productIDs the user has bid on

	locks *lockmap.Map
	opts  Options
}

var _ Ledger = (*MemoryRepo)(nil)

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo(opts ...Option) *MemoryRepo {
	return &MemoryRepo{
		products:     make(map[string]model.Product),
		bids:         make(map[string][]model.Bid),
		userProducts: make(map[string][]string),
		locks:        lockmap.New(),
		opts:         ApplyOptions(opts...),
	}
}

// WithinTx runs fn against a staged transaction
func (r *MemoryRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error {
	tx := &memoryTx{
		repo:    r,
		held:    make(map[string]func()),
		highest: make(map[string]decimal.Decimal),
	}
	defer tx.releaseAll()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// CreateProduct stores a new product
func (r *MemoryRepo) CreateProduct(_ context.Context, product model.Product) error {
	if product.ProductID == "" {
		return fmt.Errorf("create product: %w - missing product id", biddingerrors.ErrInvalidProduct)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.products[product.ProductID]; exists {
		return fmt.Errorf("create product %s: %w - duplicate id", product.ProductID, biddingerrors.ErrStorage)
	}
	r.products[product.ProductID] = product
	r.order = append(r.order, product.ProductID)
	return nil
}

// GetProduct returns a product snapshot
func (r *MemoryRepo) GetProduct(_ context.Context, productID string) (model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[productID]
	if !ok {
		return model.Product{}, fmt.Errorf("get product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	return product, nil
}

// ListProducts returns all products in creation order
func (r *MemoryRepo) ListProducts(_ context.Context) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]model.Product, 0, len(r.order))
	for _, id := range r.order {
		products = append(products, r.products[id])
	}
	return products, nil
}

// ListProductsBySeller returns the products a seller has listed
func (r *MemoryRepo) ListProductsBySeller(_ context.Context, sellerID string) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	products := make([]model.Product, 0)
	for _, id := range r.order {
		if p := r.products[id]; p.SellerID == sellerID {
			products = append(products, p)
		}
	}
	return products, nil
}

// DeleteProduct removes a product and its bids. It waits for the product lock so an
// in-flight bid transaction finishes first.
func (r *MemoryRepo) DeleteProduct(ctx context.Context, productID, sellerID string) error {
	release, err := r.lockProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("delete product %s: %w", productID, err)
	}
	defer release()

	r.mu.Lock()
	defer r.mu.Unlock()

	product, ok := r.products[productID]
	if !ok {
		return fmt.Errorf("delete product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}
	if product.SellerID != sellerID {
		return fmt.Errorf("delete product %s: %w", productID, biddingerrors.ErrForbidden)
	}

	for _, bid := range r.bids[productID] {
		r.userProducts[bid.BidderID] = removeID(r.userProducts[bid.BidderID], productID)
		if len(r.userProducts[bid.BidderID]) == 0 {
			delete(r.userProducts, bid.BidderID)
		}
	}
	delete(r.bids, productID)
	delete(r.products, productID)
	r.order = removeID(r.order, productID)
	return nil
}

// GetBidsByProduct returns all bids for a product, highest first
func (r *MemoryRepo) GetBidsByProduct(_ context.Context, productID string) ([]model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.products[productID]; !ok {
		return nil, fmt.Errorf("get bids for product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}

	bids := append([]model.Bid{}, r.bids[productID]...)
	sortBids(bids)
	return bids, nil
}

// GetWinningBid returns the highest bid for a product
func (r *MemoryRepo) GetWinningBid(_ context.Context, productID string) (model.Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.products[productID]; !ok {
		return model.Bid{}, fmt.Errorf("get winning bid for product %s: %w", productID, biddingerrors.ErrProductNotFound)
	}

	bids := r.bids[productID]
	if len(bids) == 0 {
		return model.Bid{}, fmt.Errorf("get winning bid for product %s: %w", productID, biddingerrors.ErrNoBids)
	}

	winning := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(winning.Amount) || (b.Amount.Equal(winning.Amount) && b.CreatedAt.Before(winning.CreatedAt)) {
			winning = b
		}
	}
	return winning, nil
}

// GetProductsByBidder returns all products a user has bid on
func (r *MemoryRepo) GetProductsByBidder(_ context.Context, bidderID string) ([]model.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	productIDs, ok := r.userProducts[bidderID]
	if !ok || len(productIDs) == 0 {
		return nil, fmt.Errorf("get products for bidder %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}

	products := make([]model.Product, 0, len(productIDs))
	for _, id := range productIDs {
		if product, exists := r.products[id]; exists {
			products = append(products, product)
		}
	}
	return products, nil
}

// Close is a no-op for the in-memory store
func (r *MemoryRepo) Close() error {
	return nil
}

func (r *MemoryRepo) lockProduct(ctx context.Context, productID string) (func(), error) {
	release, err := r.locks.Acquire(ctx, productID, r.opts.LockTimeout)
	if errors.Is(err, lockmap.ErrWaitTimeout) {
		return nil, biddingerrors.ErrLockTimeout
	}
	return release, err
}

type memoryTx struct {
	repo    *MemoryRepo
	held    map[string]func()
	staged  []model.Bid
	highest map[string]decimal.Decimal
}

func (tx *memoryTx) GetProductForUpdate(ctx context.Context, productID string) (model.Product, error) {
	if _, ok := tx.held[productID]; !ok {
		release, err := tx.repo.lockProduct(ctx, productID)
		if err != nil {
			return model.Product{}, fmt.Errorf("lock product %s: %w", productID, err)
		}
		tx.held[productID] = release
	}

	product, err := tx.repo.GetProduct(ctx, productID)
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

func (tx *memoryTx) MaxBidAmount(_ context.Context, productID string) (decimal.NullDecimal, error) {
	var highest decimal.NullDecimal

	consider := func(amount decimal.Decimal) {
		if !highest.Valid || amount.GreaterThan(highest.Decimal) {
			highest = decimal.NullDecimal{Decimal: amount, Valid: true}
		}
	}

	tx.repo.mu.RLock()
	for _, b := range tx.repo.bids[productID] {
		consider(b.Amount)
	}
	tx.repo.mu.RUnlock()

	for _, b := range tx.staged {
		if b.ProductID == productID {
			consider(b.Amount)
		}
	}
	return highest, nil
}

func (tx *memoryTx) CreateBid(_ context.Context, bid model.Bid) error {
	if _, ok := tx.held[bid.ProductID]; !ok {
		return fmt.Errorf("record bid for product %s: %w - product not locked", bid.ProductID, biddingerrors.ErrStorage)
	}
	tx.staged = append(tx.staged, bid)
	return nil
}

func (tx *memoryTx) UpdateHighestBid(_ context.Context, productID string, amount decimal.Decimal) error {
	if _, ok := tx.held[productID]; !ok {
		return fmt.Errorf("update highest bid for product %s: %w - product not locked", productID, biddingerrors.ErrStorage)
	}
	tx.highest[productID] = amount
	return nil
}

// commit applies staged writes under the map guard so readers never observe a bid
// without its matching highest-bid update.
func (tx *memoryTx) commit() {
	if len(tx.staged) == 0 && len(tx.highest) == 0 {
		return
	}

	r := tx.repo
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, bid := range tx.staged {
		r.bids[bid.ProductID] = append(r.bids[bid.ProductID], bid)
		if !containsID(r.userProducts[bid.BidderID], bid.ProductID) {
			r.userProducts[bid.BidderID] = append(r.userProducts[bid.BidderID], bid.ProductID)
		}
	}
	for productID, amount := range tx.highest {
		product := r.products[productID]
		product.CurrentHighestBid = amount
		r.products[productID] = product
	}
}

func (tx *memoryTx) releaseAll() {
	for id, release := range tx.held {
		release()
		delete(tx.held, id)
	}
}

func sortBids(bids []model.Bid) {
	sort.SliceStable(bids, func(i, j int) bool {
		if !bids[i].Amount.Equal(bids[j].Amount) {
			return bids[i].Amount.GreaterThan(bids[j].Amount)
		}
		return bids[i].CreatedAt.Before(bids[j].CreatedAt)
	})
}

func containsID(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, existing := range ids {
		if existing != id {
			out = append(out, existing)
		}
	}
	return out
}
