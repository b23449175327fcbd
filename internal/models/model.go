package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a participant in the auction
type User struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Product represents an item listed for auction by a seller.
// CurrentHighestBid is a denormalized copy of the best accepted bid (or StartingBid
// when no bid exists). Values read outside a bid transaction are advisory.
type Product struct {
	ProductID         string          `json:"id"`
	SellerID          string          `json:"seller_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	Location          string          `json:"location"`
	ImageURL          string          `json:"image_url"`
	StartingBid       decimal.Decimal `json:"starting_bid"`
	CurrentHighestBid decimal.Decimal `json:"current_highest_bid"`
	CreatedAt         time.Time       `json:"created_at"`
}

// ProductInput carries the seller-supplied fields for a product listing
type ProductInput struct {
	Title       string
	Description string
	Location    string
	ImageURL    string
	StartingBid decimal.Decimal
}

// Bid represents a user's accepted bid on a product
type Bid struct {
	BidID     string          `json:"id"`
	ProductID string          `json:"product_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}
