package helpers

import (
	"encoding/json"
	"time"

	model "auction-engine/internal/models"
)

// Request/Response DTOs

// PlaceBidRequest accepts the amount as a JSON number or a decimal string
type PlaceBidRequest struct {
	Amount json.Number `json:"amount" binding:"required"`
}

type CreateProductRequest struct {
	Title       string      `json:"title" binding:"required,max=255"`
	Description string      `json:"description"`
	Location    string      `json:"location" binding:"max=255"`
	ImageURL    string      `json:"image_url" binding:"omitempty,url"`
	StartingBid json.Number `json:"starting_bid" binding:"required"`
}

// Money is rendered as a fixed two-decimal string so clients never see float rounding
type BidResponse struct {
	BidID     string `json:"id"`
	ProductID string `json:"product_id"`
	BidderID  string `json:"bidder_id"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

type ProductResponse struct {
	ProductID         string `json:"id"`
	SellerID          string `json:"seller_id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	Location          string `json:"location"`
	ImageURL          string `json:"image_url"`
	StartingBid       string `json:"starting_bid"`
	CurrentHighestBid string `json:"current_highest_bid"`
	CreatedAt         string `json:"created_at"`
}

func ToBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		ProductID: bid.ProductID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount.StringFixed(2),
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func ToBidResponses(bids []model.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for _, b := range bids {
		out = append(out, ToBidResponse(b))
	}
	return out
}

func ToProductResponse(p model.Product) ProductResponse {
	return ProductResponse{
		ProductID:         p.ProductID,
		SellerID:          p.SellerID,
		Title:             p.Title,
		Description:       p.Description,
		Location:          p.Location,
		ImageURL:          p.ImageURL,
		StartingBid:       p.StartingBid.StringFixed(2),
		CurrentHighestBid: p.CurrentHighestBid.StringFixed(2),
		CreatedAt:         p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func ToProductResponses(products []model.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(products))
	for _, p := range products {
		out = append(out, ToProductResponse(p))
	}
	return out
}
