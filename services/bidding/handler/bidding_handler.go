package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/auth"
	bidding "auction-engine/internal/biddingService"
	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=bidding_handler.go -destination=mock_handler.go -package=handler

type BiddingServiceInterface interface {
	PlaceBid(ctx context.Context, productID, bidderID string, amount decimal.Decimal) (bidding.PlaceBidResult, error)
	GetBidsForProduct(ctx context.Context, productID string) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, productID string) (model.Bid, error)
	GetProductsByBidder(ctx context.Context, bidderID string) ([]model.Product, error)

	CreateProduct(ctx context.Context, sellerID string, input model.ProductInput) (model.Product, error)
	GetProduct(ctx context.Context, productID string) (model.Product, error)
	ListProducts(ctx context.Context) ([]model.Product, error)
	ListProductsBySeller(ctx context.Context, sellerID string) ([]model.Product, error)
	DeleteProduct(ctx context.Context, productID, sellerID string) error
}

type BiddingHandler struct {
	service BiddingServiceInterface
}

func NewBiddingHandler(service BiddingServiceInterface) *BiddingHandler {
	return &BiddingHandler{service: service}
}

// callerID returns the authenticated user, writing a 401 when there is none.
func callerID(c *gin.Context, handlerName string) (string, bool) {
	userID := auth.UserID(c.Request.Context())
	if userID == "" {
		utils.JSONError(c, http.StatusUnauthorized, biddingerrors.ErrUnauthorized, "authentication required")
		utils.Warn(handlerName+": unauthenticated request", map[string]any{"path": c.Request.URL.Path})
		return "", false
	}
	return userID, true
}

// pathProductID returns the :product_id path parameter. Ids that could never have been
// issued get a 404 without touching storage.
func pathProductID(c *gin.Context) (string, bool) {
	id := c.Param("product_id")
	if !utils.IsValidID(id) {
		utils.JSONError(c, http.StatusNotFound, biddingerrors.ErrProductNotFound, "product not found")
		return "", false
	}
	return id, true
}

// PlaceBidHandler handles POST /products/:product_id/bids
func (h *BiddingHandler) PlaceBidHandler(c *gin.Context) {
	bidderID, ok := callerID(c, "PlaceBidHandler")
	if !ok {
		return
	}
	productID, ok := pathProductID(c)
	if !ok {
		return
	}

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	amount, err := helpers.ParseAmount(req.Amount.String())
	if err == nil {
		var result bidding.PlaceBidResult
		result, err = h.service.PlaceBid(c.Request.Context(), productID, bidderID, amount)
		if err == nil {
			h.writeBidResult(c, productID, bidderID, amount, result)
			return
		}
	}

	status, message := helpers.MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	helpers.LogFailure("PlaceBidHandler", "failed to place bid", status, map[string]any{
		"status":     status,
		"product_id": productID,
		"user_id":    bidderID,
		"amount":     req.Amount.String(),
		"error":      err.Error(),
	})
}

func (h *BiddingHandler) writeBidResult(c *gin.Context, productID, bidderID string, amount decimal.Decimal, result bidding.PlaceBidResult) {
	if !result.Accepted {
		detail := helpers.RejectionDetail(result.MinRequired)
		utils.JSONErrorWithDetail(c, http.StatusBadRequest, errors.New(detail), "bid rejected", gin.H{
			"detail":       detail,
			"min_required": result.MinRequired.StringFixed(2),
		})
		utils.Info("PlaceBidHandler: bid rejected", map[string]any{
			"product_id":   productID,
			"user_id":      bidderID,
			"amount":       amount.String(),
			"min_required": result.MinRequired.String(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToBidResponse(result.Bid), "bid placed successfully")
	helpers.LogSuccess("PlaceBidHandler", "bid placed successfully", map[string]any{
		"bid_id":     result.Bid.BidID,
		"product_id": productID,
		"user_id":    bidderID,
		"amount":     result.Bid.Amount.String(),
	})
}

// GetBidsByProductHandler handles GET /products/:product_id/bids
func (h *BiddingHandler) GetBidsByProductHandler(c *gin.Context) {
	productID, ok := pathProductID(c)
	if !ok {
		return
	}

	bids, err := h.service.GetBidsForProduct(c.Request.Context(), productID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetBidsByProductHandler: error retrieving bids", map[string]any{"product_id": productID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponses(bids), "bids retrieved successfully")
	helpers.LogSuccess("GetBidsByProductHandler", "bids retrieved successfully", map[string]any{
		"product_id": productID,
		"count":      len(bids),
	})
}

// GetWinningBidHandler handles GET /products/:product_id/winning
func (h *BiddingHandler) GetWinningBidHandler(c *gin.Context) {
	productID, ok := pathProductID(c)
	if !ok {
		return
	}

	bid, err := h.service.GetWinningBid(c.Request.Context(), productID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrNoBids) {
			utils.JSONError(c, http.StatusNotFound, err, "no winning bid found")
			utils.Info("GetWinningBidHandler: no winning bid found", map[string]any{"product_id": productID})
			return
		}
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetWinningBidHandler: winning bid error", map[string]any{"product_id": productID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
	helpers.LogSuccess("GetWinningBidHandler", "winning bid retrieved successfully", map[string]any{
		"bid_id":     bid.BidID,
		"product_id": productID,
		"user_id":    bid.BidderID,
		"amount":     bid.Amount.String(),
	})
}

// GetProductsByBidderHandler handles GET /users/:user_id/bids
func (h *BiddingHandler) GetProductsByBidderHandler(c *gin.Context) {
	userID := c.Param("user_id")
	products, err := h.service.GetProductsByBidder(c.Request.Context(), userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetProductsByBidderHandler: error retrieving products", map[string]any{"user_id": userID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProductResponses(products), "products retrieved successfully")
	helpers.LogSuccess("GetProductsByBidderHandler", "products retrieved successfully", map[string]any{
		"user_id":        userID,
		"products_count": len(products),
	})
}
