package handler

import (
	"fmt"
	"net/http"

	model "auction-engine/internal/models"
	"auction-engine/services/bidding/helpers"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// CreateProductHandler handles POST /products
func (h *BiddingHandler) CreateProductHandler(c *gin.Context) {
	sellerID, ok := callerID(c, "CreateProductHandler")
	if !ok {
		return
	}

	var req helpers.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateProductHandler", err)
		return
	}

	startingBid, err := helpers.ParseAmount(req.StartingBid.String())
	if err != nil {
		helpers.HandleBindError(c, "CreateProductHandler", err)
		return
	}

	product, err := h.service.CreateProduct(c.Request.Context(), sellerID, model.ProductInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		StartingBid: startingBid,
	})
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		helpers.LogFailure("CreateProductHandler", "failed to create product", status, map[string]any{
			"status":    status,
			"seller_id": sellerID,
			"error":     err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.ToProductResponse(product), "product created successfully")
	helpers.LogSuccess("CreateProductHandler", "product created successfully", map[string]any{
		"product_id":   product.ProductID,
		"seller_id":    sellerID,
		"starting_bid": product.StartingBid.String(),
	})
}

// ListProductsHandler handles GET /products
func (h *BiddingHandler) ListProductsHandler(c *gin.Context) {
	products, err := h.service.ListProducts(c.Request.Context())
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("ListProductsHandler: error listing products", map[string]any{"error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProductResponses(products), "products retrieved successfully")
}

// GetProductHandler handles GET /products/:product_id
func (h *BiddingHandler) GetProductHandler(c *gin.Context) {
	productID, ok := pathProductID(c)
	if !ok {
		return
	}

	product, err := h.service.GetProduct(c.Request.Context(), productID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetProductHandler: error retrieving product", map[string]any{"product_id": productID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProductResponse(product), "product retrieved successfully")
}

// DeleteProductHandler handles DELETE /products/:product_id
func (h *BiddingHandler) DeleteProductHandler(c *gin.Context) {
	sellerID, ok := callerID(c, "DeleteProductHandler")
	if !ok {
		return
	}
	productID, ok := pathProductID(c)
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(c.Request.Context(), productID, sellerID); err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("DeleteProductHandler: failed to delete product", map[string]any{
			"product_id": productID,
			"user_id":    sellerID,
			"error":      err.Error(),
		})
		return
	}

	utils.JSONResponse(c, http.StatusOK, gin.H{"id": productID}, "product deleted successfully")
	helpers.LogSuccess("DeleteProductHandler", "product deleted successfully", map[string]any{
		"product_id": productID,
		"seller_id":  sellerID,
	})
}

// GetProductsBySellerHandler handles GET /users/:user_id/products
func (h *BiddingHandler) GetProductsBySellerHandler(c *gin.Context) {
	sellerID := c.Param("user_id")
	products, err := h.service.ListProductsBySeller(c.Request.Context(), sellerID)
	if err != nil {
		status, message := helpers.MapErrorToHTTP(err)
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
		utils.Warn("GetProductsBySellerHandler: error listing products", map[string]any{"seller_id": sellerID, "error": err.Error()})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToProductResponses(products), "products retrieved successfully")
}
