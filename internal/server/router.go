package server

import (
	"net/http"

	"auction-engine/internal/auth"
	"auction-engine/internal/metrics"
	handler "auction-engine/services/bidding/handler"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the router wires into handlers and middleware.
// Gatherer may be nil, in which case /metrics is not served.
type Deps struct {
	Service    handler.BiddingServiceInterface
	JWTManager *auth.JWTManager
	Metrics    *metrics.Metrics
	Gatherer   prometheus.Gatherer
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(deps Deps) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(MetricsMiddleware(deps.Metrics))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	biddingHandler := handler.NewBiddingHandler(deps.Service)
	requireAuth := RequireAuth(deps.JWTManager)

	products := router.Group("/products")
	{
		products.GET("", biddingHandler.ListProductsHandler)
		products.POST("", requireAuth, biddingHandler.CreateProductHandler)
		products.GET("/:product_id", biddingHandler.GetProductHandler)
		products.DELETE("/:product_id", requireAuth, biddingHandler.DeleteProductHandler)
		products.POST("/:product_id/bids", requireAuth, biddingHandler.PlaceBidHandler)
		products.GET("/:product_id/bids", biddingHandler.GetBidsByProductHandler)
		products.GET("/:product_id/winning", biddingHandler.GetWinningBidHandler)
	}

	users := router.Group("/users")
	{
		users.GET("/:user_id/products", biddingHandler.GetProductsBySellerHandler)
		users.GET("/:user_id/bids", biddingHandler.GetProductsByBidderHandler)
	}

	return router
}
