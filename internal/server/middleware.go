package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"auction-engine/internal/auth"
	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/metrics"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if userID := auth.UserID(c.Request.Context()); userID != "" {
		fields["user_id"] = userID
	}
	utils.Info("HTTP Request", fields)
}

// MetricsMiddleware counts requests by matched route so path parameters do not
// explode the label space.
func MetricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status())
	}
}

// RequireAuth validates the bearer token and stores the caller's user id on the
// request context. Requests without a valid token stop here with 401.
func RequireAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, auth.ErrMissingToken)
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abortUnauthorized(c, auth.ErrInvalidToken)
			return
		}

		claims, err := jwtManager.Validate(token)
		if err != nil {
			abortUnauthorized(c, err)
			return
		}

		c.Request = c.Request.WithContext(auth.WithUserID(c.Request.Context(), claims.UserID))
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, cause error) {
	utils.JSONError(c, http.StatusUnauthorized, fmt.Errorf("%w: %w", biddingerrors.ErrUnauthorized, cause), "authentication required")
	c.Abort()
	utils.Warn("RequireAuth: rejected request", map[string]any{
		"method": c.Request.Method,
		"path":   c.Request.URL.Path,
		"error":  cause.Error(),
	})
}
