package helpers

import (
	"errors"
	"fmt"
	"net/http"

	"auction-engine/internal/biddingerrors"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// ParseAmount converts a bound JSON number into a decimal. Malformed input wraps ErrInvalidBid.
func ParseAmount(n string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w - amount %q is not a decimal", biddingerrors.ErrInvalidBid, n)
	}
	return amount, nil
}

// RejectionDetail is the human-readable reason a bid lost
func RejectionDetail(minRequired decimal.Decimal) string {
	return fmt.Sprintf("Bid must be greater than %s.", minRequired.StringFixed(2))
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrProductNotFound):
		return http.StatusNotFound, "product not found"
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidProduct):
		return http.StatusBadRequest, "invalid product details"
	case errors.Is(err, biddingerrors.ErrUnauthorized):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "operation not permitted"
	case errors.Is(err, biddingerrors.ErrLockTimeout):
		return http.StatusServiceUnavailable, "product is busy, retry the request"
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusNotFound, "no bids found for product"
	case errors.Is(err, biddingerrors.ErrUserNoBids):
		return http.StatusOK, "no products found for user"
	case errors.Is(err, biddingerrors.ErrStorage):
		return http.StatusInternalServerError, "storage failure, retry the request"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

// LogFailure logs a failed operation at warn level for client errors and at error
// level once status is a server fault.
func LogFailure(handlerName, message string, status int, ctx map[string]any) {
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": "+message, ctx)
		return
	}
	utils.Warn(handlerName+": "+message, ctx)
}
