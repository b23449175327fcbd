package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrProductNotFound = errors.New("product not found")
	ErrNoBids          = errors.New("no bids found for product")
	ErrUserNoBids      = errors.New("user has not placed any bids")
	ErrStorage         = errors.New("storage failure")
	ErrLockTimeout     = errors.New("timed out waiting for product lock")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrInvalidProduct = errors.New("invalid product")
	ErrForbidden      = errors.New("operation not permitted for this user")
)

// access errors
var (
	ErrUnauthorized = errors.New("authentication required")
)
