package bidding

import (
	"fmt"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/shopspring/decimal"
)

// Money columns are DECIMAL(10,2): two fractional digits, at most eight integer digits.
// Inputs may carry up to moneyMaxExtraZeros trailing zeros past the scale ("1.5000").
const (
	moneyScale         = 2
	moneyMaxDigits     = 10
	moneyMaxExtraZeros = 18
)

var moneyUpperBound = decimal.New(1, moneyMaxDigits-moneyScale)

// MinimumAcceptableBid returns the amount a new bid must strictly exceed: the highest
// recorded bid, or the starting bid when there are none.
func MinimumAcceptableBid(product model.Product, observedMax decimal.NullDecimal) decimal.Decimal {
	if observedMax.Valid && observedMax.Decimal.GreaterThan(product.StartingBid) {
		return observedMax.Decimal
	}
	return product.StartingBid
}

// IsAcceptable reports whether proposed beats minimum. Equal amounts lose.
func IsAcceptable(proposed, minimum decimal.Decimal) bool {
	return proposed.GreaterThan(minimum)
}

// ValidateAmount checks that amount is a positive money value that fits the ledger.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w - amount must be positive", biddingerrors.ErrInvalidBid)
	}
	// Truncate and comparisons rescale by the exponent, so bound it first.
	if exp := amount.Exponent(); exp < -(moneyScale+moneyMaxExtraZeros) || exp > moneyMaxDigits {
		return fmt.Errorf("%w - amount is out of range", biddingerrors.ErrInvalidBid)
	}
	if !amount.Equal(amount.Truncate(moneyScale)) {
		return fmt.Errorf("%w - amount has more than %d decimal places", biddingerrors.ErrInvalidBid, moneyScale)
	}
	if !amount.LessThan(moneyUpperBound) {
		return fmt.Errorf("%w - amount exceeds %d digits", biddingerrors.ErrInvalidBid, moneyMaxDigits)
	}
	return nil
}
