// Package money provides fixed-precision amount helpers built on
// shopspring/decimal. All budget, transaction, and goal amounts in the
// system flow through these helpers so that conservation checks compare
// exact decimal values rather than floats.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Zero is the zero amount.
var Zero = decimal.Zero

// Parse parses an amount string into a decimal. It rejects values that
// are not valid decimal numbers.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParseNonNegative parses an amount string and rejects negative values.
func ParseNonNegative(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount %q must not be negative", s)
	}
	return d, nil
}

// ParsePositive parses an amount string and rejects zero and negative values.
func ParsePositive(s string) (decimal.Decimal, error) {
	d, err := Parse(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount %q must be greater than zero", s)
	}
	return d, nil
}

// Sum returns the exact sum of the given amounts.
func Sum(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Allocatable returns the usable remaining funds of a budget:
// amount + earned - spent.
func Allocatable(amount, earned, spent decimal.Decimal) decimal.Decimal {
	return amount.Add(earned).Sub(spent)
}
