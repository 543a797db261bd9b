// Package money implements the scale-8 fixed-point arithmetic used for every
// monetary and quantity value in the exchange: balances, asset amounts,
// order prices/amounts, and trade totals. It wraps shopspring/decimal so the
// rest of the codebase never touches binary floating point.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits carried by every decimal value
// in the system.
const Scale = 8

// CommissionRate is the fixed 1.5% fee charged to the buyer on the notional
// of each executed order.
var CommissionRate = decimal.NewFromFloat(0.015)

// Zero is the scale-8 zero value.
var Zero = decimal.Zero

// ArithmeticError is returned when a monetary value cannot be parsed.
type ArithmeticError struct {
	Input string
	Err   error
}

func (e *ArithmeticError) Error() string {
	return fmt.Sprintf("money: invalid decimal %q: %v", e.Input, e.Err)
}

func (e *ArithmeticError) Unwrap() error { return e.Err }

// Parse converts a string into a scale-8 decimal. It fails only on
// malformed input; it never promotes to binary floating point.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &ArithmeticError{Input: s, Err: err}
	}
	return d.Truncate(Scale), nil
}

// Add returns a+b truncated to scale 8.
func Add(a, b decimal.Decimal) decimal.Decimal {
	return a.Add(b).Truncate(Scale)
}

// Sub returns a-b truncated to scale 8.
func Sub(a, b decimal.Decimal) decimal.Decimal {
	return a.Sub(b).Truncate(Scale)
}

// Mul returns a*b truncated to scale 8, toward zero.
func Mul(a, b decimal.Decimal) decimal.Decimal {
	return a.Mul(b).Truncate(Scale)
}

// Cmp compares a and b, returning -1, 0, or 1.
func Cmp(a, b decimal.Decimal) int {
	return a.Cmp(b)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

// Notional returns price*amount truncated to scale 8.
func Notional(price, amount decimal.Decimal) decimal.Decimal {
	return Mul(price, amount)
}

// Commission returns the 1.5% fee on a notional, truncated to scale 8.
func Commission(notional decimal.Decimal) decimal.Decimal {
	return Mul(notional, CommissionRate)
}

// WithCommission returns notional + Commission(notional), i.e. the total a
// buyer must reserve or pay for that notional.
func WithCommission(notional decimal.Decimal) decimal.Decimal {
	return Add(notional, Commission(notional))
}

// IsPositive reports whether d > 0.
func IsPositive(d decimal.Decimal) bool {
	return d.Sign() > 0
}

// IsNegative reports whether d < 0.
func IsNegative(d decimal.Decimal) bool {
	return d.Sign() < 0
}
