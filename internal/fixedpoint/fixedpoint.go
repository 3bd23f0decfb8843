// Package fixedpoint implements the 8-decimal integer arithmetic used for
// NAV, share counts and settlement amounts.
package fixedpoint

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits carried by a fixed-point value.
const Decimals = 8

// Scale represents 1.0.
const Scale int64 = 100_000_000

var scaleBig = big.NewInt(Scale)

// ScaleBig returns a fresh *big.Int holding Scale.
func ScaleBig() *big.Int {
	return new(big.Int).Set(scaleBig)
}

// MulDiv returns a*b/c, truncated toward zero.
func MulDiv(a, b, c *big.Int) *big.Int {
	if c.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// MulScaled returns a*b/Scale.
func MulScaled(a, b *big.Int) *big.Int {
	return MulDiv(a, b, scaleBig)
}

// Format renders a fixed-point value as a decimal string, e.g. 100041088 -> "1.00041088".
func Format(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -Decimals).StringFixed(Decimals)
}

// FormatInt is Format for int64 values such as NAV.
func FormatInt(v int64) string {
	return decimal.New(v, -Decimals).StringFixed(Decimals)
}

// Parse converts a decimal string ("1.5") into its fixed-point integer.
func Parse(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse fixed-point %q: %w", s, err)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("parse fixed-point %q: more than %d decimals", s, Decimals)
	}
	return scaled.BigInt(), nil
}

// ParseInt parses a base-10 integer string as stored in NUMERIC columns.
func ParseInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse integer %q", s)
	}
	return v, nil
}

// OrZero returns v, or a new zero value when v is nil.
func OrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
