// Package amount provides the fixed-width, checked-arithmetic numeric types
// used across the bridge core: Amount for backing-chain and DOT denominated
// balances, and Ratio/SignedRatio for collateralization thresholds and fee
// rates.
package amount

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned by any Amount operation whose result does not fit
// in 256 bits.
var ErrOverflow = errors.New("amount: arithmetic overflow")

// ErrUnderflow is returned by any Amount subtraction whose result would be
// negative.
var ErrUnderflow = errors.New("amount: arithmetic underflow")

// Amount is a non-negative, fixed-width integer denominated in either
// backing-chain satoshis or DOT base units, depending on context. It wraps
// uint256.Int so that every addition, subtraction, multiplication and
// division is checked rather than silently wrapping.
type Amount struct {
	v uint256.Int
}

// Zero is the additive identity.
var Zero = Amount{}

// New builds an Amount from a uint64.
func New(v uint64) Amount {
	var a Amount
	a.v.SetUint64(v)
	return a
}

// FromString builds an Amount from a decimal string, rejecting negative or
// out-of-range values.
func FromString(s string) (Amount, error) {
	var a Amount
	if _, ok := a.v.SetString(s, 10); !ok {
		return Zero, fmt.Errorf("amount: invalid decimal string %q", s)
	}
	return a, nil
}

// Uint64 returns the value as a uint64, or an error if it does not fit
// (the value is never truncated); callers must
// only use this at the boundary with external systems that require it (e.g.
// a backing-chain transaction's satoshi output).
func (a Amount) Uint64() (uint64, error) {
	if !a.v.IsUint64() {
		return 0, fmt.Errorf("amount: %s does not fit in uint64", a.v.String())
	}
	return a.v.Uint64(), nil
}

// String renders the decimal representation.
func (a Amount) String() string {
	return a.v.String()
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.v.IsZero()
}

// Cmp compares two amounts, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.v.Cmp(&b.v)
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.Cmp(b) < 0
}

// LessOrEqual reports whether a <= b.
func (a Amount) LessOrEqual(b Amount) bool {
	return a.Cmp(b) <= 0
}

// GreaterOrEqual reports whether a >= b.
func (a Amount) GreaterOrEqual(b Amount) bool {
	return a.Cmp(b) >= 0
}

// Add returns a+b, or ErrOverflow if the sum does not fit in 256 bits.
func (a Amount) Add(b Amount) (Amount, error) {
	var out Amount
	_, overflow := out.v.AddOverflow(&a.v, &b.v)
	if overflow {
		return Zero, ErrOverflow
	}
	return out, nil
}

// Sub returns a-b, or ErrUnderflow if b > a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.LessThan(b) {
		return Zero, ErrUnderflow
	}
	var out Amount
	out.v.Sub(&a.v, &b.v)
	return out, nil
}

// SaturatingSub returns a-b, or zero if b > a. Used only where a saturating
// assertion is explicitly called for (e.g. issue_tokens moving to_be_issued
// -> issued) rather than a hard failure.
func (a Amount) SaturatingSub(b Amount) Amount {
	if a.LessThan(b) {
		return Zero
	}
	out, _ := a.Sub(b)
	return out
}

// Mul returns a*b, or ErrOverflow on overflow.
func (a Amount) Mul(b Amount) (Amount, error) {
	var out Amount
	_, overflow := out.v.MulOverflow(&a.v, &b.v)
	if overflow {
		return Zero, ErrOverflow
	}
	return out, nil
}

// MulRatio returns the floor of a*r, checked for overflow. This is the core
// operation behind every threshold/fee computation in the bridge.
func (a Amount) MulRatio(r Ratio) (Amount, error) {
	return r.ApplyTo(a)
}

// MulDivFloor returns floor(a*num/den), checked for overflow and
// division-by-zero. Used for the liquidation pro-rata collateral split,
// which is specified as an integer-division floor.
func (a Amount) MulDivFloor(num, den Amount) (Amount, error) {
	if den.IsZero() {
		return Zero, fmt.Errorf("amount: division by zero")
	}
	var wide, n uint256.Int
	_, overflow := wide.MulOverflow(&a.v, &num.v)
	if overflow {
		// The 256-bit intermediate product overflowed; amounts in this
		// domain never approach that scale, but the arithmetic stays
		// checked rather than silently wrapping.
		return Zero, ErrOverflow
	}
	n.Div(&wide, &den.v)
	return Amount{v: n}, nil
}
