package amount

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// ray is the fixed-point scale, following the same RAY-scaled big.Int idiom
// used throughout the example corpus's DeFi accounting code for
// thresholds, close factors and protocol fees (10^27).
var ray = new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)

// Ratio is an unsigned fixed-point fraction with 27 decimal digits of
// precision, used for collateralization thresholds and fee rates. It is
// backed by math/big rather than a native float so that comparisons and
// products are exact.
type Ratio struct {
	scaled *big.Int // value * RAY
}

// RatioFromPermille builds a Ratio from an integer number of permille
// (thousandths), e.g. RatioFromPermille(500) == 0.5.
func RatioFromPermille(permille int64) Ratio {
	scaled := new(big.Int).Mul(big.NewInt(permille), ray)
	scaled.Div(scaled, big.NewInt(1000))
	return Ratio{scaled: scaled}
}

// RatioFromBasisPoints builds a Ratio from an integer number of basis
// points (1/10000), e.g. RatioFromBasisPoints(50) == 0.005.
func RatioFromBasisPoints(bps int64) Ratio {
	scaled := new(big.Int).Mul(big.NewInt(bps), ray)
	scaled.Div(scaled, big.NewInt(10000))
	return Ratio{scaled: scaled}
}

// RatioOne is the ratio 1.0.
var RatioOne = Ratio{scaled: new(big.Int).Set(ray)}

// Cmp compares two ratios, returning -1, 0 or 1.
func (r Ratio) Cmp(other Ratio) int {
	return r.scaled.Cmp(other.scaled)
}

// GreaterOrEqual reports whether r >= other.
func (r Ratio) GreaterOrEqual(other Ratio) bool {
	return r.Cmp(other) >= 0
}

// String renders the ratio as a decimal string rounded to 9 decimal places,
// e.g. "1.500000000".
func (r Ratio) String() string {
	q := new(big.Rat).SetFrac(r.scaled, ray)
	return q.FloatString(9)
}

// ApplyTo computes floor(amount * r), checked for overflow.
func (r Ratio) ApplyTo(a Amount) (Amount, error) {
	amountBig := new(big.Int).SetBytes(a.v.Bytes())
	product := new(big.Int).Mul(amountBig, r.scaled)
	product.Div(product, ray)

	var out uint256.Int
	if product.Sign() < 0 {
		return Zero, fmt.Errorf("amount: ratio application produced a negative value")
	}
	if product.BitLen() > 256 {
		return Zero, ErrOverflow
	}
	out.SetBytes(product.Bytes())
	return Amount{v: out}, nil
}

// AddOne returns r+1, used to build the "1+rate" denominator the issue
// engine needs when rewriting an overpaid request's fee/amount split.
func (r Ratio) AddOne() Ratio {
	return Ratio{scaled: new(big.Int).Add(r.scaled, ray)}
}

// DivInto computes floor(a / r), checked for overflow and division by a
// zero ratio.
func (r Ratio) DivInto(a Amount) (Amount, error) {
	if r.scaled.Sign() == 0 {
		return Zero, fmt.Errorf("amount: division by zero ratio")
	}
	amountBig := new(big.Int).SetBytes(a.v.Bytes())
	product := new(big.Int).Mul(amountBig, ray)
	product.Div(product, r.scaled)

	var out uint256.Int
	if product.Sign() < 0 {
		return Zero, fmt.Errorf("amount: ratio division produced a negative value")
	}
	if product.BitLen() > 256 {
		return Zero, ErrOverflow
	}
	out.SetBytes(product.Bytes())
	return Amount{v: out}, nil
}

// SignedRatio is a signed fixed-point quantity used for SLA deltas, which
// may be negative (penalties) but saturate at zero on the floor.
type SignedRatio struct {
	scaled *big.Int
}

// SignedRatioFromPermille builds a signed ratio, e.g. -50 -> -0.05.
func SignedRatioFromPermille(permille int64) SignedRatio {
	scaled := new(big.Int).Mul(big.NewInt(permille), ray)
	scaled.Div(scaled, big.NewInt(1000))
	return SignedRatio{scaled: scaled}
}

// Add returns the sum of two signed ratios.
func (s SignedRatio) Add(other SignedRatio) SignedRatio {
	return SignedRatio{scaled: new(big.Int).Add(s.scaled, other.scaled)}
}

// FloorAtZero returns s, or zero if s is negative.
func (s SignedRatio) FloorAtZero() SignedRatio {
	if s.scaled.Sign() < 0 {
		return SignedRatio{scaled: new(big.Int)}
	}
	return s
}

// Sign reports the sign of the ratio: -1, 0 or 1.
func (s SignedRatio) Sign() int {
	return s.scaled.Sign()
}

// String renders the signed ratio as a decimal string.
func (s SignedRatio) String() string {
	q := new(big.Rat).SetFrac(s.scaled, ray)
	return q.FloatString(9)
}
