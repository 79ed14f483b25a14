package amm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Fraction is an unsigned num/denom pair. Denom must be non-zero.
type Fraction struct {
	Num   uint64 `json:"num"`
	Denom uint64 `json:"denom"`
}

// Valid reports whether the fraction has a non-zero denominator and does not exceed one.
func (f Fraction) Valid() bool {
	return f.Denom != 0 && f.Num <= f.Denom
}

// Apply returns floor(x * Num / Denom).
func (f Fraction) Apply(x uint64) (uint64, error) {
	return mulDiv(x, f.Num, f.Denom)
}

func (f Fraction) String() string {
	return fmt.Sprintf("%d/%d", f.Num, f.Denom)
}

// mulDiv returns floor(a * b / d). The product is formed in 256 bits, so only a
// quotient that does not fit in uint64 overflows.
func mulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivisionByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := product.Div(product, uint256.NewInt(d))
	if !quotient.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d / %d", ErrOverflow, a, b, d)
	}
	return quotient.Uint64(), nil
}

// sqrtProduct returns floor(sqrt(a * b)), which always fits in uint64.
func sqrtProduct(a, b uint64) uint64 {
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	return product.Sqrt(product).Uint64()
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum.Uint64(), nil
}

func checkedSub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, a, b)
	}
	return a - b, nil
}
