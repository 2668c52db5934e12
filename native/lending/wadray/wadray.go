// Package wadray implements the fixed-point arithmetic used by the lending
// core. Wads carry 18 decimals, rays 27 and percentages 4 (10000 = 100.00%).
// Every operation checks for overflow before computing and reports it as an
// error instead of wrapping.
package wadray

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrArithmeticOverflow is returned when an intermediate or final value
	// does not fit into 256 bits.
	ErrArithmeticOverflow = errors.New("wadray: arithmetic overflow")
	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("wadray: division by zero")
)

var (
	// Wad is one unit with 18 decimals of precision.
	Wad = *uint256.NewInt(1_000_000_000_000_000_000)
	// HalfWad is used for half-up rounding of wad results.
	HalfWad = *uint256.NewInt(500_000_000_000_000_000)
	// Ray is one unit with 27 decimals of precision.
	Ray = *uint256.MustFromDecimal("1000000000000000000000000000")
	// HalfRay is used for half-up rounding of ray results.
	HalfRay = *uint256.MustFromDecimal("500000000000000000000000000")
	// WadRayRatio converts between wads and rays.
	WadRayRatio = *uint256.NewInt(1_000_000_000)
	// MaxUint256 is the largest representable value. It doubles as the
	// "entire balance" sentinel for withdraw, repay and liquidation amounts.
	MaxUint256 = *new(uint256.Int).SetAllOne()
)

// One returns a fresh copy of one ray.
func One() *uint256.Int { return new(uint256.Int).Set(&Ray) }

// OneWad returns a fresh copy of one wad.
func OneWad() *uint256.Int { return new(uint256.Int).Set(&Wad) }

// Max returns a fresh copy of the maximum uint256 value.
func Max() *uint256.Int { return new(uint256.Int).Set(&MaxUint256) }

// IsMax reports whether v equals the maximum uint256 value.
func IsMax(v *uint256.Int) bool { return v != nil && v.Eq(&MaxUint256) }

// mulHalfUp computes (a*b + half) / unit after checking a > (MAX-half)/b.
func mulHalfUp(a, b, half, unit *uint256.Int) (*uint256.Int, error) {
	if !b.IsZero() {
		limit := new(uint256.Int).Sub(&MaxUint256, half)
		limit.Div(limit, b)
		if a.Gt(limit) {
			return nil, ErrArithmeticOverflow
		}
	}
	out := new(uint256.Int).Mul(a, b)
	out.Add(out, half)
	return out.Div(out, unit), nil
}

// divHalfUp computes (a*unit + b/2) / b after checking a > (MAX-b/2)/unit.
func divHalfUp(a, b, unit *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	halfB := new(uint256.Int).Rsh(b, 1)
	limit := new(uint256.Int).Sub(&MaxUint256, halfB)
	limit.Div(limit, unit)
	if a.Gt(limit) {
		return nil, ErrArithmeticOverflow
	}
	out := new(uint256.Int).Mul(a, unit)
	out.Add(out, halfB)
	return out.Div(out, b), nil
}

func checkedProduct(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

func ceilDiv(n, d *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(n, d, new(uint256.Int))
	if !r.IsZero() {
		q.AddUint64(q, 1)
	}
	return q
}

// WadMul multiplies two wads rounding half up.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulHalfUp(a, b, &HalfWad, &Wad)
}

// WadDiv divides two wads rounding half up.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divHalfUp(a, b, &Wad)
}

// RayMul multiplies two rays rounding half up.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulHalfUp(a, b, &HalfRay, &Ray)
}

// RayMulFloor multiplies two rays rounding down.
func RayMulFloor(a, b *uint256.Int) (*uint256.Int, error) {
	product, err := checkedProduct(a, b)
	if err != nil {
		return nil, err
	}
	return product.Div(product, &Ray), nil
}

// RayMulCeil multiplies two rays rounding up.
func RayMulCeil(a, b *uint256.Int) (*uint256.Int, error) {
	product, err := checkedProduct(a, b)
	if err != nil {
		return nil, err
	}
	return ceilDiv(product, &Ray), nil
}

// RayDiv divides two rays rounding half up.
func RayDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divHalfUp(a, b, &Ray)
}

// RayDivFloor divides two rays rounding down.
func RayDivFloor(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	scaled, err := checkedProduct(a, &Ray)
	if err != nil {
		return nil, err
	}
	return scaled.Div(scaled, b), nil
}

// RayDivCeil divides two rays rounding up.
func RayDivCeil(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivisionByZero
	}
	scaled, err := checkedProduct(a, &Ray)
	if err != nil {
		return nil, err
	}
	return ceilDiv(scaled, b), nil
}

// RayToWad converts a ray into a wad rounding half up.
func RayToWad(a *uint256.Int) *uint256.Int {
	q, r := new(uint256.Int).DivMod(a, &WadRayRatio, new(uint256.Int))
	if r.CmpUint64(WadRayRatio.Uint64()/2) >= 0 {
		q.AddUint64(q, 1)
	}
	return q
}

// WadToRay converts a wad into a ray.
func WadToRay(a *uint256.Int) (*uint256.Int, error) {
	return checkedProduct(a, &WadRayRatio)
}

// MulDiv computes floor(a*b/d) with a full 512-bit intermediate.
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivisionByZero
	}
	out, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

// MulDivCeil computes ceil(a*b/d). The quotient is exact iff q*d and a*b
// agree modulo 2^256.
func MulDivCeil(a, b, d *uint256.Int) (*uint256.Int, error) {
	out, err := MulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	back := new(uint256.Int).Mul(out, d)
	if !back.Eq(new(uint256.Int).Mul(a, b)) {
		return addOne(out)
	}
	return out, nil
}

func addOne(v *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(v, uint256.NewInt(1))
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

// Add returns a+b or ErrArithmeticOverflow.
func Add(a, b *uint256.Int) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

// Sub returns a-b or ErrArithmeticOverflow when b exceeds a.
func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	out, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrArithmeticOverflow
	}
	return out, nil
}

// Pow10 returns 10^n.
func Pow10(n uint64) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(n))
}
