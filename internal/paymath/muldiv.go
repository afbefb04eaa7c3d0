// Package paymath implements proportional payout arithmetic on 128-bit stake
// amounts. Stakes are denominated in base units of 10^-24 token, so a payout
// numerator (stake * total pool) routinely exceeds 128 bits and the naive
// a*b/c form is unusable.
package paymath

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrDivideByZero is returned when the divisor is zero.
	ErrDivideByZero = errors.New("paymath: divide by zero")
	// ErrOverflow is returned when an operand or the result does not fit in
	// 128 bits.
	ErrOverflow = errors.New("paymath: value exceeds 128 bits")
)

// max128 is 2^128 - 1, the largest representable stake amount.
var max128 = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")

var one = uint256.NewInt(1)

// MulDiv computes a * b / c with truncation, keeping every intermediate
// product within 128 bits:
//
//	a*b/c = (a/c)*b + (a%c)*b/c
//
// and, when (a%c)*b would itself exceed 128 bits, splits b the same way:
//
//	(a%c)*b/c = (a%c)*(b/c) + (a%c)*(b%c)/c
//
// The second-level split truncates each term independently, so it can
// undershoot the exact quotient by at most one base unit; the split result is
// the canonical one and must be reproduced bit-for-bit by anyone replaying a
// settlement.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c.IsZero() {
		return nil, ErrDivideByZero
	}
	if a.Cmp(max128) > 0 || b.Cmp(max128) > 0 || c.Cmp(max128) > 0 {
		return nil, ErrOverflow
	}

	whole := new(uint256.Int).Div(a, c)
	whole.Mul(whole, b)
	rem := new(uint256.Int).Mod(a, c)

	divisorFloor := b
	if b.IsZero() {
		divisorFloor = one
	}
	limit := new(uint256.Int).Div(max128, divisorFloor)

	res := new(uint256.Int)
	if rem.Cmp(limit) <= 0 {
		// rem * b fits in 128 bits.
		frac := new(uint256.Int).Mul(rem, b)
		frac.Div(frac, c)
		res.Add(whole, frac)
	} else {
		bDiv := new(uint256.Int).Div(b, c)
		bRem := new(uint256.Int).Mod(b, c)
		t1 := new(uint256.Int).Mul(rem, bDiv)
		t2 := new(uint256.Int).Mul(rem, bRem)
		t2.Div(t2, c)
		res.Add(whole, t1)
		res.Add(res, t2)
	}

	if res.Cmp(max128) > 0 {
		return nil, ErrOverflow
	}
	return res, nil
}
