package paymath

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
)

func u(s string) *uint256.Int {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name    string
		a, b, c string
		want    string
	}{
		{"small truncating", "100", "1000", "300", "333"},
		{"exact division", "100", "1000", "200", "500"},
		{"identity when a equals c", "12345", "999999999999", "12345", "999999999999"},
		{"zero stake", "0", "1000", "300", "0"},
		{"zero pool numerator", "100", "0", "300", "0"},
		{
			// 0.1 token winning stake, 300-token winning pool, 1000-token
			// total pool: the naive numerator is ~10^50.
			"yocto scale",
			"100000000000000000000000",
			"1000000000000000000000000000",
			"300000000000000000000000000",
			"333333333333333333333333",
		},
		{
			"full width exact",
			"340282366920938463463374607431768211455", // 2^128-1
			"170141183460469231731687303715884105727", // 2^127-1
			"340282366920938463463374607431768211455",
			"170141183460469231731687303715884105727",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MulDiv(u(tt.a), u(tt.b), u(tt.c))
			if err != nil {
				t.Fatalf("MulDiv(%s, %s, %s): %v", tt.a, tt.b, tt.c, err)
			}
			if got.Dec() != tt.want {
				t.Errorf("MulDiv(%s, %s, %s) = %s, want %s", tt.a, tt.b, tt.c, got.Dec(), tt.want)
			}
		})
	}
}

func TestMulDivSecondLevelSplit(t *testing.T) {
	// Force the second-level split: a < c so the remainder is all of a, and
	// b is large enough that rem*b exceeds 128 bits while the quotient still
	// fits. With c dividing b the split result is the exact quotient, so it
	// can be checked against big.Int arithmetic.
	c := u("1000000000000000000")
	b := new(uint256.Int).Mul(c, c) // 10^36
	a := u("999999999999999999")    // c - 1

	got, err := MulDiv(a, b, c)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}

	want := new(big.Int).Mul(a.ToBig(), b.ToBig())
	want.Div(want, c.ToBig())
	if got.ToBig().Cmp(want) != 0 {
		t.Errorf("MulDiv = %s, want %s", got.Dec(), want.String())
	}
}

func TestMulDivSecondLevelSplitUndershoot(t *testing.T) {
	// When c does not divide b, the split truncates each term independently
	// and may undershoot the exact quotient by at most one base unit. The
	// result must never overshoot.
	c := u("1000000000000000000")
	b := u("1000000000000000000000000000000000003")
	a := u("999999999999999999")

	got, err := MulDiv(a, b, c)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}

	exact := new(big.Int).Mul(a.ToBig(), b.ToBig())
	exact.Div(exact, c.ToBig())

	diff := new(big.Int).Sub(exact, got.ToBig())
	if diff.Sign() < 0 || diff.Cmp(big.NewInt(1)) > 0 {
		t.Errorf("MulDiv = %s, want %s or one below", got.Dec(), exact.String())
	}
}

func TestMulDivErrors(t *testing.T) {
	if _, err := MulDiv(u("1"), u("1"), u("0")); err != ErrDivideByZero {
		t.Errorf("divide by zero: got %v, want ErrDivideByZero", err)
	}

	max := u("340282366920938463463374607431768211455")
	if _, err := MulDiv(max, max, u("1")); err != ErrOverflow {
		t.Errorf("overflowing result: got %v, want ErrOverflow", err)
	}

	big129 := new(uint256.Int).Add(max, u("1"))
	if _, err := MulDiv(big129, u("1"), u("1")); err != ErrOverflow {
		t.Errorf("129-bit operand: got %v, want ErrOverflow", err)
	}
}

func TestMulDivNeverExceedsTotalPool(t *testing.T) {
	// A bettor's payout share can never exceed the total pool when their
	// winning stake is at most the winning pool.
	total := u("340282366920938463463374607431768211455")
	pool := u("170141183460469231731687303715884105727")
	stake := new(uint256.Int).Set(pool)

	got, err := MulDiv(stake, total, pool)
	if err != nil {
		t.Fatalf("MulDiv: %v", err)
	}
	if got.Cmp(total) > 0 {
		t.Errorf("payout %s exceeds total pool %s", got.Dec(), total.Dec())
	}
}
