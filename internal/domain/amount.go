package domain

import "github.com/holiman/uint256"

// Amount is a stake or balance denominated in base units of the native token.
// Amounts are 128-bit unsigned integers; one token is 10^24 base units, so
// realistic stakes sit near the top of the uint64 range and all pool
// arithmetic must be done in wide integers.
type Amount = *uint256.Int

// maxAmount is the largest representable Amount (2^128 - 1).
var maxAmount = uint256.MustFromHex("0xffffffffffffffffffffffffffffffff")

var (
	// OneToken is 10^24 base units.
	OneToken = uint256.MustFromDecimal("1000000000000000000000000")

	// MinStake is the smallest accepted bet: 0.1 token.
	MinStake = uint256.MustFromDecimal("100000000000000000000000")

	// MinOracleCollateral is the smallest deposit accepted with a delegated
	// compute resolution request: 0.1 token.
	MinOracleCollateral = uint256.MustFromDecimal("100000000000000000000000")
)

// ZeroAmount returns a fresh zero-valued Amount.
func ZeroAmount() Amount {
	return uint256.NewInt(0)
}

// ValidAmount reports whether a is non-nil and fits in 128 bits.
func ValidAmount(a Amount) bool {
	return a != nil && a.Cmp(maxAmount) <= 0
}

// ParseAmount parses a decimal base-unit string into an Amount. It rejects
// values that do not fit in 128 bits.
func ParseAmount(s string) (Amount, error) {
	a, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, ErrInvalidAmount
	}
	if !ValidAmount(a) {
		return nil, ErrInvalidAmount
	}
	return a, nil
}
