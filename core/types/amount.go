package types

import (
	"errors"

	"github.com/holiman/uint256"
)

// Encrypted balances and reserves are unsigned 128-bit quantities. Amounts
// are carried as uint256.Int for arithmetic convenience but must never exceed
// MaxUint128 at rest.
var (
	// MaxUint128 is 2^128 - 1, the largest representable amount.
	MaxUint128 = &uint256.Int{^uint64(0), ^uint64(0), 0, 0}

	ErrAmountOverflow = errors.New("types: amount exceeds 128 bits")
	ErrAmountZero     = errors.New("types: amount is zero")
)

// NewAmount returns a uint128-range amount from a uint64.
func NewAmount(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// CheckAmount validates that v is a usable amount: non-nil, non-zero and
// within the 128-bit range.
func CheckAmount(v *uint256.Int) error {
	if v == nil || v.IsZero() {
		return ErrAmountZero
	}
	if v.Gt(MaxUint128) {
		return ErrAmountOverflow
	}
	return nil
}

// FitsUint128 reports whether v is within the 128-bit range. Nil counts as
// zero and fits.
func FitsUint128(v *uint256.Int) bool {
	return v == nil || !v.Gt(MaxUint128)
}
