// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package safemath

import (
	"errors"

	"github.com/holiman/uint256"
)

// ErrOverflow is returned whenever a checked operation leaves the uint64
// range. Callers surface it as a fatal arithmetic failure; nothing in the
// engine saturates silently.
var ErrOverflow = errors.New("math overflow")

// BpsDenominator is the basis-point scale: 10000 bps = 100%.
const BpsDenominator = 10_000

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

// Sub returns a-b or ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	if b > a {
		return 0, ErrOverflow
	}
	return a - b, nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	prod := a * b
	if prod/a != b {
		return 0, ErrOverflow
	}
	return prod, nil
}

// MulDiv computes a*b/den with a 256-bit intermediate, rounding down.
// den must be non-zero. The result must fit in uint64.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrOverflow
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quot := prod.Div(prod, uint256.NewInt(den))
	if !quot.IsUint64() {
		return 0, ErrOverflow
	}
	return quot.Uint64(), nil
}

// MulDivCeil computes ceil(a*b/den) with a 256-bit intermediate.
func MulDivCeil(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrOverflow
	}
	prod := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	d := uint256.NewInt(den)
	quot, rem := new(uint256.Int).DivMod(prod, d, new(uint256.Int))
	if !rem.IsZero() {
		quot.AddUint64(quot, 1)
	}
	if !quot.IsUint64() {
		return 0, ErrOverflow
	}
	return quot.Uint64(), nil
}

// ApplyBps returns amount*bps/10000 rounded down.
func ApplyBps(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), BpsDenominator)
}

// ApplyBpsCeil returns amount*bps/10000 rounded up. Margin requirements use
// this so the required collateral never under-counts.
func ApplyBpsCeil(amount uint64, bps uint16) (uint64, error) {
	return MulDivCeil(amount, uint64(bps), BpsDenominator)
}

// AbsDiff returns |a-b| together with the sign of a-b: +1 when a > b,
// -1 when a < b, 0 when equal.
func AbsDiff(a, b uint64) (uint64, int) {
	switch {
	case a > b:
		return a - b, 1
	case a < b:
		return b - a, -1
	default:
		return 0, 0
	}
}

// Min returns the smaller of a and b.
func Min(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Pow10 returns 10^exp or ErrOverflow; exp is bounded by uint64 range (19).
func Pow10(exp uint8) (uint64, error) {
	result := uint64(1)
	for i := uint8(0); i < exp; i++ {
		next, err := Mul(result, 10)
		if err != nil {
			return 0, err
		}
		result = next
	}
	return result, nil
}
