// Package checked implements overflow-checked uint64 arithmetic.
package checked

import (
	"errors"
	"math/bits"
)

// ErrOverflow is returned when an arithmetic result does not fit in a uint64
// or a division by zero is attempted.
var ErrOverflow = errors.New("arithmetic overflow")

// AddUint64 returns a+b and whether the result did not overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry == 0
}

// SubUint64 returns a-b and whether the result did not underflow.
func SubUint64(a, b uint64) (uint64, bool) {
	diff, borrow := bits.Sub64(a, b, 0)
	return diff, borrow == 0
}

// MulUint64 returns a*b and whether the result did not overflow.
func MulUint64(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// DivUint64 returns a/b truncated and false when b is zero.
func DivUint64(a, b uint64) (uint64, bool) {
	if b == 0 {
		return 0, false
	}
	return a / b, true
}

// MulDiv computes a*num/den with truncation. The product must fit in a
// uint64; otherwise ErrOverflow is returned even if the quotient would fit.
func MulDiv(a, num, den uint64) (uint64, error) {
	product, ok := MulUint64(a, num)
	if !ok {
		return 0, ErrOverflow
	}
	q, ok := DivUint64(product, den)
	if !ok {
		return 0, ErrOverflow
	}
	return q, nil
}
