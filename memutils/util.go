package memutils

import (
	"math/bits"

	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// CheckedMul multiplies two byte counts and reports whether the product overflowed. When it
// overflows, the returned product is the wrapped value.
func CheckedMul[T constraints.Unsigned](a, b T) (T, bool) {
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	product := T(lo)
	return product, hi != 0 || uint64(product) != lo
}

// CheckedAdd adds two byte counts and reports whether the sum overflowed.
func CheckedAdd[T constraints.Unsigned](a, b T) (T, bool) {
	sum, carry := bits.Add64(uint64(a), uint64(b), 0)
	return T(sum), carry != 0 || uint64(T(sum)) != sum
}

// CheckGuardBytes verifies that a guard byte count can be filled with whole magic values
func CheckGuardBytes(count int, name string) error {
	if count < 0 || count%magicValueSize != 0 {
		return cerrors.Wrapf(ErrGuardBytes, "%s is %d", name, count)
	}
	return nil
}

func AlignUp(value int, alignment uint) int {
	return (value + int(alignment) - 1) & int(^(alignment - 1))
}
