package pool

import (
	"github.com/holiman/uint256"

	"github.com/halide-works/aperture-drop/internal/domain"
)

// Token availability is tracked as single bits in a pair of 256-bit words.
// Bit-level flips are far cheaper to mutate on a metered ledger than list
// insert/remove, at the cost of an O(N) scan to enumerate, which is fine
// for N <= 256.

// bitIndex maps a 1-based token id to its bit position.
func bitIndex(id domain.TokenID) uint {
	return uint(id - 1)
}

func setBit(b *uint256.Int, i uint) {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), i)
	b.Or(b, mask)
}

func clearBit(b *uint256.Int, i uint) {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), i)
	b.And(b, new(uint256.Int).Not(mask))
}

func hasBit(b *uint256.Int, i uint) bool {
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), i)
	return !new(uint256.Int).And(b, mask).IsZero()
}
