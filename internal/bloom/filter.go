// Package bloom provides an approximate membership filter over document
// positions. It never reports a false negative; the false-positive rate
// depends only on the bit array size and how many positions were added, and
// callers are expected to size it generously for their exclusion sets.
package bloom

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
	"github.com/cespare/xxhash/v2"
	farmhash "github.com/leemcloughlin/gofarmhash"

	"github.com/Adithya-Monish-Kumar-K/Tag-Query-Engine/internal/document"
)

const (
	minBits  = 64
	farmSeed = 0x9e3779b9
)

// Filter is a two-hash bloom filter with a fixed bit array. It is mutable
// scratch state and must not be shared between concurrent queries.
type Filter struct {
	bits *bitset.BitSet
	size uint64
	n    int
}

// New allocates a filter with at least numBits bits, rounded up to a whole
// word.
func New(numBits uint64) *Filter {
	size := max(numBits, minBits)
	size = (size + 63) / 64 * 64
	return &Filter{
		bits: bitset.New(uint(size)),
		size: size,
	}
}

// SizeFor returns a bit count giving roughly bitsPerElement bits for each of
// expected positions.
func SizeFor(expected int, bitsPerElement int) uint64 {
	if expected < 1 {
		expected = 1
	}
	if bitsPerElement < 1 {
		bitsPerElement = 1
	}
	return uint64(expected) * uint64(bitsPerElement)
}

func (f *Filter) hashes(pos document.Position) (uint64, uint64) {
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], uint32(pos))
	h1 := xxhash.Sum64(key[:]) % f.size
	h2 := uint64(farmhash.Hash32WithSeed(key[:], farmSeed)) % f.size
	return h1, h2
}

// Add records pos.
func (f *Filter) Add(pos document.Position) {
	h1, h2 := f.hashes(pos)
	f.bits.Set(uint(h1))
	f.bits.Set(uint(h2))
	f.n++
}

// PossiblyContains reports false only when pos was never added.
func (f *Filter) PossiblyContains(pos document.Position) bool {
	h1, h2 := f.hashes(pos)
	return f.bits.Test(uint(h1)) && f.bits.Test(uint(h2))
}

// Clear empties the filter without releasing the bit array.
func (f *Filter) Clear() {
	f.bits.ClearAll()
	f.n = 0
}

// Len returns the size of the bit array.
func (f *Filter) Len() uint64 {
	return f.size
}

// Added returns how many Add calls were made since the last Clear.
func (f *Filter) Added() int {
	return f.n
}

// Truthiness is the fraction of set bits, for diagnostics only.
func (f *Filter) Truthiness() float64 {
	return float64(f.bits.Count()) / float64(f.size)
}
