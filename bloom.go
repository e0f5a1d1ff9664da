// In-memory bloom filter guarding an id-keyed Indexer's point lookups.
//
// Sized for ~10k entries at 1% false positive rate. Filled from the
// users-by-id / repos-by-id indexes once they are sorted, kept for the
// life of the Catalog. Grounded directly on the teacher's own bloom.go (same
// double-hash FNV scheme, same sizing), repurposed from string label
// existence to int32 id existence.
package ghcatalog

import (
	"hash/fnv"
)

// Bloom filter sizing constants.
const (
	bloomSize = 11982 // bytes, ~96k bits for 10k entries at 1% FP
	bloomK    = 7      // number of hash functions
)

type idBloom struct {
	bits []byte
}

// newIDBloom returns a zeroed bloom filter.
func newIDBloom() *idBloom {
	return &idBloom{bits: make([]byte, bloomSize)}
}

// Add inserts an id into the filter.
func (b *idBloom) Add(id int32) {
	for _, pos := range idPositions(id) {
		b.bits[pos/8] |= 1 << (pos % 8)
	}
}

// MaybeContains returns true if id might be present, false if definitely
// absent — a negative answer lets a point query skip the Indexer lookup
// entirely.
func (b *idBloom) MaybeContains(id int32) bool {
	for _, pos := range idPositions(id) {
		if b.bits[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
	}
	return true
}

// Reset clears all bits.
func (b *idBloom) Reset() {
	clear(b.bits)
}

// idPositions returns bloomK bit positions for id using double hashing
// (FNV-64a + FNV-32a) over its big-endian bytes.
func idPositions(id int32) [bloomK]uint {
	var key [4]byte
	putUint32BE(key[:], uint32(id))

	h64 := fnv.New64a()
	h64.Write(key[:])
	a := h64.Sum64()

	h32 := fnv.New32a()
	h32.Write(key[:])
	b := uint(h32.Sum32())

	nbits := uint(bloomSize * 8)
	var pos [bloomK]uint
	for i := range bloomK {
		pos[i] = (uint(a) + uint(i)*b) % nbits
	}
	return pos
}
