// Hash algorithm implementations backing the Catalog's build fingerprint
// (fingerprint.go) and available to anything else keyed on a scalar id
// (sum64Int32).
//
// Three algorithms are supported, selectable via Config.HashAlgorithm, all
// producing a 64-bit digest.
package ghcatalog

import (
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// HashAlgorithm selects the digest implementation used for the Catalog's
// input fingerprint.
type HashAlgorithm int

const (
	// AlgXXHash3 is the default: fastest, best suited to fingerprinting
	// multi-gigabyte CSV inputs.
	AlgXXHash3 HashAlgorithm = iota + 1
	// AlgFNV1a has no external dependencies.
	AlgFNV1a
	// AlgBlake2b has the best distribution, useful when the fingerprinted
	// content is adversarial or highly structured.
	AlgBlake2b
)

// sum64 computes a 64-bit digest of data using the given algorithm. An
// unrecognised algorithm falls back to AlgXXHash3.
func sum64(alg HashAlgorithm, data []byte) uint64 {
	switch alg {
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write(data)
		return h.Sum64()
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
		h.Write(data)
		sum := h.Sum(nil)
		var v uint64
		for _, b := range sum {
			v = v<<8 | uint64(b)
		}
		return v
	default:
		return xxh3.Hash(data)
	}
}

// sum64Int32 hashes an int32 id's big-endian bytes. The bloom filters do
// not use it; bloom.go computes its own FNV bit positions.
func sum64Int32(alg HashAlgorithm, id int32) uint64 {
	var b [4]byte
	putUint32BE(b[:], uint32(id))
	return sum64(alg, b[:])
}
