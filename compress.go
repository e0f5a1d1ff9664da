// Compression for the Catalog's manifest.
//
// The three entity record files are never compressed: an Indexer's
// value is a direct byte offset into one of them, and the Lazy Record
// reads fields at base+offset through the Cache — both require O(1)
// positional addressing that a compressed stream cannot provide. The
// manifest (build fingerprint, row counts, statistics, JSON-encoded)
// is read once in full on Load and never positionally addressed, so it
// is the one artefact zstd-compresses cleanly. Grounded on the teacher's
// compress.go for the encoder/decoder reuse and speed-level choice; the
// ascii85 printable-text wrapping is dropped since the manifest is its
// own file, never embedded in a JSON line.
package ghcatalog

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Shared encoder/decoder — both are documented as safe for concurrent
// use. Allocated once since zstd encoder/decoder construction is
// expensive relative to compressing one block.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// compressBlock zstd-compresses data, returning nil for an empty block.
func compressBlock(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return zstdEncoder.EncodeAll(data, nil)
}

// decompressBlock reverses compressBlock.
func decompressBlock(compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, nil
	}
	out, err := zstdDecoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	return out, nil
}
