// Build fingerprinting: a cheap digest of the three CSV inputs used to
// decide, at Load time, whether a persisted catalog still matches the
// data it was built from (spec.md §4.5).
package ghcatalog

import (
	"bytes"
	"io"
	"os"
)

// fingerprintSampleBytes bounds how much of each input file is hashed,
// so staleness detection stays fast even against a multi-gigabyte CSV:
// a changed file almost always changes its size, mtime, or leading
// bytes.
const fingerprintSampleBytes = 512 * 1024

// computeFingerprint hashes, for each path, its size and modification
// time plus a leading sample of its content, in file order, under alg
// (Config.HashAlgorithm).
func computeFingerprint(paths []string, alg HashAlgorithm) (uint64, error) {
	var buf bytes.Buffer
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return 0, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return 0, err
		}
		var sizeBuf [8]byte
		putUint64BE(sizeBuf[:], uint64(info.Size()))
		buf.Write(sizeBuf[:])
		var mtimeBuf [8]byte
		putUint64BE(mtimeBuf[:], uint64(info.ModTime().UnixNano()))
		buf.Write(mtimeBuf[:])

		sample := make([]byte, fingerprintSampleBytes)
		n, err := f.Read(sample)
		f.Close()
		if err != nil && err != io.EOF {
			return 0, err
		}
		buf.Write(sample[:n])
	}
	return sum64(alg, buf.Bytes()), nil
}
