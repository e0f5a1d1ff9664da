package ghcatalog

import "testing"

func TestSum64Deterministic(t *testing.T) {
	for _, alg := range []HashAlgorithm{AlgXXHash3, AlgFNV1a, AlgBlake2b} {
		a := sum64(alg, []byte("foo"))
		b := sum64(alg, []byte("foo"))
		if a != b {
			t.Errorf("alg %d: same input produced different digests: %d vs %d", alg, a, b)
		}
	}
}

func TestSum64DifferentInputs(t *testing.T) {
	for _, alg := range []HashAlgorithm{AlgXXHash3, AlgFNV1a, AlgBlake2b} {
		a := sum64(alg, []byte("foo"))
		b := sum64(alg, []byte("bar"))
		if a == b {
			t.Errorf("alg %d: different inputs produced same digest: %d", alg, a)
		}
	}
}

func TestSum64UnrecognisedFallsBackToXXHash3(t *testing.T) {
	data := []byte("page data")
	got := sum64(HashAlgorithm(99), data)
	want := sum64(AlgXXHash3, data)
	if got != want {
		t.Errorf("unrecognised alg = %d, want fallback %d", got, want)
	}
}

func TestSum64Int32MatchesByteEncoding(t *testing.T) {
	var want uint64
	for _, alg := range []HashAlgorithm{AlgXXHash3, AlgFNV1a, AlgBlake2b} {
		var b [4]byte
		putUint32BE(b[:], uint32(int32(-7)))
		want = sum64(alg, b[:])
		if got := sum64Int32(alg, -7); got != want {
			t.Errorf("alg %d: sum64Int32 = %d, want %d", alg, got, want)
		}
	}
}

func TestSum64Int32Deterministic(t *testing.T) {
	a := sum64Int32(AlgXXHash3, 42)
	b := sum64Int32(AlgXXHash3, 42)
	if a != b {
		t.Errorf("same id produced different hashes: %d vs %d", a, b)
	}
	if c := sum64Int32(AlgXXHash3, 43); c == a {
		t.Errorf("different ids produced same hash: %d", a)
	}
}
