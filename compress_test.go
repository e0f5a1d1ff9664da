package ghcatalog

import (
	"bytes"
	"testing"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("the manifest holds row counts and statistics; "), 100)
	compressed := compressBlock(data)
	if len(compressed) == 0 {
		t.Fatal("compressBlock returned empty output for non-empty input")
	}
	got, err := decompressBlock(compressed)
	if err != nil {
		t.Fatalf("decompressBlock: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("decompressed data does not match original")
	}
}

func TestCompressEmptyBlock(t *testing.T) {
	if got := compressBlock(nil); got != nil {
		t.Errorf("compressBlock(nil) = %v, want nil", got)
	}
	if got := compressBlock([]byte{}); got != nil {
		t.Errorf("compressBlock([]byte{}) = %v, want nil", got)
	}
}

func TestDecompressEmptyBlock(t *testing.T) {
	got, err := decompressBlock(nil)
	if err != nil || got != nil {
		t.Errorf("decompressBlock(nil) = (%v, %v), want (nil, nil)", got, err)
	}
}

func TestDecompressCorruptBlockErrors(t *testing.T) {
	_, err := decompressBlock([]byte{0x01, 0x02, 0x03, 0x04})
	if err == nil {
		t.Fatal("expected an error decompressing garbage data")
	}
}
