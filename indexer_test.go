package ghcatalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func newTestIndexCache(t *testing.T) *Cache {
	t.Helper()
	cfg := Config{PageSize: 256, CachePages: numShards * 8, HashAlgorithm: AlgXXHash3}
	c, err := NewCache(cfg)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return c
}

func TestIndexerSortExactLowerBound(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)
	cfg := Config{SortMemoryBytes: 4096, Workers: 2}

	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "idx.indx"), dir, CompareDirect, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	entries := []uint64{50, 10, 30, 20, 40}
	for i, k := range entries {
		if err := ix.Insert(k, uint64(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	if err := ix.Sort(cache); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if _, err := ix.Exact(10); err != nil {
		t.Fatalf("Exact after sort: %v", err)
	}

	for _, k := range []uint64{10, 20, 30, 40, 50} {
		slot, err := ix.Exact(k)
		if err != nil {
			t.Fatalf("Exact(%d): %v", k, err)
		}
		if slot < 0 {
			t.Errorf("Exact(%d) not found after sort", k)
		}
		got, err := ix.KeyAt(slot)
		if err != nil || got != k {
			t.Errorf("KeyAt(%d) = %d, %v; want %d", slot, got, err, k)
		}
	}

	if slot, err := ix.Exact(25); err != nil || slot != -1 {
		t.Errorf("Exact(25) = %d, %v; want -1, nil (not present)", slot, err)
	}

	lb, err := ix.LowerBound(25)
	if err != nil {
		t.Fatalf("LowerBound: %v", err)
	}
	got, err := ix.KeyAt(lb)
	if err != nil || got != 30 {
		t.Errorf("LowerBound(25) -> key %d, want 30", got)
	}

	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestIndexerKeyAtValueAtOutOfRange(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)
	cfg := Config{SortMemoryBytes: 4096, Workers: 2}

	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "idx.indx"), dir, CompareDirect, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := ix.Insert(10, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Sort(cache); err != nil {
		t.Fatalf("Sort: %v", err)
	}

	if _, err := ix.KeyAt(-1); !errors.Is(err, ErrNotFound) {
		t.Errorf("KeyAt(-1) = %v, want ErrNotFound", err)
	}
	if _, err := ix.KeyAt(ix.ElemNo()); !errors.Is(err, ErrNotFound) {
		t.Errorf("KeyAt(ElemNo()) = %v, want ErrNotFound", err)
	}
	if _, err := ix.ValueAt(ix.ElemNo()); !errors.Is(err, ErrNotFound) {
		t.Errorf("ValueAt(ElemNo()) = %v, want ErrNotFound", err)
	}

	if err := ix.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestIndexerInsertAfterSortRejected(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)
	cfg := Config{SortMemoryBytes: 4096, Workers: 1}
	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "idx.indx"), dir, CompareDirect, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := ix.Insert(1, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Sort(cache); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if err := ix.Insert(2, 2); err != ErrIndexReadOnly {
		t.Errorf("Insert after Sort: got %v, want ErrIndexReadOnly", err)
	}
}

func TestIndexerSortTwiceRejected(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)
	cfg := Config{SortMemoryBytes: 4096, Workers: 1}
	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "idx.indx"), dir, CompareDirect, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := ix.Insert(1, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Sort(cache); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if err := ix.Sort(cache); err != ErrAlreadySorted {
		t.Errorf("second Sort: got %v, want ErrAlreadySorted", err)
	}
}

func TestIndexerGroupWithoutSortRejected(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)
	cfg := Config{SortMemoryBytes: 4096, Workers: 1}
	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "idx.indx"), dir, CompareDirect, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := ix.Insert(1, 1); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := ix.Group(cache, FileID(2), filepath.Join(dir, "idx.dat"), false); err != ErrNotSorted {
		t.Errorf("Group before Sort: got %v, want ErrNotSorted", err)
	}
}

func TestIndexerGroupDedup(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)
	cfg := Config{SortMemoryBytes: 4096, Workers: 2}
	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "idx.indx"), dir, CompareDirect, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	ix.WithValueFile(FileID(9))

	// key 5 appears with a duplicate value (20 twice) and a distinct one.
	pairs := [][2]uint64{{5, 20}, {5, 20}, {5, 30}, {7, 40}}
	for _, p := range pairs {
		if err := ix.Insert(p[0], p[1]); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := ix.Sort(cache); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if err := ix.Group(cache, FileID(2), filepath.Join(dir, "idx.dat"), true); err != nil {
		t.Fatalf("Group: %v", err)
	}

	slot, err := ix.Exact(5)
	if err != nil || slot < 0 {
		t.Fatalf("Exact(5): slot=%d err=%v", slot, err)
	}
	blockOff, err := ix.ValueAt(slot)
	if err != nil {
		t.Fatalf("ValueAt: %v", err)
	}
	n, err := ix.GroupSize(int64(blockOff))
	if err != nil {
		t.Fatalf("GroupSize: %v", err)
	}
	if n != 2 {
		t.Errorf("GroupSize(key=5) = %d, want 2 (20 deduplicated)", n)
	}
}

func TestIndexerGroupNoDedupPreservesDuplicates(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)
	cfg := Config{SortMemoryBytes: 4096, Workers: 1}
	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "idx.indx"), dir, CompareDirect, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	pairs := [][2]uint64{{1, 100}, {1, 100}, {1, 200}}
	for _, p := range pairs {
		if err := ix.Insert(p[0], p[1]); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := ix.Sort(cache); err != nil {
		t.Fatalf("Sort: %v", err)
	}
	if err := ix.Group(cache, FileID(2), filepath.Join(dir, "idx.dat"), false); err != nil {
		t.Fatalf("Group: %v", err)
	}
	slot, _ := ix.Exact(1)
	blockOff, _ := ix.ValueAt(slot)
	n, err := ix.GroupSize(int64(blockOff))
	if err != nil {
		t.Fatalf("GroupSize: %v", err)
	}
	if n != 3 {
		t.Errorf("GroupSize without dedup = %d, want 3", n)
	}
}

// TestIndexerCompareString exercises a string-keyed index, where the key
// is the file offset of a [length][bytes] pair in a companion source
// file, mirroring how reposByLanguage keys on a repo record's language
// field.
func TestIndexerCompareString(t *testing.T) {
	dir := t.TempDir()
	cache := newTestIndexCache(t)

	// Build a tiny source file of length-prefixed strings by hand.
	srcPath := filepath.Join(dir, "strings.dat")
	f, err := os.Create(srcPath)
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	srcID := FileID(5)
	cache.Register(srcID, f)

	words := []string{"go", "rust", "c"}
	offsets := make([]uint64, len(words))
	var off int64
	for i, w := range words {
		offsets[i] = uint64(off)
		if err := cache.SetStr(srcID, off, encodeLenPrefixed(w)); err != nil {
			t.Fatalf("SetStr: %v", err)
		}
		off += int64(4 + len(w))
	}
	if err := cache.FlushFile(srcID); err != nil {
		t.Fatalf("FlushFile: %v", err)
	}

	cfg := Config{SortMemoryBytes: 4096, Workers: 1}
	ix, err := CreateIndex(cache, FileID(1), filepath.Join(dir, "lang.indx"), dir, CompareString, cfg)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	ix.WithKeySource(srcID)

	for i, o := range offsets {
		if err := ix.Insert(o, uint64(i)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	if err := ix.Sort(cache); err != nil {
		t.Fatalf("Sort: %v", err)
	}

	slot, err := ix.ExactString("rust")
	if err != nil || slot < 0 {
		t.Fatalf("ExactString(rust): slot=%d err=%v", slot, err)
	}
	if slot, err := ix.ExactString("java"); err != nil || slot != -1 {
		t.Errorf("ExactString(java) = %d, %v; want -1, nil", slot, err)
	}

	// c < go < rust alphabetically: LowerBound("g") should land on "go".
	lb, err := ix.LowerBoundString("g")
	if err != nil {
		t.Fatalf("LowerBoundString: %v", err)
	}
	k, err := ix.KeyAt(lb)
	if err != nil {
		t.Fatalf("KeyAt: %v", err)
	}
	s, err := ix.readKeyString(k)
	if err != nil || s != "go" {
		t.Errorf("LowerBoundString(g) -> %q, want go", s)
	}
}

func encodeLenPrefixed(s string) []byte {
	buf := make([]byte, 4+len(s))
	putUint32BE(buf[:4], uint32(len(s)))
	copy(buf[4:], s)
	return buf
}
