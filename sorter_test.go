package ghcatalog

import (
	"bufio"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
)

func writeRawEntries(t *testing.T, path string, entries []indexEntry) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if err := writeEntry(w, e); err != nil {
			t.Fatalf("writeEntry: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func readAllEntries(t *testing.T, path string, n int64) []indexEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)
	out := make([]indexEntry, 0, n)
	for i := int64(0); i < n; i++ {
		e, err := readEntry(r)
		if err != nil {
			t.Fatalf("readEntry at %d: %v", i, err)
		}
		out = append(out, e)
	}
	return out
}

func directLess(a, b indexEntry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.value < b.value
}

func TestExternalMergeSortOrdersEntries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "unsorted.idx")

	rng := rand.New(rand.NewSource(1))
	entries := make([]indexEntry, 5000)
	for i := range entries {
		entries[i] = indexEntry{key: uint64(rng.Intn(50)), value: uint64(i)}
	}
	writeRawEntries(t, src, entries)

	// A small memory budget (raised to newRunSorter's 1024-entry floor)
	// forces multiple spilled runs and a real k-way merge, not just an
	// in-memory sort.
	outPath, count, err := externalMergeSort(src, dir, indexEntrySize*20, directLess)
	if err != nil {
		t.Fatalf("externalMergeSort: %v", err)
	}
	if count != int64(len(entries)) {
		t.Fatalf("count = %d, want %d", count, len(entries))
	}

	sorted := readAllEntries(t, outPath, count)
	for i := 1; i < len(sorted); i++ {
		if directLess(sorted[i], sorted[i-1]) {
			t.Fatalf("entries out of order at %d: %+v before %+v", i, sorted[i-1], sorted[i])
		}
	}

	// every original value must still be present exactly once.
	seen := make(map[uint64]bool, len(entries))
	for _, e := range sorted {
		if seen[e.value] {
			t.Fatalf("value %d appeared more than once in merged output", e.value)
		}
		seen[e.value] = true
	}
	if len(seen) != len(entries) {
		t.Fatalf("merged output has %d distinct values, want %d", len(seen), len(entries))
	}
}

func TestExternalMergeSortEmptyInput(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "empty.idx")
	writeRawEntries(t, src, nil)

	outPath, count, err := externalMergeSort(src, dir, 4096, directLess)
	if err != nil {
		t.Fatalf("externalMergeSort: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
	info, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("output file size = %d, want 0", info.Size())
	}
}

func TestExternalMergeSortSingleRunNoSpill(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "small.idx")
	entries := []indexEntry{{key: 3, value: 1}, {key: 1, value: 2}, {key: 2, value: 3}}
	writeRawEntries(t, src, entries)

	// Memory budget large enough that everything fits in one run.
	outPath, count, err := externalMergeSort(src, dir, 1<<20, directLess)
	if err != nil {
		t.Fatalf("externalMergeSort: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
	sorted := readAllEntries(t, outPath, count)
	want := []uint64{1, 2, 3}
	for i, e := range sorted {
		if e.key != want[i] {
			t.Errorf("sorted[%d].key = %d, want %d", i, e.key, want[i])
		}
	}
}
