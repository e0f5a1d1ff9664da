// Indexer: an on-disk ordered map of fixed 8+8 byte (key, value) entries,
// insert-append during construction, externally merge-sorted, and
// optionally grouped into an inverted index whose values live in a
// companion file (spec.md §4.3). Grounded on `entreya-csvquery`'s
// indexer.go/cidx.go for the sort/group/search shape and on the
// teacher's `scan.go` for the binary-search-then-positional-read idiom.
package ghcatalog

import (
	"os"
	"strings"
)

// Comparator orders two keys stored in an Indexer. CompareDirect compares
// the raw uint64 values; CompareString treats each key as the file offset of
// a [length][bytes] pair and compares the referenced bytes.
type Comparator int

const (
	CompareDirect Comparator = iota
	CompareString
)

// Indexer is a sorted (after Sort), optionally grouped (after Group),
// on-disk key→value map. It borrows the key-source file (for
// CompareString) and its values file; it owns its own index file and,
// once grouped, its grouped-values file.
type Indexer struct {
	cache   *Cache
	id      FileID
	path    string
	file    *os.File
	tempDir string
	cfg     Config

	tail  int64
	count int64

	cmp        Comparator
	keySource  FileID // valid when cmp == CompareString
	haveSource bool
	valueFile  FileID // file ValueAsLazy/GroupElementAsLazy rewire a Lazy onto

	sorted  bool
	grouped bool

	groupID   FileID
	groupPath string
	groupFile *os.File
}

// CreateIndex creates a new, empty, append-only Indexer backed by path
// (or an anonymous temp file if path is empty), registered with cache
// under id.
func CreateIndex(cache *Cache, id FileID, path string, tempDir string, cmp Comparator, cfg Config) (*Indexer, error) {
	var f *os.File
	var err error
	if path == "" {
		f, err = os.CreateTemp(tempDir, "index-*.idx")
		if err == nil {
			path = f.Name()
		}
	} else {
		f, err = os.Create(path)
	}
	if err != nil {
		return nil, err
	}
	ix := &Indexer{cache: cache, id: id, path: path, file: f, tempDir: tempDir, cfg: cfg, cmp: cmp}
	cache.Register(id, f)
	return ix, nil
}

// OpenIndex opens an existing sorted (and possibly grouped) index file
// read/write.
func OpenIndex(cache *Cache, id FileID, path string, cmp Comparator, cfg Config) (*Indexer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	ix := &Indexer{
		cache: cache, id: id, path: path, file: f, cfg: cfg, cmp: cmp,
		count:  info.Size() / indexEntrySize,
		tail:   info.Size(),
		sorted: true,
	}
	cache.Register(id, f)
	return ix, nil
}

// OpenGroupedIndex opens an existing grouped index together with its
// companion values file.
func OpenGroupedIndex(cache *Cache, id FileID, path string, groupID FileID, groupPath string, cmp Comparator, cfg Config) (*Indexer, error) {
	ix, err := OpenIndex(cache, id, path, cmp, cfg)
	if err != nil {
		return nil, err
	}
	gf, err := os.OpenFile(groupPath, os.O_RDWR, 0o644)
	if err != nil {
		ix.file.Close()
		return nil, err
	}
	ix.grouped = true
	ix.groupID = groupID
	ix.groupPath = groupPath
	ix.groupFile = gf
	cache.Register(groupID, gf)
	return ix, nil
}

// WithKeySource sets the file CompareString dereferences key offsets
// against, returning ix for chaining.
func (ix *Indexer) WithKeySource(id FileID) *Indexer {
	ix.keySource = id
	ix.haveSource = true
	return ix
}

// WithValueFile sets the file a plain (ungrouped) entry's value addresses
// — the file ValueAsLazy rewires a Lazy onto. Distinct from WithKeySource:
// a CompareString index's key offsets and its values may, but need not,
// live in the same file.
func (ix *Indexer) WithValueFile(id FileID) *Indexer {
	ix.valueFile = id
	return ix
}

// ElemNo returns the number of entries currently in the index.
func (ix *Indexer) ElemNo() int64 { return ix.count }

// Insert appends (key, value) to the index. The index must not yet be
// sorted.
func (ix *Indexer) Insert(key, value uint64) error {
	if ix.sorted {
		return ErrIndexReadOnly
	}
	var buf [indexEntrySize]byte
	putUint64BE(buf[:8], key)
	putUint64BE(buf[8:], value)
	if _, err := ix.file.WriteAt(buf[:], ix.tail); err != nil {
		return err
	}
	ix.tail += indexEntrySize
	ix.count++
	return nil
}

// entryLess builds the ordering function for this Indexer's Comparator,
// used by both Sort and the manual merge heap.
func (ix *Indexer) entryLess() entryLess {
	switch ix.cmp {
	case CompareString:
		return func(a, b indexEntry) bool {
			c := ix.compareStringKeys(a.key, b.key)
			if c != 0 {
				return c < 0
			}
			return a.value < b.value
		}
	default:
		return func(a, b indexEntry) bool {
			if a.key != b.key {
				return a.key < b.key
			}
			return a.value < b.value
		}
	}
}

func (ix *Indexer) compareStringKeys(a, b uint64) int {
	as, _ := ix.readKeyString(a)
	bs, _ := ix.readKeyString(b)
	return strings.Compare(as, bs)
}

// readKeyString dereferences a CompareString key: a 4-byte big-endian
// length followed immediately by that many bytes, in the key source
// file — exactly how format.go lays out a string field's synthetic
// length field followed by its bytes.
func (ix *Indexer) readKeyString(offset uint64) (string, error) {
	n, err := ix.cache.GetInt(ix.keySource, int64(offset))
	if err != nil {
		return "", err
	}
	raw, err := ix.cache.GetStr(ix.keySource, int64(offset)+4, int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Sort performs the external merge sort described in spec.md §4.3:
// memory-budgeted runs, each sorted and spilled, then a single k-way
// merge producing the final ordered file. Flushes and refreshes the
// Cache for this file afterward, since the file is rewritten out from
// under it.
func (ix *Indexer) Sort(cache *Cache) error {
	if ix.sorted {
		return ErrAlreadySorted
	}
	if err := cache.FlushFile(ix.id); err != nil {
		return err
	}

	outPath, count, err := externalMergeSort(ix.path, ix.tempDir, ix.cfg.SortMemoryBytes, ix.entryLess())
	if err != nil {
		return err
	}

	if err := ix.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(outPath, ix.path); err != nil {
		return err
	}
	f, err := os.OpenFile(ix.path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	ix.file = f
	ix.count = count
	ix.tail = count * indexEntrySize
	ix.sorted = true
	cache.Register(ix.id, f)
	cache.RefreshFile(ix.id)
	return nil
}

// Group requires a sorted Indexer. It writes a new index file (one entry
// per distinct key, value replaced by a group-block offset) and a new
// companion values file holding, for each distinct key, a count header
// followed by every observed value — sorted and deduplicated first when
// dedup is true.
func (ix *Indexer) Group(cache *Cache, groupID FileID, groupPath string, dedup bool) error {
	if !ix.sorted {
		return ErrNotSorted
	}
	if err := cache.FlushFile(ix.id); err != nil {
		return err
	}

	newIndexPath := ix.path + ".grouped"
	newIndexFile, err := os.Create(newIndexPath)
	if err != nil {
		return err
	}
	valuesFile, err := os.Create(groupPath)
	if err != nil {
		newIndexFile.Close()
		return err
	}

	var (
		indexOff int64
		valueOff int64
		curKey   uint64
		curVals  []uint64
		haveCur  bool
	)

	flushGroup := func() error {
		if !haveCur {
			return nil
		}
		vals := curVals
		if dedup {
			vals = dedupSortedUint64(vals)
		}
		if err := writeGroupBlock(valuesFile, valueOff, vals); err != nil {
			return err
		}
		var entry [indexEntrySize]byte
		putUint64BE(entry[:8], curKey)
		putUint64BE(entry[8:], uint64(valueOff))
		if _, err := newIndexFile.WriteAt(entry[:], indexOff); err != nil {
			return err
		}
		indexOff += indexEntrySize
		valueOff += 4 + int64(len(vals))*8
		return nil
	}

	n := ix.count
	for i := int64(0); i < n; i++ {
		key, value, err := ix.entryAt(i)
		if err != nil {
			return err
		}
		sameKey := haveCur && ix.keysEqual(curKey, key)
		if haveCur && !sameKey {
			if err := flushGroup(); err != nil {
				return err
			}
			curVals = curVals[:0]
		}
		curKey = key
		curVals = append(curVals, value)
		haveCur = true
	}
	if err := flushGroup(); err != nil {
		return err
	}

	if err := newIndexFile.Close(); err != nil {
		return err
	}
	if err := valuesFile.Close(); err != nil {
		return err
	}
	if err := ix.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(newIndexPath, ix.path); err != nil {
		return err
	}

	f, err := os.OpenFile(ix.path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	gf, err := os.OpenFile(groupPath, os.O_RDWR, 0o644)
	if err != nil {
		f.Close()
		return err
	}

	ix.file = f
	ix.count = indexOff / indexEntrySize
	ix.tail = indexOff
	ix.grouped = true
	ix.groupID = groupID
	ix.groupPath = groupPath
	ix.groupFile = gf
	cache.Register(ix.id, f)
	cache.Register(groupID, gf)
	cache.RefreshFile(ix.id)
	cache.RefreshFile(groupID)
	return nil
}

func (ix *Indexer) keysEqual(a, b uint64) bool {
	if ix.cmp == CompareString {
		return ix.compareStringKeys(a, b) == 0
	}
	return a == b
}

func dedupSortedUint64(vals []uint64) []uint64 {
	out := vals[:0:0]
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			out = append(out, v)
		}
	}
	return out
}

func writeGroupBlock(f *os.File, offset int64, vals []uint64) error {
	buf := make([]byte, 4+len(vals)*8)
	putUint32BE(buf[:4], uint32(len(vals)))
	for i, v := range vals {
		putUint64BE(buf[4+i*8:], v)
	}
	_, err := f.WriteAt(buf, offset)
	return err
}

// entryAt reads the i-th physical (key, value) pair directly from the
// index file, bypassing the Cache — used only during Group's single
// sequential pass immediately after Sort.
func (ix *Indexer) entryAt(i int64) (key, value uint64, err error) {
	var buf [indexEntrySize]byte
	if _, err := ix.file.ReadAt(buf[:], i*indexEntrySize); err != nil {
		return 0, 0, err
	}
	return getUint64BE(buf[:8]), getUint64BE(buf[8:]), nil
}

// KeyAt returns the key of the i-th entry via the Cache. Returns
// ErrNotFound if i is outside [0, ElemNo).
func (ix *Indexer) KeyAt(i int64) (uint64, error) {
	if i < 0 || i >= ix.count {
		return 0, ErrNotFound
	}
	return ix.cache.GetPos(ix.id, i*indexEntrySize)
}

// ValueAt returns the value of the i-th entry via the Cache. Returns
// ErrNotFound if i is outside [0, ElemNo).
func (ix *Indexer) ValueAt(i int64) (uint64, error) {
	if i < 0 || i >= ix.count {
		return 0, ErrNotFound
	}
	return ix.cache.GetPos(ix.id, i*indexEntrySize+8)
}

// ValueAsLazy rewires lazy to (valueFile, value_at(i)).
func (ix *Indexer) ValueAsLazy(i int64, lazy *Lazy) error {
	v, err := ix.ValueAt(i)
	if err != nil {
		return err
	}
	lazy.retarget(ix.valueFile, int64(v))
	return nil
}

// Exact returns the slot of the first entry whose key equals key (for
// CompareDirect indexes), or -1 if none.
func (ix *Indexer) Exact(key uint64) (int64, error) {
	i, err := ix.lowerBoundDirect(key)
	if err != nil {
		return -1, err
	}
	if i >= ix.count {
		return -1, nil
	}
	found, err := ix.KeyAt(i)
	if err != nil {
		return -1, err
	}
	if found != key {
		return -1, nil
	}
	return i, nil
}

// LowerBound returns the smallest slot whose key is >= key (ix.count if
// none), for CompareDirect indexes.
func (ix *Indexer) LowerBound(key uint64) (int64, error) {
	return ix.lowerBoundDirect(key)
}

func (ix *Indexer) lowerBoundDirect(key uint64) (int64, error) {
	lo, hi := int64(0), ix.count
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := ix.KeyAt(mid)
		if err != nil {
			return 0, err
		}
		if k < key {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// ExactString and LowerBoundString are the CompareString analogues of
// Exact/LowerBound, used by the language index with a literal query
// string rather than another index's key.
func (ix *Indexer) ExactString(query string) (int64, error) {
	i, err := ix.lowerBoundString(query)
	if err != nil {
		return -1, err
	}
	if i >= ix.count {
		return -1, nil
	}
	k, err := ix.KeyAt(i)
	if err != nil {
		return -1, err
	}
	s, err := ix.readKeyString(k)
	if err != nil {
		return -1, err
	}
	if s != query {
		return -1, nil
	}
	return i, nil
}

func (ix *Indexer) LowerBoundString(query string) (int64, error) {
	return ix.lowerBoundString(query)
}

func (ix *Indexer) lowerBoundString(query string) (int64, error) {
	lo, hi := int64(0), ix.count
	for lo < hi {
		mid := (lo + hi) / 2
		k, err := ix.KeyAt(mid)
		if err != nil {
			return 0, err
		}
		s, err := ix.readKeyString(k)
		if err != nil {
			return 0, err
		}
		if s < query {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo, nil
}

// GroupSize returns the number of values in the block at blockOffset.
func (ix *Indexer) GroupSize(blockOffset int64) (int32, error) {
	return ix.cache.GetInt(ix.groupID, blockOffset)
}

// GroupElement returns the k-th value in the block at blockOffset.
func (ix *Indexer) GroupElement(blockOffset int64, k int32) (uint64, error) {
	return ix.cache.GetPos(ix.groupID, blockOffset+4+int64(k)*8)
}

// GroupElementAsLazy rewires lazy to (ix.valueFile, group_element(...)).
func (ix *Indexer) GroupElementAsLazy(blockOffset int64, k int32, lazy *Lazy) error {
	v, err := ix.GroupElement(blockOffset, k)
	if err != nil {
		return err
	}
	lazy.retarget(ix.valueFile, int64(v))
	return nil
}

// Close closes the index's file handles.
func (ix *Indexer) Close() error {
	if ix.groupFile != nil {
		ix.groupFile.Close()
	}
	return ix.file.Close()
}
