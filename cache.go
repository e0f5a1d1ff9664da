// Block Cache: the single I/O boundary between every higher component
// (Indexer, Lazy Record, Catalog) and the host filesystem. Pages are
// fixed-size, keyed by (FileID, page-aligned offset), held in a
// sharded LRU so structural list/map surgery on one shard never blocks
// access to another — grounded in the segmentio `pagecache` reference's
// bucketed design, generalised here from a read-only cache to a
// write-back one with per-file flush/clear/refresh semantics
// (spec.md §4.2).
package ghcatalog

import (
	"container/list"
	"fmt"
	"hash/maphash"
	"io"
	"os"
	"sync"
)

// numShards is the number of independent LRU shards the Cache's pages
// are spread across. A power of two so hashing into a shard is a cheap
// mask, matching the rationale in the segmentio reference.
const numShards = 16

// FileID names one of the files the Cache multiplexes pages over. The
// Catalog assigns small sequential ids to each of its 13 positionally
// addressed artefacts (every one but the manifest) at open time.
type FileID int32

type pageKey struct {
	file   FileID
	offset int64
}

type page struct {
	mu       sync.Mutex
	file     FileID
	offset   int64
	data     []byte
	validLen int // bytes actually read from disk before zero-padding
	loaded   bool
	dirty    bool
}

type shard struct {
	mu       sync.Mutex
	capacity int
	index    map[pageKey]*list.Element
	lru      *list.List // front = MRU, back = LRU
}

func newShard(capacity int) *shard {
	return &shard{
		capacity: capacity,
		index:    make(map[pageKey]*list.Element),
		lru:      list.New(),
	}
}

// lookup finds key's page, promoting it to MRU on a hit.
func (s *shard) lookup(key pageKey) *page {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.index[key]
	if !ok {
		return nil
	}
	s.lru.MoveToFront(el)
	return el.Value.(*page)
}

// insert adds p under key, assuming the caller has already ensured
// capacity via obtain.
func (s *shard) insert(key pageKey, p *page) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el := s.lru.PushFront(p)
	s.index[key] = el
}

// full reports whether the shard is at capacity.
func (s *shard) full() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len() >= s.capacity
}

// evictLRU removes and returns the least-recently-used page, or nil if
// the shard is empty.
func (s *shard) evictLRU() *page {
	s.mu.Lock()
	el := s.lru.Back()
	if el == nil {
		s.mu.Unlock()
		return nil
	}
	p := el.Value.(*page)
	s.lru.Remove(el)
	delete(s.index, pageKey{p.file, p.offset})
	s.mu.Unlock()
	return p
}

// dirtyPages returns a snapshot of every currently dirty page, optionally
// restricted to one file.
func (s *shard) dirtyPages(file FileID, onlyFile bool) []*page {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*page
	for el := s.lru.Front(); el != nil; el = el.Next() {
		p := el.Value.(*page)
		p.mu.Lock()
		dirty := p.dirty
		pf := p.file
		p.mu.Unlock()
		if dirty && (!onlyFile || pf == file) {
			out = append(out, p)
		}
	}
	return out
}

// drop removes every entry matching file (or all entries, if !onlyFile)
// from the shard without writing anything back.
func (s *shard) drop(file FileID, onlyFile bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for el := s.lru.Front(); el != nil; {
		next := el.Next()
		p := el.Value.(*page)
		if !onlyFile || p.file == file {
			s.lru.Remove(el)
			delete(s.index, pageKey{p.file, p.offset})
		}
		el = next
	}
}

// Cache is a fixed-capacity, sharded, write-back LRU page cache shared by
// every file the Catalog and Indexer touch.
type Cache struct {
	pageSize int
	alg      HashAlgorithm
	sync     bool
	progress func(string)
	seed     maphash.Seed
	shards   [numShards]*shard

	filesMu sync.RWMutex
	files   map[FileID]*os.File

	closed bool
	mu     sync.Mutex // guards closed
}

// NewCache constructs a Cache per cfg (already defaulted). Returns
// ErrCacheTooSmall if cfg.CachePages is below the per-shard floor.
func NewCache(cfg Config) (*Cache, error) {
	if cfg.CachePages < minCachePages {
		return nil, ErrCacheTooSmall
	}
	perShard := cfg.CachePages / numShards
	if cfg.CachePages%numShards != 0 {
		perShard++
	}
	c := &Cache{
		pageSize: cfg.PageSize,
		alg:      cfg.HashAlgorithm,
		sync:     cfg.SyncWrites,
		progress: cfg.Progress,
		seed:     maphash.MakeSeed(),
		files:    make(map[FileID]*os.File),
	}
	for i := range c.shards {
		c.shards[i] = newShard(perShard)
	}
	return c, nil
}

// Register associates id with f; subsequent Get/Set calls against id read
// and write through f.
func (c *Cache) Register(id FileID, f *os.File) {
	c.filesMu.Lock()
	defer c.filesMu.Unlock()
	c.files[id] = f
}

func (c *Cache) handle(id FileID) *os.File {
	c.filesMu.RLock()
	defer c.filesMu.RUnlock()
	return c.files[id]
}

func (c *Cache) shardFor(key pageKey) *shard {
	var h maphash.Hash
	h.SetSeed(c.seed)
	var b [12]byte
	putUint32BE(b[:4], uint32(key.file))
	putUint64BE(b[4:], uint64(key.offset))
	h.Write(b[:])
	return c.shards[h.Sum64()%numShards]
}

func (c *Cache) pageOffset(offset int64) int64 {
	ps := int64(c.pageSize)
	return (offset / ps) * ps
}

// getPage returns the live page covering offset in file, loading it
// through the Cache on a miss.
func (c *Cache) getPage(file FileID, offset int64) (*page, error) {
	pageOff := c.pageOffset(offset)
	key := pageKey{file, pageOff}
	s := c.shardFor(key)

	if p := s.lookup(key); p != nil {
		return p, nil
	}

	p, err := c.obtain(s)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.file = file
	p.offset = pageOff
	err = c.readThrough(p)
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.insert(key, p)
	return p, nil
}

// obtain returns a page ready to be rekeyed: a fresh one if the shard has
// room, otherwise the evicted LRU page (flushed first if dirty).
func (c *Cache) obtain(s *shard) (*page, error) {
	if !s.full() {
		return &page{data: make([]byte, c.pageSize)}, nil
	}
	evicted := s.evictLRU()
	if evicted == nil {
		return &page{data: make([]byte, c.pageSize)}, nil
	}
	evicted.mu.Lock()
	if evicted.dirty {
		c.writeBackLocked(evicted)
	}
	evicted.mu.Unlock()
	return evicted, nil
}

// readThrough fills p.data from disk. Caller holds p.mu.
func (c *Cache) readThrough(p *page) error {
	f := c.handle(p.file)
	n, err := f.ReadAt(p.data, p.offset)
	if err != nil && err != io.EOF {
		return err
	}
	for i := n; i < len(p.data); i++ {
		p.data[i] = 0 // short read at EOF: null-terminate the page tail
	}
	p.validLen = n
	p.loaded = true
	p.dirty = false
	return nil
}

// writeBackLocked writes p's data to disk and clears its dirty bit. A
// failed write is reported through Progress and the dirty bit is still
// cleared, matching spec.md §4.2's failure semantics (no write is
// retried forever; the caller already observed any short read that
// caused this). Caller holds p.mu.
func (c *Cache) writeBackLocked(p *page) {
	f := c.handle(p.file)
	if f == nil {
		p.dirty = false
		return
	}
	if _, err := f.WriteAt(p.data, p.offset); err != nil {
		c.log("cache: write-back failed for file %d offset %d: %v", p.file, p.offset, err)
	} else if c.sync {
		if err := f.Sync(); err != nil {
			c.log("cache: fsync failed for file %d: %v", p.file, err)
		}
	}
	p.dirty = false
}

func (c *Cache) log(format string, args ...any) {
	if c.progress == nil {
		return
	}
	c.progress(fmt.Sprintf(format, args...))
}

// GetStr reads n raw bytes starting at offset in file, recursing across
// page boundaries as needed.
func (c *Cache) GetStr(file FileID, offset int64, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		p, err := c.getPage(file, offset)
		if err != nil {
			return nil, err
		}
		local := int(offset - p.offset)
		p.mu.Lock()
		avail := len(p.data) - local
		take := n - len(out)
		if take > avail {
			take = avail
		}
		out = append(out, p.data[local:local+take]...)
		p.mu.Unlock()
		offset += int64(take)
	}
	return out, nil
}

// GetLine reads bytes from offset until a newline, a NUL, max bytes, or
// end of file, recursing across page boundaries.
func (c *Cache) GetLine(file FileID, offset int64, max int) ([]byte, error) {
	out := make([]byte, 0, max)
	for len(out) < max {
		p, err := c.getPage(file, offset)
		if err != nil {
			return nil, err
		}
		local := int(offset - p.offset)
		p.mu.Lock()
		found := -1
		limit := len(p.data) - local
		if limit > max-len(out) {
			limit = max - len(out)
		}
		for i := 0; i < limit; i++ {
			b := p.data[local+i]
			if b == '\n' || b == 0 {
				found = i
				break
			}
		}
		if found >= 0 {
			out = append(out, p.data[local:local+found]...)
			p.mu.Unlock()
			return out, nil
		}
		out = append(out, p.data[local:local+limit]...)
		atEOF := p.validLen < len(p.data) && local+limit >= p.validLen
		p.mu.Unlock()
		if atEOF {
			return out, nil
		}
		offset += int64(limit)
	}
	return out, nil
}

// GetInt reads a 4-byte big-endian int32 at offset.
func (c *Cache) GetInt(file FileID, offset int64) (int32, error) {
	b, err := c.GetStr(file, offset, 4)
	if err != nil {
		return 0, err
	}
	return int32(getUint32BE(b)), nil
}

// GetPos reads an 8-byte big-endian value at offset — used for the
// Indexer's fixed 8-byte key/value slots and group-block offsets.
func (c *Cache) GetPos(file FileID, offset int64) (uint64, error) {
	b, err := c.GetStr(file, offset, 8)
	if err != nil {
		return 0, err
	}
	return getUint64BE(b), nil
}

// SetStr writes data at offset in file, recursing across page boundaries
// and marking every touched page dirty.
func (c *Cache) SetStr(file FileID, offset int64, data []byte) error {
	written := 0
	for written < len(data) {
		p, err := c.getPage(file, offset)
		if err != nil {
			return err
		}
		local := int(offset - p.offset)
		p.mu.Lock()
		avail := len(p.data) - local
		take := len(data) - written
		if take > avail {
			take = avail
		}
		copy(p.data[local:local+take], data[written:written+take])
		p.dirty = true
		p.mu.Unlock()
		written += take
		offset += int64(take)
	}
	return nil
}

// FlushFile writes back every dirty page belonging to file.
func (c *Cache) FlushFile(file FileID) error {
	return c.flush(file, true)
}

// FlushAll writes back every dirty page in the Cache.
func (c *Cache) FlushAll() error {
	return c.flush(0, false)
}

func (c *Cache) flush(file FileID, onlyFile bool) error {
	for _, s := range c.shards {
		for _, p := range s.dirtyPages(file, onlyFile) {
			p.mu.Lock()
			if p.dirty {
				c.writeBackLocked(p)
			}
			p.mu.Unlock()
		}
	}
	return nil
}

// ClearFile flushes then drops every cached page belonging to file.
func (c *Cache) ClearFile(file FileID) error {
	if err := c.FlushFile(file); err != nil {
		return err
	}
	for _, s := range c.shards {
		s.drop(file, true)
	}
	return nil
}

// ClearAll flushes then drops every cached page.
func (c *Cache) ClearAll() error {
	if err := c.FlushAll(); err != nil {
		return err
	}
	for _, s := range c.shards {
		s.drop(0, false)
	}
	return nil
}

// RefreshFile drops every cached page belonging to file without flushing
// — used after file has been rewritten on disk out from under the Cache
// (an Indexer's append+rename during sort/group).
func (c *Cache) RefreshFile(file FileID) {
	for _, s := range c.shards {
		s.drop(file, true)
	}
}

// RefreshAll drops every cached page without flushing.
func (c *Cache) RefreshAll() {
	for _, s := range c.shards {
		s.drop(0, false)
	}
}

// Close flushes every dirty page and marks the Cache closed.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrCacheClosed
	}
	c.closed = true
	c.mu.Unlock()
	return c.FlushAll()
}
