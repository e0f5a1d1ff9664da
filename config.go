// Config carries the tunables for a Catalog and the components it builds
// (Block Cache, Indexer). Zero values are replaced with defaults the way
// the teacher's Open applies defaults to its own Config.
package ghcatalog

import "fmt"

const (
	defaultPageSize        = 1024
	defaultCachePages      = 4096
	minCachePages          = numShards // one page per shard floor
	defaultSortMemoryBytes = 128 * 1024 * 1024
	defaultWorkers         = 2
)

// Config holds the tunables shared by the Block Cache, the Indexer's
// external sort, and the Catalog's build pipeline.
type Config struct {
	// PageSize is the Block Cache's page size in bytes. Default 1024 (1
	// KiB), matching spec.md §3's Page entity.
	PageSize int

	// CachePages is the number of pages the Block Cache holds. Must be at
	// least minCachePages once defaulted; Build/Load returns
	// ErrCacheTooSmall otherwise.
	CachePages int

	// HashAlgorithm selects the digest used for the Catalog's input
	// fingerprint, the staleness check Load compares against the
	// manifest on reopen. Default AlgXXHash3.
	HashAlgorithm HashAlgorithm

	// SortMemoryBytes bounds the in-memory buffer an Indexer's external
	// merge sort fills before flushing a run. Default 128 MiB.
	SortMemoryBytes int

	// Workers is the fixed worker-pool size for the Task Manager. Default
	// 2, matching spec.md §5's "at most two builder threads".
	Workers int

	// SyncWrites calls fsync after each Block Cache write-back.
	SyncWrites bool

	// Progress, if set, receives short human-readable progress lines: one
	// per Build ingest stage, plus Block Cache write-back failures. Never
	// written to stdout directly.
	Progress func(string)
}

// withDefaults returns a copy of c with zero-valued fields replaced by
// their defaults.
func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.CachePages <= 0 {
		c.CachePages = defaultCachePages
	}
	if c.HashAlgorithm == 0 {
		c.HashAlgorithm = AlgXXHash3
	}
	if c.SortMemoryBytes <= 0 {
		c.SortMemoryBytes = defaultSortMemoryBytes
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	return c
}

func (c Config) report(format string, args ...any) {
	if c.Progress == nil {
		return
	}
	if len(args) == 0 {
		c.Progress(format)
		return
	}
	c.Progress(fmt.Sprintf(format, args...))
}
