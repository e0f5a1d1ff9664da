// Package ghcatalog builds a persistent, cache-backed record store over
// three CSV datasets describing a social-coding platform — accounts,
// repositories, and commits — and answers a fixed catalogue of analytic
// queries over it.
//
// The storage core is a Record Format descriptor (parse/validate/serialise
// heterogeneous tuples), a Block Cache (file-agnostic LRU page cache with
// write-back), an Indexer (sorted key/value file with optional grouping
// into an inverted index), and a Lazy Record accessor that materialises
// fields on demand from cached pages. Catalog composes these into seven
// indexes over the three entities and a small set of precomputed
// statistics; the Query Engine answers ten fixed analytic queries over
// those primitives.
package ghcatalog

import "errors"

// Record Format errors.
var (
	// ErrInvalidToken is returned when a CSV token does not parse as its
	// field's kind.
	ErrInvalidToken = errors.New("invalid token for field kind")

	// ErrArityMismatch is returned when a textual record has the wrong
	// number of tokens for its format.
	ErrArityMismatch = errors.New("token count does not match format arity")
)

// Block Cache errors.
var (
	// ErrCacheTooSmall is returned when a Cache is constructed with fewer
	// pages than the floor needed for the expected number of concurrently
	// pinned pages.
	ErrCacheTooSmall = errors.New("cache page count below minimum for concurrent pinning")

	// ErrCacheClosed is returned when a Cache is used after Close.
	ErrCacheClosed = errors.New("cache is closed")
)

// Indexer errors.
var (
	// ErrNotSorted is returned when Group is called on an Indexer that has
	// not been Sort-ed.
	ErrNotSorted = errors.New("indexer must be sorted before grouping")

	// ErrAlreadySorted is returned when Sort is called twice.
	ErrAlreadySorted = errors.New("indexer is already sorted")

	// ErrIndexReadOnly is returned when Insert is called on a grouped or
	// otherwise read-only Indexer.
	ErrIndexReadOnly = errors.New("indexer is read-only")

	// ErrNotFound is returned by positional lookups past the element
	// count.
	ErrNotFound = errors.New("index entry not found")
)

// Lazy Record errors.
var (
	// ErrLazyRequiresBinary is returned when a Lazy is constructed over a
	// Format with no Fields. Every other Format has a binary layout with
	// computable field widths, whatever its Separator.
	ErrLazyRequiresBinary = errors.New("lazy record requires a binary format")
)

// Catalog errors.
var (
	// ErrCatalogIncomplete is returned by Load when one or more of the 14
	// persisted artefacts is missing; the caller should rebuild.
	ErrCatalogIncomplete = errors.New("catalog artefacts incomplete, rebuild required")

	// ErrCatalogStale is returned by Load when the persisted catalog's
	// input fingerprint disagrees with the current CSV inputs.
	ErrCatalogStale = errors.New("catalog fingerprint stale, rebuild required")

	// ErrMissingReference is returned internally when a commit or
	// repository references an id that does not exist; rows triggering it
	// are dropped, not surfaced to the caller.
	ErrMissingReference = errors.New("referenced id does not exist")

	// ErrDecompress is returned when the compressed manifest fails to
	// decode.
	ErrDecompress = errors.New("failed to decompress record block")
)
