package ghcatalog

import "testing"

func TestConfigWithDefaultsZeroValue(t *testing.T) {
	c := Config{}.withDefaults()
	if c.PageSize != defaultPageSize {
		t.Errorf("PageSize = %d, want %d", c.PageSize, defaultPageSize)
	}
	if c.CachePages != defaultCachePages {
		t.Errorf("CachePages = %d, want %d", c.CachePages, defaultCachePages)
	}
	if c.HashAlgorithm != AlgXXHash3 {
		t.Errorf("HashAlgorithm = %d, want %d", c.HashAlgorithm, AlgXXHash3)
	}
	if c.SortMemoryBytes != defaultSortMemoryBytes {
		t.Errorf("SortMemoryBytes = %d, want %d", c.SortMemoryBytes, defaultSortMemoryBytes)
	}
	if c.Workers != defaultWorkers {
		t.Errorf("Workers = %d, want %d", c.Workers, defaultWorkers)
	}
}

func TestConfigWithDefaultsPreservesExplicitValues(t *testing.T) {
	c := Config{
		PageSize:        4096,
		CachePages:      numShards * 4,
		HashAlgorithm:   AlgBlake2b,
		SortMemoryBytes: 1024,
		Workers:         5,
	}.withDefaults()
	if c.PageSize != 4096 {
		t.Errorf("PageSize overwritten: %d", c.PageSize)
	}
	if c.HashAlgorithm != AlgBlake2b {
		t.Errorf("HashAlgorithm overwritten: %d", c.HashAlgorithm)
	}
	if c.Workers != 5 {
		t.Errorf("Workers overwritten: %d", c.Workers)
	}
}

func TestConfigReportNilProgressIsNoop(t *testing.T) {
	c := Config{}
	c.report("should not panic: %d", 1) // no Progress set
}

func TestConfigReportFormatsArgs(t *testing.T) {
	var got string
	c := Config{Progress: func(s string) { got = s }}
	c.report("%d rows scanned", 42)
	if got != "42 rows scanned" {
		t.Errorf("report formatted = %q, want %q", got, "42 rows scanned")
	}
}

func TestConfigReportNoArgsSkipsSprintf(t *testing.T) {
	var got string
	c := Config{Progress: func(s string) { got = s }}
	c.report("plain message with %d inside it, unformatted")
	if got != "plain message with %d inside it, unformatted" {
		t.Errorf("report(no args) = %q, want the literal format string", got)
	}
}
