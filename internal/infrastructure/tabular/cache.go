package tabular

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Parse cache defaults: entries live five minutes so a failed mapping
// retried with corrected config skips the re-parse.
const (
	DefaultCacheEntries = 32
	DefaultCacheTTL     = 5 * time.Minute
)

// ParseCache is a process-wide bounded LRU of parsed tables keyed by file
// fingerprint. It is an injected dependency, not a singleton; a nil
// *ParseCache behaves as a null cache so tests can opt out.
type ParseCache struct {
	lru *expirable.LRU[string, *Table]
}

// NewParseCache creates a parse cache holding up to maxEntries tables for
// ttl each.
func NewParseCache(maxEntries int, ttl time.Duration) *ParseCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ParseCache{
		lru: expirable.NewLRU[string, *Table](maxEntries, nil, ttl),
	}
}

// Get returns the cached table for a fingerprint, if present and fresh.
func (c *ParseCache) Get(fingerprint string) (*Table, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(fingerprint)
}

// Put stores a parsed table under its fingerprint.
func (c *ParseCache) Put(fingerprint string, table *Table) {
	if c == nil {
		return
	}
	c.lru.Add(fingerprint, table)
}

// Len returns the number of cached entries.
func (c *ParseCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// ParseCached parses data of the given kind through the cache: a hit skips
// the parse entirely. The returned fingerprint identifies the file.
func ParseCached(cache *ParseCache, data []byte, kind Kind) (*Table, string, error) {
	fingerprint := Fingerprint(data)
	if table, ok := cache.Get(fingerprint); ok {
		return table, fingerprint, nil
	}
	table, err := Parse(data, kind)
	if err != nil {
		return nil, fingerprint, err
	}
	cache.Put(fingerprint, table)
	return table, fingerprint, nil
}
