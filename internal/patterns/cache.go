// Package patterns compiles and caches the case-insensitive regular
// expressions used by policy rules and the sanitizer.
package patterns

import (
	"fmt"
	"regexp"

	"github.com/dgraph-io/ristretto/v2"
)

const defaultMaxEntries = 1024

// Cache holds compiled case-insensitive patterns keyed by their source text.
// A nil *Cache is valid and compiles on every call.
type Cache struct {
	c *ristretto.Cache[string, *regexp.Regexp]
}

// New creates a cache holding up to maxEntries compiled patterns
func New(maxEntries int64) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, *regexp.Regexp]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create pattern cache: %w", err)
	}
	return &Cache{c: c}, nil
}

// Compile returns the case-insensitive regexp for pattern
func (c *Cache) Compile(pattern string) (*regexp.Regexp, error) {
	if c != nil {
		if re, ok := c.c.Get(pattern); ok {
			return re, nil
		}
	}

	re, err := CompileInsensitive(pattern)
	if err != nil {
		return nil, err
	}

	if c != nil {
		c.c.Set(pattern, re, 1)
	}
	return re, nil
}

// Close releases the cache's background goroutines
func (c *Cache) Close() {
	if c != nil {
		c.c.Close()
	}
}

// CompileInsensitive compiles pattern with the case-insensitive flag set
func CompileInsensitive(pattern string) (*regexp.Regexp, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return re, nil
}

// Validate reports the first pattern in list that does not compile
func Validate(list []string) error {
	for _, p := range list {
		if _, err := CompileInsensitive(p); err != nil {
			return err
		}
	}
	return nil
}
