package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// ContentCache memoises extracted data-source content by file URL. Stored
// files are immutable, so entries never go stale.
type ContentCache struct {
	entries *lru.Cache[string, string]
}

func NewContentCache(size int) (*ContentCache, error) {
	if size <= 0 {
		size = 64
	}
	entries, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &ContentCache{entries: entries}, nil
}

func (c *ContentCache) Get(url string) (string, bool) {
	return c.entries.Get(url)
}

func (c *ContentCache) Set(url, content string) {
	c.entries.Add(url, content)
}

func (c *ContentCache) Len() int {
	return c.entries.Len()
}
