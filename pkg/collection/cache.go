package collection

import (
	"strconv"
	"sync"
)

// PageCache memoises fetched pages for the lifetime of a paginator.
type PageCache interface {
	Get(collectionID string, filters Filters, page int) (Page, bool)
	Put(collectionID string, filters Filters, page int, p Page)
	// Invalidate drops every cached page of the collection.
	Invalidate(collectionID string)
}

// MemoryCache is an in-process PageCache. Safe for concurrent use.
type MemoryCache struct {
	mu    sync.Mutex
	pages map[string]map[string]Page // collection -> filters|page -> page
}

// NewMemoryCache returns an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{pages: make(map[string]map[string]Page)}
}

func pageKey(filters Filters, page int) string {
	return filters.Key() + "|" + strconv.Itoa(page)
}

// Get returns a copy of the cached page.
func (c *MemoryCache) Get(collectionID string, filters Filters, page int) (Page, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pages[collectionID][pageKey(filters, page)]
	if !ok {
		return Page{}, false
	}
	p.Items = cloneItems(p.Items)
	return p, true
}

// Put stores a copy of the page.
func (c *MemoryCache) Put(collectionID string, filters Filters, page int, p Page) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byKey, ok := c.pages[collectionID]
	if !ok {
		byKey = make(map[string]Page)
		c.pages[collectionID] = byKey
	}
	p.Items = cloneItems(p.Items)
	byKey[pageKey(filters, page)] = p
}

// Invalidate drops every cached page of the collection.
func (c *MemoryCache) Invalidate(collectionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pages, collectionID)
}

// Len returns the number of cached pages across all collections.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, byKey := range c.pages {
		n += len(byKey)
	}
	return n
}
