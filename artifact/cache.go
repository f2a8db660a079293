package artifact

import (
	"context"
	"sort"
	"sync"
)

// Cache memoizes reconstructed views per artifact name. Published artifacts
// are immutable, so an entry stays valid until the owner calls Invalidate,
// Refetch or Clear. Concurrent fetches of the same name share one load, which
// is not bound to the cancellation of the caller that started it. Failed loads
// are not remembered.
type Cache struct {
	store Store

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	ready chan struct{}
	view  *View
	err   error
}

// NewCache creates an empty cache reading from store
func NewCache(store Store) *Cache {
	return &Cache{store: store, entries: make(map[string]*cacheEntry)}
}

// Fetch returns the view for name, loading and reading it on first use
func (c *Cache) Fetch(ctx context.Context, name string) (*View, error) {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		e = &cacheEntry{ready: make(chan struct{})}
		c.entries[name] = e
		c.mu.Unlock()
		go c.load(context.WithoutCancel(ctx), name, e)
	} else {
		c.mu.Unlock()
	}

	select {
	case <-e.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return e.view, e.err
}

func (c *Cache) load(ctx context.Context, name string, e *cacheEntry) {
	defer close(e.ready)

	a, err := c.store.Get(ctx, name)
	if err == nil {
		e.view, err = Read(a)
	}
	if err != nil {
		e.err = err
		c.mu.Lock()
		if c.entries[name] == e {
			delete(c.entries, name)
		}
		c.mu.Unlock()
	}
}

// Refetch drops any cached view for name and loads it again
func (c *Cache) Refetch(ctx context.Context, name string) (*View, error) {
	c.Invalidate(name)
	return c.Fetch(ctx, name)
}

// Invalidate drops the cached view for name
func (c *Cache) Invalidate(name string) {
	c.mu.Lock()
	delete(c.entries, name)
	c.mu.Unlock()
}

// Clear drops every cached view
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Cached returns the names currently held, in sorted order
func (c *Cache) Cached() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List enumerates the artifacts available in the underlying store
func (c *Cache) List(ctx context.Context) ([]string, error) {
	return c.store.List(ctx)
}
