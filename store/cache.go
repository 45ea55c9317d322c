package store

import (
	"context"
	"sync"

	"github.com/c360studio/bookwright/book"
)

// CachedStore wraps a ProjectStore with an in-memory project cache. Reads hit
// the cache first and fall through to the backing store; writes go to the
// backing store and refresh the cache. Safe for concurrent use.
type CachedStore struct {
	backing ProjectStore

	mu       sync.RWMutex
	projects map[string]*book.Project
}

// NewCachedStore wraps backing with a project cache.
func NewCachedStore(backing ProjectStore) *CachedStore {
	return &CachedStore{
		backing:  backing,
		projects: make(map[string]*book.Project),
	}
}

func (c *CachedStore) Get(ctx context.Context, id string) (*book.Project, error) {
	c.mu.RLock()
	cached, ok := c.projects[id]
	c.mu.RUnlock()
	if ok {
		dup := *cached
		return &dup, nil
	}

	p, err := c.backing.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.projects[id] = p
	c.mu.Unlock()

	dup := *p
	return &dup, nil
}

func (c *CachedStore) Save(ctx context.Context, p *book.Project) error {
	if err := c.backing.Save(ctx, p); err != nil {
		return err
	}

	dup := *p
	c.mu.Lock()
	c.projects[p.ID] = &dup
	c.mu.Unlock()
	return nil
}

func (c *CachedStore) Delete(ctx context.Context, id string) error {
	if err := c.backing.Delete(ctx, id); err != nil {
		return err
	}

	c.mu.Lock()
	delete(c.projects, id)
	c.mu.Unlock()
	return nil
}

func (c *CachedStore) ListSummaries(ctx context.Context) ([]book.Summary, error) {
	return c.backing.ListSummaries(ctx)
}

func (c *CachedStore) SaveChapter(ctx context.Context, ch *book.Chapter) error {
	return c.backing.SaveChapter(ctx, ch)
}

func (c *CachedStore) ListChapters(ctx context.Context, projectID string) ([]book.Chapter, error) {
	return c.backing.ListChapters(ctx, projectID)
}

func (c *CachedStore) Close() error {
	return c.backing.Close()
}
