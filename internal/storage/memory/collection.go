package memory

import (
	"context"
	"sync"

	"webpub/internal/models"
	"webpub/internal/storage"
)

// Collection stores copies of E so callers never share memory with the store.
type Collection[E any, PT interface {
	*E
	models.Entity
}] struct {
	mu    sync.RWMutex
	items map[string]E
	order []string
}

func NewCollection[E any, PT interface {
	*E
	models.Entity
}]() *Collection[E, PT] {
	return &Collection[E, PT]{
		items: make(map[string]E),
	}
}

func (c *Collection[E, PT]) List(_ context.Context, owner string) ([]PT, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]PT, 0, len(c.order))
	for _, id := range c.order {
		item := c.items[id]
		if PT(&item).Owner() == owner {
			out = append(out, PT(&item))
		}
	}

	return out, nil
}

func (c *Collection[E, PT]) Get(_ context.Context, owner, id string) (PT, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.items[id]
	if !ok || PT(&item).Owner() != owner {
		return nil, storage.ErrNotFound
	}

	return PT(&item), nil
}

func (c *Collection[E, PT]) Create(_ context.Context, item PT, limit int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if limit > 0 && c.countLocked(item.Owner()) >= limit {
		return storage.ErrLimitReached
	}

	id := item.ResourceID()
	if _, ok := c.items[id]; !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = *item

	return nil
}

func (c *Collection[E, PT]) Update(_ context.Context, item PT) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.items[item.ResourceID()]
	if !ok || PT(&cur).Owner() != item.Owner() {
		return storage.ErrNotFound
	}
	c.items[item.ResourceID()] = *item

	return nil
}

func (c *Collection[E, PT]) Delete(_ context.Context, owner, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.items[id]
	if !ok || PT(&cur).Owner() != owner {
		return storage.ErrNotFound
	}
	delete(c.items, id)

	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	return nil
}

func (c *Collection[E, PT]) Count(_ context.Context, owner string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.countLocked(owner), nil
}

func (c *Collection[E, PT]) countLocked(owner string) int {
	n := 0
	for _, item := range c.items {
		if PT(&item).Owner() == owner {
			n++
		}
	}

	return n
}
