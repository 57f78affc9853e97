package documents

import (
	"context"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("document not found")

// Catalog is the read-only shared document library.
type Catalog interface {
	List(ctx context.Context) ([]Document, error)
	Get(ctx context.Context, id string) (*Document, error)
}

// MemoryCatalog is a Catalog over a fixed slice, in the order given.
type MemoryCatalog struct {
	mu   sync.RWMutex
	docs []Document
}

func NewMemoryCatalog(docs []Document) *MemoryCatalog {
	return &MemoryCatalog{docs: append([]Document(nil), docs...)}
}

func (c *MemoryCatalog) List(_ context.Context) ([]Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Document(nil), c.docs...), nil
}

func (c *MemoryCatalog) Get(_ context.Context, id string) (*Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.docs {
		if d.ID == id {
			out := d
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
