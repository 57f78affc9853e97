package patient

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// MemoryRepository keeps records in memory in insertion order.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*Patient
	order []string
	seq   int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*Patient)}
}

// Create stores p. A record without an ID gets the next P### identifier;
// seeded records keep theirs.
func (r *MemoryRepository) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == "" {
		r.seq++
		p.ID = fmt.Sprintf("P%03d", r.seq)
		for r.items[p.ID] != nil {
			r.seq++
			p.ID = fmt.Sprintf("P%03d", r.seq)
		}
	} else {
		if _, exists := r.items[p.ID]; exists {
			return fmt.Errorf("patient %s already exists", p.ID)
		}
		if n, ok := sequenceOf(p.ID); ok && n > r.seq {
			r.seq = n
		}
	}

	r.items[p.ID] = p.Clone()
	r.order = append(r.order, p.ID)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (r *MemoryRepository) Update(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[p.ID]; !ok {
		return ErrNotFound
	}
	r.items[p.ID] = p.Clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Patient, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id].Clone())
	}
	return out, nil
}

func sequenceOf(id string) (int, bool) {
	if !strings.HasPrefix(id, "P") {
		return 0, false
	}
	n, err := strconv.Atoi(id[1:])
	return n, err == nil
}
