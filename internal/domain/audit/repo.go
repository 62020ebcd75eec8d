package audit

import (
	"context"
	"sort"
	"sync"
)

type Repository interface {
	Create(ctx context.Context, e *Entry) error
	// Search returns matching entries newest first, and the total match count.
	Search(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
	Count(ctx context.Context, f Filter) (int, error)
}

// MemoryRepo keeps the audit trail in process memory.
type MemoryRepo struct {
	mu      sync.RWMutex
	entries []*Entry
	nextID  int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{nextID: 1}
}

func (r *MemoryRepo) Create(_ context.Context, e *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.ID = r.nextID
	r.nextID++
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemoryRepo) Search(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Entry
	for _, e := range r.entries {
		if f.Match(e) {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := len(matched)
	if offset >= total {
		return []*Entry{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryRepo) Count(_ context.Context, f Filter) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.entries {
		if f.Match(e) {
			n++
		}
	}
	return n, nil
}
