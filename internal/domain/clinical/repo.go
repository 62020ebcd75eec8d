package clinical

import (
	"context"
	"sort"
	"sync"
	"time"
)

type NoteRepository interface {
	Create(ctx context.Context, n *Note) error
	// ListByPatient returns notes newest first. A non-zero since drops
	// older notes.
	ListByPatient(ctx context.Context, patientID int64, since time.Time) ([]*Note, error)
}

type PlanRepository interface {
	GetByPatient(ctx context.Context, patientID int64) (*Plan, error)
	// Save creates or replaces the patient's plan and reports whether it
	// was created.
	Save(ctx context.Context, p *Plan) (bool, error)
}

type MemoryNoteRepo struct {
	mu     sync.RWMutex
	items  map[int64]*Note
	nextID int64
}

func NewMemoryNoteRepo() *MemoryNoteRepo {
	return &MemoryNoteRepo{items: make(map[int64]*Note), nextID: 1}
}

func (r *MemoryNoteRepo) Create(_ context.Context, n *Note) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.ID = r.nextID
	r.nextID++
	cp := *n
	r.items[n.ID] = &cp
	return nil
}

func (r *MemoryNoteRepo) ListByPatient(_ context.Context, patientID int64, since time.Time) ([]*Note, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []*Note{}
	for _, n := range r.items {
		if n.PatientID != patientID || n.Date.Before(since) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID > out[j].ID
		}
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

type MemoryPlanRepo struct {
	mu        sync.Mutex
	byPatient map[int64]*Plan
	nextID    int64
}

func NewMemoryPlanRepo() *MemoryPlanRepo {
	return &MemoryPlanRepo{byPatient: make(map[int64]*Plan), nextID: 1}
}

func (r *MemoryPlanRepo) GetByPatient(_ context.Context, patientID int64) (*Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byPatient[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryPlanRepo) Save(_ context.Context, p *Plan) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byPatient[p.PatientID]
	if ok {
		p.ID = existing.ID
	} else {
		p.ID = r.nextID
		r.nextID++
	}
	cp := *p
	r.byPatient[p.PatientID] = &cp
	return !ok, nil
}
