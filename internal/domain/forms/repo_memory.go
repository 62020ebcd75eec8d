package forms

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type MemoryTemplateRepo struct {
	mu     sync.RWMutex
	items  map[int64]*Template
	nextID int64
}

func NewMemoryTemplateRepo() *MemoryTemplateRepo {
	return &MemoryTemplateRepo{items: make(map[int64]*Template), nextID: 1}
}

func (r *MemoryTemplateRepo) Create(_ context.Context, t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.nextID
	r.nextID++
	r.items[t.ID] = cloneTemplate(t)
	return nil
}

func (r *MemoryTemplateRepo) GetByID(_ context.Context, id int64) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	if !ok {
		return nil, ErrTemplateNotFound
	}
	return cloneTemplate(t), nil
}

func (r *MemoryTemplateRepo) Update(_ context.Context, t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.ID]; !ok {
		return ErrTemplateNotFound
	}
	r.items[t.ID] = cloneTemplate(t)
	return nil
}

func (r *MemoryTemplateRepo) List(_ context.Context, status string) ([]*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Template
	for _, t := range r.items {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneTemplate(t *Template) *Template {
	cp := *t
	cp.Fields = append([]FieldSpec(nil), t.Fields...)
	cp.AllowedRoles = copyStrings(t.AllowedRoles)
	return &cp
}

type MemorySubmissionRepo struct {
	mu     sync.RWMutex
	items  map[int64]*Submission
	nextID int64
}

func NewMemorySubmissionRepo() *MemorySubmissionRepo {
	return &MemorySubmissionRepo{items: make(map[int64]*Submission), nextID: 1}
}

func (r *MemorySubmissionRepo) Create(_ context.Context, s *Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.nextID
	r.nextID++
	r.items[s.ID] = cloneSubmission(s)
	return nil
}

func (r *MemorySubmissionRepo) GetByID(_ context.Context, id int64) (*Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSubmission(s), nil
}

// Update replaces the stored submission. There is no version check: the
// last write wins.
func (r *MemorySubmissionRepo) Update(_ context.Context, s *Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[s.ID]; !ok {
		return ErrNotFound
	}
	r.items[s.ID] = cloneSubmission(s)
	return nil
}

func (r *MemorySubmissionRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *MemorySubmissionRepo) ListByPatient(_ context.Context, patientID int64) ([]*Submission, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Submission
	for _, s := range r.items {
		if s.PatientID == patientID {
			out = append(out, cloneSubmission(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CreatedAt, out[j].CreatedAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.After(*b)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (r *MemorySubmissionRepo) CountByTemplate(_ context.Context, templateID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.items {
		if s.TemplateID == templateID {
			n++
		}
	}
	return n, nil
}

func cloneSubmission(s *Submission) *Submission {
	cp := *s
	cp.FormData = map[string]any(AnswerSet(s.FormData).Clone())
	cp.TemplateFields = nil
	return &cp
}
