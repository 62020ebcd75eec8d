package forms

import (
	"context"
	"errors"
)

// ErrTemplateNotFound is returned by template lookups that match nothing.
var ErrTemplateNotFound = errors.New("template not found")

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id int64) (*Template, error)
	Update(ctx context.Context, t *Template) error
	// List returns templates ordered by name. An empty status matches all.
	List(ctx context.Context, status string) ([]*Template, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, id int64) (*Submission, error)
	Update(ctx context.Context, s *Submission) error
	Delete(ctx context.Context, id int64) error
	// ListByPatient returns a patient's submissions newest first.
	ListByPatient(ctx context.Context, patientID int64) ([]*Submission, error)
	CountByTemplate(ctx context.Context, templateID int64) (int, error)
}
