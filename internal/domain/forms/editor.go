package forms

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is reported by Load when the patient or submission is missing.
	ErrNotFound = errors.New("form submission not found")
	// ErrNotLoaded is returned by operations that need a loaded submission.
	ErrNotLoaded = errors.New("no form submission loaded")
	// ErrAlreadyCompleted is returned by Complete on a completed submission.
	ErrAlreadyCompleted = errors.New("form submission already completed")
	// ErrUnknownField is returned when an answer targets a label the template lacks.
	ErrUnknownField = errors.New("field not in template")
)

// API is the subset of the backend client the editor needs.
type API interface {
	GetPatientForm(ctx context.Context, patientID string, formID int64) (*Submission, error)
	CreatePatientForm(ctx context.Context, patientID string, req CreateRequest) (*Submission, error)
	UpdatePatientForm(ctx context.Context, patientID string, formID int64, req UpdateRequest) (*Submission, error)
}

// NotFoundChecker is implemented by API errors that can tell a 404 apart.
type NotFoundChecker interface {
	NotFound() bool
}

// Editor holds one submission being filled in: its template fields, the
// local answer set and the outcome of the last backend call. Answers survive
// failed saves so nothing typed is lost.
type Editor struct {
	api    API
	logger zerolog.Logger

	mu        sync.Mutex
	patientID string
	sub       *Submission
	fields    []Field
	answers   AnswerSet
	dirty     bool
	lastErr   error
}

func NewEditor(api API, logger zerolog.Logger) *Editor {
	return &Editor{api: api, logger: logger}
}

// Load fetches a submission with its template fields and replaces the local
// state. On failure the previous state is kept and the error is remembered
// for LastError, so the caller can offer a retry.
func (e *Editor) Load(ctx context.Context, patientID string, formID int64) (*Submission, error) {
	sub, err := e.api.GetPatientForm(ctx, patientID, formID)
	if err != nil {
		var nf NotFoundChecker
		if errors.As(err, &nf) && nf.NotFound() {
			err = fmt.Errorf("%w: patient %s form %d: %v", ErrNotFound, patientID, formID, err)
		} else {
			err = fmt.Errorf("load form %d for patient %s: %w", formID, patientID, err)
		}
		e.fail(err)
		return nil, err
	}

	fields := DecodeFields(sub.TemplateFields)
	if warnings := ValidateTemplate(sub.TemplateFields); len(warnings) > 0 {
		e.logger.Warn().Int64("form_id", formID).Strs("warnings", warnings).Msg("template has issues")
	}

	e.mu.Lock()
	e.patientID = patientID
	e.sub = sub
	e.fields = fields
	e.answers = BuildAnswerSet(fields, sub.FormData)
	e.dirty = false
	e.lastErr = nil
	e.mu.Unlock()

	e.logger.Debug().Str("patient_id", patientID).Int64("form_id", formID).
		Int("fields", len(fields)).Str("status", string(sub.Status)).Msg("form loaded")
	return sub, nil
}

// Create starts an empty draft of templateID for the patient and loads it.
func (e *Editor) Create(ctx context.Context, patientID string, templateID int64) (*Submission, error) {
	if templateID <= 0 {
		return nil, fmt.Errorf("template id is required")
	}
	sub, err := e.api.CreatePatientForm(ctx, patientID, CreateRequest{
		TemplateID: templateID,
		FormData:   AnswerSet{},
		Status:     StatusDraft,
	})
	if err != nil {
		err = fmt.Errorf("create form from template %d: %w", templateID, err)
		e.fail(err)
		return nil, err
	}
	return e.Load(ctx, patientID, sub.ID)
}

// Submission returns the last submission state received from the backend.
func (e *Editor) Submission() *Submission {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sub
}

// Fields returns the decoded template fields in order.
func (e *Editor) Fields() []Field {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Field, len(e.fields))
	copy(out, e.fields)
	return out
}

// Empty reports whether the loaded template has no fields. Both save
// actions remain available in that case.
func (e *Editor) Empty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fields) == 0
}

// Editable reports whether field edits should be offered.
func (e *Editor) Editable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sub != nil && !e.sub.Completed()
}

// Answers returns a copy of the local answer set.
func (e *Editor) Answers() AnswerSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.answers.Clone()
}

// Dirty reports unsaved local edits.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// LastError returns the error of the most recent failed backend call, or nil
// once a later call succeeded.
func (e *Editor) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// Controls renders one control per field, bound to the answer set.
func (e *Editor) Controls() []Control {
	e.mu.Lock()
	fields := make([]Field, len(e.fields))
	copy(fields, e.fields)
	answers := e.answers.Clone()
	e.mu.Unlock()

	out := make([]Control, 0, len(fields))
	for _, f := range fields {
		out = append(out, RenderField(f, answers[f.Label()], e.binder(f.Label())))
	}
	return out
}

// Control renders the control for the field labelled label.
func (e *Editor) Control(label string) (Control, bool) {
	e.mu.Lock()
	f := e.lookup(label)
	var current any
	if f != nil {
		current = e.answers[label]
	}
	e.mu.Unlock()
	if f == nil {
		return nil, false
	}
	return RenderField(f, current, e.binder(label)), true
}

// Set stores value for label after converting it to the field's shape
// and checking it with CheckAnswer. A rejected value leaves the answers
// untouched.
func (e *Editor) Set(label string, value any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.lookup(label)
	if f == nil {
		if e.sub == nil {
			return ErrNotLoaded
		}
		return fmt.Errorf("%w: %q", ErrUnknownField, label)
	}
	nv, err := CheckAnswer(f, value)
	if err != nil {
		return err
	}
	e.answers[label] = nv
	e.dirty = true
	return nil
}

// SaveDraft persists the answer set without touching the status. No
// required-field validation is applied.
func (e *Editor) SaveDraft(ctx context.Context) (*Submission, error) {
	return e.save(ctx, "")
}

// Complete persists the answer set and marks the submission completed.
func (e *Editor) Complete(ctx context.Context) (*Submission, error) {
	e.mu.Lock()
	done := e.sub != nil && e.sub.Completed()
	e.mu.Unlock()
	if done {
		return nil, ErrAlreadyCompleted
	}
	return e.save(ctx, StatusCompleted)
}

func (e *Editor) save(ctx context.Context, status Status) (*Submission, error) {
	e.mu.Lock()
	if e.sub == nil {
		e.mu.Unlock()
		return nil, ErrNotLoaded
	}
	patientID, formID := e.patientID, e.sub.ID
	answers := e.answers.Clone()
	e.mu.Unlock()

	updated, err := e.api.UpdatePatientForm(ctx, patientID, formID, UpdateRequest{
		FormData: answers,
		Status:   status,
	})
	if err != nil {
		err = fmt.Errorf("save form %d: %w", formID, err)
		e.fail(err)
		e.logger.Warn().Err(err).Int64("form_id", formID).Msg("form save failed, answers kept locally")
		return nil, err
	}

	e.mu.Lock()
	// The PUT response omits template fields; keep the ones already loaded.
	if len(updated.TemplateFields) == 0 {
		updated.TemplateFields = e.sub.TemplateFields
	}
	e.sub = updated
	e.dirty = false
	e.lastErr = nil
	e.mu.Unlock()

	e.logger.Info().Int64("form_id", formID).Str("status", string(updated.Status)).Msg("form saved")
	return updated, nil
}

func (e *Editor) binder(label string) ChangeFunc {
	return func(v any) {
		if err := e.Set(label, v); err != nil {
			e.logger.Warn().Err(err).Str("field", label).Msg("discarding edit")
		}
	}
}

func (e *Editor) lookup(label string) Field {
	for _, f := range e.fields {
		if f.Label() == label {
			return f
		}
	}
	return nil
}

func (e *Editor) fail(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}
