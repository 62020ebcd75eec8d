package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/domain/patient"
	"github.com/ehr/mhemr/internal/platform/auth"
)

var (
	// ErrTemplateUnavailable is returned when a form is created from a
	// missing or archived template.
	ErrTemplateUnavailable = errors.New("template not found or archived")
	// ErrForbidden is returned when the caller's role may not see a form's
	// template.
	ErrForbidden = errors.New("forbidden")
)

// ValidationError marks a request rejected before any state changed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// PatientResolver resolves a patient reference for the calling principal.
type PatientResolver interface {
	ResolveFor(ctx context.Context, caller auth.Principal, ref string) (*patient.Patient, error)
}

// UserDirectory resolves the display name shown as filledByName.
type UserDirectory interface {
	DisplayName(ctx context.Context, id int64) (string, bool)
}

// AuditLogger records template and form operations.
type AuditLogger interface {
	Success(ctx context.Context, action, resource, description string)
}

// Service is the backend side of the form engine: template management and
// patient-scoped submissions.
type Service struct {
	templates TemplateRepository
	subs      SubmissionRepository
	patients  PatientResolver
	users     UserDirectory
	audit     AuditLogger
	logger    zerolog.Logger
	nowFn     func() time.Time
}

func NewService(templates TemplateRepository, subs SubmissionRepository, patients PatientResolver, users UserDirectory, logger zerolog.Logger) *Service {
	return &Service{
		templates: templates,
		subs:      subs,
		patients:  patients,
		users:     users,
		logger:    logger.With().Str("component", "forms").Logger(),
		nowFn:     time.Now,
	}
}

func (s *Service) SetAuditLogger(a AuditLogger) {
	s.audit = a
}

func (s *Service) record(ctx context.Context, action, resource, description string) {
	if s.audit != nil {
		s.audit.Success(ctx, action, resource, description)
	}
}

func (s *Service) now() *time.Time {
	t := s.nowFn().UTC()
	return &t
}

// -- Templates --

func (s *Service) ListTemplates(ctx context.Context, status string) ([]*Template, error) {
	if status != "" && status != TemplateActive && status != TemplateArchived {
		return nil, invalidf("status must be %s or %s", TemplateActive, TemplateArchived)
	}
	items, err := s.templates.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	for _, t := range items {
		if t.InstanceCount, err = s.subs.CountByTemplate(ctx, t.ID); err != nil {
			return nil, fmt.Errorf("count instances: %w", err)
		}
	}
	return items, nil
}

func (s *Service) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.InstanceCount, err = s.subs.CountByTemplate(ctx, id); err != nil {
		return nil, fmt.Errorf("count instances: %w", err)
	}
	s.record(ctx, audit.ActionTemplateGet, templateResource(id), fmt.Sprintf("Viewed template %q", t.Name))
	return t, nil
}

func (s *Service) CreateTemplate(ctx context.Context, req TemplateRequest) (*Template, error) {
	name := strings.TrimSpace(req.Name)
	category := strings.TrimSpace(req.Category)
	if name == "" || category == "" {
		return nil, invalidf("name and category are required")
	}
	roles := req.AllowedRoles
	if len(roles) == 0 {
		roles = copyStrings(DefaultAllowedRoles)
	}
	if err := validateRoles(roles); err != nil {
		return nil, err
	}
	fields := req.Fields
	if fields == nil {
		fields = []FieldSpec{}
	}
	for _, w := range ValidateTemplate(fields) {
		s.logger.Warn().Str("template", name).Msg(w)
	}

	t := &Template{
		Name:         name,
		Category:     category,
		Description:  req.Description,
		Fields:       fields,
		AllowedRoles: roles,
		Status:       TemplateActive,
		CreatedAt:    s.now(),
		UpdatedAt:    s.now(),
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok {
		uid := p.UserID
		t.CreatedBy = &uid
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	s.record(ctx, audit.ActionTemplateCreate, templateResource(t.ID), fmt.Sprintf("Created template %q", t.Name))
	return t, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id int64, patch TemplatePatch) (*Template, error) {
	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return nil, invalidf("name must not be empty")
		}
		t.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Category != nil {
		if strings.TrimSpace(*patch.Category) == "" {
			return nil, invalidf("category must not be empty")
		}
		t.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Description != nil {
		t.Description = patch.Description
	}
	if patch.Fields != nil {
		t.Fields = *patch.Fields
		for _, w := range ValidateTemplate(t.Fields) {
			s.logger.Warn().Int64("template_id", id).Msg(w)
		}
	}
	if patch.AllowedRoles != nil {
		if err := validateRoles(*patch.AllowedRoles); err != nil {
			return nil, err
		}
		t.AllowedRoles = *patch.AllowedRoles
	}
	if patch.Status != nil {
		if *patch.Status != TemplateActive && *patch.Status != TemplateArchived {
			return nil, invalidf("status must be %s or %s", TemplateActive, TemplateArchived)
		}
		t.Status = *patch.Status
	}
	t.UpdatedAt = s.now()
	if err := s.templates.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	if t.InstanceCount, err = s.subs.CountByTemplate(ctx, id); err != nil {
		return nil, fmt.Errorf("count instances: %w", err)
	}
	s.record(ctx, audit.ActionTemplateUpdate, templateResource(id), fmt.Sprintf("Updated template %q", t.Name))
	return t, nil
}

func validateRoles(roles []string) error {
	if len(roles) == 0 {
		return invalidf("allowedRoles must not be empty")
	}
	for _, r := range roles {
		if !auth.ValidRole(r) {
			return invalidf("unknown role %q", r)
		}
	}
	return nil
}

// -- Patient forms --

func (s *Service) ListPatientForms(ctx context.Context, patientRef string) ([]*Submission, error) {
	caller, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	subs, err := s.subs.ListByPatient(ctx, pt.ID)
	if err != nil {
		return nil, fmt.Errorf("list forms: %w", err)
	}
	cache := make(map[int64]*Template)
	out := make([]*Submission, 0, len(subs))
	for _, sub := range subs {
		t, ok := cache[sub.TemplateID]
		if !ok {
			t, _ = s.templates.GetByID(ctx, sub.TemplateID)
			cache[sub.TemplateID] = t
		}
		if t == nil || !t.AllowsRole(caller.Role) {
			continue
		}
		s.decorate(ctx, sub, t)
		out = append(out, sub)
	}
	s.record(ctx, audit.ActionFormList, patientResource(pt), fmt.Sprintf("Listed %d forms for %s", len(out), pt.Label()))
	return out, nil
}

func (s *Service) GetPatientForm(ctx context.Context, patientRef string, formID int64) (*Submission, error) {
	caller, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	sub, t, err := s.load(ctx, caller, pt, formID)
	if err != nil {
		return nil, err
	}
	s.decorate(ctx, sub, t)
	sub.TemplateFields = t.Fields
	s.record(ctx, audit.ActionFormGet, formResource(pt, formID), fmt.Sprintf("Viewed %q for %s", t.Name, pt.Label()))
	return sub, nil
}

func (s *Service) CreatePatientForm(ctx context.Context, patientRef string, req CreateRequest) (*Submission, error) {
	if req.TemplateID <= 0 {
		return nil, invalidf("templateId is required")
	}
	status := req.Status
	if status == "" {
		status = StatusDraft
	}
	if !status.Valid() {
		return nil, invalidf("status must be %s or %s", StatusDraft, StatusCompleted)
	}
	caller, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	t, err := s.templates.GetByID(ctx, req.TemplateID)
	if err != nil || t.Status != TemplateActive {
		return nil, ErrTemplateUnavailable
	}
	if !t.AllowsRole(caller.Role) {
		return nil, ErrForbidden
	}

	data := map[string]any(req.FormData.Clone())
	uid := caller.UserID
	sub := &Submission{
		PatientID:  pt.ID,
		TemplateID: t.ID,
		FormData:   data,
		Status:     status,
		FilledBy:   &uid,
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	if err := s.subs.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("create form: %w", err)
	}
	s.logger.Info().Int64("form_id", sub.ID).Int64("patient_id", pt.ID).Str("status", string(status)).Msg("form created")
	s.decorate(ctx, sub, t)
	sub.TemplateFields = t.Fields
	s.record(ctx, audit.ActionFormCreate, formResource(pt, sub.ID), fmt.Sprintf("Created %q for %s", t.Name, pt.Label()))
	return sub, nil
}

// UpdatePatientForm applies formData and status when present. There is no
// version check: concurrent writers overwrite each other.
func (s *Service) UpdatePatientForm(ctx context.Context, patientRef string, formID int64, req UpdateRequest) (*Submission, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, invalidf("status must be %s or %s", StatusDraft, StatusCompleted)
	}
	caller, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	sub, t, err := s.load(ctx, caller, pt, formID)
	if err != nil {
		return nil, err
	}
	if req.FormData != nil {
		sub.FormData = map[string]any(req.FormData.Clone())
	}
	if req.Status != "" {
		sub.Status = req.Status
	}
	uid := caller.UserID
	sub.FilledBy = &uid
	sub.UpdatedAt = s.now()
	if err := s.subs.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("update form: %w", err)
	}

	action, verb := audit.ActionFormUpdate, "Updated"
	if req.Status == StatusCompleted {
		action, verb = audit.ActionFormSign, "Completed"
	}
	s.decorate(ctx, sub, t)
	sub.TemplateFields = t.Fields
	s.record(ctx, action, formResource(pt, formID), fmt.Sprintf("%s %q for %s", verb, t.Name, pt.Label()))
	return sub, nil
}

func (s *Service) DeletePatientForm(ctx context.Context, patientRef string, formID int64) error {
	caller, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return err
	}
	_, t, err := s.load(ctx, caller, pt, formID)
	if err != nil {
		return err
	}
	if err := s.subs.Delete(ctx, formID); err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	s.record(ctx, audit.ActionFormDelete, formResource(pt, formID), fmt.Sprintf("Deleted %q for %s", t.Name, pt.Label()))
	return nil
}

func (s *Service) resolve(ctx context.Context, ref string) (auth.Principal, *patient.Patient, error) {
	caller, ok := auth.PrincipalFromContext(ctx)
	if !ok {
		return caller, nil, ErrForbidden
	}
	pt, err := s.patients.ResolveFor(ctx, caller, ref)
	if err != nil {
		return caller, nil, err
	}
	return caller, pt, nil
}

// load fetches a submission that belongs to pt and whose template the
// caller's role may see.
func (s *Service) load(ctx context.Context, caller auth.Principal, pt *patient.Patient, formID int64) (*Submission, *Template, error) {
	sub, err := s.subs.GetByID(ctx, formID)
	if err != nil || sub.PatientID != pt.ID {
		return nil, nil, ErrNotFound
	}
	t, err := s.templates.GetByID(ctx, sub.TemplateID)
	if err != nil {
		return nil, nil, fmt.Errorf("template %d of form %d: %w", sub.TemplateID, formID, err)
	}
	if !t.AllowsRole(caller.Role) {
		return nil, nil, ErrForbidden
	}
	return sub, t, nil
}

func (s *Service) decorate(ctx context.Context, sub *Submission, t *Template) {
	name, category := t.Name, t.Category
	sub.TemplateName = &name
	sub.TemplateCategory = &category
	if sub.FilledBy != nil && s.users != nil {
		if n, ok := s.users.DisplayName(ctx, *sub.FilledBy); ok {
			sub.FilledByName = &n
		}
	}
}

func templateResource(id int64) string {
	return fmt.Sprintf("templates/%d", id)
}

func patientResource(p *patient.Patient) string {
	return fmt.Sprintf("patients/%s/forms", p.Code)
}

func formResource(p *patient.Patient, formID int64) string {
	return fmt.Sprintf("patients/%s/forms/%d", p.Code, formID)
}
