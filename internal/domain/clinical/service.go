package clinical

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/domain/patient"
	"github.com/ehr/mhemr/internal/platform/auth"
)

// Patients resolves patient references for the caller and stores the
// recomputed risk level.
type Patients interface {
	ResolveFor(ctx context.Context, caller auth.Principal, ref string) (*patient.Patient, error)
	SetRiskLevel(ctx context.Context, id int64, level string) error
}

// UserDirectory resolves the display name shown as providerName.
type UserDirectory interface {
	DisplayName(ctx context.Context, id int64) (string, bool)
}

type AuditLogger interface {
	Success(ctx context.Context, action, resource, description string)
}

type Service struct {
	notes    NoteRepository
	plans    PlanRepository
	patients Patients
	users    UserDirectory
	audit    AuditLogger
	logger   zerolog.Logger
	nowFn    func() time.Time
}

func NewService(notes NoteRepository, plans PlanRepository, patients Patients, users UserDirectory, logger zerolog.Logger) *Service {
	return &Service{
		notes:    notes,
		plans:    plans,
		patients: patients,
		users:    users,
		logger:   logger.With().Str("component", "clinical").Logger(),
		nowFn:    time.Now,
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

func invalidf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// -- Notes --

// ListNotes returns the patient's notes, newest first.
func (s *Service) ListNotes(ctx context.Context, patientRef string) ([]*Note, error) {
	_, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	notes, err := s.notes.ListByPatient(ctx, pt.ID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	for _, n := range notes {
		s.decorate(ctx, n)
	}
	s.record(ctx, audit.ActionNoteList, notesResource(pt), fmt.Sprintf("Listed %d notes for %s", len(notes), pt.Label()))
	return notes, nil
}

// CreateNote stores a note written by the caller and rescores the patient.
func (s *Service) CreateNote(ctx context.Context, patientRef string, req NoteRequest) (*Note, error) {
	caller, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	noteType := strings.TrimSpace(req.Type)
	if noteType == "" {
		noteType = DefaultNoteType
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = NoteDraft
	}
	if status != NoteDraft && status != NoteSigned {
		return nil, invalidf("status must be %s or %s", NoteDraft, NoteSigned)
	}

	n := &Note{
		PatientID:  pt.ID,
		ProviderID: caller.UserID,
		Date:       s.nowFn().UTC(),
		Type:       noteType,
		Status:     status,
		Summary:    optional(req.Summary),
		Diagnosis:  optional(req.Diagnosis),
	}
	if err := s.notes.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	s.decorate(ctx, n)
	s.logger.Info().Int64("note_id", n.ID).Int64("patient_id", pt.ID).Str("type", n.Type).Msg("note created")
	s.record(ctx, audit.ActionNoteCreate, notesResource(pt), fmt.Sprintf("Added %s note for %s", n.Type, pt.Label()))

	if _, err := s.rescore(ctx, pt); err != nil {
		s.logger.Warn().Err(err).Int64("patient_id", pt.ID).Msg("failed to update risk level")
	}
	return n, nil
}

// -- Risk --

// Risk recomputes the patient's risk level, stores it and explains it.
func (s *Service) Risk(ctx context.Context, patientRef string) (*RiskReport, error) {
	_, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	r, err := s.rescore(ctx, pt)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.ActionRiskGet, riskResource(pt), fmt.Sprintf("Scored %s as %s risk", pt.Label(), r.Level))
	return r, nil
}

func (s *Service) rescore(ctx context.Context, pt *patient.Patient) (*RiskReport, error) {
	recent, err := s.notes.ListByPatient(ctx, pt.ID, s.nowFn().UTC().Add(-RiskWindow))
	if err != nil {
		return nil, fmt.Errorf("list recent notes: %w", err)
	}
	r := Score(pt.PrimaryDiagnosis, recent)
	r.PatientID = pt.ID
	if r.Level != pt.RiskLevel {
		if err := s.patients.SetRiskLevel(ctx, pt.ID, r.Level); err != nil {
			return nil, err
		}
		s.logger.Info().Int64("patient_id", pt.ID).Str("from", pt.RiskLevel).Str("to", r.Level).Msg("risk level changed")
		pt.RiskLevel = r.Level
	}
	return &r, nil
}

// -- Treatment plan --

// GetPlan returns the patient's plan, or nil when none exists.
func (s *Service) GetPlan(ctx context.Context, patientRef string) (*Plan, error) {
	_, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	p, err := s.plans.GetByPatient(ctx, pt.ID)
	if errors.Is(err, ErrNotFound) {
		p, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	s.record(ctx, audit.ActionPlanGet, planResource(pt), fmt.Sprintf("Viewed treatment plan for %s", pt.Label()))
	return p, nil
}

// UpsertPlan creates the patient's plan or replaces the existing one.
func (s *Service) UpsertPlan(ctx context.Context, patientRef string, req PlanRequest) (*PlanResult, error) {
	_, pt, err := s.resolve(ctx, patientRef)
	if err != nil {
		return nil, err
	}
	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	review, err := parseDate(req.ReviewDate)
	if err != nil {
		return nil, err
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = PlanActive
	}
	if status != PlanActive && status != PlanArchived {
		return nil, invalidf("status must be %s or %s", PlanActive, PlanArchived)
	}
	goals, err := normalizeGoals(req.Goals)
	if err != nil {
		return nil, err
	}

	p := &Plan{
		PatientID:  pt.ID,
		StartDate:  start,
		ReviewDate: review,
		Goals:      goals,
		Status:     status,
		UpdatedAt:  s.nowFn().UTC(),
	}
	created, err := s.plans.Save(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("save plan: %w", err)
	}
	verb := "Updated"
	if created {
		verb = "Created"
	}
	s.record(ctx, audit.ActionPlanUpsert, planResource(pt), fmt.Sprintf("%s treatment plan for %s", verb, pt.Label()))
	return &PlanResult{Created: created, Plan: p}, nil
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

func (s *Service) decorate(ctx context.Context, n *Note) {
	if s.users == nil {
		return
	}
	if name, ok := s.users.DisplayName(ctx, n.ProviderID); ok {
		n.ProviderName = &name
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// parseDate validates a YYYY-MM-DD date. Empty means unset.
func parseDate(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return nil, invalidf("startDate/reviewDate must be YYYY-MM-DD")
	}
	return &s, nil
}

// normalizeGoals accepts a JSON list or object; absent or null goals
// become an empty list.
func normalizeGoals(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("[]"), nil
	}
	if (trimmed[0] != '[' && trimmed[0] != '{') || !json.Valid(trimmed) {
		return nil, invalidf("goals must be a list or object")
	}
	out := make(json.RawMessage, len(trimmed))
	copy(out, trimmed)
	return out, nil
}

func notesResource(p *patient.Patient) string {
	return fmt.Sprintf("patients/%s/notes", p.Code)
}

func planResource(p *patient.Patient) string {
	return fmt.Sprintf("patients/%s/treatment-plan", p.Code)
}

func riskResource(p *patient.Patient) string {
	return fmt.Sprintf("patients/%s/risk", p.Code)
}
