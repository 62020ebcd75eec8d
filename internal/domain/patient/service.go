package patient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/platform/auth"
)

// AuditLogger records roster reads.
type AuditLogger interface {
	Success(ctx context.Context, action, resource, description string)
}

type Service struct {
	repo  Repository
	audit AuditLogger
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) SetAuditLogger(a AuditLogger) {
	s.audit = a
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.Code == "" {
		return fmt.Errorf("patient code is required")
	}
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("patient name is required")
	}
	if _, err := s.repo.GetByCode(ctx, p.Code); err == nil {
		return fmt.Errorf("patient code %s already exists", p.Code)
	}
	if p.RiskLevel == "" {
		p.RiskLevel = RiskLow
	}
	return s.repo.Create(ctx, p)
}

// SetRiskLevel stores a recomputed risk level.
func (s *Service) SetRiskLevel(ctx context.Context, id int64, level string) error {
	switch level {
	case RiskLow, RiskModerate, RiskHigh:
	default:
		return fmt.Errorf("invalid risk level %q", level)
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	p.RiskLevel = level
	return s.repo.Update(ctx, p)
}

// Resolve looks a patient up by numeric id first and by patient code
// otherwise.
func (s *Service) Resolve(ctx context.Context, ref string) (*Patient, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if p, err := s.repo.GetByID(ctx, id); err == nil {
			return p, nil
		}
	}
	return s.repo.GetByCode(ctx, ref)
}

// CanAccess reports whether the caller may see the patient's records.
// Technicians are limited to the patients assigned to them.
func CanAccess(p auth.Principal, pt *Patient) bool {
	if p.Role != auth.RoleTechnician {
		return true
	}
	return pt.AssignedProviderID != nil && *pt.AssignedProviderID == p.UserID
}

// ResolveFor resolves ref and checks that the caller may access it.
func (s *Service) ResolveFor(ctx context.Context, caller auth.Principal, ref string) (*Patient, error) {
	pt, err := s.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !CanAccess(caller, pt) {
		return pt, ErrForbidden
	}
	return pt, nil
}

// ListFor returns the patients visible to the caller.
func (s *Service) ListFor(ctx context.Context, caller auth.Principal) ([]*Patient, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Patient, 0, len(all))
	for _, p := range all {
		if CanAccess(caller, p) {
			out = append(out, p)
		}
	}
	if s.audit != nil {
		s.audit.Success(ctx, audit.ActionPatientList, "patients", fmt.Sprintf("Listed %d patients", len(out)))
	}
	return out, nil
}
