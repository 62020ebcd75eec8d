package patient

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("patient not found")
	ErrForbidden = errors.New("forbidden")
)

type Patient struct {
	ID                 int64  `json:"id" yaml:"-"`
	Code               string `json:"patientCode" yaml:"code"`
	FirstName          string `json:"firstName" yaml:"first_name"`
	LastName           string `json:"lastName" yaml:"last_name"`
	DateOfBirth        string `json:"dateOfBirth,omitempty" yaml:"date_of_birth"`
	PrimaryDiagnosis   string `json:"primaryDiagnosis,omitempty" yaml:"primary_diagnosis"`
	RiskLevel          string `json:"riskLevel" yaml:"-"`
	AssignedProviderID *int64 `json:"assignedProviderId" yaml:"-"`
}

// Risk levels, lowest first. A patient's RiskLevel is recomputed whenever
// a clinical note is written.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Label is how audit descriptions refer to a patient.
func (p *Patient) Label() string {
	return fmt.Sprintf("%s (%s)", p.FullName(), p.Code)
}
