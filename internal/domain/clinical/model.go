// Package clinical holds progress notes, the per-patient treatment plan and
// the rule-based risk score derived from recent notes.
package clinical

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
)

// ValidationError marks a request rejected before any state changed.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Note statuses.
const (
	NoteDraft  = "draft"
	NoteSigned = "signed"
)

// DefaultNoteType is used when a note is created without a type.
const DefaultNoteType = "progress"

// Plan statuses.
const (
	PlanActive   = "active"
	PlanArchived = "archived"
)

// DateLayout is the format of plan start and review dates.
const DateLayout = "2006-01-02"

type Note struct {
	ID           int64     `json:"id"`
	PatientID    int64     `json:"patientId"`
	ProviderID   int64     `json:"providerId"`
	ProviderName *string   `json:"providerName"`
	Date         time.Time `json:"date"`
	Type         string    `json:"type"`
	Status       string    `json:"status"`
	Summary      *string   `json:"summary"`
	Diagnosis    *string   `json:"diagnosis"`
}

// NoteRequest is the body of POST /api/patients/{id}/notes.
type NoteRequest struct {
	Type      string `json:"type,omitempty"`
	Status    string `json:"status,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Diagnosis string `json:"diagnosis,omitempty"`
}

// Plan is the single current treatment plan of a patient. Goals is kept as
// the caller sent it: a JSON list or object.
type Plan struct {
	ID         int64           `json:"id"`
	PatientID  int64           `json:"patientId"`
	StartDate  *string         `json:"startDate"`
	ReviewDate *string         `json:"reviewDate"`
	Goals      json.RawMessage `json:"goals"`
	Status     string          `json:"status"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// PlanRequest is the body of POST /api/patients/{id}/treatment-plan. Every
// upsert replaces all fields.
type PlanRequest struct {
	StartDate  string          `json:"startDate,omitempty"`
	ReviewDate string          `json:"reviewDate,omitempty"`
	Goals      json.RawMessage `json:"goals,omitempty"`
	Status     string          `json:"status,omitempty"`
}

// PlanResult answers an upsert.
type PlanResult struct {
	Created bool  `json:"created"`
	Plan    *Plan `json:"treatmentPlan"`
}

// RiskReport explains a patient's current risk level.
type RiskReport struct {
	PatientID      int64    `json:"patientId"`
	Level          string   `json:"riskLevel"`
	DiagnosisLevel string   `json:"diagnosisLevel"`
	FrequencyLevel string   `json:"frequencyLevel"`
	RecentNotes    int      `json:"recentNotes"`
	Flagged        []string `json:"flaggedKeywords"`
}
