package forms

import (
	"time"
)

// FieldType names one of the control kinds a template field can declare.
type FieldType string

const (
	FieldText          FieldType = "text"
	FieldTextarea      FieldType = "textarea"
	FieldNumber        FieldType = "number"
	FieldDate          FieldType = "date"
	FieldCheckbox      FieldType = "checkbox"
	FieldCheckboxGroup FieldType = "checkbox_group"
	FieldSelect        FieldType = "select"
	FieldScale         FieldType = "scale"
	FieldSignature     FieldType = "signature"
)

// KnownFieldTypes lists every field type the engine renders natively.
var KnownFieldTypes = []FieldType{
	FieldText, FieldTextarea, FieldNumber, FieldDate, FieldCheckbox,
	FieldCheckboxGroup, FieldSelect, FieldScale, FieldSignature,
}

// FieldSpec is one entry of a template's ordered field list as stored by the
// backend.
type FieldSpec struct {
	Label   string    `json:"label" yaml:"label"`
	Type    FieldType `json:"type" yaml:"type"`
	Options []string  `json:"options,omitempty" yaml:"options,omitempty"`
	Min     *int      `json:"min,omitempty" yaml:"min,omitempty"`
	Max     *int      `json:"max,omitempty" yaml:"max,omitempty"`
}

// Status is the lifecycle state of a form submission.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a recognised submission status.
func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusCompleted
}

// Template status values.
const (
	TemplateActive   = "active"
	TemplateArchived = "archived"
)

// DefaultAllowedRoles is applied to templates created without an explicit
// role list.
var DefaultAllowedRoles = []string{"admin", "psychiatrist", "technician"}

// Template is a named, ordered list of field specifications.
type Template struct {
	ID            int64       `json:"id"`
	Name          string      `json:"name"`
	Category      string      `json:"category"`
	Description   *string     `json:"description"`
	Fields        []FieldSpec `json:"fields"`
	AllowedRoles  []string    `json:"allowedRoles"`
	Status        string      `json:"status"`
	CreatedBy     *int64      `json:"createdBy"`
	CreatedAt     *time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time  `json:"updatedAt"`
	InstanceCount int         `json:"instanceCount"`
}

// AllowsRole reports whether forms built from t are visible to role.
func (t *Template) AllowsRole(role string) bool {
	for _, r := range t.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Submission is a patient-scoped set of answers to one template.
type Submission struct {
	ID               int64          `json:"id"`
	PatientID        int64          `json:"patientId"`
	TemplateID       int64          `json:"templateId"`
	TemplateName     *string        `json:"templateName"`
	TemplateCategory *string        `json:"templateCategory"`
	FormData         map[string]any `json:"formData"`
	Status           Status         `json:"status"`
	FilledBy         *int64         `json:"filledBy"`
	FilledByName     *string        `json:"filledByName"`
	CreatedAt        *time.Time     `json:"createdAt"`
	UpdatedAt        *time.Time     `json:"updatedAt"`
	TemplateFields   []FieldSpec    `json:"templateFields,omitempty"`
}

// Completed reports whether the submission reached its terminal status.
func (s *Submission) Completed() bool {
	return s.Status == StatusCompleted
}

// TemplateRequest is the body of POST /api/templates.
type TemplateRequest struct {
	Name         string      `json:"name"`
	Category     string      `json:"category"`
	Description  *string     `json:"description"`
	Fields       []FieldSpec `json:"fields"`
	AllowedRoles []string    `json:"allowedRoles"`
}

// TemplatePatch is the body of PUT /api/templates/{id}. Nil members are
// left unchanged.
type TemplatePatch struct {
	Name         *string      `json:"name,omitempty"`
	Category     *string      `json:"category,omitempty"`
	Description  *string      `json:"description,omitempty"`
	Fields       *[]FieldSpec `json:"fields,omitempty"`
	AllowedRoles *[]string    `json:"allowedRoles,omitempty"`
	Status       *string      `json:"status,omitempty"`
}

// CreateRequest is the body of POST /api/patients/{id}/forms.
type CreateRequest struct {
	TemplateID int64     `json:"templateId"`
	FormData   AnswerSet `json:"formData"`
	Status     Status    `json:"status"`
}

// UpdateRequest is the body of PUT /api/patients/{id}/forms/{formId}. A nil
// FormData is sent as null and leaves the stored answers untouched.
type UpdateRequest struct {
	FormData AnswerSet `json:"formData"`
	Status   Status    `json:"status,omitempty"`
}
