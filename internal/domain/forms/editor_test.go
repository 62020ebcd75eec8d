package forms

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

// -- Mock API --

type notFoundErr struct{}

func (notFoundErr) Error() string  { return "404 form not found" }
func (notFoundErr) NotFound() bool { return true }

type mockAPI struct {
	subs      map[int64]*Submission
	templates map[int64][]FieldSpec
	nextID    int64
	updateErr error
	updates   []UpdateRequest
}

func newMockAPI() *mockAPI {
	return &mockAPI{subs: make(map[int64]*Submission), templates: make(map[int64][]FieldSpec), nextID: 1}
}

func (m *mockAPI) GetPatientForm(_ context.Context, _ string, formID int64) (*Submission, error) {
	s, ok := m.subs[formID]
	if !ok {
		return nil, notFoundErr{}
	}
	cp := *s
	cp.FormData = map[string]any(AnswerSet(s.FormData).Clone())
	cp.TemplateFields = m.templates[s.TemplateID]
	return &cp, nil
}

func (m *mockAPI) CreatePatientForm(_ context.Context, _ string, req CreateRequest) (*Submission, error) {
	if _, ok := m.templates[req.TemplateID]; !ok {
		return nil, fmt.Errorf("template not found or archived")
	}
	s := &Submission{ID: m.nextID, PatientID: 1, TemplateID: req.TemplateID, FormData: req.FormData, Status: req.Status}
	m.nextID++
	m.subs[s.ID] = s
	return s, nil
}

func (m *mockAPI) UpdatePatientForm(_ context.Context, _ string, formID int64, req UpdateRequest) (*Submission, error) {
	m.updates = append(m.updates, req)
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	s, ok := m.subs[formID]
	if !ok {
		return nil, notFoundErr{}
	}
	if req.FormData != nil {
		s.FormData = map[string]any(req.FormData.Clone())
	}
	if req.Status != "" {
		s.Status = req.Status
	}
	cp := *s
	return &cp, nil
}

func newTestEditor(t *testing.T) (*Editor, *mockAPI) {
	t.Helper()
	api := newMockAPI()
	api.templates[10] = []FieldSpec{
		{Label: "Mood", Type: FieldScale, Min: intPtr(0), Max: intPtr(3)},
		{Label: "Symptoms", Type: FieldCheckboxGroup, Options: []string{"A", "B", "C"}},
		{Label: "Notes", Type: FieldTextarea},
		{Label: "Signed by", Type: FieldSignature},
	}
	api.templates[20] = []FieldSpec{}
	return NewEditor(api, zerolog.Nop()), api
}

func TestEditor_CreateStartsEmptyDraft(t *testing.T) {
	e, _ := newTestEditor(t)
	sub, err := e.Create(context.Background(), "P-1001", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sub.Status != StatusDraft {
		t.Errorf("expected draft, got %s", sub.Status)
	}
	if len(e.Answers()) != 0 {
		t.Errorf("expected empty answers, got %v", e.Answers())
	}
	if len(e.Fields()) != 4 || !e.Editable() {
		t.Errorf("expected 4 editable fields, got %d editable=%v", len(e.Fields()), e.Editable())
	}
}

func TestEditor_Create_RequiresTemplate(t *testing.T) {
	e, _ := newTestEditor(t)
	if _, err := e.Create(context.Background(), "1", 0); err == nil {
		t.Error("expected error for missing template id")
	}
	if _, err := e.Create(context.Background(), "1", 99); err == nil {
		t.Error("expected error for unknown template")
	}
	if e.LastError() == nil {
		t.Error("expected LastError to be recorded")
	}
}

func TestEditor_Load_NotFound(t *testing.T) {
	e, _ := newTestEditor(t)
	_, err := e.Load(context.Background(), "1", 42)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !errors.Is(e.LastError(), ErrNotFound) {
		t.Errorf("expected LastError to hold ErrNotFound, got %v", e.LastError())
	}
}

func TestEditor_Load_NormalizesAndDropsStale(t *testing.T) {
	e, api := newTestEditor(t)
	api.subs[5] = &Submission{ID: 5, TemplateID: 10, Status: StatusDraft, FormData: map[string]any{
		"Mood":      float64(1),
		"Symptoms":  []any{"A"},
		"Old label": "gone",
	}}
	if _, err := e.Load(context.Background(), "1", 5); err != nil {
		t.Fatal(err)
	}
	want := AnswerSet{"Mood": 1, "Symptoms": []string{"A"}}
	if !reflect.DeepEqual(e.Answers(), want) {
		t.Errorf("got %#v, want %#v", e.Answers(), want)
	}
}

func TestEditor_ControlsWriteThroughToAnswers(t *testing.T) {
	e, _ := newTestEditor(t)
	if _, err := e.Create(context.Background(), "1", 10); err != nil {
		t.Fatal(err)
	}

	c, ok := e.Control("Mood")
	if !ok {
		t.Fatal("expected Mood control")
	}
	if err := c.(*ScaleInput).Press(2); err != nil {
		t.Fatal(err)
	}
	sym, _ := e.Control("Symptoms")
	_ = sym.(*MultiChoiceInput).Toggle("B")
	_ = sym.(*MultiChoiceInput).Toggle("C")

	got := e.Answers()
	if got["Mood"] != 2 {
		t.Errorf("expected Mood=2, got %v", got["Mood"])
	}
	if !reflect.DeepEqual(got["Symptoms"], []string{"B", "C"}) {
		t.Errorf("expected [B C], got %v", got["Symptoms"])
	}
	if !e.Dirty() {
		t.Error("expected dirty after edits")
	}
	if _, ok := e.Control("Nope"); ok {
		t.Error("expected no control for unknown label")
	}
}

func TestEditor_Set(t *testing.T) {
	e, _ := newTestEditor(t)
	if err := e.Set("Mood", 1); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded before load, got %v", err)
	}
	if _, err := e.Create(context.Background(), "1", 10); err != nil {
		t.Fatal(err)
	}
	if err := e.Set("Unknown", "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
	if err := e.Set("Mood", "not a number"); err == nil {
		t.Error("expected conversion error")
	}
	if err := e.Set("Mood", "3"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if e.Answers()["Mood"] != 3 {
		t.Errorf("expected 3, got %v", e.Answers()["Mood"])
	}
}

func TestEditor_SaveDraftKeepsStatus(t *testing.T) {
	e, api := newTestEditor(t)
	if _, err := e.Create(context.Background(), "1", 10); err != nil {
		t.Fatal(err)
	}
	_ = e.Set("Notes", "slept poorly")
	sub, err := e.SaveDraft(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != StatusDraft {
		t.Errorf("expected draft, got %s", sub.Status)
	}
	last := api.updates[len(api.updates)-1]
	if last.Status != "" {
		t.Errorf("draft save must not send a status, sent %q", last.Status)
	}
	if last.FormData["Notes"] != "slept poorly" {
		t.Errorf("expected notes to be sent, got %v", last.FormData)
	}
	if e.Dirty() {
		t.Error("expected clean after save")
	}
	if len(e.Submission().TemplateFields) == 0 {
		t.Error("template fields should survive a save")
	}
}

func TestEditor_CompleteEmptyAnswerSet(t *testing.T) {
	e, _ := newTestEditor(t)
	if _, err := e.Create(context.Background(), "1", 20); err != nil {
		t.Fatal(err)
	}
	if !e.Empty() {
		t.Error("expected empty template")
	}
	sub, err := e.Complete(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sub.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", sub.Status)
	}
	if e.Editable() {
		t.Error("completed form should not be editable")
	}
	if _, err := e.Complete(context.Background()); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestEditor_SaveFailureKeepsAnswers(t *testing.T) {
	e, api := newTestEditor(t)
	if _, err := e.Create(context.Background(), "1", 10); err != nil {
		t.Fatal(err)
	}
	_ = e.Set("Notes", "important")
	api.updateErr = errors.New("connection refused")

	if _, err := e.SaveDraft(context.Background()); err == nil {
		t.Fatal("expected save error")
	}
	if e.Answers()["Notes"] != "important" {
		t.Error("answers lost after failed save")
	}
	if !e.Dirty() || e.LastError() == nil {
		t.Errorf("expected dirty with LastError, got dirty=%v err=%v", e.Dirty(), e.LastError())
	}
	if e.Submission().Status != StatusDraft {
		t.Error("failed complete must not change status")
	}

	api.updateErr = nil
	if _, err := e.SaveDraft(context.Background()); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if e.LastError() != nil {
		t.Errorf("expected LastError cleared after retry, got %v", e.LastError())
	}
}

func TestEditor_SaveBeforeLoad(t *testing.T) {
	e, _ := newTestEditor(t)
	if _, err := e.SaveDraft(context.Background()); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("expected ErrNotLoaded, got %v", err)
	}
}

func TestEditor_Set_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		label string
		value any
		want  error
	}{
		{"scale above max", "Mood", 99, ErrOutOfRange},
		{"scale below min", "Mood", -1, ErrOutOfRange},
		{"scale from string out of range", "Mood", "4", ErrOutOfRange},
		{"unknown group option", "Symptoms", []string{"A", "Z"}, ErrInvalidOption},
		{"repeated unknown option", "Symptoms", []string{"Z", "Z"}, ErrInvalidOption},
		{"duplicate group option", "Symptoms", []string{"B", "B"}, ErrDuplicateOption},
		{"scale given a list", "Mood", []string{"1"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, _ := newTestEditor(t)
			if _, err := e.Create(context.Background(), "1", 10); err != nil {
				t.Fatal(err)
			}
			if err := e.Set("Mood", 2); err != nil {
				t.Fatal(err)
			}
			if err := e.Set("Symptoms", []string{"A"}); err != nil {
				t.Fatal(err)
			}
			before := e.Answers()

			err := e.Set(tt.label, tt.value)
			if err == nil {
				t.Fatalf("Set(%q, %v) succeeded", tt.label, tt.value)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			if !reflect.DeepEqual(e.Answers(), before) {
				t.Errorf("answers changed after rejected Set: %v -> %v", before, e.Answers())
			}
		})
	}
}

func TestEditor_Set_AcceptsBoundaryValues(t *testing.T) {
	e, _ := newTestEditor(t)
	if _, err := e.Create(context.Background(), "1", 10); err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 3} {
		if err := e.Set("Mood", n); err != nil {
			t.Errorf("Set(Mood, %d): %v", n, err)
		}
	}
	if err := e.Set("Symptoms", []string{}); err != nil {
		t.Errorf("empty selection should be accepted: %v", err)
	}
	if err := e.Set("Symptoms", []string{"C", "A"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(e.Answers()["Symptoms"], []string{"C", "A"}) {
		t.Errorf("selection order should be kept, got %v", e.Answers()["Symptoms"])
	}
}

func TestEditor_Load_DropsInvalidStoredValues(t *testing.T) {
	e, api := newTestEditor(t)
	api.subs[6] = &Submission{ID: 6, TemplateID: 10, Status: StatusDraft, FormData: map[string]any{
		"Mood":     float64(99),
		"Symptoms": []any{"Z", "B", "B", "A"},
		"Notes":    "kept",
	}}
	if _, err := e.Load(context.Background(), "1", 6); err != nil {
		t.Fatal(err)
	}
	want := AnswerSet{"Symptoms": []string{"B", "A"}, "Notes": "kept"}
	if !reflect.DeepEqual(e.Answers(), want) {
		t.Errorf("got %#v, want %#v", e.Answers(), want)
	}
	c, _ := e.Control("Mood")
	if c.Value() != nil {
		t.Errorf("out of range stored scale should render unset, got %v", c.Value())
	}
}
