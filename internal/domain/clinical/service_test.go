package clinical

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/domain/audit"
	"github.com/ehr/mhemr/internal/domain/patient"
	"github.com/ehr/mhemr/internal/platform/auth"
)

// -- Mocks --

type mockUsers map[int64]string

func (m mockUsers) DisplayName(_ context.Context, id int64) (string, bool) {
	n, ok := m[id]
	return n, ok
}

type auditCall struct{ action, resource, description string }

type mockAudit struct{ calls []auditCall }

func (m *mockAudit) Success(_ context.Context, action, resource, description string) {
	m.calls = append(m.calls, auditCall{action, resource, description})
}

func (m *mockAudit) actions() []string {
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.action
	}
	return out
}

var (
	adminUser = auth.Principal{UserID: 1, Username: "admin", Role: auth.RoleAdmin}
	docUser   = auth.Principal{UserID: 2, Username: "drlee", Role: auth.RolePsychiatrist}
	techUser  = auth.Principal{UserID: 3, Username: "tech", Role: auth.RoleTechnician}
)

func as(p auth.Principal) context.Context {
	return auth.WithPrincipal(context.Background(), p)
}

type fixture struct {
	svc      *Service
	patients *patient.Service
	audit    *mockAudit
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	pats := patient.NewService(patient.NewMemoryRepo())
	tech := techUser.UserID
	for _, p := range []*patient.Patient{
		{Code: "P-1001", FirstName: "Jordan", LastName: "Blake", AssignedProviderID: &tech},
		{Code: "P-1002", FirstName: "Sam", LastName: "Ortiz", PrimaryDiagnosis: "Generalized anxiety disorder"},
	} {
		if err := pats.Create(context.Background(), p); err != nil {
			t.Fatal(err)
		}
	}
	f := &fixture{patients: pats, audit: &mockAudit{}, now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	f.svc = NewService(NewMemoryNoteRepo(), NewMemoryPlanRepo(), pats,
		mockUsers{1: "Ada Admin", 2: "Dr. Lee", 3: "Tess Tech"}, zerolog.Nop())
	f.svc.SetAuditLogger(f.audit)
	f.svc.nowFn = func() time.Time { return f.now }
	return f
}

func (f *fixture) riskOf(t *testing.T, ref string) string {
	t.Helper()
	p, err := f.patients.Resolve(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	return p.RiskLevel
}

// -- Notes --

func TestService_CreateNote_Defaults(t *testing.T) {
	f := newFixture(t)
	n, err := f.svc.CreateNote(as(docUser), "P-1002", NoteRequest{Summary: "  steady week  "})
	if err != nil {
		t.Fatal(err)
	}
	if n.Type != DefaultNoteType || n.Status != NoteDraft {
		t.Errorf("expected progress draft, got %s %s", n.Type, n.Status)
	}
	if n.ProviderID != docUser.UserID || n.ProviderName == nil || *n.ProviderName != "Dr. Lee" {
		t.Errorf("unexpected provider %d %v", n.ProviderID, n.ProviderName)
	}
	if n.Summary == nil || *n.Summary != "steady week" || n.Diagnosis != nil {
		t.Errorf("unexpected text fields %v %v", n.Summary, n.Diagnosis)
	}
	if !n.Date.Equal(f.now) {
		t.Errorf("expected date %s, got %s", f.now, n.Date)
	}
}

func TestService_CreateNote_Errors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		ctx  context.Context
		ref  string
		req  NoteRequest
		want func(error) bool
	}{
		{"bad status", as(docUser), "P-1001", NoteRequest{Status: "final"}, func(err error) bool {
			var ve *ValidationError
			return errors.As(err, &ve)
		}},
		{"unknown patient", as(docUser), "P-9999", NoteRequest{}, func(err error) bool { return errors.Is(err, patient.ErrNotFound) }},
		{"technician not assigned", as(techUser), "P-1002", NoteRequest{}, func(err error) bool { return errors.Is(err, patient.ErrForbidden) }},
		{"no principal", context.Background(), "P-1001", NoteRequest{}, func(err error) bool { return errors.Is(err, ErrForbidden) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.CreateNote(tt.ctx, tt.ref, tt.req); !tt.want(err) {
				t.Errorf("unexpected error %v", err)
			}
		})
	}
}

func TestService_ListNotes_NewestFirst(t *testing.T) {
	f := newFixture(t)
	for _, s := range []string{"first", "second", "third"} {
		if _, err := f.svc.CreateNote(as(techUser), "P-1001", NoteRequest{Summary: s, Status: NoteSigned}); err != nil {
			t.Fatal(err)
		}
		f.now = f.now.Add(time.Hour)
	}
	list, err := f.svc.ListNotes(as(docUser), "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || *list[0].Summary != "third" || *list[2].Summary != "first" {
		t.Fatalf("unexpected order %+v", list)
	}
	got := f.audit.actions()
	if got[len(got)-1] != audit.ActionNoteList {
		t.Errorf("expected NOTE_LIST last, got %v", got)
	}
}

// -- Risk --

func TestService_CreateNoteUpdatesRisk(t *testing.T) {
	f := newFixture(t)
	if got := f.riskOf(t, "P-1001"); got != patient.RiskLow {
		t.Fatalf("expected low before notes, got %s", got)
	}
	if _, err := f.svc.CreateNote(as(docUser), "P-1001", NoteRequest{Summary: "Mentions wanting to overdose"}); err != nil {
		t.Fatal(err)
	}
	if got := f.riskOf(t, "P-1001"); got != patient.RiskHigh {
		t.Errorf("expected flagged note to raise risk to high, got %s", got)
	}

	// The note ages out of the window and the level drops back.
	f.now = f.now.Add(RiskWindow + time.Hour)
	r, err := f.svc.Risk(as(docUser), "P-1001")
	if err != nil {
		t.Fatal(err)
	}
	if r.Level != patient.RiskLow || r.RecentNotes != 0 {
		t.Errorf("expected low with no recent notes, got %+v", r)
	}
	if got := f.riskOf(t, "P-1001"); got != patient.RiskLow {
		t.Errorf("expected stored level low, got %s", got)
	}
}

func TestService_Risk_DiagnosisAndFrequency(t *testing.T) {
	f := newFixture(t)
	r, err := f.svc.Risk(as(adminUser), "P-1002")
	if err != nil {
		t.Fatal(err)
	}
	if r.Level != patient.RiskModerate || r.DiagnosisLevel != patient.RiskModerate {
		t.Errorf("expected moderate from diagnosis, got %+v", r)
	}
	for i := 0; i < HighNoteCount; i++ {
		if _, err := f.svc.CreateNote(as(docUser), "P-1002", NoteRequest{Summary: "follow up"}); err != nil {
			t.Fatal(err)
		}
	}
	if got := f.riskOf(t, "P-1002"); got != patient.RiskHigh {
		t.Errorf("expected frequent notes to raise risk to high, got %s", got)
	}
	if _, err := f.svc.Risk(as(techUser), "P-1002"); !errors.Is(err, patient.ErrForbidden) {
		t.Errorf("expected technician to be refused, got %v", err)
	}
}

// -- Treatment plan --

func TestService_PlanUpsert(t *testing.T) {
	f := newFixture(t)
	p, err := f.svc.GetPlan(as(docUser), "P-1001")
	if err != nil || p != nil {
		t.Fatalf("expected no plan, got %+v %v", p, err)
	}

	res, err := f.svc.UpsertPlan(as(docUser), "P-1001", PlanRequest{
		StartDate: "2026-06-01",
		Goals:     json.RawMessage(`["sleep 7h", "weekly walk"]`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Plan.Status != PlanActive || *res.Plan.StartDate != "2026-06-01" || res.Plan.ReviewDate != nil {
		t.Errorf("unexpected create result %+v", res.Plan)
	}

	f.now = f.now.Add(time.Hour)
	res, err = f.svc.UpsertPlan(as(techUser), "P-1001", PlanRequest{Status: PlanArchived})
	if err != nil {
		t.Fatal(err)
	}
	if res.Created || res.Plan.StartDate != nil || string(res.Plan.Goals) != "[]" {
		t.Errorf("upsert should replace every field, got %+v", res.Plan)
	}
	p, _ = f.svc.GetPlan(as(docUser), "P-1001")
	if p == nil || p.ID != res.Plan.ID || p.Status != PlanArchived || !p.UpdatedAt.Equal(f.now) {
		t.Errorf("unexpected stored plan %+v", p)
	}
}

func TestService_PlanValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  PlanRequest
	}{
		{"bad start date", PlanRequest{StartDate: "06/01/2026"}},
		{"bad review date", PlanRequest{ReviewDate: "2026-13-01"}},
		{"bad status", PlanRequest{Status: "done"}},
		{"goals string", PlanRequest{Goals: json.RawMessage(`"be well"`)}},
		{"goals number", PlanRequest{Goals: json.RawMessage(`3`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.UpsertPlan(as(docUser), "P-1001", tt.req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
	if p, _ := f.svc.GetPlan(as(docUser), "P-1001"); p != nil {
		t.Errorf("rejected upserts must not store a plan, got %+v", p)
	}
	if _, err := f.svc.UpsertPlan(as(docUser), "P-1001", PlanRequest{Goals: json.RawMessage(`{"primary":"sleep"}`)}); err != nil {
		t.Errorf("object goals should be accepted: %v", err)
	}
}
