package patient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/mhemr/internal/platform/auth"
)

func int64Ptr(v int64) *int64 { return &v }

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(NewMemoryRepo())
	ctx := context.Background()
	for _, p := range []*Patient{
		{Code: "P-1001", FirstName: "Jordan", LastName: "Blake", AssignedProviderID: int64Ptr(3)},
		{Code: "P-1002", FirstName: "Sam", LastName: "Ortiz", AssignedProviderID: int64Ptr(2)},
		{Code: "P-1003", FirstName: "Riley", LastName: "Chen"},
	} {
		if err := svc.Create(ctx, p); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	return svc
}

func TestService_Create_Validation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := svc.Create(ctx, &Patient{FirstName: "A", LastName: "B"}); err == nil {
		t.Error("expected error for missing code")
	}
	if err := svc.Create(ctx, &Patient{Code: "P-1001", FirstName: "A", LastName: "B"}); err == nil {
		t.Error("expected error for duplicate code")
	}
}

func TestService_Resolve(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	tests := []struct {
		ref      string
		wantCode string
		wantErr  bool
	}{
		{"1", "P-1001", false},
		{"P-1002", "P-1002", false},
		{"3", "P-1003", false},
		{"99", "", true},
		{"P-9999", "", true},
	}
	for _, tt := range tests {
		p, err := svc.Resolve(ctx, tt.ref)
		if tt.wantErr {
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Resolve(%q): expected ErrNotFound, got %v", tt.ref, err)
			}
			continue
		}
		if err != nil || p.Code != tt.wantCode {
			t.Errorf("Resolve(%q) = %v, %v; want %s", tt.ref, p, err, tt.wantCode)
		}
	}
}

func TestService_TechnicianAccess(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	tech := auth.Principal{UserID: 3, Role: auth.RoleTechnician}
	doc := auth.Principal{UserID: 2, Role: auth.RolePsychiatrist}

	if _, err := svc.ResolveFor(ctx, tech, "P-1001"); err != nil {
		t.Errorf("technician should see assigned patient: %v", err)
	}
	if _, err := svc.ResolveFor(ctx, tech, "P-1002"); !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.ResolveFor(ctx, doc, "P-1001"); err != nil {
		t.Errorf("psychiatrist should see every patient: %v", err)
	}

	visible, _ := svc.ListFor(ctx, tech)
	if len(visible) != 1 || visible[0].Code != "P-1001" {
		t.Errorf("technician list: %+v", visible)
	}
	visible, _ = svc.ListFor(ctx, doc)
	if len(visible) != 3 {
		t.Errorf("expected 3 patients, got %d", len(visible))
	}
}

func TestHandler_Get(t *testing.T) {
	h := NewHandler(newTestService(t))
	e := echo.New()
	tests := []struct {
		ref  string
		want int
	}{
		{"P-1001", http.StatusOK},
		{"P-1002", http.StatusForbidden},
		{"P-4040", http.StatusNotFound},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: 3, Role: auth.RoleTechnician}))
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		c.SetParamNames("id")
		c.SetParamValues(tt.ref)

		err := h.Get(c)
		code := rec.Code
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}
		if code != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.ref, tt.want, code)
		}
	}
}

type auditCall struct{ action, description string }

type mockAudit struct{ calls []auditCall }

func (m *mockAudit) Success(_ context.Context, action, _, description string) {
	m.calls = append(m.calls, auditCall{action, description})
}

func TestService_ListFor_Audited(t *testing.T) {
	svc := newTestService(t)
	a := &mockAudit{}
	svc.SetAuditLogger(a)
	if _, err := svc.ListFor(context.Background(), auth.Principal{UserID: 1, Role: auth.RoleAdmin}); err != nil {
		t.Fatal(err)
	}
	if len(a.calls) != 1 || a.calls[0].action != "PATIENT_LIST" || a.calls[0].description != "Listed 3 patients" {
		t.Errorf("unexpected audit calls: %+v", a.calls)
	}
}

func TestService_SetRiskLevel(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	p, _ := svc.Resolve(ctx, "P-1001")
	if p.RiskLevel != RiskLow {
		t.Errorf("new patients start at %q, got %q", RiskLow, p.RiskLevel)
	}
	if err := svc.SetRiskLevel(ctx, p.ID, RiskHigh); err != nil {
		t.Fatal(err)
	}
	if p, _ = svc.Resolve(ctx, "P-1001"); p.RiskLevel != RiskHigh {
		t.Errorf("expected %q, got %q", RiskHigh, p.RiskLevel)
	}
	if err := svc.SetRiskLevel(ctx, p.ID, "severe"); err == nil {
		t.Error("expected invalid level to be rejected")
	}
	if err := svc.SetRiskLevel(ctx, 99, RiskLow); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
