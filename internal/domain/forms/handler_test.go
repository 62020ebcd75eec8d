package forms

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ehr/mhemr/internal/platform/auth"
)

// newTestServer mounts the form routes behind a stub authenticator that
// takes the principal from the X-Test-Role header.
func newTestServer(t *testing.T) (*echo.Echo, *fixture) {
	t.Helper()
	f := newFixture(t)
	e := echo.New()
	authed := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var p auth.Principal
			switch c.Request().Header.Get("X-Test-Role") {
			case auth.RoleAdmin:
				p = adminUser
			case auth.RolePsychiatrist:
				p = docUser
			default:
				p = techUser
			}
			req := c.Request()
			c.SetRequest(req.WithContext(auth.WithPrincipal(req.Context(), p)))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(authed)
	return e, f
}

func do(e *echo.Echo, method, path, role, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Test-Role", role)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Routes(t *testing.T) {
	e, _ := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   string
		want   int
	}{
		{"list templates", http.MethodGet, "/api/templates", auth.RolePsychiatrist, "", http.StatusOK},
		{"technician cannot list templates", http.MethodGet, "/api/templates", auth.RoleTechnician, "", http.StatusForbidden},
		{"get template", http.MethodGet, "/api/templates/1", auth.RoleAdmin, "", http.StatusOK},
		{"missing template", http.MethodGet, "/api/templates/42", auth.RoleAdmin, "", http.StatusNotFound},
		{"bad template id", http.MethodGet, "/api/templates/abc", auth.RoleAdmin, "", http.StatusBadRequest},
		{"create template", http.MethodPost, "/api/templates", auth.RoleAdmin, `{"name":"Intake","category":"Admin","fields":[]}`, http.StatusCreated},
		{"create template without name", http.MethodPost, "/api/templates", auth.RoleAdmin, `{"category":"Admin"}`, http.StatusBadRequest},
		{"fields must be a list", http.MethodPost, "/api/templates", auth.RoleAdmin, `{"name":"x","category":"y","fields":"nope"}`, http.StatusBadRequest},
		{"archive template", http.MethodPut, "/api/templates/1", auth.RoleAdmin, `{"status":"archived"}`, http.StatusOK},
		{"create form", http.MethodPost, "/api/patients/P-1001/forms", auth.RoleTechnician, `{"templateId":1,"formData":{},"status":"draft"}`, http.StatusCreated},
		{"create form for unassigned patient", http.MethodPost, "/api/patients/P-1002/forms", auth.RoleTechnician, `{"templateId":1}`, http.StatusForbidden},
		{"create form unknown template", http.MethodPost, "/api/patients/P-1001/forms", auth.RolePsychiatrist, `{"templateId":99}`, http.StatusNotFound},
		{"list forms unknown patient", http.MethodGet, "/api/patients/P-4040/forms", auth.RolePsychiatrist, "", http.StatusNotFound},
		{"get unknown form", http.MethodGet, "/api/patients/P-1001/forms/77", auth.RolePsychiatrist, "", http.StatusNotFound},
		{"technician cannot delete", http.MethodDelete, "/api/patients/P-1001/forms/1", auth.RoleTechnician, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, tt.method, tt.path, tt.role, tt.body)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestHandler_FormRoundTrip(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, http.MethodPost, "/api/patients/1/forms", auth.RolePsychiatrist, `{"templateId":1,"formData":{"Mood":1},"status":"draft"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	var created Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	rec = do(e, http.MethodPut, "/api/patients/P-1001/forms/1", auth.RolePsychiatrist, `{"formData":null,"status":"completed"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rec.Code, rec.Body.String())
	}
	var updated Submission
	if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", updated.Status)
	}
	if updated.FormData["Mood"] != float64(1) {
		t.Errorf("expected Mood to survive a null formData, got %v", updated.FormData)
	}
	if len(updated.TemplateFields) != 1 {
		t.Errorf("expected templateFields in response, got %v", updated.TemplateFields)
	}

	rec = do(e, http.MethodDelete, "/api/patients/P-1001/forms/1", auth.RoleAdmin, "")
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
}
