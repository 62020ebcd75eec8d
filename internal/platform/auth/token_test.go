package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }

func newTestIssuer() (*TokenIssuer, *fixedClock) {
	clk := &fixedClock{t: time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)}
	ti := NewTokenIssuer([]byte("test-key"), "mhemr-sandbox")
	ti.nowFn = clk.now
	return ti, clk
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	ti, _ := newTestIssuer()
	tok, sid, err := ti.Issue(7, "drlee", RolePsychiatrist)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if sid == "" {
		t.Fatal("expected session id")
	}

	claims, err := ti.Parse(tok)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.ID != sid {
		t.Errorf("expected jti %s, got %s", sid, claims.ID)
	}
	uid, _ := claims.UserID()
	if uid != 7 || claims.Username != "drlee" || claims.Role != RolePsychiatrist {
		t.Errorf("unexpected claims %+v", claims)
	}
}

func TestTokenIssuer_Rejects(t *testing.T) {
	ti, clk := newTestIssuer()
	tok, _, _ := ti.Issue(1, "admin", RoleAdmin)

	other := NewTokenIssuer([]byte("other-key"), "mhemr-sandbox")
	other.nowFn = clk.now
	if _, err := other.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected signature failure, got %v", err)
	}

	if _, err := ti.Parse("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for garbage, got %v", err)
	}

	clk.t = clk.t.Add(DefaultTokenLifetime + time.Minute)
	if _, err := ti.Parse(tok); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected expired token to be rejected, got %v", err)
	}
}

type mapSessions map[string]Principal

func (m mapSessions) ValidateSession(id string) (Principal, bool) {
	p, ok := m[id]
	return p, ok
}

func TestSessionMiddleware(t *testing.T) {
	ti, _ := newTestIssuer()
	tok, sid, _ := ti.Issue(3, "tech1", RoleTechnician)
	sessions := mapSessions{sid: {UserID: 3, Username: "tech1", Role: RoleTechnician, SessionID: sid}}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + tok, http.StatusOK},
		{"lowercase scheme", "bearer " + tok, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok, http.StatusUnauthorized},
		{"bad token", "Bearer abc", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := SessionMiddleware(ti, sessions)(func(c echo.Context) error {
				p, ok := PrincipalFromContext(c.Request().Context())
				if !ok || p.Username != "tech1" {
					t.Errorf("expected principal in context, got %+v", p)
				}
				if UserIDFromContext(c.Request().Context()) != 3 {
					t.Error("expected user id 3 in context")
				}
				return c.NoContent(http.StatusOK)
			})
			err := h(c)

			code := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			}
			if code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}

	delete(sessions, sid)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	c := e.NewContext(req, httptest.NewRecorder())
	err := SessionMiddleware(ti, sessions)(func(echo.Context) error { return nil })(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for revoked session, got %v", err)
	}
}
