package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func TestRejectMalformed(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header [2]string
		want   int
	}{
		{"normal form path", "/api/patients/P-1001/forms/3", [2]string{}, http.StatusOK},
		{"audit filters", "/api/audit/logs?action=LOGIN&date_from=2026-01-01", [2]string{}, http.StatusOK},
		{"dot dot", "/api/../../etc/passwd", [2]string{}, http.StatusBadRequest},
		{"encoded dot dot", "/api/%2e%2e/%2e%2e/etc/passwd", [2]string{}, http.StatusBadRequest},
		{"double encoded", "/api/%252e%252e/secret", [2]string{}, http.StatusBadRequest},
		{"null byte in path", "/api/patients/1%00", [2]string{}, http.StatusBadRequest},
		{"null byte in query", "/api/templates?status=active%00", [2]string{}, http.StatusBadRequest},
		{"script in query", "/api/templates?status=%3Cscript%3E", [2]string{}, http.StatusBadRequest},
		{"header splitting", "/api/auth/me", [2]string{"X-Note", "a\r\nSet-Cookie: x=1"}, http.StatusBadRequest},
		{"oversized header", "/api/auth/me", [2]string{"X-Note", strings.Repeat("a", maxHeaderValue+1)}, http.StatusBadRequest},
	}

	e := echo.New()
	e.Use(RejectMalformed(zerolog.Nop()))
	e.GET("/*", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header[0] != "" {
				req.Header[tt.header[0]] = []string{tt.header[1]}
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d (%s)", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
}
