package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func codeOf(err error, rec *httptest.ResponseRecorder) int {
	if he, ok := err.(*echo.HTTPError); ok {
		return he.Code
	}
	return rec.Code
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"64K", 64 << 10},
		{"64kb", 64 << 10},
		{"1M", 1 << 20},
		{"2MB", 2 << 20},
		{"1G", 1 << 30},
		{"", 1 << 20},
		{"lots", 1 << 20},
		{"-5", 1 << 20},
	}
	for _, tt := range tests {
		if got := ParseSize(tt.in); got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestBodyLimit(t *testing.T) {
	e := echo.New()
	h := BodyLimit("16")(func(c echo.Context) error {
		if _, err := io.ReadAll(c.Request().Body); err != nil {
			return err
		}
		return c.NoContent(http.StatusNoContent)
	})

	tests := []struct {
		name         string
		body         string
		dropLength   bool
		expectedCode int
	}{
		{"small body", `{"a":1}`, false, http.StatusNoContent},
		{"declared too large", strings.Repeat("x", 32), false, http.StatusRequestEntityTooLarge},
		{"undeclared too large", strings.Repeat("x", 32), true, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			if tt.dropLength {
				req.ContentLength = -1
			}
			rec := httptest.NewRecorder()
			err := h(e.NewContext(req, rec))
			if got := codeOf(err, rec); got != tt.expectedCode {
				t.Errorf("expected %d, got %d", tt.expectedCode, got)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	e := echo.New()

	fast := RequestTimeout(time.Second)(func(c echo.Context) error {
		if _, ok := c.Request().Context().Deadline(); !ok {
			t.Error("expected a deadline on the request context")
		}
		return c.NoContent(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	if err := fast(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slow := RequestTimeout(10 * time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		return context.Canceled
	})
	rec = httptest.NewRecorder()
	err := slow(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec))
	if got := codeOf(err, rec); got != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d (%v)", got, err)
	}
}

func TestRateLimit(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := echo.New()
	h := RateLimit(RateLimitConfig{
		PerSecond: 0.5,
		Burst:     2,
		Now:       func() time.Time { return now },
	})(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	call := func(ip string) (int, string) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		err := h(e.NewContext(req, rec))
		return codeOf(err, rec), rec.Header().Get("Retry-After")
	}

	for i := 0; i < 2; i++ {
		if code, _ := call("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d within burst: got %d", i+1, code)
		}
	}
	code, retry := call("10.0.0.1")
	if code != http.StatusTooManyRequests || retry != "2" {
		t.Errorf("expected 429 with Retry-After 2, got %d %q", code, retry)
	}
	if code, _ := call("10.0.0.2"); code != http.StatusOK {
		t.Errorf("other clients have their own bucket, got %d", code)
	}

	now = now.Add(2 * time.Second)
	if code, _ := call("10.0.0.1"); code != http.StatusOK {
		t.Errorf("expected refill after 2s, got %d", code)
	}
}

func TestRateLimit_EvictsIdleBuckets(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := RateLimitConfig{
		PerSecond: 1,
		Burst:     1,
		Now:       func() time.Time { return now },
		IdleTTL:   time.Minute,
	}
	cfg.IdleTTL = bucketIdleTTL(cfg)
	l := newLimiter(cfg)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if ok, _ := l.take(ip); !ok {
			t.Fatalf("first request from %s rejected", ip)
		}
	}
	if n := l.size(); n != 3 {
		t.Fatalf("expected 3 buckets, got %d", n)
	}

	now = now.Add(30 * time.Second)
	l.take("10.0.0.1")
	if n := l.size(); n != 3 {
		t.Errorf("buckets evicted before the idle ttl: %d left", n)
	}

	now = now.Add(45 * time.Second)
	l.take("10.0.0.4")
	if n := l.size(); n != 2 {
		t.Errorf("expected idle buckets evicted, %d left", n)
	}
}

func TestBucketIdleTTL(t *testing.T) {
	tests := []struct {
		name string
		cfg  RateLimitConfig
		want time.Duration
	}{
		{"default", RateLimitConfig{PerSecond: 1, Burst: 5}, DefaultBucketIdleTTL},
		{"explicit", RateLimitConfig{PerSecond: 1, Burst: 5, IdleTTL: time.Minute}, time.Minute},
		{"slow refill wins", RateLimitConfig{PerSecond: 0.01, Burst: 10, IdleTTL: time.Minute}, 1000 * time.Second},
		{"no refill", RateLimitConfig{Burst: 5}, DefaultBucketIdleTTL},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := bucketIdleTTL(tt.cfg); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
