package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/mhemr/internal/platform/auth"
)

const (
	ActionAccessDenied  = "ACCESS_403"
	ActionAccessUnauthn = "ACCESS_401"

	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// AuditEntry is one access record produced by the middleware.
type AuditEntry struct {
	Timestamp  time.Time
	UserID     int64
	Action     string
	Resource   string
	Method     string
	IPAddress  string
	Status     string
	StatusCode int
	RequestID  string
}

// AuditRecorder persists audit entries.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// AuditDenied records every /api request rejected with 401 or 403. Handlers
// record their own domain events; this catches the requests that never got
// that far.
func AuditDenied(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/") {
				return next(c)
			}

			err := next(c)

			status := responseStatus(c, err)
			var action string
			switch status {
			case http.StatusUnauthorized:
				action = ActionAccessUnauthn
			case http.StatusForbidden:
				action = ActionAccessDenied
			default:
				return err
			}

			entry := AuditEntry{
				Timestamp:  time.Now().UTC(),
				UserID:     auth.UserIDFromContext(c.Request().Context()),
				Action:     action,
				Resource:   strings.TrimPrefix(req.URL.Path, "/api/"),
				Method:     req.Method,
				IPAddress:  RealClientIP(c),
				Status:     StatusFailed,
				StatusCode: status,
			}
			entry.RequestID, _ = c.Get(RequestIDKey).(string)

			if recErr := recorder.RecordAccess(entry); recErr != nil {
				logger.Error().Err(recErr).
					Str("request_id", entry.RequestID).
					Msg("failed to record audit entry")
			}
			logger.Warn().
				Str("type", "access_denied").
				Str("request_id", entry.RequestID).
				Int64("user_id", entry.UserID).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Msg("audit")

			return err
		}
	}
}
