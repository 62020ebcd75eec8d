package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	PrincipalKey contextKey = "principal"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID    int64
	Username  string
	Role      string
	SessionID string
}

// SessionValidator confirms that a session is still live, extending it if
// the backend uses sliding expiry.
type SessionValidator interface {
	ValidateSession(sessionID string) (Principal, bool)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Authenticate resolves the bearer token to a live session and attaches
// the principal to the request context.
func Authenticate(tokens *TokenIssuer, sessions SessionValidator, r *http.Request) (Principal, bool) {
	raw := BearerToken(r)
	if raw == "" {
		return Principal{}, false
	}
	claims, err := tokens.Parse(raw)
	if err != nil {
		return Principal{}, false
	}
	return sessions.ValidateSession(claims.ID)
}

// SessionMiddleware rejects requests without a valid bearer token for a
// live session.
func SessionMiddleware(tokens *TokenIssuer, sessions SessionValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p, ok := Authenticate(tokens, sessions, c.Request())
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	ctx = context.WithValue(ctx, PrincipalKey, p)
	ctx = context.WithValue(ctx, UserIDKey, p.UserID)
	ctx = context.WithValue(ctx, UserRolesKey, []string{p.Role})
	return ctx
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(PrincipalKey).(Principal)
	return p, ok
}

func UserIDFromContext(ctx context.Context) int64 {
	uid, _ := ctx.Value(UserIDKey).(int64)
	return uid
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}
