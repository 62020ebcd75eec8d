package middleware

import (
	"context"
	"strings"

	"github.com/labstack/echo/v4"
)

type ctxKey string

const clientIPKey ctxKey = "client_ip"

// RealClientIP prefers the first X-Forwarded-For hop.
func RealClientIP(c echo.Context) string {
	if fwd := c.Request().Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return c.RealIP()
}

// ClientIP stores the caller's address on the request context so services
// can stamp it on audit entries.
func ClientIP() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := context.WithValue(c.Request().Context(), clientIPKey, RealClientIP(c))
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func ClientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey).(string)
	return ip
}
