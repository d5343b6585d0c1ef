package auth

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/zakkycrypt01/spenednsave-sub002/internal/api/httperrors"
	"github.com/zakkycrypt01/spenednsave-sub002/internal/util"
)

const callerContextKey = "auth.caller"

// Middleware rejects requests without a valid bearer token and stores the caller on the context.
func Middleware(m *JWTManager) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || raw == "" {
				return httperrors.ErrUnauthorized
			}

			claims, err := m.Validate(strings.TrimSpace(raw))
			if err != nil {
				util.LogFromContext(c.Request().Context()).Debug().Err(err).Msg("Rejected bearer token")
				return httperrors.ErrUnauthorized
			}
			addr, _ := claims.Address()
			c.Set(callerContextKey, Caller{Address: addr, Role: claims.Role})
			return next(c)
		}
	}
}

// CallerFromContext returns the caller stored by Middleware.
func CallerFromContext(c echo.Context) (Caller, bool) {
	caller, ok := c.Get(callerContextKey).(Caller)
	return caller, ok
}

// RequireCaller is CallerFromContext for handlers mounted behind Middleware.
func RequireCaller(c echo.Context) (Caller, error) {
	caller, ok := CallerFromContext(c)
	if !ok {
		return Caller{}, httperrors.ErrUnauthorized
	}
	return caller, nil
}
