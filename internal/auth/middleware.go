package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// identityKey is the echo context key holding the authenticated Identity.
const identityKey = "caller_identity"

// Middleware authenticates requests with a bearer token.
// Requests without a valid token receive 401 {"error":"Unauthorized"}.
func Middleware(verifier *Verifier, logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			identity, err := verifier.Verify(strings.TrimSpace(raw))
			if err != nil {
				logger.Debug("caller token rejected", zap.Error(err))
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}

			c.Set(identityKey, identity)
			return next(c)
		}
	}
}

// FromContext returns the identity set by Middleware. The zero Identity is returned when absent.
func FromContext(c echo.Context) Identity {
	identity, _ := c.Get(identityKey).(Identity)
	return identity
}

// SetIdentity stores an identity on the echo context.
func SetIdentity(c echo.Context, identity Identity) {
	c.Set(identityKey, identity)
}
