// Package middleware holds the echo middleware of the ticketing API:
// credential checks, rate limiting, response caching and request logging.
package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stage-ticketing/internal/utils"
)

// Context keys set by JWTAuth.
const (
	CtxStaffID = "staff_id"
	CtxRole    = "role"
)

// JWTAuth validates a Bearer token signed with secret and stores its
// subject and role in the echo context for RequireRole and the handlers.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			c.Set(CtxStaffID, claims.Subject)
			c.Set(CtxRole, claims.Role)
			return next(c)
		}
	}
}
