package middleware

import "github.com/labstack/echo/v4"

// StaffID returns the token subject stored by JWTAuth, or "anonymous"
// on public routes.
func StaffID(c echo.Context) string {
	if v, ok := c.Get(CtxStaffID).(string); ok && v != "" {
		return v
	}
	return "anonymous"
}
