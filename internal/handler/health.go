package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health returns a health-check handler.  When check is non-nil it must
// succeed within two seconds for the service to report ok.
func Health(check func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				return c.String(http.StatusServiceUnavailable, "unavailable")
			}
		}
		return c.String(http.StatusOK, "ok")
	}
}
