// Package handler exposes the ticketing services over HTTP.  Handlers
// decode requests, call one service operation and map its typed errors to
// status codes; they hold no business rules of their own.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/service"
)

// Invalidator drops cached responses for a path.
type Invalidator interface {
	Invalidate(ctx context.Context, path string)
}

func sessionPath(id uint64) string {
	return "/v1/sessions/" + strconv.FormatUint(id, 10)
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func badID(c echo.Context, what string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid " + what + " id"})
}

// writeError maps service errors to JSON responses.  Anything not in the
// error taxonomy is logged and reported as a bare 500.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var (
		soldOut *service.SoldOutError
		invalid *service.ValidationError
		code    *service.CodeError
		used    *service.AlreadyUsedError
	)
	switch {
	case errors.As(err, &soldOut):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     "sold_out",
			"tier":      soldOut.Tier,
			"requested": soldOut.Requested,
			"available": soldOut.Available,
		})
	case errors.As(err, &invalid):
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":   "validation",
			"field":   invalid.Field,
			"message": invalid.Reason,
		})
	case errors.As(err, &code):
		if errors.Is(code.Err, service.ErrCodeNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "code_not_found", "code": code.Code})
		}
		return c.JSON(http.StatusConflict, echo.Map{"error": "code_already_used", "code": code.Code})
	case errors.As(err, &used):
		body := echo.Map{"error": "already_used"}
		if used.UsedAt != nil {
			body["used_at"] = used.UsedAt
		}
		return c.JSON(http.StatusConflict, body)
	case errors.Is(err, service.ErrInvalidOrder):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_order", "message": err.Error()})
	case errors.Is(err, service.ErrNotOnSale):
		return c.JSON(http.StatusConflict, echo.Map{"error": "not_on_sale", "message": err.Error()})
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_state", "message": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": err.Error()})
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal"})
}
