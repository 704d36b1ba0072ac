package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/middleware"
	"github.com/iliyamo/stage-ticketing/internal/service"
)

// CheckInHandler serves the door scanners.
type CheckInHandler struct {
	checkin *service.CheckInService
	log     *zap.Logger
}

// NewCheckInHandler wires a CheckInHandler.
func NewCheckInHandler(checkin *service.CheckInService, log *zap.Logger) *CheckInHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CheckInHandler{checkin: checkin, log: log}
}

// Verify handles GET /v1/checkin/:code.  Nothing is changed.
func (h *CheckInHandler) Verify(c echo.Context) error {
	res, err := h.checkin.Verify(c.Request().Context(), c.Param("code"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// CheckIn handles POST /v1/checkin/:code.  A second scan of the same
// ticket answers 409 already_used.
func (h *CheckInHandler) CheckIn(c echo.Context) error {
	res, err := h.checkin.CheckIn(c.Request().Context(), c.Param("code"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Debug("admitted", zap.String("staff_id", middleware.StaffID(c)), zap.Uint64("ticket_id", res.Ticket.ID))
	return c.JSON(http.StatusOK, res)
}
