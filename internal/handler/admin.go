package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/middleware"
	"github.com/iliyamo/stage-ticketing/internal/service"
)

// AdminHandler serves box office administration.
type AdminHandler struct {
	sessions *service.SessionService
	orders   *service.OrderService
	registry *service.ExchangeRegistry
	cache    Invalidator
	log      *zap.Logger
}

// NewAdminHandler wires an AdminHandler.
func NewAdminHandler(sessions *service.SessionService, orders *service.OrderService, registry *service.ExchangeRegistry, cache Invalidator, log *zap.Logger) *AdminHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{sessions: sessions, orders: orders, registry: registry, cache: cache, log: log}
}

func (h *AdminHandler) invalidate(c echo.Context, sessionID uint64) {
	if h.cache != nil {
		h.cache.Invalidate(c.Request().Context(), sessionPath(sessionID))
	}
}

// CreateSession handles POST /v1/admin/sessions.
func (h *AdminHandler) CreateSession(c echo.Context) error {
	var in service.SessionInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	s, err := h.sessions.CreateSession(c.Request().Context(), in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.log.Info("session created by staff", zap.String("staff_id", middleware.StaffID(c)), zap.Uint64("session_id", s.ID))
	v, err := h.sessions.GetSession(c.Request().Context(), s.ID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, v)
}

// UpdateSession handles PATCH /v1/admin/sessions/:id.
func (h *AdminHandler) UpdateSession(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "session")
	}
	var patch service.SessionPatch
	if err := c.Bind(&patch); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if _, err := h.sessions.UpdateSession(c.Request().Context(), id, patch); err != nil {
		return writeError(c, h.log, err)
	}
	h.invalidate(c, id)
	v, err := h.sessions.GetSession(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, v)
}

// GetOrder handles GET /v1/admin/orders/:id.
func (h *AdminHandler) GetOrder(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "order")
	}
	order, tickets, err := h.orders.GetOrder(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newOrderResponse(order, tickets))
}

// CancelOrder handles POST /v1/admin/orders/:id/cancel.
func (h *AdminHandler) CancelOrder(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "order")
	}
	order, err := h.orders.Cancel(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	h.invalidate(c, order.SessionID)
	return c.JSON(http.StatusOK, echo.Map{"order": order})
}

// GenerateCodes handles POST /v1/admin/exchange-codes.
func (h *AdminHandler) GenerateCodes(c echo.Context) error {
	var req struct {
		Count int    `json:"count"`
		Tag   string `json:"tag"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	codes, err := h.registry.GenerateBatch(c.Request().Context(), req.Count, req.Tag)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"codes": codes})
}
