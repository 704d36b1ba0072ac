package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/model"
	"github.com/iliyamo/stage-ticketing/internal/service"
)

// PublicHandler serves the buyer-facing endpoints.
type PublicHandler struct {
	sessions *service.SessionService
	orders   *service.OrderService
	registry *service.ExchangeRegistry
	cache    Invalidator
	log      *zap.Logger
}

// NewPublicHandler wires a PublicHandler.  cache may be nil.
func NewPublicHandler(sessions *service.SessionService, orders *service.OrderService, registry *service.ExchangeRegistry, cache Invalidator, log *zap.Logger) *PublicHandler {
	if sessions == nil || orders == nil || registry == nil {
		panic("nil service passed to NewPublicHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PublicHandler{sessions: sessions, orders: orders, registry: registry, cache: cache, log: log}
}

// GetSession handles GET /v1/sessions/:id and returns per-tier
// availability.
func (h *PublicHandler) GetSession(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "session")
	}
	v, err := h.sessions.GetSession(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, v)
}

type checkoutRequest struct {
	Quantities    model.TierQuantities `json:"quantities"`
	Customer      model.Customer       `json:"customer"`
	ExchangeCodes []string             `json:"exchange_codes"`
}

type orderResponse struct {
	Order           *model.Order   `json:"order"`
	Tickets         []model.Ticket `json:"tickets"`
	PaymentRequired bool           `json:"payment_required"`
}

// Checkout handles POST /v1/sessions/:id/orders.  It creates a PENDING
// order holding the seats; the payment provider later confirms or fails
// it.  An order whose total is zero, fully covered by exchange codes, comes
// back PAID with its tickets.  The response carries the order's public_ref,
// the buyer's handle for GET /v1/orders/:ref.
func (h *PublicHandler) Checkout(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "session")
	}
	var req checkoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	ctx := c.Request().Context()
	order, tickets, err := h.orders.Checkout(ctx, service.CreateOrderInput{
		SessionID:     id,
		Quantities:    req.Quantities,
		Customer:      req.Customer,
		ExchangeCodes: req.ExchangeCodes,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	if h.cache != nil {
		h.cache.Invalidate(ctx, sessionPath(id))
	}
	return c.JSON(http.StatusCreated, newOrderResponse(order, tickets))
}

func newOrderResponse(o *model.Order, tickets []model.Ticket) orderResponse {
	if tickets == nil {
		tickets = []model.Ticket{}
	}
	return orderResponse{
		Order:           o,
		Tickets:         tickets,
		PaymentRequired: o.Status == model.OrderPending && o.TotalCents > 0,
	}
}

// GetOrder handles GET /v1/orders/:ref.  Orders are looked up by their
// public reference only; sequential ids are never accepted here.
func (h *PublicHandler) GetOrder(c echo.Context) error {
	order, tickets, err := h.orders.GetOrderByRef(c.Request().Context(), c.Param("ref"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newOrderResponse(order, tickets))
}

// ValidateCodes handles POST /v1/exchange-codes/validate.
func (h *PublicHandler) ValidateCodes(c echo.Context) error {
	var req struct {
		Codes []string `json:"codes"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(req.Codes) == 0 || len(req.Codes) > 50 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "codes must hold between 1 and 50 entries"})
	}
	res, err := h.registry.ValidateBatch(c.Request().Context(), req.Codes)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"results": res})
}
