package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/stage-ticketing/internal/service"
)

// PaymentHandler receives the payment provider's outcome for an order.
// Both callbacks are safe to deliver more than once.
type PaymentHandler struct {
	orders *service.OrderService
	cache  Invalidator
	log    *zap.Logger
}

// NewPaymentHandler wires a PaymentHandler.
func NewPaymentHandler(orders *service.OrderService, cache Invalidator, log *zap.Logger) *PaymentHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentHandler{orders: orders, cache: cache, log: log}
}

// Confirm handles POST /v1/payments/:id/confirm.
func (h *PaymentHandler) Confirm(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "order")
	}
	order, tickets, err := h.orders.ConfirmPayment(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, newOrderResponse(order, tickets))
}

// Fail handles POST /v1/payments/:id/fail.  The order is cancelled and its
// seats released; a repeated or late failure leaves a settled order as it
// is.
func (h *PaymentHandler) Fail(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c, "order")
	}
	ctx := c.Request().Context()
	order, err := h.orders.Cancel(ctx, id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if h.cache != nil {
		h.cache.Invalidate(ctx, sessionPath(order.SessionID))
	}
	return c.JSON(http.StatusOK, echo.Map{"order": order})
}
