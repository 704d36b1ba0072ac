// Package router registers the HTTP routes of the ticketing API.
package router

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stage-ticketing/internal/handler"
	"github.com/iliyamo/stage-ticketing/internal/middleware"
	"github.com/iliyamo/stage-ticketing/internal/model"
)

// RegisterRoutes registers routes that need no authentication and no
// services, currently only the health check.
func RegisterRoutes(e *echo.Echo, check func(ctx context.Context) error) {
	e.GET("/healthz", handler.Health(check))
}

// RegisterPublic registers the buyer-facing endpoints.  limiter guards
// checkout and cache serves session availability; either may be nil.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, limiter echo.MiddlewareFunc, cache *middleware.ResponseCache) {
	var checkoutMW, browseMW []echo.MiddlewareFunc
	if limiter != nil {
		checkoutMW = append(checkoutMW, limiter)
	}
	if cache != nil {
		browseMW = append(browseMW, cache.Middleware())
	}

	g := e.Group("/v1")
	g.GET("/sessions/:id", p.GetSession, browseMW...)
	g.POST("/sessions/:id/orders", p.Checkout, checkoutMW...)
	g.GET("/orders/:ref", p.GetOrder)
	g.POST("/exchange-codes/validate", p.ValidateCodes)
}

// RegisterPayments registers the payment provider callbacks.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, jwtSecret string) {
	g := e.Group("/v1/payments")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RolePayment, model.RoleAdmin))
	g.POST("/:id/confirm", h.Confirm)
	g.POST("/:id/fail", h.Fail)
}

// RegisterCheckIn registers the door scanner endpoints.
func RegisterCheckIn(e *echo.Echo, h *handler.CheckInHandler, jwtSecret string) {
	g := e.Group("/v1/checkin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleStaff, model.RoleAdmin))
	g.GET("/:code", h.Verify)
	g.POST("/:code", h.CheckIn)
}

// RegisterAdmin registers box office administration under /v1/admin.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin")
	g.Use(middleware.JWTAuth(jwtSecret))
	g.Use(middleware.RequireRole(model.RoleAdmin))
	g.POST("/sessions", h.CreateSession)
	g.PATCH("/sessions/:id", h.UpdateSession)
	g.GET("/orders/:id", h.GetOrder)
	g.POST("/orders/:id/cancel", h.CancelOrder)
	g.POST("/exchange-codes", h.GenerateCodes)
}
