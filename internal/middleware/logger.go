package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request at a level chosen by status.
func RequestLogger(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()
			fields := []zap.Field{
				zap.String("request_id", res.Header().Get(echo.HeaderXRequestID)),
				zap.Int("status", res.Status),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("route", c.Path()),
				zap.String("ip", c.RealIP()),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_out", res.Size),
			}
			if err != nil {
				fields = append(fields, zap.Error(err))
			}
			switch s := res.Status; {
			case s >= 500:
				log.Error("server error", fields...)
			case s >= 400:
				log.Warn("client error", fields...)
			default:
				log.Info("request completed", fields...)
			}
			return nil
		}
	}
}
