// Package http provides the HTTP server implementation for the orchestrator.
package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidanoel/cognicare-sub000/internal/auth"
	"github.com/davidanoel/cognicare-sub000/internal/service"
	v1 "github.com/davidanoel/cognicare-sub000/internal/transport/http/v1"
)

// NewServer creates and configures the HTTP server.
// It serves the workflow API, the run audit API, health and Prometheus metrics.
func NewServer(svc *service.Service, verifier *auth.Verifier, logger *zap.Logger, version string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1Handler := v1.NewHandler(svc, logger, version)
	v1Handler.RegisterRoutes(e, auth.Middleware(verifier, logger))

	return e
}

func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	}
}
