// Package v1 provides the versioned HTTP handlers of the orchestrator.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/service"
)

// HeaderWorkflowRunID carries the id of the run created for a workflow request.
const HeaderWorkflowRunID = "X-Workflow-Run-ID"

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	logger  *zap.Logger
	version string
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, logger *zap.Logger, version string) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		version: version,
	}
}

// RegisterRoutes registers routes with the echo server. authn guards every route but /health.
func (h *Handler) RegisterRoutes(e *echo.Echo, authn echo.MiddlewareFunc) {
	e.POST("/v1/workflow", h.RunWorkflow, authn)
	e.GET("/v1/workflow-runs/:run_id", h.GetRun, authn)
	e.GET("/v1/workflow-runs/:run_id/events", h.GetRunEvents, authn)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// writeError sends the JSON body of a workflow error.
func (h *Handler) writeError(c echo.Context, err error) error {
	wfErr := domain.AsWorkflowError(err)
	if wfErr.Kind == domain.ErrWorkflowFailed {
		h.logger.Error("request failed", zap.String("uri", c.Request().RequestURI), zap.Error(wfErr))
	}
	return c.JSON(wfErr.HTTPStatus(), wfErr.Body())
}
