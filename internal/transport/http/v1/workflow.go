package v1

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/davidanoel/cognicare-sub000/internal/adapter/collaborator"
	"github.com/davidanoel/cognicare-sub000/internal/auth"
	"github.com/davidanoel/cognicare-sub000/internal/domain"
)

// RunWorkflow runs one workflow stage.
// POST /v1/workflow
func (h *Handler) RunWorkflow(c echo.Context) error {
	var req domain.WorkflowRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	ctx := c.Request().Context()
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		ctx = collaborator.ContextWithRequestID(ctx, id)
	}

	runID, result, err := h.service.RunWorkflow(ctx, auth.FromContext(c), req)
	if runID != "" {
		c.Response().Header().Set(HeaderWorkflowRunID, runID)
	}
	if err != nil {
		return h.writeError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}
