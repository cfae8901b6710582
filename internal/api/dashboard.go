package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"go.uber.org/zap"
)

type dashboardService interface {
	Summary(ctx context.Context, userID uuid.UUID) (*models.Dashboard, error)
}

type DashboardHandler struct {
	dashboard dashboardService
	logger    *zap.Logger
}

func NewDashboardHandler(dashboard dashboardService, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// Summary handles GET /v1/dashboard
func (h *DashboardHandler) Summary(c *gin.Context) {
	d, err := h.dashboard.Summary(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to load dashboard")
		return
	}
	c.JSON(http.StatusOK, d)
}
