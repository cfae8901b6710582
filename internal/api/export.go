package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/service/export"
	"go.uber.org/zap"
)

type exporter interface {
	Export(ctx context.Context, userID uuid.UUID) (*export.Document, error)
}

// ExportHandler serves the personal data download.
type ExportHandler struct {
	exports exporter
	logger  *zap.Logger
}

func NewExportHandler(exports exporter, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{exports: exports, logger: logger}
}

// Download handles GET /v1/users/me/export
func (h *ExportHandler) Download(c *gin.Context) {
	doc, err := h.exports.Export(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to export data")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="collabspace-export.json"`)
	c.JSON(http.StatusOK, doc)
}
