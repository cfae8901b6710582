package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/service/collab"
	"go.uber.org/zap"
)

type collabService interface {
	Create(ctx context.Context, requesterID, receiverID uuid.UUID, title, description string) (*models.CollaborationRequest, error)
	Respond(ctx context.Context, requestID uuid.UUID, decision collab.Decision, actorID uuid.UUID) (*models.CollaborationRequest, error)
	MarkComplete(ctx context.Context, requestID, actorID uuid.UUID) (*models.CollaborationRequest, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error)
}

type CollabHandler struct {
	collabs collabService
	logger  *zap.Logger
}

func NewCollabHandler(collabs collabService, logger *zap.Logger) *CollabHandler {
	return &CollabHandler{collabs: collabs, logger: logger}
}

type createCollabRequest struct {
	ReceiverID  uuid.UUID `json:"receiver_id" binding:"required"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

type respondRequest struct {
	Decision collab.Decision `json:"decision" binding:"required,oneof=accept reject"`
}

// Create handles POST /v1/collaborations
func (h *CollabHandler) Create(c *gin.Context) {
	var req createCollabRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	r, err := h.collabs.Create(c.Request.Context(), middleware.GetUserID(c), req.ReceiverID, req.Title, req.Description)
	if err != nil {
		writeError(c, h.logger, err, "failed to create collaboration request")
		return
	}
	c.JSON(http.StatusCreated, r)
}

// List handles GET /v1/collaborations: pending and accepted requests the
// caller is part of.
func (h *CollabHandler) List(c *gin.Context) {
	list, err := h.collabs.ListActive(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to list collaborations")
		return
	}
	c.JSON(http.StatusOK, list)
}

// Respond handles POST /v1/collaborations/:id/respond
func (h *CollabHandler) Respond(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	r, err := h.collabs.Respond(c.Request.Context(), id, req.Decision, middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to respond to request")
		return
	}
	c.JSON(http.StatusOK, r)
}

// Complete handles POST /v1/collaborations/:id/complete
func (h *CollabHandler) Complete(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	r, err := h.collabs.MarkComplete(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to complete collaboration")
		return
	}
	c.JSON(http.StatusOK, r)
}
