package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/service/sponsored"
	"go.uber.org/zap"
)

type sponsoredService interface {
	ListActive(ctx context.Context) ([]models.SponsoredPost, error)
	Create(ctx context.Context, actorID uuid.UUID, in sponsored.NewPost) (*models.SponsoredPost, error)
	SetActive(ctx context.Context, actorID, postID uuid.UUID, active bool) (*models.SponsoredPost, error)
}

type SponsoredHandler struct {
	posts  sponsoredService
	logger *zap.Logger
}

func NewSponsoredHandler(posts sponsoredService, logger *zap.Logger) *SponsoredHandler {
	return &SponsoredHandler{posts: posts, logger: logger}
}

type setActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// List handles GET /v1/sponsored
func (h *SponsoredHandler) List(c *gin.Context) {
	posts, err := h.posts.ListActive(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err, "failed to list sponsored posts")
		return
	}
	c.JSON(http.StatusOK, posts)
}

// Create handles POST /v1/admin/sponsored
func (h *SponsoredHandler) Create(c *gin.Context) {
	var req sponsored.NewPost
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := h.posts.Create(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		writeError(c, h.logger, err, "failed to create sponsored post")
		return
	}
	c.JSON(http.StatusCreated, p)
}

// SetActive handles PATCH /v1/admin/sponsored/:id
func (h *SponsoredHandler) SetActive(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req setActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := h.posts.SetActive(c.Request.Context(), middleware.GetUserID(c), id, *req.Active)
	if err != nil {
		writeError(c, h.logger, err, "failed to update sponsored post")
		return
	}
	c.JSON(http.StatusOK, p)
}
