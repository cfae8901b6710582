package api

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/service/directory"
	"go.uber.org/zap"
)

type directoryService interface {
	List(ctx context.Context, viewerID uuid.UUID, f directory.Filter) ([]models.DirectoryEntry, error)
	GetProfile(ctx context.Context, viewerID, userID uuid.UUID) (*models.Profile, error)
	UpdateProfile(ctx context.Context, ownerID uuid.UUID, patch directory.ProfilePatch) (*models.Profile, error)
}

type avatarUploader interface {
	UploadAvatar(ctx context.Context, userID uuid.UUID, declaredSize int64, r io.Reader) (string, error)
}

type suggester interface {
	Suggest(ctx context.Context, userID uuid.UUID) ([]models.DirectoryEntry, error)
}

// ProfileHandler serves profiles, the directory and suggestions.
type ProfileHandler struct {
	profiles directoryService
	avatars  avatarUploader
	matcher  suggester
	logger   *zap.Logger
}

func NewProfileHandler(profiles directoryService, avatars avatarUploader, matcher suggester, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, avatars: avatars, matcher: matcher, logger: logger}
}

// Mine handles GET /v1/profiles/me
func (h *ProfileHandler) Mine(c *gin.Context) {
	userID := middleware.GetUserID(c)
	p, err := h.profiles.GetProfile(c.Request.Context(), userID, userID)
	if err != nil {
		writeError(c, h.logger, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Get handles GET /v1/profiles/:id
func (h *ProfileHandler) Get(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	p, err := h.profiles.GetProfile(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		writeError(c, h.logger, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, p)
}

// Update handles PUT /v1/profiles/me. Absent fields are left unchanged.
func (h *ProfileHandler) Update(c *gin.Context) {
	var patch directory.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		bindError(c, err)
		return
	}
	p, err := h.profiles.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), patch)
	if err != nil {
		writeError(c, h.logger, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, p)
}

// UploadAvatar handles POST /v1/profiles/me/avatar as multipart form field
// "file".
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		writeError(c, h.logger, err, "failed to read upload")
		return
	}
	defer f.Close()

	url, err := h.avatars.UploadAvatar(c.Request.Context(), middleware.GetUserID(c), fh.Size, f)
	if err != nil {
		writeError(c, h.logger, err, "failed to store avatar")
		return
	}
	c.JSON(http.StatusOK, gin.H{"picture_url": url})
}

// Directory handles GET /v1/directory?q=&niche=&limit=
func (h *ProfileHandler) Directory(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}
	entries, err := h.profiles.List(c.Request.Context(), middleware.GetUserID(c), directory.Filter{
		Search: c.Query("q"),
		Niche:  c.Query("niche"),
		Limit:  int(limit),
	})
	if err != nil {
		writeError(c, h.logger, err, "failed to list profiles")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// Suggestions handles GET /v1/suggestions
func (h *ProfileHandler) Suggestions(c *gin.Context) {
	entries, err := h.matcher.Suggest(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to build suggestions")
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": entries})
}
