package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"go.uber.org/zap"
)

// writeError maps a service error to its HTTP status. Anything unrecognised
// is logged and answered with a generic 500 carrying fallback.
func writeError(c *gin.Context, logger *zap.Logger, err error, fallback string) {
	var verr *models.ValidationError
	if errors.As(err, &verr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Errors})
		return
	}

	var ext *models.ExternalServiceError
	if errors.As(err, &ext) {
		logger.Warn("external service error", zap.String("service", ext.Service), zap.Int("status", ext.StatusCode), zap.Error(err))
		switch ext.Kind {
		case models.ExternalRateLimited:
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded, please try again later"})
		case models.ExternalPaymentRequired:
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "payment required"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": ext.Service + " is unavailable"})
		}
		return
	}

	switch {
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
	case errors.Is(err, models.ErrEmailNotVerified):
		c.JSON(http.StatusForbidden, gin.H{"error": "email not verified", "code": "email_not_verified"})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, models.ErrConflict), errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.Error(fallback, zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	n, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

// intQuery reads an optional integer query parameter. def is returned when
// it is absent.
func intQuery(c *gin.Context, name string, def int64) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid '" + name + "' parameter"})
		return 0, false
	}
	return n, true
}
