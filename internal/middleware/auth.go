package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/auth"
	"github.com/lalith-99/collabspace/internal/models"
	"go.uber.org/zap"
)

// Context keys for values the auth middleware stores in gin.Context.
const (
	ContextKeyUserID = "user_id"
	ContextKeyEmail  = "email"
	ContextKeyClaims = "claims"
)

// TokenParser is the part of auth.Issuer the middleware needs.
type TokenParser interface {
	ParseToken(token string, want auth.Purpose) (*auth.Claims, error)
}

// AuthMiddleware validates the access token and stores its claims.
//
// The token comes from "Authorization: Bearer <token>". Browsers can't set
// headers on a WebSocket handshake, so the `token` query parameter is
// accepted as a fallback.
//
// A revoked jti gets the same 401 as a bad signature. If the deny-list can't
// be reached the request fails closed with 503.
func AuthMiddleware(parser TokenParser, denied auth.DenyList, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing or malformed authorization, expected: Bearer <token>",
			})
			return
		}

		claims, err := parser.ParseToken(tokenString, auth.PurposeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		revoked, err := denied.IsRevoked(c.Request.Context(), claims.TokenID())
		if err != nil {
			logger.Error("deny-list lookup failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "authentication temporarily unavailable",
			})
			return
		}
		if revoked {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "token has been revoked",
			})
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if q := c.Query("token"); q != "" {
			return q, true
		}
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// RoleChecker answers whether a user holds a role.
type RoleChecker func(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)

// RequireRole must run after AuthMiddleware.
func RequireRole(role models.Role, hasRole RoleChecker, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := hasRole(c.Request.Context(), GetUserID(c), role)
		if err != nil {
			logger.Error("role lookup failed", zap.String("role", string(role)), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// GetUserID returns uuid.Nil when the middleware didn't run.
func GetUserID(c *gin.Context) uuid.UUID {
	val, exists := c.Get(ContextKeyUserID)
	if !exists {
		return uuid.Nil
	}
	id, ok := val.(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

func GetEmail(c *gin.Context) string {
	val, exists := c.Get(ContextKeyEmail)
	if !exists {
		return ""
	}
	email, ok := val.(string)
	if !ok {
		return ""
	}
	return email
}

func GetClaims(c *gin.Context) *auth.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, _ := val.(*auth.Claims)
	return claims
}
