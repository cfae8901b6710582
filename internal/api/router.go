package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/collabspace/internal/auth"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"go.uber.org/zap"
)

// Handlers is everything NewRouter mounts.
type Handlers struct {
	Auth          *AuthHandler
	Profiles      *ProfileHandler
	Collabs       *CollabHandler
	Chats         *ChatHandler
	Notifications *NotificationHandler
	Dashboard     *DashboardHandler
	Export        *ExportHandler
	Billing       *BillingHandler
	Sponsored     *SponsoredHandler
	WS            *WSHandler
}

type RouterConfig struct {
	TokenParser middleware.TokenParser
	DenyList    auth.DenyList
	HasRole     middleware.RoleChecker
	MediaDir    string
	Logger      *zap.Logger

	// Health reports whether dependencies are reachable. Optional.
	Health func(ctx context.Context) error
}

func NewRouter(h Handlers, cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	if cfg.MediaDir != "" {
		r.Static("/media", cfg.MediaDir)
	}

	// Public: health, account entry points and the payment webhook.
	r.GET("/v1/health", func(c *gin.Context) {
		if cfg.Health != nil {
			if err := cfg.Health(c.Request.Context()); err != nil {
				cfg.Logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	public := r.Group("/v1")
	public.POST("/auth/signup", h.Auth.Signup)
	public.POST("/auth/login", h.Auth.Login)
	public.GET("/auth/verify", h.Auth.Verify)
	public.POST("/auth/resend-verification", h.Auth.ResendVerification)
	public.POST("/billing/webhook", h.Billing.Webhook)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.TokenParser, cfg.DenyList, cfg.Logger))

	v1.POST("/auth/logout", h.Auth.Logout)
	v1.POST("/auth/password", h.Auth.ChangePassword)
	v1.GET("/users/me", h.Auth.Me)
	v1.GET("/users/me/export", h.Export.Download)

	v1.GET("/profiles/me", h.Profiles.Mine)
	v1.PUT("/profiles/me", h.Profiles.Update)
	v1.POST("/profiles/me/avatar", h.Profiles.UploadAvatar)
	v1.GET("/profiles/:id", h.Profiles.Get)
	v1.GET("/directory", h.Profiles.Directory)
	v1.GET("/suggestions", h.Profiles.Suggestions)

	v1.POST("/collaborations", h.Collabs.Create)
	v1.GET("/collaborations", h.Collabs.List)
	v1.POST("/collaborations/:id/respond", h.Collabs.Respond)
	v1.POST("/collaborations/:id/complete", h.Collabs.Complete)

	v1.POST("/chats", h.Chats.Open)
	v1.GET("/chats", h.Chats.List)
	v1.GET("/chats/:id/messages", h.Chats.Messages)
	v1.POST("/chats/:id/messages", h.Chats.Send)
	v1.POST("/messages/:id/read", h.Chats.MarkRead)

	v1.GET("/notifications", h.Notifications.List)
	v1.GET("/notifications/unread-count", h.Notifications.UnreadCount)
	v1.POST("/notifications/:id/read", h.Notifications.MarkRead)
	v1.POST("/notifications/read-all", h.Notifications.MarkAllRead)
	v1.GET("/dashboard", h.Dashboard.Summary)

	v1.GET("/billing/boost", h.Billing.BoostStatus)
	v1.GET("/billing/subscription", h.Billing.Subscription)
	v1.POST("/billing/boost/checkout", h.Billing.BoostCheckout)
	v1.POST("/billing/subscription/checkout", h.Billing.SubscriptionCheckout)

	v1.GET("/sponsored", h.Sponsored.List)
	admin := v1.Group("/admin", middleware.RequireRole(models.RoleAdmin, cfg.HasRole, cfg.Logger))
	admin.POST("/sponsored", h.Sponsored.Create)
	admin.PATCH("/sponsored/:id", h.Sponsored.SetActive)

	v1.GET("/ws", h.WS.Serve)

	return r
}
