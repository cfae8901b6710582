package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/service/billing"
	"go.uber.org/zap"
)

// Checkout session events with expanded objects can run past 64KB.
const maxWebhookBytes = 512 << 10

type billingService interface {
	ActiveBoost(ctx context.Context, userID uuid.UUID) (*models.ProfileBoost, error)
	Subscription(ctx context.Context, userID uuid.UUID) (*billing.SubscriptionStatus, error)
	CreateBoostCheckout(ctx context.Context, buyer billing.Buyer, urls billing.RedirectURLs) (string, error)
	CreateSubscriptionCheckout(ctx context.Context, buyer billing.Buyer, plan models.Plan, urls billing.RedirectURLs) (string, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

type BillingHandler struct {
	billing billingService
	logger  *zap.Logger
}

func NewBillingHandler(billing billingService, logger *zap.Logger) *BillingHandler {
	return &BillingHandler{billing: billing, logger: logger}
}

type checkoutRequest struct {
	Plan       models.Plan `json:"plan"`
	SuccessURL string      `json:"success_url"`
	CancelURL  string      `json:"cancel_url"`
}

func buyer(c *gin.Context) billing.Buyer {
	return billing.Buyer{UserID: middleware.GetUserID(c), Email: middleware.GetEmail(c)}
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(c *gin.Context, v any) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// BoostStatus handles GET /v1/billing/boost
func (h *BillingHandler) BoostStatus(c *gin.Context) {
	b, err := h.billing.ActiveBoost(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to load boost")
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": b != nil, "boost": b})
}

// Subscription handles GET /v1/billing/subscription
func (h *BillingHandler) Subscription(c *gin.Context) {
	status, err := h.billing.Subscription(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to load subscription")
		return
	}
	c.JSON(http.StatusOK, status)
}

// BoostCheckout handles POST /v1/billing/boost/checkout
func (h *BillingHandler) BoostCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		bindError(c, err)
		return
	}
	url, err := h.billing.CreateBoostCheckout(c.Request.Context(), buyer(c), billing.RedirectURLs{
		Success: req.SuccessURL,
		Cancel:  req.CancelURL,
	})
	if err != nil {
		writeError(c, h.logger, err, "failed to create checkout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// SubscriptionCheckout handles POST /v1/billing/subscription/checkout
func (h *BillingHandler) SubscriptionCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	url, err := h.billing.CreateSubscriptionCheckout(c.Request.Context(), buyer(c), req.Plan, billing.RedirectURLs{
		Success: req.SuccessURL,
		Cancel:  req.CancelURL,
	})
	if err != nil {
		writeError(c, h.logger, err, "failed to create checkout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// Webhook handles POST /v1/billing/webhook. It is public; the signature
// header authenticates the caller.
func (h *BillingHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.logger.Warn("webhook body over limit", zap.Int64("limit", tooLarge.Limit))
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	if err := h.billing.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		writeError(c, h.logger, err, "webhook processing failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
