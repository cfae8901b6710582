package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/auth"
	"github.com/lalith-99/collabspace/internal/middleware"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/service/account"
	"go.uber.org/zap"
)

type accountService interface {
	SignUp(ctx context.Context, in account.SignUpInput) (*models.User, error)
	VerifyEmail(ctx context.Context, token string) error
	SignIn(ctx context.Context, email, password string) (*account.Session, error)
	SignOut(ctx context.Context, claims *auth.Claims) error
	ResendVerification(ctx context.Context, email string) error
	ChangePassword(ctx context.Context, claims *auth.Claims, current, next string) error
	Me(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// AuthHandler serves signup, login and email verification, which are public,
// plus logout, password change and /users/me.
type AuthHandler struct {
	accounts accountService
	logger   *zap.Logger
}

func NewAuthHandler(accounts accountService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

type signupRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type resendRequest struct {
	Email string `json:"email" binding:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// Signup handles POST /v1/auth/signup. No token is issued until the email is
// verified.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.accounts.SignUp(c.Request.Context(), account.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		writeError(c, h.logger, err, "signup failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"user": user, "verification_sent": true})
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	session, err := h.accounts.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, err, "login failed")
		return
	}
	c.JSON(http.StatusOK, session)
}

// Verify handles GET /v1/auth/verify?token=
func (h *AuthHandler) Verify(c *gin.Context) {
	if err := h.accounts.VerifyEmail(c.Request.Context(), c.Query("token")); err != nil {
		writeError(c, h.logger, err, "verification failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"verified": true})
}

// ResendVerification handles POST /v1/auth/resend-verification. The answer
// is 202 whether or not a mail went out.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	if err := h.accounts.ResendVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, err, "failed to resend verification")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "if the account exists and is unverified, a new link was sent"})
}

// ChangePassword handles POST /v1/auth/password. The current token is revoked
// on success, so the client signs in again.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	err := h.accounts.ChangePassword(c.Request.Context(), middleware.GetClaims(c), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(c, h.logger, err, "failed to change password")
		return
	}
	c.Status(http.StatusNoContent)
}

// Logout handles POST /v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.accounts.SignOut(c.Request.Context(), middleware.GetClaims(c)); err != nil {
		writeError(c, h.logger, err, "logout failed")
		return
	}
	c.Status(http.StatusNoContent)
}

// Me handles GET /v1/users/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.accounts.Me(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to load user")
		return
	}
	c.JSON(http.StatusOK, user)
}
