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

type chatService interface {
	GetOrCreateChat(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
	SendMessage(ctx context.Context, chatID, senderID uuid.UUID, body string, attachmentURL *string) (*models.Message, error)
	ListMessages(ctx context.Context, chatID, viewerID uuid.UUID, afterID int64, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID int64, readerID uuid.UUID) error
}

type ChatHandler struct {
	chats  chatService
	logger *zap.Logger
}

func NewChatHandler(chats chatService, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{chats: chats, logger: logger}
}

type openChatRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

type sendMessageRequest struct {
	Body          string  `json:"body"`
	AttachmentURL *string `json:"attachment_url"`
}

// Open handles POST /v1/chats. Opening the same pair twice returns the same
// chat.
func (h *ChatHandler) Open(c *gin.Context) {
	var req openChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	chat, err := h.chats.GetOrCreateChat(c.Request.Context(), middleware.GetUserID(c), req.UserID)
	if err != nil {
		writeError(c, h.logger, err, "failed to open chat")
		return
	}
	c.JSON(http.StatusOK, chat)
}

// List handles GET /v1/chats
func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.chats.ListChats(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		writeError(c, h.logger, err, "failed to list chats")
		return
	}
	c.JSON(http.StatusOK, chats)
}

// Send handles POST /v1/chats/:id/messages
func (h *ChatHandler) Send(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	msg, err := h.chats.SendMessage(c.Request.Context(), chatID, middleware.GetUserID(c), req.Body, req.AttachmentURL)
	if err != nil {
		writeError(c, h.logger, err, "failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// Messages handles GET /v1/chats/:id/messages?after=123&limit=50
//
// Cursor pagination forward in time: "after" is the last message id the
// client has, 0 for the start of the chat.
func (h *ChatHandler) Messages(c *gin.Context) {
	chatID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	after, ok := intQuery(c, "after", 0)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}

	msgs, err := h.chats.ListMessages(c.Request.Context(), chatID, middleware.GetUserID(c), after, int(limit))
	if err != nil {
		writeError(c, h.logger, err, "failed to list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// MarkRead handles POST /v1/messages/:id/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	id, ok := int64Param(c, "id")
	if !ok {
		return
	}
	if err := h.chats.MarkRead(c.Request.Context(), id, middleware.GetUserID(c)); err != nil {
		writeError(c, h.logger, err, "failed to mark message read")
		return
	}
	c.Status(http.StatusNoContent)
}
