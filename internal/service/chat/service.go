package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/observ"
	"github.com/lalith-99/collabspace/internal/realtime"
	"go.uber.org/zap"
)

type chatRepo interface {
	GetOrCreate(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, bool, error)
	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
}

type messageRepo interface {
	Create(ctx context.Context, chatID, senderID uuid.UUID, body string, attachmentURL *string) (*models.Message, error)
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)
	ListByChat(ctx context.Context, chatID uuid.UUID, after int64, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID int64) (bool, error)
}

type userRepo interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, title, body string, link *string) (*models.Notification, error)
}

// presenceBus is the slice of realtime.Bus the chat needs.
type presenceBus interface {
	Publish(ctx context.Context, ev realtime.Event) error
	IsViewing(userID, chatID uuid.UUID) bool
}

const (
	MaxBodyLen       = 5000
	DefaultPageLimit = 50
	MaxPageLimit     = 200

	previewLen = 80
)

type Service struct {
	log      *zap.Logger
	chats    chatRepo
	messages messageRepo
	users    userRepo
	notify   notifier
	bus      presenceBus
}

func NewService(logger *zap.Logger, chats chatRepo, messages messageRepo, users userRepo, notify notifier, bus presenceBus) *Service {
	return &Service{
		log:      observ.Component(logger, "chat"),
		chats:    chats,
		messages: messages,
		users:    users,
		notify:   notify,
		bus:      bus,
	}
}

// GetOrCreateChat returns the one chat between the two users, creating it on
// first contact. Safe under concurrent first contact.
func (s *Service) GetOrCreateChat(ctx context.Context, userA, userB uuid.UUID) (*models.Chat, error) {
	if userA == userB {
		return nil, models.NewValidationError("user_id", "cannot start a chat with yourself")
	}
	if userB == uuid.Nil {
		return nil, models.NewValidationError("user_id", "required")
	}

	other, err := s.users.GetByID(ctx, userB)
	if err != nil {
		return nil, fmt.Errorf("load chat partner: %w", err)
	}
	if other == nil {
		return nil, models.ErrNotFound
	}

	chat, created, err := s.chats.GetOrCreate(ctx, userA, userB)
	if err != nil {
		return nil, fmt.Errorf("get or create chat: %w", err)
	}
	if created {
		s.log.Debug("chat created", zap.String("chat_id", chat.ID.String()))
	}
	return chat, nil
}

func (s *Service) ListChats(ctx context.Context, userID uuid.UUID) ([]models.Chat, error) {
	return s.chats.ListForUser(ctx, userID)
}

// SendMessage appends to the chat and pushes message.created to both
// participants. The recipient also gets a notification unless they have the
// chat open.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID uuid.UUID, body string, attachmentURL *string) (*models.Message, error) {
	body = strings.TrimSpace(body)

	var v models.Validator
	v.Check(body != "", "body", "required")
	v.Check(utf8.RuneCountInString(body) <= MaxBodyLen, "body", fmt.Sprintf("must be at most %d characters", MaxBodyLen))
	if attachmentURL != nil {
		v.Check(strings.TrimSpace(*attachmentURL) != "", "attachment_url", "must not be empty")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	chat, err := s.participantChat(ctx, chatID, senderID)
	if err != nil {
		return nil, err
	}

	msg, err := s.messages.Create(ctx, chat.ID, senderID, body, attachmentURL)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	recipient := chat.Other(senderID)
	for _, userID := range []uuid.UUID{senderID, recipient} {
		ev := realtime.Event{Type: realtime.EventMessageCreated, UserID: userID, Message: msg}
		if err := s.bus.Publish(ctx, ev); err != nil {
			s.log.Warn("message push failed",
				zap.Int64("message_id", msg.ID),
				zap.String("user_id", userID.String()),
				zap.Error(err),
			)
		}
	}

	if !s.bus.IsViewing(recipient, chat.ID) {
		link := "/chats/" + chat.ID.String()
		if _, err := s.notify.Notify(ctx, recipient, models.NotificationMessage, "New message", preview(body), &link); err != nil {
			s.log.Error("message notification failed", zap.Int64("message_id", msg.ID), zap.Error(err))
		}
	}
	return msg, nil
}

// ListMessages is the authoritative refetch: messages after afterID in id
// order.
func (s *Service) ListMessages(ctx context.Context, chatID, viewerID uuid.UUID, afterID int64, limit int) ([]models.Message, error) {
	if afterID < 0 {
		return nil, models.NewValidationError("after", "must not be negative")
	}
	switch {
	case limit <= 0:
		limit = DefaultPageLimit
	case limit > MaxPageLimit:
		limit = MaxPageLimit
	}

	if _, err := s.participantChat(ctx, chatID, viewerID); err != nil {
		return nil, err
	}
	return s.messages.ListByChat(ctx, chatID, afterID, limit)
}

// MarkRead records that the reader saw the message. The first call wins;
// repeats and the sender's own reads change nothing.
func (s *Service) MarkRead(ctx context.Context, messageID int64, readerID uuid.UUID) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("load message: %w", err)
	}
	if msg == nil {
		return models.ErrNotFound
	}

	chat, err := s.participantChat(ctx, msg.ChatID, readerID)
	if err != nil {
		return err
	}
	if msg.SenderID == readerID {
		return nil
	}

	changed, err := s.messages.MarkRead(ctx, messageID)
	if err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	if changed {
		ev := realtime.Event{Type: realtime.EventMessageRead, UserID: chat.Other(readerID), Message: msg}
		if err := s.bus.Publish(ctx, ev); err != nil {
			s.log.Warn("read receipt push failed", zap.Int64("message_id", messageID), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) participantChat(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error) {
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load chat: %w", err)
	}
	if chat == nil {
		return nil, models.ErrNotFound
	}
	if !chat.HasParticipant(userID) {
		return nil, models.ErrUnauthorized
	}
	return chat, nil
}

// MergeMessages reconciles a refetched page with pushed messages: one entry
// per id, ascending. When both sides carry the same id the refetched copy
// wins, since it reflects the latest read state.
func MergeMessages(fetched, pushed []models.Message) []models.Message {
	byID := make(map[int64]models.Message, len(fetched)+len(pushed))
	for _, m := range pushed {
		byID[m.ID] = m
	}
	for _, m := range fetched {
		byID[m.ID] = m
	}

	out := make([]models.Message, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func preview(body string) string {
	if utf8.RuneCountInString(body) <= previewLen {
		return body
	}
	runes := []rune(body)
	return string(runes[:previewLen]) + "…"
}
