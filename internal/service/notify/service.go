package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/observ"
	"github.com/lalith-99/collabspace/internal/realtime"
	"go.uber.org/zap"
)

type notificationRepo interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

type publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type Service struct {
	log  *zap.Logger
	repo notificationRepo
	push publisher
}

func NewService(logger *zap.Logger, repo notificationRepo, push publisher) *Service {
	return &Service{
		log:  observ.Component(logger, "notify"),
		repo: repo,
		push: push,
	}
}

// Notify stores one unread notification and pushes it to the user. The row is
// the source of truth: a failed push is logged and the call still succeeds.
func (s *Service) Notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, title, body string, link *string) (*models.Notification, error) {
	var v models.Validator
	v.Check(userID != uuid.Nil, "user_id", "required")
	v.Check(typ.Valid(), "type", "unknown notification type")
	v.Check(strings.TrimSpace(title) != "", "title", "required")
	if err := v.Err(); err != nil {
		return nil, err
	}

	n, err := s.repo.Create(ctx, &models.Notification{
		UserID: userID,
		Type:   typ,
		Title:  title,
		Body:   body,
		Link:   link,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	if s.push != nil {
		ev := realtime.Event{Type: realtime.EventNotificationCreated, UserID: userID, Notification: n}
		if err := s.push.Publish(ctx, ev); err != nil {
			s.log.Warn("notification push failed",
				zap.String("user_id", userID.String()),
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
		}
	}
	return n, nil
}

// List is newest first. limit <= 0 means DefaultListLimit.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	return s.repo.ListForUser(ctx, userID, limit)
}

// MarkRead only touches the caller's own notifications. Someone else's id
// looks exactly like a missing one.
func (s *Service) MarkRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	ok, err := s.repo.MarkRead(ctx, notificationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return models.ErrNotFound
	}
	return nil
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *Service) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}
