// Package export assembles a user's personal data into one document.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"golang.org/x/sync/errgroup"
)

type userRepo interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

type profileRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type collaborationRepo interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error)
}

type messageRepo interface {
	ListSentBy(ctx context.Context, senderID uuid.UUID) ([]models.Message, error)
}

// Document is what GET /v1/users/me/export returns.
type Document struct {
	ExportedAt     time.Time                     `json:"exported_at"`
	User           *models.User                  `json:"user"`
	Profile        *models.Profile               `json:"profile"`
	Collaborations []models.CollaborationRequest `json:"collaborations"`
	SentMessages   []models.Message              `json:"sent_messages"`
}

type Service struct {
	users    userRepo
	profiles profileRepo
	collabs  collaborationRepo
	messages messageRepo
	now      func() time.Time
}

func NewService(users userRepo, profiles profileRepo, collabs collaborationRepo, messages messageRepo) *Service {
	return &Service{
		users:    users,
		profiles: profiles,
		collabs:  collabs,
		messages: messages,
		now:      time.Now,
	}
}

// Export loads every section in parallel. Any failure fails the whole export;
// a partial document is never returned.
func (s *Service) Export(ctx context.Context, userID uuid.UUID) (*Document, error) {
	doc := &Document{ExportedAt: s.now().UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.users.GetByID(gctx, userID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if u == nil {
			return models.ErrNotFound
		}
		doc.User = u
		return nil
	})
	g.Go(func() error {
		p, err := s.profiles.GetByUserID(gctx, userID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		doc.Profile = p
		return nil
	})
	g.Go(func() error {
		list, err := s.collabs.ListForUser(gctx, userID)
		if err != nil {
			return fmt.Errorf("load collaborations: %w", err)
		}
		doc.Collaborations = list
		return nil
	})
	g.Go(func() error {
		list, err := s.messages.ListSentBy(gctx, userID)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		doc.SentMessages = list
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return doc, nil
}
