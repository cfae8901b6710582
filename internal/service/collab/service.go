package collab

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/observ"
	"go.uber.org/zap"
)

type collabRepo interface {
	Create(ctx context.Context, requesterID, receiverID uuid.UUID, title, description string) (*models.CollaborationRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.CollaborationRequest, error)
	Transition(ctx context.Context, id uuid.UUID, from, to models.CollabStatus) (*models.CollaborationRequest, error)
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error)
}

type profileRepo interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
}

type notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, title, body string, link *string) (*models.Notification, error)
}

const (
	maxTitleLen       = 200
	maxDescriptionLen = 2000
)

type Decision string

const (
	Accept Decision = "accept"
	Reject Decision = "reject"
)

func (d Decision) target() (models.CollabStatus, bool) {
	switch d {
	case Accept:
		return models.CollabAccepted, true
	case Reject:
		return models.CollabRejected, true
	}
	return "", false
}

type Service struct {
	log      *zap.Logger
	requests collabRepo
	profiles profileRepo
	notify   notifier
}

func NewService(logger *zap.Logger, requests collabRepo, profiles profileRepo, notify notifier) *Service {
	return &Service{
		log:      observ.Component(logger, "collab"),
		requests: requests,
		profiles: profiles,
		notify:   notify,
	}
}

// Create opens a pending request from requester to receiver and tells the
// receiver about it. Several pending requests between the same pair are
// allowed.
func (s *Service) Create(ctx context.Context, requesterID, receiverID uuid.UUID, title, description string) (*models.CollaborationRequest, error) {
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)

	var v models.Validator
	v.Check(requesterID != receiverID, "receiver_id", "cannot send a request to yourself")
	v.Check(receiverID != uuid.Nil, "receiver_id", "required")
	v.Check(title != "", "title", "required")
	v.Check(utf8.RuneCountInString(title) <= maxTitleLen, "title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	v.Check(utf8.RuneCountInString(description) <= maxDescriptionLen, "description", fmt.Sprintf("must be at most %d characters", maxDescriptionLen))
	if err := v.Err(); err != nil {
		return nil, err
	}

	receiver, err := s.profiles.GetByUserID(ctx, receiverID)
	if err != nil {
		return nil, fmt.Errorf("load receiver profile: %w", err)
	}
	if receiver == nil {
		return nil, models.ErrNotFound
	}

	req, err := s.requests.Create(ctx, requesterID, receiverID, title, description)
	if err != nil {
		return nil, fmt.Errorf("create collaboration: %w", err)
	}

	s.send(ctx, receiverID, models.NotificationApplication,
		"New collaboration request", req.Title, req.ID)
	return req, nil
}

// Respond lets the receiver accept or reject a pending request.
func (s *Service) Respond(ctx context.Context, requestID uuid.UUID, decision Decision, actorID uuid.UUID) (*models.CollaborationRequest, error) {
	to, ok := decision.target()
	if !ok {
		return nil, models.NewValidationError("decision", "must be accept or reject")
	}

	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != actorID {
		return nil, models.ErrUnauthorized
	}

	updated, err := s.transition(ctx, req, to)
	if err != nil {
		return nil, err
	}

	title := "Collaboration request accepted"
	if to == models.CollabRejected {
		title = "Collaboration request declined"
	}
	s.send(ctx, updated.RequesterID, models.NotificationRequestUpdate, title, updated.Title, updated.ID)
	return updated, nil
}

// MarkComplete closes an accepted collaboration. Either party may do it and
// the other one is notified.
func (s *Service) MarkComplete(ctx context.Context, requestID, actorID uuid.UUID) (*models.CollaborationRequest, error) {
	req, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !req.Involves(actorID) {
		return nil, models.ErrUnauthorized
	}

	updated, err := s.transition(ctx, req, models.CollabCompleted)
	if err != nil {
		return nil, err
	}

	s.send(ctx, updated.Counterpart(actorID), models.NotificationRequestUpdate,
		"Collaboration completed", updated.Title, updated.ID)
	return updated, nil
}

// ListActive returns every non-rejected request the user is part of, newest
// first.
func (s *Service) ListActive(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error) {
	return s.requests.ListActiveForUser(ctx, userID)
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.CollaborationRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load collaboration: %w", err)
	}
	if req == nil {
		return nil, models.ErrNotFound
	}
	return req, nil
}

// transition checks the state machine, then lets the store compare-and-set
// on the status it just read. Losing that race is an invalid transition too.
func (s *Service) transition(ctx context.Context, req *models.CollaborationRequest, to models.CollabStatus) (*models.CollaborationRequest, error) {
	if !req.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, req.Status, to)
	}

	updated, err := s.requests.Transition(ctx, req.ID, req.Status, to)
	if err != nil {
		return nil, fmt.Errorf("transition collaboration: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: status changed concurrently", models.ErrInvalidTransition)
	}
	return updated, nil
}

// send notifies after the state change is durable. A failure here doesn't
// undo the change, so it is logged rather than returned.
func (s *Service) send(ctx context.Context, userID uuid.UUID, typ models.NotificationType, title, body string, requestID uuid.UUID) {
	link := "/collaborations/" + requestID.String()
	if _, err := s.notify.Notify(ctx, userID, typ, title, body, &link); err != nil {
		s.log.Error("collaboration notification failed",
			zap.String("request_id", requestID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err),
		)
	}
}
