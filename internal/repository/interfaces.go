package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
)

// Conventions for every repository here:
//   - ctx first; a transaction started by TxRunner travels inside ctx.
//   - Get* returns nil, nil when the row doesn't exist. Callers decide
//     whether that is a 404 or an empty state.
//   - List* returns an empty slice, never nil, so JSON renders [].
//   - Rows with an enum value the code doesn't know are rejected with an
//     error instead of being passed on half-parsed.

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type UserRepository interface {
	Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
}

type RoleRepository interface {
	Grant(ctx context.Context, userID uuid.UUID, role models.Role) error
	HasRole(ctx context.Context, userID uuid.UUID, role models.Role) (bool, error)
}

// DirectoryQuery filters the discoverable profile list.
type DirectoryQuery struct {
	ViewerID uuid.UUID
	Search   string
	Niche    string
	Limit    int
	Now      time.Time
}

type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) (*models.Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Profile, error)
	Update(ctx context.Context, p *models.Profile) (*models.Profile, error)
	SetPicture(ctx context.Context, userID uuid.UUID, url string) error

	// ListDiscoverable returns public profiles other than the viewer's, with
	// the boosted flag and tier filled in.
	ListDiscoverable(ctx context.Context, q DirectoryQuery) ([]models.DirectoryEntry, error)
}

type CollaborationRepository interface {
	Create(ctx context.Context, requesterID, receiverID uuid.UUID, title, description string) (*models.CollaborationRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.CollaborationRequest, error)

	// Transition moves id from `from` to `to` only if its status is still
	// `from`. Returns nil, nil when nothing matched.
	Transition(ctx context.Context, id uuid.UUID, from, to models.CollabStatus) (*models.CollaborationRequest, error)

	// ListActiveForUser excludes rejected requests, newest first.
	ListActiveForUser(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error)

	// ListForUser returns every request the user is a party to, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.CollaborationRequest, error)
}

type ChatRepository interface {
	// GetOrCreate returns the chat for the unordered pair, creating it if
	// needed. created reports whether this call inserted the row.
	GetOrCreate(ctx context.Context, userA, userB uuid.UUID) (chat *models.Chat, created bool, err error)
	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Chat, error)
}

type MessageRepository interface {
	Create(ctx context.Context, chatID, senderID uuid.UUID, body string, attachmentURL *string) (*models.Message, error)
	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// ListByChat returns messages with id > after in ascending id order.
	ListByChat(ctx context.Context, chatID uuid.UUID, after int64, limit int) ([]models.Message, error)

	// MarkRead sets read_at if it is still null. Reports whether a row changed.
	MarkRead(ctx context.Context, messageID int64) (bool, error)

	// ListSentBy returns the user's own messages across all chats, oldest first.
	ListSentBy(ctx context.Context, senderID uuid.UUID) ([]models.Message, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id, userID uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
}

type BoostRepository interface {
	GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (*models.ProfileBoost, error)

	// Create inserts unless a boost with the same PaymentRef exists.
	// created is false for a duplicate.
	Create(ctx context.Context, b *models.ProfileBoost) (boost *models.ProfileBoost, created bool, err error)

	// ExpireEnded flips active boosts whose end_date passed. userID == uuid.Nil
	// means every user.
	ExpireEnded(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

type SubscriptionRepository interface {
	Upsert(ctx context.Context, s *models.Subscription) (*models.Subscription, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

type SponsoredRepository interface {
	ListActive(ctx context.Context) ([]models.SponsoredPost, error)
	Create(ctx context.Context, p *models.SponsoredPost) (*models.SponsoredPost, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.SponsoredPost, error)
}

type WebhookEventRepository interface {
	// Record stores a provider event id. firstTime is false on redelivery.
	Record(ctx context.Context, eventID, eventType string) (firstTime bool, err error)
}

type DashboardRepository interface {
	Counts(ctx context.Context, userID uuid.UUID) (models.DashboardCounts, error)
}
