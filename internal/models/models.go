package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an identity that can sign in. The public side of a user is their
// Profile; User carries only what authentication needs.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	PasswordHash    string     `json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// SocialLinks are optional absolute URLs; empty string means unset.
type SocialLinks struct {
	Instagram string `json:"instagram,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	YouTube   string `json:"youtube,omitempty"`
}

// Profile is the public creator record. There is exactly one per user and it
// is keyed by the user's ID, so a profile ID and a user ID are the same value.
type Profile struct {
	UserID        uuid.UUID   `json:"user_id"`
	DisplayName   string      `json:"display_name"`
	Bio           string      `json:"bio"`
	Niche         string      `json:"niche"`
	FollowerCount int         `json:"follower_count"`
	PictureURL    string      `json:"picture_url,omitempty"`
	Links         SocialLinks `json:"links"`
	Visibility    Visibility  `json:"visibility"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// DirectoryEntry is a Profile as seen by another user while browsing.
// Boosted and Tier are derived at query time and never stored on the profile.
type DirectoryEntry struct {
	Profile
	Boosted bool `json:"boosted"`
	Tier    Plan `json:"subscription_tier"`
}

type CollabStatus string

const (
	CollabPending   CollabStatus = "pending"
	CollabAccepted  CollabStatus = "accepted"
	CollabRejected  CollabStatus = "rejected"
	CollabCompleted CollabStatus = "completed"
)

func (s CollabStatus) Valid() bool {
	switch s {
	case CollabPending, CollabAccepted, CollabRejected, CollabCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether next is reachable from s in one step:
// pending -> accepted | rejected, accepted -> completed.
func (s CollabStatus) CanTransitionTo(next CollabStatus) bool {
	switch s {
	case CollabPending:
		return next == CollabAccepted || next == CollabRejected
	case CollabAccepted:
		return next == CollabCompleted
	}
	return false
}

// Terminal statuses admit no further transition.
func (s CollabStatus) Terminal() bool {
	return s == CollabRejected || s == CollabCompleted
}

// CollaborationRequest is a directed proposal from Requester to Receiver.
type CollaborationRequest struct {
	ID          uuid.UUID    `json:"id"`
	RequesterID uuid.UUID    `json:"requester_id"`
	ReceiverID  uuid.UUID    `json:"receiver_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Status      CollabStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Involves reports whether userID is either party.
func (r *CollaborationRequest) Involves(userID uuid.UUID) bool {
	return r.RequesterID == userID || r.ReceiverID == userID
}

// Counterpart returns the other party, or uuid.Nil if userID is not a party.
func (r *CollaborationRequest) Counterpart(userID uuid.UUID) uuid.UUID {
	switch userID {
	case r.RequesterID:
		return r.ReceiverID
	case r.ReceiverID:
		return r.RequesterID
	}
	return uuid.Nil
}

// Chat pairs two users. Participants are stored in canonical order
// (ParticipantA < ParticipantB) so one unordered pair maps to one row.
type Chat struct {
	ID           uuid.UUID `json:"id"`
	ParticipantA uuid.UUID `json:"participant_a"`
	ParticipantB uuid.UUID `json:"participant_b"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *Chat) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the participant that isn't userID.
func (c *Chat) Other(userID uuid.UUID) uuid.UUID {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// CanonicalPair orders two user IDs the way chats are stored.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// Message IDs come from a bigserial, so ordering by ID is creation order.
type Message struct {
	ID            int64      `json:"id"`
	ChatID        uuid.UUID  `json:"chat_id"`
	SenderID      uuid.UUID  `json:"sender_id"`
	Body          string     `json:"body"`
	AttachmentURL *string    `json:"attachment_url,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReadAt        *time.Time `json:"read_at,omitempty"`
}

type NotificationType string

const (
	NotificationMessage       NotificationType = "message"
	NotificationApplication   NotificationType = "application"
	NotificationRequestUpdate NotificationType = "request_update"
	NotificationSubscription  NotificationType = "subscription"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationMessage, NotificationApplication, NotificationRequestUpdate, NotificationSubscription:
		return true
	}
	return false
}

type Notification struct {
	ID        uuid.UUID        `json:"id"`
	UserID    uuid.UUID        `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Link      *string          `json:"link,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

type BoostStatus string

const (
	BoostActive  BoostStatus = "active"
	BoostExpired BoostStatus = "expired"
)

func (s BoostStatus) Valid() bool {
	return s == BoostActive || s == BoostExpired
}

// ProfileBoost is a paid, time-boxed visibility promotion. PaymentRef is the
// provider's payment identifier and is unique across boosts.
type ProfileBoost struct {
	ID         uuid.UUID   `json:"id"`
	UserID     uuid.UUID   `json:"user_id"`
	StartDate  time.Time   `json:"start_date"`
	EndDate    time.Time   `json:"end_date"`
	PaymentRef string      `json:"payment_ref"`
	AmountPaid int64       `json:"amount_paid"`
	Status     BoostStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
}

// ActiveAt is the "boosted" predicate: status active and not yet ended.
func (b *ProfileBoost) ActiveAt(now time.Time) bool {
	return b.Status == BoostActive && !b.EndDate.Before(now)
}

type Plan string

const (
	PlanFree       Plan = "free"
	PlanProMonthly Plan = "pro_monthly"
	PlanProYearly  Plan = "pro_yearly"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanProMonthly, PlanProYearly:
		return true
	}
	return false
}

type SubscriptionStatus string

const (
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionPastDue, SubscriptionCanceled, SubscriptionIncomplete:
		return true
	}
	return false
}

type Subscription struct {
	ID               uuid.UUID          `json:"id"`
	UserID           uuid.UUID          `json:"user_id"`
	Plan             Plan               `json:"plan"`
	Status           SubscriptionStatus `json:"status"`
	CustomerRef      string             `json:"-"`
	SessionRef       string             `json:"-"`
	SubscriptionRef  string             `json:"-"`
	CurrentPeriodEnd *time.Time         `json:"current_period_end,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// Tier is the plan the user is entitled to right now.
func (s *Subscription) Tier() Plan {
	if s == nil || s.Status != SubscriptionActive {
		return PlanFree
	}
	return s.Plan
}

type SponsoredPost struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	ImageURL     string    `json:"image_url,omitempty"`
	LinkURL      string    `json:"link_url"`
	DisplayOrder int       `json:"display_order"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DashboardCounts is one consistent snapshot of the raw numbers behind the
// dashboard, read in a single statement.
type DashboardCounts struct {
	Accepted       int
	Completed      int
	Total          int
	UnreadMessages int
}

type Dashboard struct {
	ActiveCollaborations int `json:"active_collaborations"`
	UnreadMessages       int `json:"unread_messages"`
	SuccessRate          int `json:"success_rate"`
	TotalCollaborations  int `json:"total_collaborations"`
}
