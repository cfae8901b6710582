package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/collabspace/internal/models"
)

type BoostStore struct {
	db DB
}

func NewBoostStore(db DB) *BoostStore {
	return &BoostStore{db: db}
}

const boostColumns = `id, user_id, start_date, end_date, payment_ref, amount_paid, status, created_at`

func scanBoost(row pgx.Row) (*models.ProfileBoost, error) {
	var b models.ProfileBoost
	var status string
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.StartDate,
		&b.EndDate,
		&b.PaymentRef,
		&b.AmountPaid,
		&status,
		&b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Status = models.BoostStatus(status)
	if !b.Status.Valid() {
		return nil, badEnum("profile_boosts", "status", status)
	}
	return &b, nil
}

func (s *BoostStore) GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (*models.ProfileBoost, error) {
	query := `
		SELECT ` + boostColumns + `
		FROM profile_boosts
		WHERE user_id = $1 AND status = 'active' AND end_date >= $2
		ORDER BY end_date DESC
		LIMIT 1`

	b, err := scanBoost(conn(ctx, s.db).QueryRow(ctx, query, userID, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get active boost", err)
	}
	return b, nil
}

// Create is keyed on payment_ref: a redelivered payment inserts nothing and
// reports created=false.
func (s *BoostStore) Create(ctx context.Context, b *models.ProfileBoost) (*models.ProfileBoost, bool, error) {
	query := `
		INSERT INTO profile_boosts (user_id, start_date, end_date, payment_ref, amount_paid, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_ref) DO NOTHING
		RETURNING ` + boostColumns

	created, err := scanBoost(conn(ctx, s.db).QueryRow(ctx, query,
		b.UserID, b.StartDate, b.EndDate, b.PaymentRef, b.AmountPaid, string(b.Status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, wrapErr("insert boost", err)
	}
	return created, true, nil
}

func (s *BoostStore) ExpireEnded(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	query := `
		UPDATE profile_boosts
		SET status = 'expired'
		WHERE status = 'active' AND end_date < $1
		  AND ($2::uuid IS NULL OR user_id = $2)`

	var filter *uuid.UUID
	if userID != uuid.Nil {
		filter = &userID
	}

	tag, err := conn(ctx, s.db).Exec(ctx, query, now, filter)
	if err != nil {
		return 0, wrapErr("expire boosts", err)
	}
	return tag.RowsAffected(), nil
}

type SubscriptionStore struct {
	db DB
}

func NewSubscriptionStore(db DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionColumns = `id, user_id, plan, status, stripe_customer_id, stripe_session_id,
	stripe_subscription_id, current_period_end, created_at, updated_at`

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	var sub models.Subscription
	var plan, status string
	err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&plan,
		&status,
		&sub.CustomerRef,
		&sub.SessionRef,
		&sub.SubscriptionRef,
		&sub.CurrentPeriodEnd,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.Plan = models.Plan(plan)
	if !sub.Plan.Valid() {
		return nil, badEnum("subscriptions", "plan", plan)
	}
	sub.Status = models.SubscriptionStatus(status)
	if !sub.Status.Valid() {
		return nil, badEnum("subscriptions", "status", status)
	}
	return &sub, nil
}

// Upsert keeps one subscription row per user.
func (s *SubscriptionStore) Upsert(ctx context.Context, sub *models.Subscription) (*models.Subscription, error) {
	query := `
		INSERT INTO subscriptions (user_id, plan, status, stripe_customer_id, stripe_session_id,
			stripe_subscription_id, current_period_end)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET plan = EXCLUDED.plan,
			status = EXCLUDED.status,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_session_id = EXCLUDED.stripe_session_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			current_period_end = EXCLUDED.current_period_end,
			updated_at = now()
		RETURNING ` + subscriptionColumns

	out, err := scanSubscription(conn(ctx, s.db).QueryRow(ctx, query,
		sub.UserID, string(sub.Plan), string(sub.Status), sub.CustomerRef, sub.SessionRef,
		sub.SubscriptionRef, sub.CurrentPeriodEnd))
	if err != nil {
		return nil, wrapErr("upsert subscription", err)
	}
	return out, nil
}

func (s *SubscriptionStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`

	sub, err := scanSubscription(conn(ctx, s.db).QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapErr("get subscription", err)
	}
	return sub, nil
}

type WebhookEventStore struct {
	db DB
}

func NewWebhookEventStore(db DB) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func (s *WebhookEventStore) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	query := `
		INSERT INTO webhook_events (event_id, event_type)
		VALUES ($1, $2)
		ON CONFLICT (event_id) DO NOTHING`

	tag, err := conn(ctx, s.db).Exec(ctx, query, eventID, eventType)
	if err != nil {
		return false, wrapErr("record webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}
