package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/observ"
	"github.com/lalith-99/collabspace/internal/service/directory"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

type boostRepo interface {
	GetActive(ctx context.Context, userID uuid.UUID, now time.Time) (*models.ProfileBoost, error)
	Create(ctx context.Context, b *models.ProfileBoost) (*models.ProfileBoost, bool, error)
	ExpireEnded(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
}

type subscriptionRepo interface {
	Upsert(ctx context.Context, s *models.Subscription) (*models.Subscription, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

type webhookEventRepo interface {
	Record(ctx context.Context, eventID, eventType string) (bool, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, typ models.NotificationType, title, body string, link *string) (*models.Notification, error)
}

// CheckoutProvider creates hosted checkout sessions.
type CheckoutProvider interface {
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

type Config struct {
	WebhookSecret   string
	BoostPriceCents int64
	BoostDays       int
	PlanPrices      map[models.Plan]string
	PublicURL       string
}

const (
	metaUserID    = "user_id"
	metaKind      = "kind"
	metaPlan      = "plan"
	metaBoostDays = "boost_duration_days"

	kindBoost        = "boost"
	kindSubscription = "subscription"
)

type Service struct {
	log           *zap.Logger
	boosts        boostRepo
	subscriptions subscriptionRepo
	events        webhookEventRepo
	tx            txManager
	notify        notifier
	checkout      CheckoutProvider
	cfg           Config
	now           func() time.Time
}

func NewService(
	logger *zap.Logger,
	boosts boostRepo,
	subscriptions subscriptionRepo,
	events webhookEventRepo,
	tx txManager,
	notify notifier,
	checkout CheckoutProvider,
	cfg Config,
) *Service {
	return &Service{
		log:           observ.Component(logger, "billing"),
		boosts:        boosts,
		subscriptions: subscriptions,
		events:        events,
		tx:            tx,
		notify:        notify,
		checkout:      checkout,
		cfg:           cfg,
		now:           time.Now,
	}
}

// Buyer is who is paying.
type Buyer struct {
	UserID uuid.UUID
	Email  string
}

// RedirectURLs are where the hosted checkout sends the browser back to.
// Empty values fall back to the dashboard.
type RedirectURLs struct {
	Success string
	Cancel  string
}

func (s *Service) redirects(in RedirectURLs, flag string) (string, string, error) {
	base := strings.TrimRight(s.cfg.PublicURL, "/")
	success, cancel := in.Success, in.Cancel
	if success == "" {
		success = base + "/dashboard?" + flag + "_success=true"
	}
	if cancel == "" {
		cancel = base + "/dashboard?" + flag + "_cancelled=true"
	}

	var v models.Validator
	v.Check(directory.IsHTTPURL(success), "success_url", "must be an absolute http(s) URL")
	v.Check(directory.IsHTTPURL(cancel), "cancel_url", "must be an absolute http(s) URL")
	return success, cancel, v.Err()
}

// ActiveBoost returns the caller's running boost, or nil.
func (s *Service) ActiveBoost(ctx context.Context, userID uuid.UUID) (*models.ProfileBoost, error) {
	return s.boosts.GetActive(ctx, userID, s.now())
}

// SubscriptionStatus is the caller's plan as GET /v1/billing/subscription
// reports it. Subscription is nil for users who never subscribed. Provider
// references are not serialized.
type SubscriptionStatus struct {
	Tier         models.Plan          `json:"tier"`
	Subscription *models.Subscription `json:"subscription"`
}

func (s *Service) Subscription(ctx context.Context, userID uuid.UUID) (*SubscriptionStatus, error) {
	sub, err := s.subscriptions.GetByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load subscription: %w", err)
	}
	return &SubscriptionStatus{Tier: sub.Tier(), Subscription: sub}, nil
}

// CreateBoostCheckout starts a one-off payment for a profile boost and
// returns the checkout URL.
func (s *Service) CreateBoostCheckout(ctx context.Context, buyer Buyer, urls RedirectURLs) (string, error) {
	success, cancel, err := s.redirects(urls, "boost")
	if err != nil {
		return "", err
	}

	active, err := s.boosts.GetActive(ctx, buyer.UserID, s.now())
	if err != nil {
		return "", fmt.Errorf("check active boost: %w", err)
	}
	if active != nil {
		return "", fmt.Errorf("%w: already have an active boost", models.ErrConflict)
	}

	days := strconv.Itoa(s.cfg.BoostDays)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(success),
		CancelURL:         stripe.String(cancel),
		ClientReferenceID: stripe.String(buyer.UserID.String()),
		CustomerEmail:     stripe.String(buyer.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(s.cfg.BoostPriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:        stripe.String("Profile Boost - " + days + " Days"),
					Description: stripe.String("Boost your profile visibility for " + days + " days"),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		Metadata: map[string]string{
			metaUserID:    buyer.UserID.String(),
			metaKind:      kindBoost,
			metaBoostDays: days,
		},
	}

	sess, err := s.checkout.NewCheckoutSession(ctx, params)
	if err != nil {
		return "", providerError(err)
	}
	s.log.Info("boost checkout created", zap.String("user_id", buyer.UserID.String()), zap.String("session_id", sess.ID))
	return sess.URL, nil
}

// CreateSubscriptionCheckout starts a recurring plan purchase.
func (s *Service) CreateSubscriptionCheckout(ctx context.Context, buyer Buyer, plan models.Plan, urls RedirectURLs) (string, error) {
	price, ok := s.cfg.PlanPrices[plan]
	if !ok || price == "" || plan == models.PlanFree {
		return "", models.NewValidationError("plan", "must be pro_monthly or pro_yearly")
	}
	success, cancel, err := s.redirects(urls, "subscription")
	if err != nil {
		return "", err
	}

	current, err := s.subscriptions.GetByUserID(ctx, buyer.UserID)
	if err != nil {
		return "", fmt.Errorf("check subscription: %w", err)
	}
	if current.Tier() == plan {
		return "", fmt.Errorf("%w: already subscribed to %s", models.ErrConflict, plan)
	}

	meta := map[string]string{
		metaUserID: buyer.UserID.String(),
		metaKind:   kindSubscription,
		metaPlan:   string(plan),
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:        stripe.String(success),
		CancelURL:         stripe.String(cancel),
		ClientReferenceID: stripe.String(buyer.UserID.String()),
		CustomerEmail:     stripe.String(buyer.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(price),
			Quantity: stripe.Int64(1),
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{Metadata: meta},
		Metadata:         meta,
	}

	sess, err := s.checkout.NewCheckoutSession(ctx, params)
	if err != nil {
		return "", providerError(err)
	}
	return sess.URL, nil
}

// HandleWebhook verifies and applies one provider event. Redelivered events
// are recognised by id and change nothing.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		s.log.Warn("webhook signature rejected", zap.Error(err))
		return models.NewValidationError("signature", "invalid webhook signature")
	}

	switch event.Type {
	case "checkout.session.completed":
		return s.completeCheckout(ctx, event)
	default:
		s.log.Debug("webhook event ignored", zap.String("type", string(event.Type)), zap.String("event_id", event.ID))
		return nil
	}
}

type completion struct {
	userID uuid.UUID
	kind   string
	title  string
	body   string
}

func (s *Service) completeCheckout(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return models.NewValidationError("data", "malformed checkout session")
	}

	userID, err := uuid.Parse(sess.Metadata[metaUserID])
	if err != nil {
		s.log.Error("checkout session without user_id", zap.String("session_id", sess.ID))
		return models.NewValidationError("metadata.user_id", "missing or invalid")
	}
	kind := sess.Metadata[metaKind]
	if kind == "" {
		kind = kindBoost
	}

	var done *completion
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		first, err := s.events.Record(ctx, event.ID, string(event.Type))
		if err != nil {
			return fmt.Errorf("record webhook event: %w", err)
		}
		if !first {
			s.log.Info("webhook redelivery ignored", zap.String("event_id", event.ID))
			return nil
		}

		switch kind {
		case kindBoost:
			done, err = s.applyBoost(ctx, userID, &sess)
		case kindSubscription:
			done, err = s.applySubscription(ctx, userID, &sess)
		default:
			s.log.Warn("unknown checkout kind", zap.String("kind", kind), zap.String("session_id", sess.ID))
		}
		return err
	})
	if err != nil {
		return err
	}

	if done != nil {
		link := "/dashboard"
		if _, err := s.notify.Notify(ctx, done.userID, models.NotificationSubscription, done.title, done.body, &link); err != nil {
			s.log.Error("billing notification failed", zap.String("user_id", done.userID.String()), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) applyBoost(ctx context.Context, userID uuid.UUID, sess *stripe.CheckoutSession) (*completion, error) {
	now := s.now()
	days, err := strconv.Atoi(sess.Metadata[metaBoostDays])
	if err != nil || days <= 0 {
		days = s.cfg.BoostDays
	}

	if _, err := s.boosts.ExpireEnded(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("expire ended boosts: %w", err)
	}

	ref := sess.ID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		ref = sess.PaymentIntent.ID
	}
	amount := sess.AmountTotal
	if amount == 0 {
		amount = s.cfg.BoostPriceCents
	}

	active, err := s.boosts.GetActive(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("check active boost: %w", err)
	}
	if active != nil && active.PaymentRef != ref {
		// Checkout refuses a second boost, so this is two sessions paid in
		// parallel. Keep the first boost and leave the payment for a refund.
		s.log.Error("paid boost while another is active",
			zap.String("user_id", userID.String()),
			zap.String("payment_ref", ref),
			zap.String("active_payment_ref", active.PaymentRef),
		)
		return nil, nil
	}

	_, created, err := s.boosts.Create(ctx, &models.ProfileBoost{
		UserID:     userID,
		StartDate:  now,
		EndDate:    now.AddDate(0, 0, days),
		PaymentRef: ref,
		AmountPaid: amount,
		Status:     models.BoostActive,
	})
	if err != nil {
		return nil, fmt.Errorf("create boost: %w", err)
	}
	if !created {
		return nil, nil
	}

	s.log.Info("profile boosted", zap.String("user_id", userID.String()), zap.Int("days", days))
	return &completion{
		userID: userID,
		kind:   kindBoost,
		title:  "Profile Boosted!",
		body:   fmt.Sprintf("Your profile is now boosted for %d days and will appear higher in search results.", days),
	}, nil
}

func (s *Service) applySubscription(ctx context.Context, userID uuid.UUID, sess *stripe.CheckoutSession) (*completion, error) {
	plan := models.Plan(sess.Metadata[metaPlan])
	if !plan.Valid() || plan == models.PlanFree {
		return nil, models.NewValidationError("metadata.plan", "missing or invalid")
	}

	sub := &models.Subscription{
		UserID:     userID,
		Plan:       plan,
		Status:     models.SubscriptionActive,
		SessionRef: sess.ID,
	}
	if sess.Customer != nil {
		sub.CustomerRef = sess.Customer.ID
	}
	if sess.Subscription != nil {
		sub.SubscriptionRef = sess.Subscription.ID
		if sess.Subscription.CurrentPeriodEnd > 0 {
			end := time.Unix(sess.Subscription.CurrentPeriodEnd, 0)
			sub.CurrentPeriodEnd = &end
		}
	}

	if _, err := s.subscriptions.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return &completion{
		userID: userID,
		kind:   kindSubscription,
		title:  "Subscription active",
		body:   "Your " + strings.ReplaceAll(string(plan), "_", " ") + " plan is now active.",
	}, nil
}

// ExpireBoosts flips every boost whose end date has passed.
func (s *Service) ExpireBoosts(ctx context.Context) (int64, error) {
	return s.boosts.ExpireEnded(ctx, uuid.Nil, s.now())
}

// RunExpiryWorker calls ExpireBoosts every interval until ctx is done.
func (s *Service) RunExpiryWorker(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.ExpireBoosts(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error("boost expiry failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.log.Info("boosts expired", zap.Int64("count", n))
			}
		}
	}
}

// providerError turns a Stripe API error into an ExternalServiceError so the
// handler can map rate limits and payment failures.
func providerError(err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return models.NewExternalServiceError("stripe", se.HTTPStatusCode, err)
	}
	return models.NewExternalServiceError("stripe", 0, err)
}
