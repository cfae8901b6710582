// Package app builds the application state once at startup and tears it
// down on exit. Handlers receive what they need from here by constructor
// injection; nothing is reached through globals.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lalith-99/collabspace/internal/api"
	"github.com/lalith-99/collabspace/internal/auth"
	"github.com/lalith-99/collabspace/internal/config"
	"github.com/lalith-99/collabspace/internal/db"
	"github.com/lalith-99/collabspace/internal/models"
	"github.com/lalith-99/collabspace/internal/realtime"
	"github.com/lalith-99/collabspace/internal/repository/postgres"
	"github.com/lalith-99/collabspace/internal/service/account"
	"github.com/lalith-99/collabspace/internal/service/billing"
	"github.com/lalith-99/collabspace/internal/service/chat"
	"github.com/lalith-99/collabspace/internal/service/collab"
	"github.com/lalith-99/collabspace/internal/service/dashboard"
	"github.com/lalith-99/collabspace/internal/service/directory"
	"github.com/lalith-99/collabspace/internal/service/export"
	"github.com/lalith-99/collabspace/internal/service/matching"
	"github.com/lalith-99/collabspace/internal/service/media"
	"github.com/lalith-99/collabspace/internal/service/notify"
	"github.com/lalith-99/collabspace/internal/service/sponsored"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const boostExpiryInterval = 5 * time.Minute

type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	DB      *db.DB
	Redis   *redis.Client
	Bus     *realtime.Bus
	Billing *billing.Service
	Router  http.Handler
}

// New connects to Postgres (and Redis when configured), applies migrations
// and wires every service and handler.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	database, err := db.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	rdb, err := connectRedis(ctx, cfg, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, DB: database, Redis: rdb}
	a.Bus = realtime.NewBus(rdb, logger)

	var denied auth.DenyList = auth.NewMemoryDenyList()
	if rdb != nil {
		denied = auth.NewRedisDenyList(rdb)
	}

	pool := database.Pool()
	users := postgres.NewUserStore(pool)
	roles := postgres.NewRoleStore(pool)
	profiles := postgres.NewProfileStore(pool)
	tx := postgres.NewTxManager(pool)

	issuer := auth.NewIssuer(cfg.JWTSecret)

	var mailer account.Mailer = account.LogMailer{Logger: logger}
	if cfg.Mail.SendGridAPIKey != "" {
		mailer = account.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.FromEmail)
	}

	notifications := notify.NewService(logger, postgres.NewNotificationStore(pool), a.Bus)
	accounts := account.NewService(logger, users, profiles, roles, tx, issuer, denied, mailer, a.Bus, account.Config{
		TokenTTL:  cfg.TokenTTL,
		PublicURL: cfg.PublicURL,
	})
	dir := directory.NewService(profiles)

	store, err := media.NewLocalStore(cfg.Media.UploadDir, strings.TrimRight(cfg.PublicURL, "/")+"/media/")
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("media store: %w", err)
	}
	avatars := media.NewService(logger, profiles, store, cfg.Media.MaxBytes)

	var ranker matching.Ranker
	if cfg.Matcher.AnthropicAPIKey != "" {
		ranker = matching.NewAnthropicRanker(cfg.Matcher.AnthropicAPIKey, cfg.Matcher.Model)
	} else {
		logger.Warn("ANTHROPIC_API_KEY not set, suggestions use the follower-count fallback")
	}
	matcher := matching.NewService(logger, dir, profiles, ranker, cfg.Matcher.Timeout)

	if cfg.Stripe.SecretKey == "" || cfg.Stripe.WebhookSecret == "" {
		logger.Warn("stripe keys not set, checkout and webhooks will fail")
	}
	a.Billing = billing.NewService(logger,
		postgres.NewBoostStore(pool),
		postgres.NewSubscriptionStore(pool),
		postgres.NewWebhookEventStore(pool),
		tx,
		notifications,
		billing.NewStripeCheckout(cfg.Stripe.SecretKey),
		billing.Config{
			WebhookSecret:   cfg.Stripe.WebhookSecret,
			BoostPriceCents: cfg.Stripe.BoostPriceCents,
			BoostDays:       cfg.Stripe.BoostDays,
			PublicURL:       cfg.PublicURL,
			PlanPrices: map[models.Plan]string{
				models.PlanProMonthly: cfg.Stripe.ProMonthlyPrice,
				models.PlanProYearly:  cfg.Stripe.ProYearlyPrice,
			},
		},
	)

	collabStore := postgres.NewCollaborationStore(pool)
	messageStore := postgres.NewMessageStore(pool)
	chats := chat.NewService(logger, postgres.NewChatStore(pool), messageStore, users, notifications, a.Bus)
	collabs := collab.NewService(logger, collabStore, profiles, notifications)

	a.Router = api.NewRouter(api.Handlers{
		Auth:          api.NewAuthHandler(accounts, logger),
		Profiles:      api.NewProfileHandler(dir, avatars, matcher, logger),
		Collabs:       api.NewCollabHandler(collabs, logger),
		Chats:         api.NewChatHandler(chats, logger),
		Notifications: api.NewNotificationHandler(notifications, logger),
		Dashboard:     api.NewDashboardHandler(dashboard.NewService(postgres.NewDashboardStore(pool)), logger),
		Export:        api.NewExportHandler(export.NewService(users, profiles, collabStore, messageStore), logger),
		Billing:       api.NewBillingHandler(a.Billing, logger),
		Sponsored:     api.NewSponsoredHandler(sponsored.NewService(postgres.NewSponsoredStore(pool), roles), logger),
		WS:            api.NewWSHandler(a.Bus, chats, logger),
	}, api.RouterConfig{
		TokenParser: issuer,
		DenyList:    denied,
		HasRole:     accounts.HasRole,
		MediaDir:    cfg.Media.UploadDir,
		Logger:      logger,
		Health:      database.Health,
	})

	return a, nil
}

// Background runs the long-lived workers. Each returns when ctx is done.
func (a *App) Background() []func(ctx context.Context) error {
	return []func(ctx context.Context) error{
		a.Bus.Run,
		func(ctx context.Context) error { return a.Billing.RunExpiryWorker(ctx, boostExpiryInterval) },
	}
}

func (a *App) Close() {
	if a.Bus != nil {
		a.Bus.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("closing redis", zap.Error(err))
		}
	}
	a.DB.Close()
}

// connectRedis returns nil when no Redis is configured. In development an
// unreachable Redis is tolerated and the process runs single-instance.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		if cfg.IsDevelopment() {
			logger.Warn("redis unreachable, realtime and revocation are local to this process", zap.Error(err))
			return nil, nil
		}
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}
