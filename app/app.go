package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/gitshopapp/storefront/internal/auth"
	"github.com/gitshopapp/storefront/internal/cache"
	"github.com/gitshopapp/storefront/internal/checkout"
	"github.com/gitshopapp/storefront/internal/config"
	"github.com/gitshopapp/storefront/internal/db"
	"github.com/gitshopapp/storefront/internal/email"
	"github.com/gitshopapp/storefront/internal/handlers"
	"github.com/gitshopapp/storefront/internal/logging"
	"github.com/gitshopapp/storefront/internal/services"
	"github.com/gitshopapp/storefront/internal/stripe"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *pgxpool.Pool
	caches        *caches
	Handlers      *handlers.Handlers
	sentryEnabled bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled := false
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.Environment,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
		sentryEnabled = true
	}

	logger := newLogger(cfg, sentryEnabled)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		logger.Info("database migrations applied")
	}

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	appCaches, err := newCaches(cfg, 0)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}
	if cfg.CacheProvider != "redis" {
		logger.Warn("using in-process cache; pending checkouts are not shared between replicas")
	}

	pendingStore, err := checkout.NewStore(appCaches.checkout, cfg.PendingCheckoutTTL)
	if err != nil {
		appCaches.Close(logger)
		database.Close()
		return nil, fmt.Errorf("failed to initialize pending checkout store: %w", err)
	}

	emailProvider, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.ResendAPIKey,
		From:     cfg.EmailFrom,
	})
	if err != nil {
		appCaches.Close(logger)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret)
	if err != nil {
		appCaches.Close(logger)
		database.Close()
		return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	gateway := stripe.NewGateway(stripe.GatewayConfig{
		SecretKey: cfg.StripeSecretKey,
		Timeout:   cfg.GatewayTimeout,
	})
	orderStore := db.NewOrderStore(database)
	emailSender := services.NewProviderOrderEmailSender(emailProvider)

	checkoutService := services.NewCheckoutService(
		pendingStore,
		gateway,
		services.CheckoutConfig{
			Currency:   cfg.Currency,
			SuccessURL: cfg.SuccessURL(),
			CancelURL:  cfg.CancelURL(),
		},
		logger.With("component", "checkout_service"),
	)
	orderService := services.NewOrderService(
		orderStore,
		gateway,
		services.OrderServiceConfig{StrictTransitions: cfg.StrictStatusTransitions},
		logger.With("component", "order_service"),
	)
	reconciler := services.NewReconciler(pendingStore, orderStore, emailSender, logger.With("component", "reconciler"))
	stripeRouter := handlers.NewStripeEventRouter(reconciler, logger.With("component", "stripe_router"))

	h, err := handlers.New(handlers.Dependencies{
		Config:          cfg,
		DB:              database,
		WebhookCache:    appCaches.webhooks,
		CheckoutService: checkoutService,
		OrderService:    orderService,
		StripeRouter:    stripeRouter,
		Verifier:        verifier,
		Logger:          logger,
	})
	if err != nil {
		appCaches.Close(logger)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:        cfg,
		Logger:        logger,
		DB:            database,
		caches:        appCaches,
		Handlers:      h,
		sentryEnabled: sentryEnabled,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.caches.Close(a.Logger)
	if a.DB != nil {
		a.DB.Close()
	}
	if a.sentryEnabled {
		sentry.Flush(2 * time.Second)
	}
}

func newLogger(cfg *config.Config, sentryEnabled bool) *slog.Logger {
	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		console = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})
	default:
		console = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if !sentryEnabled {
		return slog.New(console)
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
	}.NewSentryHandler(context.Background())

	return slog.New(logging.MultiHandler(console, sentryHandler))
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
