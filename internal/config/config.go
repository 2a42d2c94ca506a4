package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	DatabaseURL   string `env:"DATABASE_URL,required" validate:"required"`
	RunMigrations bool   `env:"RUN_MIGRATIONS" envDefault:"true"`

	StripeSecretKey     string        `env:"STRIPE_SECRET_KEY,required" validate:"required"`
	StripeWebhookSecret string        `env:"STRIPE_WEBHOOK_SECRET,required" validate:"required"`
	Currency            string        `env:"CURRENCY" envDefault:"usd" validate:"required,len=3,lowercase"`
	GatewayTimeout      time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	FrontendOrigin string `env:"FRONTEND_ORIGIN,required" validate:"required,url"`
	JWTSecret      string `env:"JWT_SECRET,required" validate:"required,min=32"`

	PendingCheckoutTTL      time.Duration `env:"PENDING_CHECKOUT_TTL" envDefault:"30m" validate:"gte=1m"`
	StrictStatusTransitions bool          `env:"STRICT_STATUS_TRANSITIONS" envDefault:"false"`

	CacheProvider         string `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis"`

	EmailProvider string `env:"EMAIL_PROVIDER" validate:"omitempty,oneof=resend"`
	ResendAPIKey  string `env:"RESEND_API_KEY" validate:"required_if=EmailProvider resend"`
	EmailFrom     string `env:"EMAIL_FROM" validate:"required_if=EmailProvider resend"`

	SentryDSN   string `env:"SENTRY_DSN" validate:"omitempty,url"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	origin := strings.TrimSpace(c.FrontendOrigin)
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Hostname() == "" {
		return fmt.Errorf("FRONTEND_ORIGIN must be a valid absolute URL")
	}
	if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
		return fmt.Errorf("FRONTEND_ORIGIN must use https outside local development")
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fmt.Errorf("FRONTEND_ORIGIN must not contain a path")
	}

	return nil
}

// SuccessURL is where the hosted checkout sends the buyer after payment. The
// gateway substitutes the session id placeholder.
func (c *Config) SuccessURL() string {
	return c.frontendBase() + "/order-success?session_id={CHECKOUT_SESSION_ID}"
}

func (c *Config) CancelURL() string {
	return c.frontendBase() + "/order-cancelled"
}

func (c *Config) frontendBase() string {
	return strings.TrimRight(strings.TrimSpace(c.FrontendOrigin), "/")
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
