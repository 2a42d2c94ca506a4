// Package email sends transactional mail for the storefront.
package email

import (
	"context"
	"fmt"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
}

// NewProvider returns nil when no provider is configured. Senders treat a
// nil provider as "mail disabled".
func NewProvider(config Config) (Provider, error) {
	switch config.Provider {
	case "":
		return nil, nil
	case "resend":
		if config.APIKey == "" || config.From == "" {
			return nil, fmt.Errorf("resend requires an API key and a from address")
		}
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", config.Provider)
	}
}
