package observability

import (
	"net/http"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

// Outbound hosts that receive sentry trace headers.
var tracePropagationTargets = []string{
	"api.stripe.com",
}

// NewHTTPClient returns a client whose transport records sentry spans for
// every outbound call. A zero timeout leaves the client unbounded.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: sentryhttpclient.NewSentryRoundTripper(
			http.DefaultTransport,
			sentryhttpclient.WithTracePropagationTargets(tracePropagationTargets),
		),
		Timeout: timeout,
	}
}
