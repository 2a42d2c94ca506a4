// Package observability holds sentry helpers shared by handlers and services.
package observability

import (
	"context"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

type meterKey struct{}

// WithMeter stores a request-scoped meter. A nil meter is replaced with a
// fresh one bound to ctx.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterKey{}, meter.WithCtx(ctx))
}

func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// CountReason increments name with a single "reason" attribute.
func CountReason(ctx context.Context, name, reason string) {
	MeterFromContext(ctx).Count(name, 1, sentry.WithAttributes(
		attribute.String("reason", reason),
	))
}
