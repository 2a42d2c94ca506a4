package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

const maxSpanQueryLen = 512

type querySpanKey struct{}

// queryTracer emits a sentry span per statement, but only when the caller is
// already inside a transaction. Background queries stay untraced.
type queryTracer struct{}

func newQueryTracer() *queryTracer {
	return &queryTracer{}
}

func (queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	statement := normalizeQuery(data.SQL)
	span := sentry.StartSpan(ctx, "db.query",
		sentry.WithDescription(statement),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	if op := queryOperation(statement); op != "" {
		span.SetData("db.operation", op)
	}

	return context.WithValue(span.Context(), querySpanKey{}, span)
}

func (queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, ok := ctx.Value(querySpanKey{}).(*sentry.Span)
	if !ok || span == nil {
		return
	}
	defer span.Finish()

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", data.Err.Error())
		return
	}
	span.Status = sentry.SpanStatusOK
	if n := data.CommandTag.RowsAffected(); n >= 0 {
		span.SetData("db.rows_affected", n)
	}
}

func normalizeQuery(query string) string {
	collapsed := strings.Join(strings.Fields(query), " ")
	if collapsed == "" {
		return "sql.query"
	}
	if len(collapsed) > maxSpanQueryLen {
		return collapsed[:maxSpanQueryLen]
	}
	return collapsed
}

func queryOperation(query string) string {
	verb, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	return strings.ToUpper(verb)
}
