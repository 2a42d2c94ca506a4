package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
)

// MultiHandler sends each record to every handler that accepts its level.
// The console handler and the error-reporting handler are combined this way.
func MultiHandler(handlers ...slog.Handler) slog.Handler {
	var fanout multiHandler
	for _, handler := range handlers {
		if handler != nil {
			fanout = append(fanout, handler)
		}
	}
	switch len(fanout) {
	case 0:
		return slog.NewTextHandler(io.Discard, nil)
	case 1:
		return fanout[0]
	}
	return fanout
}

type multiHandler []slog.Handler

func (h multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h multiHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, handler := range h {
		if !handler.Enabled(ctx, record.Level) {
			continue
		}
		// Handlers may retain the record; each gets its own copy of the attrs.
		if err := handler.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithAttrs(attrs) })
}

func (h multiHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return h.each(func(handler slog.Handler) slog.Handler { return handler.WithGroup(name) })
}

func (h multiHandler) each(fn func(slog.Handler) slog.Handler) multiHandler {
	next := make(multiHandler, len(h))
	for i, handler := range h {
		next[i] = fn(handler)
	}
	return next
}
