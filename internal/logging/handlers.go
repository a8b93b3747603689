package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns attributes computed at the time a record is logged.
type ContextProvider func() []slog.Attr

// Fanout delivers every record to each handler enabled for its level.
type Fanout []slog.Handler

// NewFanout drops nil handlers.
func NewFanout(handlers ...slog.Handler) Fanout {
	out := make(Fanout, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (f Fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle keeps going after a failing sink and reports every failure joined.
func (f Fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	return f.each(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (f Fanout) WithGroup(name string) slog.Handler {
	if name == "" {
		return f
	}
	return f.each(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (f Fanout) each(fn func(slog.Handler) slog.Handler) Fanout {
	out := make(Fanout, len(f))
	for i, h := range f {
		out[i] = fn(h)
	}
	return out
}

// liveContext appends the provider's attributes to each record. Loggers
// derived with WithGroup skip them, since slog would nest them in the group.
type liveContext struct {
	inner    slog.Handler
	provider ContextProvider
	grouped  bool
}

// WithLiveContext wraps inner so every record carries provider's attributes.
// A nil provider returns inner unchanged.
func WithLiveContext(inner slog.Handler, provider ContextProvider) slog.Handler {
	if provider == nil {
		return inner
	}
	return &liveContext{inner: inner, provider: provider}
}

func (h *liveContext) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *liveContext) Handle(ctx context.Context, r slog.Record) error {
	if attrs := h.provider(); len(attrs) > 0 && !h.grouped {
		r.AddAttrs(attrs...)
	}
	return h.inner.Handle(ctx, r)
}

func (h *liveContext) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &liveContext{inner: h.inner.WithAttrs(attrs), provider: h.provider, grouped: h.grouped}
}

func (h *liveContext) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &liveContext{inner: h.inner.WithGroup(name), provider: h.provider, grouped: true}
}
