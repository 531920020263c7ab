package logger

import (
	"context"
	"log/slog"
)

// Meta identifies the update a log line was written for. Non-zero fields are
// added to every line logged with the carrying context.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
	State    string
}

type (
	metaKey   struct{}
	loggerKey struct{}
)

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// MetaFrom returns the metadata attached to ctx.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey{}).(Meta)
	return m
}

func withMeta(ctx context.Context, edit func(*Meta)) context.Context {
	ctx = orBackground(ctx)
	m := MetaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, metaKey{}, m)
}

// WithRID attaches the correlation id of the update.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.RID = rid })
}

// WithUpdateMeta attaches the update, user and chat ids.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *Meta) {
		m.UpdateID = updateID
		m.UserID = userID
		m.ChatID = chatID
	})
}

// WithHandler names the handler serving the update. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return orBackground(ctx)
	}
	return withMeta(ctx, func(m *Meta) { m.Handler = handler })
}

// HandlerFrom returns the handler name set by WithHandler.
func HandlerFrom(ctx context.Context) string {
	return MetaFrom(ctx).Handler
}

// WithState records the dialogue state the update is processed in.
func WithState(ctx context.Context, state string) context.Context {
	if state == "" {
		return orBackground(ctx)
	}
	return withMeta(ctx, func(m *Meta) { m.State = state })
}

// fill adds the metadata to e without overriding explicit attributes.
func (m Meta) fill(e entry) {
	if m.RID != "" {
		e.setDefault("rid", m.RID)
	}
	if m.State != "" {
		e.setDefault("state", m.State)
	}
	if m.UserID != 0 {
		e.setDefault("user_id", m.UserID)
	}
	if m.UpdateID != 0 {
		e.setDefault("update_id", int64(m.UpdateID))
	}
	if m.ChatID != 0 {
		e.setDefault("chat_id", m.ChatID)
	}
	if m.Handler != "" {
		e.setDefault("handler", m.Handler)
	}
}

// WithLogger stores log in ctx; FromContext returns it.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	ctx = orBackground(ctx)
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, log)
}

// FromContext returns the logger stored by WithLogger, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
			return l
		}
	}
	return L
}
