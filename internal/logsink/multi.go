package logsink

import (
	"context"
	"log/slog"
)

// Multi fans every record out to all wrapped handlers. Used to keep
// stderr logging alive while also shipping records to remote sinks.
type Multi struct {
	handlers []slog.Handler
}

func NewMulti(handlers ...slog.Handler) *Multi {
	return &Multi{handlers: handlers}
}

func (m *Multi) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *Multi) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *Multi) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return &Multi{handlers: next}
}

func (m *Multi) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		next[i] = h.WithGroup(name)
	}
	return &Multi{handlers: next}
}
